package session

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// maxMemorySessions bounds the in-process store; the least recently used
// shopper loses their session first.
const maxMemorySessions = 50_000

// MemoryStore keeps sessions in process; they do not survive a restart.
type MemoryStore struct {
	entries *lru.Cache[string, memoryEntry]
}

type memoryEntry struct {
	data      Data
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	entries, err := lru.New[string, memoryEntry](maxMemorySessions)
	if err != nil {
		// Only a non-positive size fails.
		panic(err)
	}
	return &MemoryStore{entries: entries}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Data, bool) {
	entry, ok := s.entries.Get(key)
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		s.entries.Remove(key)
		return nil, false
	}
	data := entry.data
	return &data, true
}

func (s *MemoryStore) Set(_ context.Context, key string, data *Data, ttl time.Duration) {
	if data == nil {
		return
	}
	s.entries.Add(key, memoryEntry{data: *data, expiresAt: time.Now().Add(ttl)})
}

func (s *MemoryStore) Delete(_ context.Context, key string) {
	s.entries.Remove(key)
}

func (s *MemoryStore) Close() error {
	s.entries.Purge()
	return nil
}
