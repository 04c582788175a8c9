package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMemoryProvider_GetExpires(t *testing.T) {
	t.Parallel()

	provider, err := NewMemoryProvider()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	ctx := context.Background()

	if err := provider.Set(ctx, ItemKey("shirt"), "cached", time.Millisecond); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, err := provider.Get(ctx, ItemKey("shirt")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after expiry, got %v", err)
	}
}

func TestMemoryProvider_SetNXSingleWinner(t *testing.T) {
	t.Parallel()

	provider, err := NewMemoryProvider()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	ctx := context.Background()
	key := PaymentLockKey("order-1")

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := provider.SetNX(ctx, key, "1", time.Minute)
			if err != nil {
				t.Errorf("expected no error, got %v", err)
				return
			}
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := wins.Load(); got != 1 {
		t.Fatalf("expected exactly one lock holder, got %d", got)
	}

	if err := provider.Delete(ctx, key); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	ok, err := provider.SetNX(ctx, key, "1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected lock to be free after delete, got ok=%v err=%v", ok, err)
	}
}

func TestMemoryProvider_ReleaseOnlyByHolder(t *testing.T) {
	t.Parallel()

	provider, err := NewMemoryProvider()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	ctx := context.Background()
	key := PaymentLockKey("order-2")

	if ok, err := provider.SetNX(ctx, key, "holder-a", time.Minute); err != nil || !ok {
		t.Fatalf("expected lock, got ok=%v err=%v", ok, err)
	}
	if released, err := provider.Release(ctx, key, "holder-b"); err != nil || released {
		t.Fatalf("expected foreign release to be refused, got released=%v err=%v", released, err)
	}
	if released, err := provider.Release(ctx, key, "holder-a"); err != nil || !released {
		t.Fatalf("expected holder to release, got released=%v err=%v", released, err)
	}
	if released, err := provider.Release(ctx, key, "holder-a"); err != nil || released {
		t.Fatalf("expected second release to be a no-op, got released=%v err=%v", released, err)
	}
}

func TestNewProvider(t *testing.T) {
	t.Parallel()

	if _, err := NewProvider(Config{Provider: "memcached"}); err == nil {
		t.Fatal("expected error for unsupported provider")
	}
	if _, err := NewProvider(Config{Provider: "redis"}); err == nil {
		t.Fatal("expected error for redis without a connection string")
	}
	if _, err := NewProvider(Config{}); err != nil {
		t.Fatalf("expected default provider, got %v", err)
	}
}
