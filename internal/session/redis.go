package session

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix   = "storefront:session:"
	redisOpTimeout   = 5 * time.Second
	fieldShopperID   = "shopper_id"
	fieldCreatedUnix = "created_at"
)

// RedisStore keeps each session as a hash so the shopper id can be read
// without decoding a blob.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore connects with a redis:// connection string, the same form
// the cache provider accepts.
func NewRedisStore(ctx context.Context, connectionString string) (*RedisStore, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}

	opts, err := redis.ParseURL(connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis connection string: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close() //nolint
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (r *RedisStore) Get(ctx context.Context, key string) (*Data, bool) {
	if key == "" {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	fields, err := r.client.HGetAll(ctx, redisSessionKey(key)).Result()
	if err != nil || fields[fieldShopperID] == "" {
		return nil, false
	}
	createdAt, err := strconv.ParseInt(fields[fieldCreatedUnix], 10, 64)
	if err != nil {
		return nil, false
	}
	return &Data{ShopperID: fields[fieldShopperID], CreatedAt: createdAt}, true
}

func (r *RedisStore) Set(ctx context.Context, key string, data *Data, ttl time.Duration) {
	if key == "" || data == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	redisKey := redisSessionKey(key)
	// A failed write leaves the shopper without a stored session; the next
	// request simply issues a new one.
	_, _ = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error { //nolint
		pipe.HSet(ctx, redisKey,
			fieldShopperID, data.ShopperID,
			fieldCreatedUnix, strconv.FormatInt(data.CreatedAt, 10),
		)
		pipe.Expire(ctx, redisKey, ttl)
		return nil
	})
}

func (r *RedisStore) Delete(ctx context.Context, key string) {
	if key == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	_ = r.client.Del(ctx, redisSessionKey(key)).Err() //nolint
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func redisSessionKey(id string) string {
	return redisKeyPrefix + id
}
