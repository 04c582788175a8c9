// Package cache holds catalog reads and the short-lived payment locks that
// keep two requests from charging the same order.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("key not found")

type Provider interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	// SetNX stores value only when key is absent or expired and reports
	// whether it did.
	SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)
	// Release deletes key only while it still holds value, so a lock that
	// expired and was taken by someone else is left alone.
	Release(ctx context.Context, key string, value string) (bool, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

type Config struct {
	Provider              string
	RedisConnectionString string
}

func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "memory", "":
		return NewMemoryProvider()
	case "redis":
		if cfg.RedisConnectionString == "" {
			return nil, fmt.Errorf("redis connection string is required for the redis cache")
		}
		return NewRedisProvider(cfg.RedisConnectionString)
	default:
		return nil, fmt.Errorf("unsupported cache provider: %s", cfg.Provider)
	}
}

func ItemKey(slug string) string {
	return "item:" + slug
}

func ItemPageKey(page int) string {
	return fmt.Sprintf("items:page:%d", page)
}

func PaymentLockKey(orderID string) string {
	return "payment:lock:" + orderID
}
