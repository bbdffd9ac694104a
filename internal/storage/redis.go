// /internal/storage/redis.go
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend keeps snapshots as keyed JSON strings in Redis. Useful when
// several relationship instances share one store.
type RedisBackend struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisBackend wraps an existing client. ttl of 0 keeps snapshots forever.
func NewRedisBackend(client redis.UniversalClient, ttl time.Duration) *RedisBackend {
	return &RedisBackend{client: client, ttl: ttl}
}

// DialRedis connects to addr and verifies the connection.
func DialRedis(ctx context.Context, addr, password string, db int) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return &RedisBackend{client: client}, nil
}

// Put stores data under key.
func (r *RedisBackend) Put(ctx context.Context, key string, data []byte) error {
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Get returns the stored JSON for key, ErrNotFound when absent.
func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, nil
}

// Close shuts the client down.
func (r *RedisBackend) Close() error {
	return r.client.Close()
}
