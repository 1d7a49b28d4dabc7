package core

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisMemory implements the Memory interface on top of a RedisClient.
// Keys are namespaced by the underlying client.
type RedisMemory struct {
	client *RedisClient
}

// NewRedisMemory creates a Redis-backed Memory
func NewRedisMemory(client *RedisClient) *RedisMemory {
	return &RedisMemory{client: client}
}

// Get retrieves a value; missing keys return the empty string with no error
func (m *RedisMemory) Get(ctx context.Context, key string) (string, error) {
	val, err := m.client.Client().Get(ctx, m.client.Key(key)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", NewQueryError("redis.Get", "storage", err)
	}
	return val, nil
}

// Set stores a value with optional TTL (0 means no expiry)
func (m *RedisMemory) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if err := m.client.Client().Set(ctx, m.client.Key(key), value, ttl).Err(); err != nil {
		return NewQueryError("redis.Set", "storage", err)
	}
	return nil
}

// Delete removes a key
func (m *RedisMemory) Delete(ctx context.Context, key string) error {
	if err := m.client.Client().Del(ctx, m.client.Key(key)).Err(); err != nil {
		return NewQueryError("redis.Delete", "storage", err)
	}
	return nil
}

// Exists checks if a key is present
func (m *RedisMemory) Exists(ctx context.Context, key string) (bool, error) {
	n, err := m.client.Client().Exists(ctx, m.client.Key(key)).Result()
	if err != nil {
		return false, NewQueryError("redis.Exists", "storage", err)
	}
	return n > 0, nil
}
