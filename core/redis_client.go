package core

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisClient provides a simplified Redis interface with key namespacing.
// The schema cache and the answer record store share one connection pool
// but keep logically separate keyspaces through their namespaces.
type RedisClient struct {
	client    *redis.Client
	namespace string
	logger    Logger
}

// RedisClientOptions configures the Redis client
type RedisClientOptions struct {
	RedisURL  string
	Namespace string // Key namespace, e.g. "mapreason:schema"
	Logger    Logger // Optional logger
}

// NewRedisClient creates a new Redis client and verifies connectivity
func NewRedisClient(opts RedisClientOptions) (*RedisClient, error) {
	if opts.RedisURL == "" {
		return nil, fmt.Errorf("redis URL is required: %w", ErrMissingConfiguration)
	}

	redisOpt, err := redis.ParseURL(opts.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", ErrInvalidConfiguration)
	}

	client := redis.NewClient(redisOpt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", ErrConnectionFailed)
	}

	logger := opts.Logger
	if logger == nil {
		logger = &NoOpLogger{}
	}

	logger.Debug("Redis client connected", map[string]interface{}{
		"operation": "redis_connect",
		"namespace": opts.Namespace,
	})

	return &RedisClient{
		client:    client,
		namespace: opts.Namespace,
		logger:    logger,
	}, nil
}

// Key returns the namespaced form of a key
func (r *RedisClient) Key(parts ...string) string {
	key := r.namespace
	for _, p := range parts {
		key += ":" + p
	}
	return key
}

// Client exposes the underlying go-redis client for store implementations
func (r *RedisClient) Client() *redis.Client {
	return r.client
}

// Close releases the connection pool
func (r *RedisClient) Close() error {
	return r.client.Close()
}
