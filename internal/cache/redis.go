// Package cache provides a Redis-backed byte cache for rendered artifacts.
package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis caches raw bytes in a Redis instance. A miss is (nil, nil), matching
// the artifact.Cache contract.
type Redis struct {
	client *redis.Client
}

// NewRedis connects a Redis cache at the given address.
func NewRedis(addr string) *Redis {
	return &Redis{client: redis.NewClient(&redis.Options{Addr: addr})}
}

// Ping verifies connectivity; used as a readiness check.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Get returns the cached bytes for key, or (nil, nil) when absent.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Set stores value under key for ttl.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// Close releases the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
