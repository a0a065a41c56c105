package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// Cache abstracts the Redis operations used by the use case to make testing easier.
// Get must return redis.Nil for a missing key.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

// RedisCache stores frame results in a single node, sentinel or cluster deployment.
type RedisCache struct {
	client redis.UniversalClient
}

// NewRedisCache wraps an existing client.
func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client}
}

// DialRedisCache connects to a comma separated list of addresses and checks
// the connection. One address means a single node; several mean a cluster.
func DialRedisCache(ctx context.Context, addrs string) (*RedisCache, error) {
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        strings.Split(addrs, ","),
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})
	cache := NewRedisCache(client)
	if err := cache.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return cache, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, key).Result()
}

// Ping checks that Redis is reachable.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
