package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache implements Cache on top of Redis so that several engine
// instances share fetched snapshots.
type RedisCache struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisCache creates a cache using an existing client.
func NewRedisCache(client *redis.Client, keyPrefix string) *RedisCache {
	if keyPrefix == "" {
		keyPrefix = "insights:"
	}
	return &RedisCache{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

func (c *RedisCache) key(k string) string {
	return c.keyPrefix + k
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: get %s: %v", ErrCacheUnavailable, key, err)
	}
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := c.client.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: set %s: %v", ErrCacheUnavailable, key, err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: delete %s: %v", ErrCacheUnavailable, key, err)
	}
	return nil
}
