package storage

import (
	"context"
	"errors"
	"time"
)

// ErrCacheUnavailable is returned when the cache backend cannot be reached.
var ErrCacheUnavailable = errors.New("cache unavailable")

// Cache is a keyed byte cache with per-entry TTL. Entries set with a
// non-positive TTL are not stored.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
