// Package cache defines the byte-cache port used by the polling read path.
package cache

import (
	"context"
	"time"
)

// Cache is a TTL byte cache. Misses are not errors.
type Cache interface {
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
