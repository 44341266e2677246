// Package cache provides byte-oriented TTL caches with in-process and Redis backends.
package cache

import (
	"context"
	"time"
)

// Cache stores opaque values by key.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}
