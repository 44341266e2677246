package cache

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/sync/singleflight"
)

// Loader is a cache-aside reader that decodes JSON values and collapses
// concurrent misses for the same key into one load.
type Loader[T any] struct {
	cache Cache
	ttl   time.Duration
	group singleflight.Group
	onErr func(ctx context.Context, op string, err error)
}

// NewLoader builds a Loader over c. onErr receives cache failures, which never fail a read.
func NewLoader[T any](c Cache, ttl time.Duration, onErr func(ctx context.Context, op string, err error)) *Loader[T] {
	if onErr == nil {
		onErr = func(context.Context, string, error) {}
	}
	return &Loader[T]{cache: c, ttl: ttl, onErr: onErr}
}

// Get returns the cached value for key or calls load and stores its result.
func (l *Loader[T]) Get(ctx context.Context, key string, load func(ctx context.Context) (T, error)) (T, error) {
	if raw, ok, err := l.cache.Get(ctx, key); err != nil {
		l.onErr(ctx, "get", err)
	} else if ok {
		var value T
		decodeErr := json.Unmarshal(raw, &value)
		if decodeErr == nil {
			return value, nil
		}
		l.onErr(ctx, "decode", decodeErr)
	}

	result, err, _ := l.group.Do(key, func() (any, error) {
		value, err := load(ctx)
		if err != nil {
			return value, err
		}
		if raw, err := json.Marshal(value); err != nil {
			l.onErr(ctx, "encode", err)
		} else if err := l.cache.Set(ctx, key, raw, l.ttl); err != nil {
			l.onErr(ctx, "set", err)
		}
		return value, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result.(T), nil
}

// Invalidate removes keys from the cache.
func (l *Loader[T]) Invalidate(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		l.group.Forget(key)
	}
	return l.cache.Delete(ctx, keys...)
}
