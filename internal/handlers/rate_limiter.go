package handlers

import (
	"strings"
	"sync"
	"time"
)

// RateLimiter admits or rejects one action for a key. A rejection reports how
// long until the key is admitted again.
type RateLimiter interface {
	Allow(key string) (bool, time.Duration)
}

// slidingRateLimiter admits at most limit actions per key within any trailing window.
type slidingRateLimiter struct {
	limit   int
	window  time.Duration
	clock   func() time.Time
	mu      sync.Mutex
	hits    map[string][]time.Time
	sweepAt time.Time
}

// NewSlidingRateLimiter returns nil when limit or window is not positive, which disables limiting.
func NewSlidingRateLimiter(limit int, window time.Duration, clock func() time.Time) RateLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &slidingRateLimiter{
		limit:  limit,
		window: window,
		clock:  clock,
		hits:   make(map[string][]time.Time),
	}
}

func (l *slidingRateLimiter) Allow(key string) (bool, time.Duration) {
	if l == nil {
		return true, 0
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}
	now := l.clock()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweepLocked(now, cutoff)

	hits := dropExpired(l.hits[key], cutoff)
	if len(hits) >= l.limit {
		l.hits[key] = hits
		return false, hits[0].Add(l.window).Sub(now)
	}
	l.hits[key] = append(hits, now)
	return true, 0
}

// sweepLocked forgets idle keys at most once per window.
func (l *slidingRateLimiter) sweepLocked(now, cutoff time.Time) {
	if now.Before(l.sweepAt) {
		return
	}
	l.sweepAt = now.Add(l.window)
	for key, hits := range l.hits {
		if len(hits) == 0 || !hits[len(hits)-1].After(cutoff) {
			delete(l.hits, key)
		}
	}
}

func dropExpired(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	return hits[i:]
}
