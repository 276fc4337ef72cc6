package rate

import (
	"context"
	"sync"
	"time"
)

type bucket struct {
	hits    int
	resetAt time.Time
}

// MemoryLimiter keeps fixed-window counters in process. Expired buckets are
// swept at most once per window.
type MemoryLimiter struct {
	limit  int
	window time.Duration

	mu        sync.Mutex
	buckets   map[string]bucket
	nextSweep time.Time
}

func NewMemory(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limit:   limit,
		window:  window,
		buckets: make(map[string]bucket),
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string, now time.Time) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweep(now)

	b, ok := l.buckets[key]
	if !ok || !now.Before(b.resetAt) {
		b = bucket{resetAt: now.Add(l.window)}
	}
	if b.hits >= l.limit {
		return false, b.resetAt.Sub(now), nil
	}
	b.hits++
	l.buckets[key] = b
	return true, 0, nil
}

func (l *MemoryLimiter) sweep(now time.Time) {
	if now.Before(l.nextSweep) {
		return
	}
	for key, b := range l.buckets {
		if !now.Before(b.resetAt) {
			delete(l.buckets, key)
		}
	}
	l.nextSweep = now.Add(l.window)
}

func (l *MemoryLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
