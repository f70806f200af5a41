// Package ratelimit provides fixed-window rate limiters.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter is a simple fixed-window rate limiter for a single entity.
type Limiter struct {
	mu          sync.Mutex
	count       int
	windowStart time.Time
	rate        int
	window      time.Duration
	now         func() time.Time
}

// New creates a Limiter that allows rate requests per window.
func New(rate int, window time.Duration) *Limiter {
	return newWithClock(rate, window, time.Now)
}

func newWithClock(rate int, window time.Duration, now func() time.Time) *Limiter {
	return &Limiter{
		rate:        rate,
		window:      window,
		windowStart: now(),
		now:         now,
	}
}

// Allow returns true if the request is within the rate limit.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if now.Sub(l.windowStart) > l.window {
		l.count = 0
		l.windowStart = now
	}
	l.count++
	return l.count <= l.rate
}

// Keyed is a fixed-window limiter tracking each key (typically a client IP
// or agent identity) separately.
type Keyed struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int
	window   time.Duration
	now      func() time.Time
}

// visitor tracks request counts within the current window for a single key.
type visitor struct {
	count       int
	windowStart time.Time
}

// NewKeyed creates a Keyed limiter that allows rate requests per window for
// every key.
func NewKeyed(rate int, window time.Duration) *Keyed {
	return &Keyed{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
		now:      time.Now,
	}
}

// Allow returns true if key has not exceeded its rate limit.
func (k *Keyed) Allow(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()
	v, exists := k.visitors[key]
	if !exists || now.Sub(v.windowStart) > k.window {
		k.visitors[key] = &visitor{count: 1, windowStart: now}
		return 1 <= k.rate
	}
	v.count++
	return v.count <= k.rate
}

// Cleanup removes entries whose window has expired and returns how many were
// removed.
func (k *Keyed) Cleanup() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	now := k.now()
	removed := 0
	for key, v := range k.visitors {
		if now.Sub(v.windowStart) > k.window {
			delete(k.visitors, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.visitors)
}

// RunCleanup calls Cleanup every interval until ctx is done.
func (k *Keyed) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			k.Cleanup()
		}
	}
}
