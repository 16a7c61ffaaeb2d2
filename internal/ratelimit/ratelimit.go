// Package ratelimit implements a keyed token-bucket limiter on top of
// x/time/rate. The daemon's key space is tiny and static: one bucket
// for progress uploads to the media server, plus one per pairing
// handshake on the control API, so buckets are created lazily and
// never expire.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// KeyedRateLimiter hands out an independent token bucket per key.
type KeyedRateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	limit   rate.Limit
	burst   int
}

// New creates a limiter where every key refills at rps tokens per
// second and holds at most burst tokens.
func New(rps float64, burst int) *KeyedRateLimiter {
	return &KeyedRateLimiter{
		buckets: make(map[string]*rate.Limiter),
		limit:   rate.Limit(rps),
		burst:   burst,
	}
}

// Allow reports whether one more attempt under key fits the budget
// right now. Inbound guards use this form.
func (l *KeyedRateLimiter) Allow(key string) bool {
	return l.bucket(key).Allow()
}

// Wait blocks until the key's bucket grants a token or ctx ends.
// Outbound pacing uses this form.
func (l *KeyedRateLimiter) Wait(ctx context.Context, key string) error {
	return l.bucket(key).Wait(ctx)
}

func (l *KeyedRateLimiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.buckets[key] = b
	}
	return b
}

// Stop drops all buckets so a reused limiter starts with fresh
// budgets. Safe to call more than once.
func (l *KeyedRateLimiter) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets = make(map[string]*rate.Limiter)
}
