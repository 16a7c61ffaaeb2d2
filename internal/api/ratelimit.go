package api

import (
	"time"

	"github.com/storylineapp/storyline-core/internal/ratelimit"
)

// RateLimiter wraps KeyedRateLimiter for API use. Pairing attempts
// are the only brute-forceable surface, so it guards those, keyed by
// pairing ID.
type RateLimiter = ratelimit.KeyedRateLimiter

// NewRateLimiter creates a rate limiter from a per-interval budget.
func NewRateLimiter(ratePerInterval int, interval time.Duration, burst int) *RateLimiter {
	rps := float64(ratePerInterval) / interval.Seconds()
	return ratelimit.New(rps, burst)
}
