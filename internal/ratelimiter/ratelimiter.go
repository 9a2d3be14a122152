// Package ratelimiter throttles how fast the server admits new connections.
package ratelimiter

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket over golang.org/x/time/rate.
//
// The orchestrator calls Allow once per accepted socket; a socket that finds
// the bucket empty is answered with a busy response and closed. A nil
// *RateLimiter admits everything.
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter

	// rejected counts Allow calls that found the bucket empty.
	rejected uint64
}

// New creates a limiter admitting perSecond connections per second with
// bursts of up to burst. A zero rate returns nil, meaning unlimited.
func New(perSecond, burst uint) *RateLimiter {
	if perSecond == 0 {
		return nil
	}
	if burst == 0 {
		burst = 1
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(perSecond), int(burst)),
	}
}

// Allow consumes a token if one is available. It never waits.
func (r *RateLimiter) Allow() bool {
	return r.AllowAt(time.Now())
}

// AllowAt is Allow with an explicit clock reading.
func (r *RateLimiter) AllowAt(now time.Time) bool {
	if r == nil {
		return true
	}
	if r.limiter.AllowN(now, 1) {
		return true
	}
	r.rejected++
	return false
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil {
		return nil
	}
	return r.limiter.Wait(ctx)
}

// Limit reports the configured rate; zero for unlimited.
func (r *RateLimiter) Limit() float64 {
	if r == nil {
		return 0
	}
	return float64(r.limiter.Limit())
}

// Burst reports the bucket size; zero for unlimited.
func (r *RateLimiter) Burst() int {
	if r == nil {
		return 0
	}
	return r.limiter.Burst()
}

// SetLimit changes the sustained rate. Raising the rate grows a burst that
// was at or below the old rate to twice the new rate.
func (r *RateLimiter) SetLimit(perSecond uint) {
	if r == nil || perSecond == 0 {
		return
	}
	oldRate := uint(r.limiter.Limit())
	oldBurst := uint(r.limiter.Burst())
	r.limiter.SetLimit(rate.Limit(perSecond))
	if oldBurst <= oldRate {
		r.limiter.SetBurst(int(perSecond * 2))
	}
}

// Tokens returns the tokens currently in the bucket.
func (r *RateLimiter) Tokens() float64 {
	if r == nil {
		return 0
	}
	return r.limiter.Tokens()
}

// Rejected returns how many Allow calls were refused. Only the goroutine
// calling Allow may read it.
func (r *RateLimiter) Rejected() uint64 {
	if r == nil {
		return 0
	}
	return r.rejected
}
