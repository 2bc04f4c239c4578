package util

import (
	"context"
	"sync"
	"time"
)

// RateLimiter paces external API calls with a token bucket capped at a single
// token, so bursts never exceed one request.
type RateLimiter struct {
	rate   float64 // tokens per second
	tokens float64
	last   time.Time
	mu     sync.Mutex
}

// NewRateLimiter returns a limiter that admits perMinute calls per minute.
// The bucket starts full, so the first Wait returns immediately.
func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{
		rate:   float64(perMinute) / 60.0,
		tokens: 1,
		last:   time.Now(),
	}
}

// Wait blocks until a token is available or ctx is cancelled.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		rl.mu.Lock()
		now := time.Now()
		rl.tokens += now.Sub(rl.last).Seconds() * rl.rate
		if rl.tokens > 1 {
			rl.tokens = 1
		}
		rl.last = now

		if rl.tokens >= 1 {
			rl.tokens -= 1
			rl.mu.Unlock()
			return nil
		}
		rl.mu.Unlock()

		// Poll instead of computing the exact sleep; the resolution is
		// fine for per-minute limits.
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}
