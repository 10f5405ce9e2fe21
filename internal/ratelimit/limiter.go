// Package ratelimit gates outbound request departures behind a single
// shared minimum-interval limiter.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/fdwk/sec-crawler/internal/metrics"
)

// Limiter spaces request departures so that no two grants across any number
// of concurrent callers are closer than the configured interval. Only the
// departure rate is synchronized; the limiter is released before the HTTP
// call executes.
type Limiter struct {
	limiter  *rate.Limiter
	interval time.Duration
}

// New creates a Limiter with the given minimum interval between grants.
// A non-positive interval disables limiting.
func New(interval time.Duration) *Limiter {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	// Burst 1: each grant consumes the only token, so consecutive grants
	// are separated by at least the refill interval.
	return &Limiter{
		limiter:  rate.NewLimiter(limit, 1),
		interval: interval,
	}
}

// Interval returns the configured minimum spacing.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}

// Wait blocks until a grant is available or the context is done.
func (l *Limiter) Wait(ctx context.Context) error {
	start := time.Now()
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if delay := time.Since(start); delay > time.Millisecond {
		metrics.ObserveRateLimitDelay(delay)
	}
	return nil
}
