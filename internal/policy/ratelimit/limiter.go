// Package ratelimit implements the process-wide token bucket that spaces out
// every outbound page fetch.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/siteingest/internal/metrics"
)

// DefaultRPS matches a polite two requests per second across all crawls.
const DefaultRPS = 2.0

// Limiter enforces a minimum interval between fetch dispatches shared by all
// concurrent fetchers.
type Limiter struct {
	limiter *rate.Limiter
}

// Config holds rate limiter configuration.
type Config struct {
	RequestsPerSecond float64
}

// New creates a new Limiter. A non-positive rate disables throttling.
func New(cfg Config) *Limiter {
	metrics.Init()
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Every(time.Duration(float64(time.Second) / cfg.RequestsPerSecond))
	}
	return &Limiter{limiter: rate.NewLimiter(limit, 1)}
}

// Interval reports the minimum spacing between dispatches.
func (l *Limiter) Interval() time.Duration {
	limit := l.limiter.Limit()
	if limit == rate.Inf || limit <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / float64(limit))
}

// Wait blocks until the caller may dispatch a request, respecting the context.
// The reservation taken by Wait is atomic, so concurrent callers are spaced by
// at least Interval regardless of scheduling.
func (l *Limiter) Wait(ctx context.Context) error {
	start := time.Now()
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(waited)
	}
	return nil
}
