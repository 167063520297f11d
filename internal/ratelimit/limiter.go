// Package ratelimit throttles outbound calls to external catalog APIs.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// slowWait is the wait above which a throttled call is logged.
const slowWait = 250 * time.Millisecond

// Limiter wraps rate.Limiter with a name for logging/debugging.
// A nil *Limiter never throttles.
type Limiter struct {
	limiter *rate.Limiter
	name    string
}

// New creates a limiter allowing requestsPerSecond with an equal burst.
func New(name string, requestsPerSecond int) *Limiter {
	return NewWithBurst(name, requestsPerSecond, requestsPerSecond)
}

// NewWithBurst creates a new rate limiter with custom burst size.
// Non-positive rates disable throttling.
func NewWithBurst(name string, requestsPerSecond, burst int) *Limiter {
	limit := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		limiter: rate.NewLimiter(limit, burst),
		name:    name,
	}
}

// Wait blocks until a request may proceed or ctx is done. A caller whose
// deadline expires while queued gets an error instead of a late slot.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	start := time.Now()
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", l.name, err)
	}
	if waited := time.Since(start); waited > slowWait {
		slog.Debug("Throttled outbound request", "limiter", l.name, "waited", waited)
	}
	return nil
}
