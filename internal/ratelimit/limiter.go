// Package ratelimit implements a fixed-window request counter keyed by
// principal.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/scrapeflow/scrapeflow/internal/scrape"
	"github.com/scrapeflow/scrapeflow/internal/telemetry"
)

// Limiter admits or rejects requests against a per-window quota. The counter
// lives in the shared fast store so all API processes see the same counts.
// A request arriving just after a window boundary can momentarily admit up to
// twice the nominal limit; that approximation is accepted.
type Limiter struct {
	counter scrape.RateCounter
	clock   scrape.Clock
	window  time.Duration
	grace   time.Duration
}

// New constructs a Limiter. Grace extends counter expiry past the window
// boundary to tolerate clock skew between processes.
func New(counter scrape.RateCounter, clock scrape.Clock, window, grace time.Duration) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	if grace < 10*time.Second {
		grace = 10 * time.Second
	}
	return &Limiter{counter: counter, clock: clock, window: window, grace: grace}
}

// Allow increments the caller's counter for the current window and rejects
// once the post-increment count exceeds limit. The increment and expiry are
// applied atomically in one round trip, so concurrent requests from the same
// principal cannot undercount.
func (l *Limiter) Allow(ctx context.Context, principal string, limit int) error {
	windowIndex := l.clock.Now().Unix() / int64(l.window/time.Second)
	key := fmt.Sprintf("ratelimit:%s:%d", principal, windowIndex)

	count, err := l.counter.Incr(ctx, key, l.window+l.grace)
	if err != nil {
		return fmt.Errorf("increment rate counter: %w", err)
	}
	if count > int64(limit) {
		telemetry.ObserveRateLimitRejection()
		return scrape.NewRateLimitError()
	}
	return nil
}
