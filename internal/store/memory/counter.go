package memory

import (
	"context"
	"sync"
	"time"

	"github.com/scrapeflow/scrapeflow/internal/scrape"
)

// Counter is an in-memory scrape.RateCounter with expiry checked on access.
type Counter struct {
	mu     sync.Mutex
	clock  scrape.Clock
	counts map[string]counterEntry
}

type counterEntry struct {
	n         int64
	expiresAt time.Time
}

// NewCounter constructs a Counter. A nil clock falls back to wall time.
func NewCounter(clock scrape.Clock) *Counter {
	if clock == nil {
		clock = scrape.ClockFunc(time.Now)
	}
	return &Counter{clock: clock, counts: make(map[string]counterEntry)}
}

// Incr increments the key and refreshes its expiry atomically.
func (c *Counter) Incr(_ context.Context, key string, expiry time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	entry, ok := c.counts[key]
	if !ok || now.After(entry.expiresAt) {
		entry = counterEntry{}
	}
	entry.n++
	entry.expiresAt = now.Add(expiry)
	c.counts[key] = entry
	return entry.n, nil
}
