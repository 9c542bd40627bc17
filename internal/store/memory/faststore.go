// Package memory provides in-process store implementations for local
// development and testing.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/scrapeflow/scrapeflow/internal/scrape"
)

// FastStore is an in-memory scrape.FastStore with TTL expiry checked on read.
type FastStore struct {
	mu    sync.RWMutex
	clock scrape.Clock
	jobs  map[string]cachedJob
}

type cachedJob struct {
	job       scrape.Job
	expiresAt time.Time
}

// NewFastStore constructs a FastStore. A nil clock falls back to wall time.
func NewFastStore(clock scrape.Clock) *FastStore {
	if clock == nil {
		clock = scrape.ClockFunc(time.Now)
	}
	return &FastStore{
		clock: clock,
		jobs:  make(map[string]cachedJob),
	}
}

// SetJob stores the job projection with a bounded lifetime.
func (s *FastStore) SetJob(_ context.Context, job scrape.Job, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = cachedJob{job: job, expiresAt: s.clock.Now().Add(ttl)}
	return nil
}

// GetJob returns the cached projection, or scrape.ErrNotFound once expired.
func (s *FastStore) GetJob(_ context.Context, id string) (scrape.Job, error) {
	s.mu.RLock()
	entry, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok || s.clock.Now().After(entry.expiresAt) {
		return scrape.Job{}, scrape.ErrNotFound
	}
	return entry.job, nil
}
