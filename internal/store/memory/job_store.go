package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/scrapeflow/scrapeflow/internal/scrape"
)

// JobStore is an in-memory scrape.JobStore.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]scrape.Job
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]scrape.Job)}
}

// UpsertJob creates or replaces the durable record for the id.
func (s *JobStore) UpsertJob(_ context.Context, job scrape.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

// SaveJob inserts the job only when no record exists yet.
func (s *JobStore) SaveJob(_ context.Context, job scrape.Job) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return false, nil
	}
	s.jobs[job.ID] = job
	return true, nil
}

// GetJob returns the durable record for the id.
func (s *JobStore) GetJob(_ context.Context, id string) (scrape.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return scrape.Job{}, scrape.ErrNotFound
	}
	return job, nil
}

// ListByPrincipal returns the principal's jobs newest-first.
func (s *JobStore) ListByPrincipal(_ context.Context, principalID string) ([]scrape.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []scrape.Job
	for _, job := range s.jobs {
		if job.PrincipalID == principalID {
			out = append(out, job)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// CountByStatus returns total and completed job counts.
func (s *JobStore) CountByStatus(_ context.Context) (int64, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total, completed int64
	for _, job := range s.jobs {
		total++
		if job.Status == scrape.JobStatusCompleted {
			completed++
		}
	}
	return total, completed, nil
}
