package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/scrapeflow/scrapeflow/internal/scrape"
)

const jobKeyPrefix = "job:"

// FastStore keeps a TTL-bounded JSON projection of each job for cheap status
// polling. Implements scrape.FastStore.
type FastStore struct {
	client *redis.Client
}

// NewFastStore wraps an existing Redis client.
func NewFastStore(client *redis.Client) *FastStore {
	return &FastStore{client: client}
}

// SetJob writes the full job document under job:{id} with the given TTL.
// Every write resets the TTL so active jobs stay resident.
func (s *FastStore) SetJob(ctx context.Context, job scrape.Job, ttl time.Duration) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}
	if err := s.client.Set(ctx, jobKeyPrefix+job.ID, payload, ttl).Err(); err != nil {
		return fmt.Errorf("set job %s: %w", job.ID, err)
	}
	return nil
}

// GetJob reads the job projection. Expired or never-written ids surface as
// scrape.ErrNotFound.
func (s *FastStore) GetJob(ctx context.Context, id string) (scrape.Job, error) {
	payload, err := s.client.Get(ctx, jobKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return scrape.Job{}, scrape.ErrNotFound
	}
	if err != nil {
		return scrape.Job{}, fmt.Errorf("get job %s: %w", id, err)
	}

	var job scrape.Job
	if err := json.Unmarshal(payload, &job); err != nil {
		return scrape.Job{}, fmt.Errorf("unmarshal job %s: %w", id, err)
	}
	return job, nil
}
