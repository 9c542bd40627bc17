// Package coordinator accepts validated submissions and owns the job read
// paths backed by the fast and durable stores.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/scrapeflow/scrapeflow/internal/scrape"
	"github.com/scrapeflow/scrapeflow/internal/telemetry"
	"github.com/scrapeflow/scrapeflow/internal/validate"
)

// Field limits applied to submissions before anything is enqueued.
const (
	MaxSelectors      = 50
	MaxInstructionLen = 5000
)

// Coordinator allocates job ids, dispatches scrape tasks, and serves status,
// save, and history reads.
type Coordinator struct {
	queue    scrape.Queue
	fast     scrape.FastStore
	jobs     scrape.JobStore
	idGen    scrape.IDGenerator
	clock    scrape.Clock
	cacheTTL time.Duration
	logger   *zap.Logger
}

// New constructs a Coordinator.
func New(
	queue scrape.Queue,
	fast scrape.FastStore,
	jobs scrape.JobStore,
	idGen scrape.IDGenerator,
	clock scrape.Clock,
	cacheTTL time.Duration,
	logger *zap.Logger,
) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = time.Hour
	}
	return &Coordinator{
		queue:    queue,
		fast:     fast,
		jobs:     jobs,
		idGen:    idGen,
		clock:    clock,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

// Submit validates the spec, enqueues a scrape task, and records the pending
// projection. The task is enqueued before the status write: if the enqueue
// fails the job was never created and no pending record is left visible.
func (c *Coordinator) Submit(ctx context.Context, spec scrape.JobSpec, principal scrape.Principal) (scrape.Job, error) {
	if err := ValidateSpec(spec); err != nil {
		return scrape.Job{}, err
	}

	jobID, err := c.idGen.NewID()
	if err != nil {
		return scrape.Job{}, fmt.Errorf("generate job id: %w", err)
	}
	now := c.clock.Now().UTC()

	task, err := scrape.NewTask(scrape.TaskScrape, scrape.ScrapeTask{
		JobID:       jobID,
		Spec:        spec,
		PrincipalID: principal.Subject,
		SubmittedAt: now,
	})
	if err != nil {
		return scrape.Job{}, fmt.Errorf("encode scrape task: %w", err)
	}
	if err := c.queue.Enqueue(ctx, task); err != nil {
		c.logger.Error("scrape task enqueue failed", zap.String("job_id", jobID), zap.Error(err))
		return scrape.Job{}, scrape.NewInternalError("failed to queue job")
	}

	job := scrape.Job{
		ID:          jobID,
		URL:         spec.URL,
		Mode:        spec.Mode,
		Status:      scrape.JobStatusPending,
		PrincipalID: principal.Subject,
		CreatedAt:   now,
	}
	if err := c.fast.SetJob(ctx, job, c.cacheTTL); err != nil {
		// The task is already queued; the worker will refresh the cache on
		// completion, so polling just 404s until then.
		c.logger.Warn("pending status write failed", zap.String("job_id", jobID), zap.Error(err))
	}

	telemetry.ObserveJobSubmitted()
	c.logger.Info("job submitted",
		zap.String("job_id", jobID),
		zap.String("url", spec.URL),
		zap.String("mode", string(spec.Mode)),
		zap.String("principal", principal.Subject),
	)
	return job, nil
}

// GetStatus reads the fast store only. A TTL-expired job and one that never
// existed are indistinguishable here; both surface as not found.
func (c *Coordinator) GetStatus(ctx context.Context, jobID string) (scrape.Job, error) {
	job, err := c.fast.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, scrape.ErrNotFound) {
			return scrape.Job{}, scrape.NewNotFoundError("job", jobID)
		}
		return scrape.Job{}, fmt.Errorf("read job cache: %w", err)
	}
	return job, nil
}

// Persist copies the cached record into durable storage. Calling it again for
// an already-saved job is a no-op.
func (c *Coordinator) Persist(ctx context.Context, jobID string) (bool, error) {
	job, err := c.fast.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, scrape.ErrNotFound) {
			return false, scrape.NewNotFoundError("job", jobID)
		}
		return false, fmt.Errorf("read job cache: %w", err)
	}
	created, err := c.jobs.SaveJob(ctx, job)
	if err != nil {
		return false, fmt.Errorf("save job: %w", err)
	}
	return created, nil
}

// History returns the principal's durable jobs newest-first, unfiltered by
// cache TTL.
func (c *Coordinator) History(ctx context.Context, principal scrape.Principal) ([]scrape.Job, error) {
	jobs, err := c.jobs.ListByPrincipal(ctx, principal.Subject)
	if err != nil {
		return nil, fmt.Errorf("list job history: %w", err)
	}
	return jobs, nil
}

// Stats summarizes durable job counts for the dashboard.
type Stats struct {
	TotalJobs    int64   `json:"total_jobs"`
	PagesScraped int64   `json:"pages_scraped"`
	SuccessRate  float64 `json:"success_rate"`
}

// GetStats computes totals over the durable store.
func (c *Coordinator) GetStats(ctx context.Context) (Stats, error) {
	total, completed, err := c.jobs.CountByStatus(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("count jobs: %w", err)
	}
	s := Stats{TotalJobs: total, PagesScraped: completed}
	if total > 0 {
		s.SuccessRate = float64(completed) / float64(total) * 100
	}
	return s, nil
}

// ValidateSpec checks mode-specific fields. It runs after URL safety checks
// and before any queue interaction.
func ValidateSpec(spec scrape.JobSpec) error {
	if err := validate.CheckURL(spec.URL); err != nil {
		return err
	}
	switch spec.Mode {
	case scrape.ModeGuided:
		if len(spec.Selectors) == 0 {
			return scrape.NewValidationError("guided mode requires at least one selector", nil)
		}
	case scrape.ModeSmart:
		// Instruction is optional; the worker reports its absence in the result.
	default:
		return scrape.NewValidationError("mode must be guided or smart", map[string]any{"mode": string(spec.Mode)})
	}
	if len(spec.Selectors) > MaxSelectors {
		return scrape.NewValidationError("too many selectors", map[string]any{"max": MaxSelectors})
	}
	if len(spec.Instruction) > MaxInstructionLen {
		return scrape.NewValidationError("instruction too long", map[string]any{"max": MaxInstructionLen})
	}
	return nil
}
