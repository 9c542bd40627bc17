// Package worker implements the scrape pipeline execution loop.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/scrapeflow/scrapeflow/internal/scrape"
	"github.com/scrapeflow/scrapeflow/internal/telemetry"
	"github.com/scrapeflow/scrapeflow/internal/webhook"
)

// Config controls Worker behavior.
type Config struct {
	CacheTTL time.Duration
}

// Worker consumes queued tasks and drives jobs through
// processing -> completed|failed, writing both the durable record and the
// fast-store projection. Task delivery is at-least-once, so every handler
// here tolerates running twice for the same job id.
type Worker struct {
	queue      scrape.Queue
	fast       scrape.FastStore
	jobs       scrape.JobStore
	extractor  scrape.Extractor
	dispatcher *webhook.Dispatcher
	clock      scrape.Clock
	cfg        Config
	logger     *zap.Logger
}

// New constructs a Worker.
func New(
	queue scrape.Queue,
	fast scrape.FastStore,
	jobs scrape.JobStore,
	extractor scrape.Extractor,
	dispatcher *webhook.Dispatcher,
	clock scrape.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	return &Worker{
		queue:      queue,
		fast:       fast,
		jobs:       jobs,
		extractor:  extractor,
		dispatcher: dispatcher,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run blocks, consuming tasks until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		task, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.handleTask(ctx, task)
		// Ack only after the handler returns, keeping delivery at least once:
		// a crash mid-handle leaves the task on the broker for redelivery.
		if err := w.queue.Ack(ctx, task); err != nil {
			w.logger.Warn("task ack failed", zap.String("task", task.Name), zap.Error(err))
		}
	}
}

func (w *Worker) handleTask(ctx context.Context, task scrape.Task) {
	switch task.Name {
	case scrape.TaskScrape:
		var payload scrape.ScrapeTask
		if err := json.Unmarshal(task.Payload, &payload); err != nil {
			w.logger.Error("scrape task payload undecodable", zap.Error(err))
			return
		}
		w.processScrape(ctx, payload)
	case scrape.TaskWebhook:
		var payload scrape.WebhookTask
		if err := json.Unmarshal(task.Payload, &payload); err != nil {
			w.logger.Error("webhook task payload undecodable", zap.Error(err))
			return
		}
		if err := w.dispatcher.Dispatch(ctx, payload.JobID, payload.PrincipalID); err != nil {
			// Delivery is best-effort; a store failure here is logged and dropped.
			w.logger.Warn("webhook dispatch failed",
				zap.String("job_id", payload.JobID),
				zap.Error(err),
			)
		}
	default:
		w.logger.Warn("unknown task dropped", zap.String("task", task.Name))
	}
}

func (w *Worker) processScrape(ctx context.Context, task scrape.ScrapeTask) {
	start := w.clock.Now()
	logger := w.logger.With(zap.String("job_id", task.JobID), zap.String("url", task.Spec.URL))

	// A redelivered task whose job already has a terminal durable record is
	// dropped whole: no job leaves completed or failed, and the origin is not
	// fetched a second time.
	if existing, err := w.jobs.GetJob(ctx, task.JobID); err == nil && existing.Status.Terminal() {
		logger.Info("job already finished, dropping redelivered task",
			zap.String("status", string(existing.Status)))
		return
	}

	logger.Info("job picked up", zap.String("mode", string(task.Spec.Mode)))

	job := scrape.Job{
		ID:          task.JobID,
		URL:         task.Spec.URL,
		Mode:        task.Spec.Mode,
		Status:      scrape.JobStatusProcessing,
		PrincipalID: task.PrincipalID,
		CreatedAt:   task.SubmittedAt,
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = start.UTC()
	}
	if err := w.jobs.UpsertJob(ctx, job); err != nil {
		logger.Error("processing upsert failed", zap.Error(err))
		return
	}
	if err := w.fast.SetJob(ctx, job, w.cfg.CacheTTL); err != nil {
		logger.Warn("processing cache write failed", zap.Error(err))
	}

	data, execErr := w.extractor.Extract(ctx, task.Spec)
	if execErr == nil {
		done := w.clock.Now().UTC()
		job.Status = scrape.JobStatusCompleted
		job.Data = data
		job.CompletedAt = &done
		if err := w.jobs.UpsertJob(ctx, job); err != nil {
			// Persisting the result is part of the job; a store failure fails it.
			execErr = fmt.Errorf("persist result: %w", err)
		}
	}
	if execErr != nil {
		job.Status = scrape.JobStatusFailed
		job.Data = nil
		job.Error = execErr.Error()
		job.CompletedAt = nil
		if err := w.jobs.UpsertJob(ctx, job); err != nil {
			logger.Error("failed-state upsert failed", zap.Error(err))
		}
	}

	if err := w.fast.SetJob(ctx, job, w.cfg.CacheTTL); err != nil {
		logger.Warn("terminal cache write failed", zap.Error(err))
	}

	telemetry.ObserveJobFinished(string(job.Status), w.clock.Now().Sub(start))

	if job.Status == scrape.JobStatusFailed {
		logger.Error("job failed", zap.String("error", job.Error))
		return
	}
	logger.Info("job completed", zap.Duration("duration", w.clock.Now().Sub(start)))

	if task.PrincipalID == "" {
		return
	}
	// Webhook delivery rides a second, independent queue entry so a slow
	// callback endpoint cannot delay completion visibility.
	whTask, err := scrape.NewTask(scrape.TaskWebhook, scrape.WebhookTask{
		JobID:       task.JobID,
		PrincipalID: task.PrincipalID,
	})
	if err != nil {
		logger.Warn("webhook task encode failed", zap.Error(err))
		return
	}
	if err := w.queue.Enqueue(ctx, whTask); err != nil {
		logger.Warn("webhook task enqueue failed", zap.Error(err))
	}
}
