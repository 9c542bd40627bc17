package scrape

import (
	"context"
	"time"
)

// Queue provides named-task dispatch with at-least-once delivery. A dequeued
// task stays owned by its consumer until Ack; a consumer that dies before
// acking has the task redelivered. Handlers must tolerate duplicate delivery
// of the same task.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
	EnqueueDelayed(ctx context.Context, task Task, delay time.Duration) error
	Dequeue(ctx context.Context) (Task, error)
	// Ack marks a dequeued task fully handled so it is not redelivered.
	Ack(ctx context.Context, task Task) error
}

// FastStore is the low-latency, TTL-bounded job projection used for polling.
// It is never the source of truth once a job reaches the durable store.
type FastStore interface {
	SetJob(ctx context.Context, job Job, ttl time.Duration) error
	GetJob(ctx context.Context, id string) (Job, error)
}

// JobStore is the authoritative durable job record store.
type JobStore interface {
	// UpsertJob creates the record on first durable sighting of the id and
	// updates it afterwards. Safe to call twice for the same job.
	UpsertJob(ctx context.Context, job Job) error
	// SaveJob inserts the job only if no durable record exists yet. Returns
	// true when a row was created.
	SaveJob(ctx context.Context, job Job) (bool, error)
	GetJob(ctx context.Context, id string) (Job, error)
	// ListByPrincipal returns the principal's jobs newest-first.
	ListByPrincipal(ctx context.Context, principalID string) ([]Job, error)
	// CountByStatus returns total and completed job counts.
	CountByStatus(ctx context.Context) (total, completed int64, err error)
}

// KeyStore persists API key records. Keys are soft-deleted via the active
// flag, never removed.
type KeyStore interface {
	CreateKey(ctx context.Context, key APIKey) error
	GetByHash(ctx context.Context, hash string) (APIKey, error)
	ListByPrincipal(ctx context.Context, principalID string) ([]APIKey, error)
	Deactivate(ctx context.Context, id, principalID string) error
	IncrementUsage(ctx context.Context, id string) error
}

// WebhookStore persists webhook registrations.
type WebhookStore interface {
	CreateWebhook(ctx context.Context, wh Webhook) error
	ListByPrincipal(ctx context.Context, principalID string) ([]Webhook, error)
	DeleteWebhook(ctx context.Context, id, principalID string) error
}

// Extractor fetches the target URL and produces structured data according to
// the spec's mode. It is the single capability boundary between the job
// engine and the scraping mechanics.
type Extractor interface {
	Extract(ctx context.Context, spec JobSpec) (map[string]any, error)
}

// RateCounter atomically increments a counter and bounds its lifetime in a
// single round trip.
type RateCounter interface {
	Incr(ctx context.Context, key string, expiry time.Duration) (int64, error)
}

// IDGenerator produces job/key/webhook IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Clock returns the current time (injectable for testing).
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a func to the Clock interface.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }
