// Package scrape defines core types shared across subsystems.
package scrape

import (
	"encoding/json"
	"time"
)

// JobStatus represents the lifecycle state of a scrape job.
type JobStatus string

// Job status values. Transitions are monotonic:
// pending -> processing -> completed | failed.
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether a job can no longer change state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Mode selects the extraction strategy for a job.
type Mode string

// Extraction modes.
const (
	ModeGuided Mode = "guided" // explicit field -> CSS selector mapping
	ModeSmart  Mode = "smart"  // natural-language instruction, AI-assisted
)

// JobSpec captures everything a client submits for one scrape.
type JobSpec struct {
	URL         string            `json:"url"`
	Mode        Mode              `json:"mode"`
	Selectors   map[string]string `json:"selectors,omitempty"`
	Instruction string            `json:"instruction,omitempty"`
	Options     map[string]bool   `json:"options,omitempty"`
}

// RenderJS reports whether the client asked for a browser-rendered fetch.
func (s JobSpec) RenderJS() bool {
	return s.Options["renderJs"]
}

// Job is the record persisted for each submitted scrape request. The fast
// store holds a TTL-bounded projection of the same struct; the durable store
// is authoritative once written.
type Job struct {
	ID          string         `json:"id"`
	URL         string         `json:"url"`
	Mode        Mode           `json:"mode"`
	Status      JobStatus      `json:"status"`
	Data        map[string]any `json:"data,omitempty"`
	Error       string         `json:"error,omitempty"`
	PrincipalID string         `json:"principal_id,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// APIKey is the stored form of a long-lived client credential. The raw secret
// is never stored; only its SHA-256 hash and a short display prefix persist.
type APIKey struct {
	ID          string    `json:"id"`
	Prefix      string    `json:"key_prefix"`
	Hash        string    `json:"-"`
	PrincipalID string    `json:"-"`
	Name        string    `json:"name"`
	Active      bool      `json:"is_active"`
	RateLimit   int       `json:"rate_limit"`
	UsageCount  int64     `json:"usage_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// Webhook is a callback registration owned by one principal. The signing
// secret is generated server-side at creation and never re-exposed afterward.
type Webhook struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Events      []string  `json:"events"`
	Secret      string    `json:"-"`
	PrincipalID string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// EventJobCompleted is the only event the dispatcher currently emits.
const EventJobCompleted = "job.completed"

// SubscribedTo reports whether the webhook wants the named event.
func (w Webhook) SubscribedTo(event string) bool {
	for _, e := range w.Events {
		if e == event {
			return true
		}
	}
	return false
}

// Principal is the authenticated identity resolved at the credential gate.
// It is constructed once per request and passed explicitly down the call
// chain; there is no ambient current-user lookup.
type Principal struct {
	Subject  string // external identity id (token "sub" or key owner)
	APIKeyID string // set only when the request authenticated via API key
}

// Task names dispatched over the queue.
const (
	TaskScrape  = "scrape"
	TaskWebhook = "webhook"
)

// Task is the envelope placed on the queue. Payload decoding is keyed off
// Name, so unrelated task kinds can share one queue.
type Task struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
}

// ScrapeTask is the payload for TaskScrape.
type ScrapeTask struct {
	JobID       string    `json:"job_id"`
	Spec        JobSpec   `json:"spec"`
	PrincipalID string    `json:"principal_id,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// WebhookTask is the payload for TaskWebhook.
type WebhookTask struct {
	JobID       string `json:"job_id"`
	PrincipalID string `json:"principal_id"`
}

// NewTask wraps a payload struct into a named Task envelope.
func NewTask(name string, payload any) (Task, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Task{}, err
	}
	return Task{Name: name, Payload: raw}, nil
}
