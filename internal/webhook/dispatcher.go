package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/scrapeflow/scrapeflow/internal/scrape"
	"github.com/scrapeflow/scrapeflow/internal/telemetry"
)

// Signature headers attached to every delivery.
const (
	SignatureHeader = "X-Webhook-Signature"
	EventHeader     = "X-Webhook-Event"
)

// DefaultTimeout bounds each delivery attempt.
const DefaultTimeout = 10 * time.Second

// Payload is the canonical JSON body POSTed to registered endpoints. The
// signature covers the exact serialized bytes of this struct.
type Payload struct {
	Event       string         `json:"event"`
	JobID       string         `json:"job_id"`
	URL         string         `json:"url"`
	Status      string         `json:"status"`
	Data        map[string]any `json:"data,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// Dispatcher loads a completed job and posts it to every subscribed endpoint
// the owning principal has registered. Delivery is fire-and-forget: failures
// are logged and swallowed, never retried, and never reported back to the
// job's owner through the job API.
type Dispatcher struct {
	jobs     scrape.JobStore
	webhooks scrape.WebhookStore
	client   *http.Client
	logger   *zap.Logger
}

// New constructs a Dispatcher. A nil client gets the default bounded timeout.
func New(jobs scrape.JobStore, webhooks scrape.WebhookStore, client *http.Client, logger *zap.Logger) *Dispatcher {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{jobs: jobs, webhooks: webhooks, client: client, logger: logger}
}

// Dispatch delivers job.completed for the given job to the principal's
// endpoints. A vanished job or an empty registration list is a no-op.
func (d *Dispatcher) Dispatch(ctx context.Context, jobID, principalID string) error {
	job, err := d.jobs.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, scrape.ErrNotFound) {
			d.logger.Debug("webhook dispatch skipped, job missing", zap.String("job_id", jobID))
			return nil
		}
		return fmt.Errorf("load job: %w", err)
	}

	hooks, err := d.webhooks.ListByPrincipal(ctx, principalID)
	if err != nil {
		return fmt.Errorf("list webhooks: %w", err)
	}
	if len(hooks) == 0 {
		return nil
	}

	payload := Payload{
		Event:       scrape.EventJobCompleted,
		JobID:       job.ID,
		URL:         job.URL,
		Status:      string(job.Status),
		Data:        job.Data,
		CreatedAt:   job.CreatedAt,
		CompletedAt: job.CompletedAt,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	for _, hook := range hooks {
		if !hook.SubscribedTo(scrape.EventJobCompleted) {
			continue
		}
		d.deliver(ctx, hook, body)
	}
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, hook scrape.Webhook, body []byte) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		d.logger.Warn("webhook request build failed",
			zap.String("webhook_id", hook.ID),
			zap.Error(err),
		)
		telemetry.ObserveWebhookDelivery(false)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, Sign(hook.Secret, body))
	req.Header.Set(EventHeader, scrape.EventJobCompleted)

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Warn("webhook delivery failed",
			zap.String("webhook_id", hook.ID),
			zap.String("url", hook.URL),
			zap.Error(err),
		)
		telemetry.ObserveWebhookDelivery(false)
		return
	}
	defer resp.Body.Close()

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	telemetry.ObserveWebhookDelivery(ok)
	if !ok {
		d.logger.Warn("webhook endpoint returned non-2xx",
			zap.String("webhook_id", hook.ID),
			zap.Int("status", resp.StatusCode),
		)
		return
	}
	d.logger.Debug("webhook delivered",
		zap.String("webhook_id", hook.ID),
		zap.String("url", hook.URL),
	)
}
