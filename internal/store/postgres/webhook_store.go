package postgres

import (
	"context"
	"fmt"

	"github.com/scrapeflow/scrapeflow/internal/scrape"
)

// WebhookStore persists webhook registrations. Implements
// scrape.WebhookStore.
type WebhookStore struct {
	pool querier
}

// NewWebhookStore constructs a WebhookStore from an existing pool.
func NewWebhookStore(pool querier) (*WebhookStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &WebhookStore{pool: pool}, nil
}

// CreateWebhook inserts a new registration.
func (s *WebhookStore) CreateWebhook(ctx context.Context, wh scrape.Webhook) error {
	query := `
INSERT INTO webhooks (id, url, events, secret, principal_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6)`
	if _, err := s.pool.Exec(ctx, query,
		wh.ID, wh.URL, wh.Events, wh.Secret, wh.PrincipalID, wh.CreatedAt,
	); err != nil {
		return fmt.Errorf("create webhook %s: %w", wh.ID, err)
	}
	return nil
}

// ListByPrincipal returns the principal's registrations newest-first.
func (s *WebhookStore) ListByPrincipal(ctx context.Context, principalID string) ([]scrape.Webhook, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, url, events, secret, principal_id, created_at
FROM webhooks WHERE principal_id = $1 ORDER BY created_at DESC`,
		principalID,
	)
	if err != nil {
		return nil, fmt.Errorf("list webhooks for %s: %w", principalID, err)
	}
	defer rows.Close()

	var hooks []scrape.Webhook
	for rows.Next() {
		var wh scrape.Webhook
		if err := rows.Scan(&wh.ID, &wh.URL, &wh.Events, &wh.Secret, &wh.PrincipalID, &wh.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan webhook row: %w", err)
		}
		hooks = append(hooks, wh)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list webhooks for %s: %w", principalID, err)
	}
	return hooks, nil
}

// DeleteWebhook removes the registration if it belongs to the principal.
func (s *WebhookStore) DeleteWebhook(ctx context.Context, id, principalID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM webhooks WHERE id = $1 AND principal_id = $2`,
		id, principalID,
	)
	if err != nil {
		return fmt.Errorf("delete webhook %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return scrape.ErrNotFound
	}
	return nil
}
