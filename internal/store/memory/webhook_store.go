package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/scrapeflow/scrapeflow/internal/scrape"
)

// WebhookStore is an in-memory scrape.WebhookStore.
type WebhookStore struct {
	mu       sync.RWMutex
	webhooks map[string]scrape.Webhook
}

// NewWebhookStore constructs a WebhookStore.
func NewWebhookStore() *WebhookStore {
	return &WebhookStore{webhooks: make(map[string]scrape.Webhook)}
}

// CreateWebhook stores a new registration.
func (s *WebhookStore) CreateWebhook(_ context.Context, wh scrape.Webhook) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.webhooks[wh.ID] = wh
	return nil
}

// ListByPrincipal returns the principal's webhooks newest-first.
func (s *WebhookStore) ListByPrincipal(_ context.Context, principalID string) ([]scrape.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []scrape.Webhook
	for _, wh := range s.webhooks {
		if wh.PrincipalID == principalID {
			out = append(out, wh)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// DeleteWebhook removes the principal's registration.
func (s *WebhookStore) DeleteWebhook(_ context.Context, id, principalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wh, ok := s.webhooks[id]
	if !ok || wh.PrincipalID != principalID {
		return scrape.ErrNotFound
	}
	delete(s.webhooks, id)
	return nil
}
