package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/scrapeflow/scrapeflow/internal/auth"
	"github.com/scrapeflow/scrapeflow/internal/scrape"
	"github.com/scrapeflow/scrapeflow/internal/validate"
)

type createWebhookRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
}

// createWebhookResponse carries the signing secret exactly once, at creation.
type createWebhookResponse struct {
	scrape.Webhook
	Secret string `json:"secret"`
}

var knownEvents = map[string]bool{
	scrape.EventJobCompleted: true,
}

func (s *Server) createWebhook(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r.Context())

	var req createWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, scrape.NewValidationError("invalid JSON body", nil))
		return
	}
	if err := validate.CheckURL(req.URL); err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(req.Events) == 0 {
		req.Events = []string{scrape.EventJobCompleted}
	}
	for _, event := range req.Events {
		if !knownEvents[event] {
			s.writeError(w, r, scrape.NewValidationError("unknown event", map[string]any{"event": event}))
			return
		}
	}

	secret, err := auth.GenerateWebhookSecret()
	if err != nil {
		s.writeError(w, r, fmt.Errorf("generate webhook secret: %w", err))
		return
	}
	webhookID, err := s.idGen.NewID()
	if err != nil {
		s.writeError(w, r, fmt.Errorf("generate webhook id: %w", err))
		return
	}

	wh := scrape.Webhook{
		ID:          webhookID,
		URL:         req.URL,
		Events:      req.Events,
		Secret:      secret,
		PrincipalID: principal.Subject,
		CreatedAt:   s.clock.Now().UTC(),
	}
	if err := s.webhooks.CreateWebhook(r.Context(), wh); err != nil {
		s.writeError(w, r, fmt.Errorf("create webhook: %w", err))
		return
	}

	s.writeJSON(w, http.StatusCreated, createWebhookResponse{Webhook: wh, Secret: secret})
}

func (s *Server) listWebhooks(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r.Context())
	hooks, err := s.webhooks.ListByPrincipal(r.Context(), principal.Subject)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("list webhooks: %w", err))
		return
	}
	if hooks == nil {
		hooks = []scrape.Webhook{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"webhooks": hooks})
}

func (s *Server) deleteWebhook(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r.Context())
	webhookID := chi.URLParam(r, "webhook_id")

	if err := s.webhooks.DeleteWebhook(r.Context(), webhookID, principal.Subject); err != nil {
		if errors.Is(err, scrape.ErrNotFound) {
			s.writeError(w, r, scrape.NewNotFoundError("webhook", webhookID))
			return
		}
		s.writeError(w, r, fmt.Errorf("delete webhook: %w", err))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"id": webhookID, "deleted": true})
}
