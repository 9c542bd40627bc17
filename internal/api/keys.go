package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/scrapeflow/scrapeflow/internal/auth"
	"github.com/scrapeflow/scrapeflow/internal/scrape"
)

const maxKeyNameLen = 100

type createKeyRequest struct {
	Name      string `json:"name"`
	RateLimit *int   `json:"rate_limit"`
}

// createKeyResponse carries the raw secret exactly once, at creation.
type createKeyResponse struct {
	scrape.APIKey
	Key string `json:"key"`
}

func (s *Server) createKey(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r.Context())

	var req createKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, scrape.NewValidationError("invalid JSON body", nil))
		return
	}
	if len(req.Name) > maxKeyNameLen {
		s.writeError(w, r, scrape.NewValidationError("name too long", map[string]any{"max": maxKeyNameLen}))
		return
	}
	rateLimit := s.cfg.RateLimit.DefaultLimit
	if req.RateLimit != nil {
		if *req.RateLimit <= 0 {
			s.writeError(w, r, scrape.NewValidationError("rate_limit must be > 0", nil))
			return
		}
		rateLimit = *req.RateLimit
	}

	rawKey, err := auth.GenerateKey()
	if err != nil {
		s.writeError(w, r, fmt.Errorf("generate key: %w", err))
		return
	}
	keyID, err := s.idGen.NewID()
	if err != nil {
		s.writeError(w, r, fmt.Errorf("generate key id: %w", err))
		return
	}

	key := scrape.APIKey{
		ID:          keyID,
		Prefix:      auth.KeyPrefix(rawKey),
		Hash:        auth.HashKey(rawKey),
		PrincipalID: principal.Subject,
		Name:        req.Name,
		Active:      true,
		RateLimit:   rateLimit,
		CreatedAt:   s.clock.Now().UTC(),
	}
	if err := s.keys.CreateKey(r.Context(), key); err != nil {
		s.writeError(w, r, fmt.Errorf("create key: %w", err))
		return
	}

	s.writeJSON(w, http.StatusCreated, createKeyResponse{APIKey: key, Key: rawKey})
}

func (s *Server) listKeys(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r.Context())
	keys, err := s.keys.ListByPrincipal(r.Context(), principal.Subject)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("list keys: %w", err))
		return
	}
	if keys == nil {
		keys = []scrape.APIKey{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"keys": keys})
}

func (s *Server) revokeKey(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r.Context())
	keyID := chi.URLParam(r, "key_id")

	if err := s.keys.Deactivate(r.Context(), keyID, principal.Subject); err != nil {
		if errors.Is(err, scrape.ErrNotFound) {
			s.writeError(w, r, scrape.NewNotFoundError("api key", keyID))
			return
		}
		s.writeError(w, r, fmt.Errorf("revoke key: %w", err))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"id": keyID, "is_active": false})
}
