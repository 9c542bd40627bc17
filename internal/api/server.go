// Package api exposes the HTTP interface for the scrape platform.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/scrapeflow/scrapeflow/internal/auth"
	"github.com/scrapeflow/scrapeflow/internal/config"
	"github.com/scrapeflow/scrapeflow/internal/coordinator"
	"github.com/scrapeflow/scrapeflow/internal/scrape"
	"github.com/scrapeflow/scrapeflow/internal/telemetry"
)

// Server wires HTTP handlers to the coordinator and stores.
type Server struct {
	router   chi.Router
	coord    *coordinator.Coordinator
	authn    *auth.Authenticator
	keys     scrape.KeyStore
	webhooks scrape.WebhookStore
	idGen    scrape.IDGenerator
	clock    scrape.Clock
	cfg      config.Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	coord *coordinator.Coordinator,
	authn *auth.Authenticator,
	keys scrape.KeyStore,
	webhooks scrape.WebhookStore,
	idGen scrape.IDGenerator,
	clock scrape.Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		coord:    coord,
		authn:    authn,
		keys:     keys,
		webhooks: webhooks,
		idGen:    idGen,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metricsMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Route("/scrape", func(r chi.Router) {
			r.Post("/", s.submitScrape)
			r.Get("/history", s.scrapeHistory)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/", s.getScrapeStatus)
				r.Post("/save", s.saveScrape)
			})
		})

		r.Route("/keys", func(r chi.Router) {
			r.Post("/", s.createKey)
			r.Get("/", s.listKeys)
			r.Delete("/{key_id}", s.revokeKey)
		})

		r.Route("/webhooks", func(r chi.Router) {
			r.Post("/", s.createWebhook)
			r.Get("/", s.listWebhooks)
			r.Delete("/{webhook_id}", s.deleteWebhook)
		})

		r.Get("/stats", s.getStats)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// A durable-store count doubles as the readiness probe: it exercises the
	// same dependency path requests do without holding connections open.
	if _, err := s.coord.GetStats(r.Context()); err != nil {
		s.writeError(w, r, scrape.NewInternalError("dependencies unavailable"))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) submitScrape(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r.Context())

	var spec scrape.JobSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		s.writeError(w, r, scrape.NewValidationError("invalid JSON body", nil))
		return
	}

	job, err := s.coord.Submit(r.Context(), spec, principal)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) getScrapeStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.coord.GetStatus(r.Context(), jobID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

func (s *Server) saveScrape(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	created, err := s.coord.Persist(r.Context(), jobID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"job_id": jobID,
		"saved":  true,
		"new":    created,
	})
}

func (s *Server) scrapeHistory(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r.Context())
	jobs, err := s.coord.History(r.Context(), principal)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []scrape.Job{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.coord.GetStats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}
