package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/scrapeflow/scrapeflow/internal/scrape"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

// writeError shapes any error into the uniform envelope. Errors that are not
// already an APIError are internal failures: the cause is logged with the
// request id, and outside development mode the client sees only a generic
// message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr, ok := scrape.AsAPIError(err)
	if !ok {
		s.logger.Error("unhandled error",
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		if s.cfg.Logging.Development {
			apiErr = scrape.NewInternalError(err.Error())
		} else {
			apiErr = scrape.NewInternalError("")
		}
	}
	s.writeJSON(w, apiErr.Status, map[string]any{"error": apiErr})
}
