package api

import (
	"net/http"
	"time"
)

// handleReadiness reports process liveness without touching dependencies.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatus probes the database and reports overall service health.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	err := s.store.Ping(r.Context())
	elapsed := time.Since(start)

	if err != nil {
		s.log.ErrorContext(r.Context(), "Database health check failed", "error", err, "duration", elapsed)
		s.writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{
			"status":         "degraded",
			"database":       "unreachable",
			"error":          err.Error(),
			"check_duration": elapsed.String(),
		})
		return
	}

	s.writeJSON(w, r, http.StatusOK, map[string]string{
		"status":         "ok",
		"database":       "ok",
		"check_duration": elapsed.String(),
	})
}
