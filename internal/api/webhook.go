package api

import (
	"encoding/json"
	"net/http"

	"github.com/benzvi/groupsift/internal/ingest"
)

// handleWebhook receives message events from the WhatsApp bridge. The bridge
// treats any non-2xx response as a delivery failure and retries, so the
// handler acknowledges every structurally valid request even when processing
// fails downstream. Only malformed JSON is rejected.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var payload ingest.WebhookPayload

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&payload); err != nil {
		s.log.WarnContext(r.Context(), "Rejecting malformed webhook payload", "error", err)
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}

	if err := s.processor.Process(r.Context(), &payload); err != nil {
		s.log.ErrorContext(r.Context(), "Webhook processing failed", "error", err, "from", payload.From)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(map[string]string{"status": "ok"}); err != nil {
		s.log.ErrorContext(r.Context(), "Failed to write webhook response", "error", err)
	}
}
