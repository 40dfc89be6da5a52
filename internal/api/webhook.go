package api

import (
	"net/http"

	"go.povoice.tech/internal/common/apperr"
	"go.povoice.tech/internal/reconcile"
)

// handleWebhook applies one agent provider event. Unknown event types
// are acknowledged so the provider does not retry them forever.
// POST /api/webhooks/agent
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var ev reconcile.Event
	if err := DecodeJSON(r, &ev); err != nil {
		WriteError(w, http.StatusBadRequest, apperr.CodeInvalidFormat, "invalid JSON body")
		return
	}

	if err := s.deps.Webhooks.Handle(r.Context(), ev); err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}
