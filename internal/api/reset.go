package api

import (
	"log/slog"
	"net/http"
	"time"

	"go.povoice.tech/internal/store/activity"
)

// reset clears every batch, PO, supplier, run, log, conflict, and
// queue entry. The activity log survives so the reset itself stays
// traceable. POST /api/reset
func (s *Server) reset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	steps := []struct {
		name string
		fn   func() error
	}{
		{"batches", func() error { return s.deps.Batches.DeleteAll(ctx) }},
		{"purchase orders", func() error { return s.deps.POs.DeleteAll(ctx) }},
		{"suppliers", func() error { return s.deps.Suppliers.DeleteAll(ctx) }},
		{"agent runs", func() error { return s.deps.Runs.DeleteAll(ctx) }},
		{"batch logs", func() error { return s.deps.Logs.DeleteAll(ctx) }},
		{"conflicts", func() error { return s.deps.Conflicts.DeleteAll(ctx) }},
		{"queues", func() error { return s.deps.Queue.FlushAll(ctx) }},
	}

	for _, step := range steps {
		if err := step.fn(); err != nil {
			slog.Error("Reset step failed", "step", step.name, "error", err)
			WriteAppError(w, err)
			return
		}
	}

	entry := &activity.Entry{
		Kind:      activity.KindReset,
		Message:   "operator reset: batches, purchase orders, suppliers, and queues cleared",
		Action:    "reset",
		CreatedAt: time.Now(),
	}
	if err := s.deps.Activity.Insert(ctx, entry); err != nil {
		slog.Warn("Failed to record reset in activity log", "error", err)
	}

	slog.Info("Operator reset completed")
	WriteJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}
