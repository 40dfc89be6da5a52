package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"go.povoice.tech/internal/common/leader"
	"go.povoice.tech/internal/common/metrics"
	"go.povoice.tech/internal/queuestore"
	"go.povoice.tech/internal/store/batch"
)

// CallbackScheduler moves batches whose callback window has arrived
// from the callback queue back onto the primary queue, at their normal
// value-based priority.
type CallbackScheduler struct {
	pollInterval time.Duration
	queue        *queuestore.Store
	batches      batch.Repository
	elector      *leader.Elector

	running atomic.Bool
}

// NewCallbackScheduler creates the callback promotion service. A nil
// elector disables leader gating.
func NewCallbackScheduler(pollInterval time.Duration, queue *queuestore.Store, batches batch.Repository, elector *leader.Elector) *CallbackScheduler {
	return &CallbackScheduler{
		pollInterval: pollInterval,
		queue:        queue,
		batches:      batches,
		elector:      elector,
	}
}

// Name implements lifecycle.Service
func (s *CallbackScheduler) Name() string { return "callback-scheduler" }

// Start runs the promotion loop until ctx is cancelled
func (s *CallbackScheduler) Start(ctx context.Context) error {
	s.running.Store(true)
	defer s.running.Store(false)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Stop implements lifecycle.Service
func (s *CallbackScheduler) Stop(ctx context.Context) error { return nil }

// Health implements lifecycle.Service
func (s *CallbackScheduler) Health() error {
	if !s.running.Load() {
		return errors.New("callback scheduler not running")
	}
	return nil
}

// Tick promotes every due callback. Exported for tests.
func (s *CallbackScheduler) Tick(ctx context.Context) {
	if s.elector != nil && !s.elector.IsPrimary() {
		return
	}

	ids, err := s.queue.DueCallbacks(ctx, time.Now())
	if err != nil {
		slog.Error("Failed to scan callback queue", "error", err)
		return
	}

	for _, id := range ids {
		s.promote(ctx, id)
	}
}

// promote re-enqueues one due batch. Batches that vanished or moved on
// while parked are dropped from the callback queue; a transient store
// error leaves the entry for the next tick.
func (s *CallbackScheduler) promote(ctx context.Context, batchID string) {
	bt, err := s.batches.FindByID(ctx, batchID)
	if errors.Is(err, batch.ErrNotFound) {
		s.dropCallback(ctx, batchID, "batch no longer exists")
		return
	}
	if err != nil {
		slog.Error("Failed to load callback batch", "batchId", batchID, "error", err)
		return
	}
	if bt.Status != batch.StatusQueued {
		s.dropCallback(ctx, batchID, "status is "+string(bt.Status))
		return
	}

	if err := s.queue.Enqueue(ctx, batchID, bt.QueueScore()); err != nil {
		slog.Error("Failed to promote callback batch", "batchId", batchID, "error", err)
		return
	}
	if err := s.queue.RemoveCallback(ctx, batchID); err != nil {
		slog.Warn("Failed to clear promoted callback entry", "batchId", batchID, "error", err)
	}
	metrics.QueueRequeues.WithLabelValues("callback_due").Inc()
	slog.Info("Promoted callback batch onto primary queue",
		"batchId", batchID,
		"supplierId", bt.SupplierID)
}

func (s *CallbackScheduler) dropCallback(ctx context.Context, batchID, reason string) {
	if err := s.queue.RemoveCallback(ctx, batchID); err != nil {
		slog.Warn("Failed to drop callback entry", "batchId", batchID, "error", err)
		return
	}
	slog.Debug("Dropped callback entry", "batchId", batchID, "reason", reason)
}
