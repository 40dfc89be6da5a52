// Package dispatch runs the batch dispatch loop: pop the
// highest-value queued batch, claim its supplier, flip it in flight,
// and hand it to the agent provider.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.povoice.tech/internal/agent"
	"go.povoice.tech/internal/common/apperr"
	"go.povoice.tech/internal/common/leader"
	"go.povoice.tech/internal/common/metrics"
	"go.povoice.tech/internal/config"
	"go.povoice.tech/internal/eventbus"
	"go.povoice.tech/internal/queuestore"
	"go.povoice.tech/internal/store/agentrun"
	"go.povoice.tech/internal/store/batch"
	"go.povoice.tech/internal/store/batchlog"
	"go.povoice.tech/internal/store/purchaseorder"
	"go.povoice.tech/internal/store/supplier"
)

// Transactor runs a function atomically against the durable store
type Transactor interface {
	RunTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Deps bundles the collaborators the dispatcher needs.
type Deps struct {
	Queue     *queuestore.Store
	Batches   batch.Repository
	POs       purchaseorder.Repository
	Suppliers supplier.Repository
	Runs      agentrun.Repository
	Logs      batchlog.Repository
	Agent     agent.Client
	Bus       eventbus.Bus
	Txn       Transactor

	// Elector gates the loop to the primary instance. Nil disables
	// leader election and every instance dispatches.
	Elector *leader.Elector
}

// Dispatcher is the dispatch loop service. Each tick it recovers stale
// processing entries, then dispatches up to MaxConcurrentCalls batches.
type Dispatcher struct {
	cfg         config.DispatchConfig
	callbackURL string
	hours       Hours
	deps        Deps

	running atomic.Bool
}

// NewDispatcher creates the dispatch loop service
func NewDispatcher(cfg config.DispatchConfig, callbackURL string, hours Hours, deps Deps) *Dispatcher {
	return &Dispatcher{
		cfg:         cfg,
		callbackURL: callbackURL,
		hours:       hours,
		deps:        deps,
	}
}

// Name implements lifecycle.Service
func (d *Dispatcher) Name() string { return "dispatcher" }

// Start runs the dispatch loop until ctx is cancelled
func (d *Dispatcher) Start(ctx context.Context) error {
	d.running.Store(true)
	defer d.running.Store(false)

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	slog.Info("Dispatcher started",
		"pollInterval", d.cfg.PollInterval,
		"maxConcurrentCalls", d.cfg.MaxConcurrentCalls)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.Tick(ctx)
		}
	}
}

// Stop implements lifecycle.Service
func (d *Dispatcher) Stop(ctx context.Context) error { return nil }

// Health implements lifecycle.Service
func (d *Dispatcher) Health() error {
	if !d.running.Load() {
		return errors.New("dispatcher not running")
	}
	return nil
}

// IsRunning reports whether the loop is active, for readiness checks
func (d *Dispatcher) IsRunning() bool { return d.running.Load() }

// Tick runs one dispatch cycle. Exported so tests and the manual
// trigger path drive cycles without the ticker.
func (d *Dispatcher) Tick(ctx context.Context) {
	if d.deps.Elector != nil && !d.deps.Elector.IsPrimary() {
		return
	}

	now := time.Now()
	if !d.hours.Open(now) {
		return
	}

	start := now
	d.sweepStale(ctx, now)

	for i := 0; i < d.cfg.MaxConcurrentCalls; i++ {
		batchID, ok, err := d.deps.Queue.PopMin(ctx, time.Now())
		if err != nil {
			slog.Error("Failed to pop from primary queue", "error", err)
			break
		}
		if !ok {
			break
		}
		d.dispatchOne(ctx, batchID)
	}

	if _, err := d.deps.Queue.Depths(ctx); err != nil {
		slog.Warn("Failed to refresh queue depth gauges", "error", err)
	}
	metrics.DispatchCycleDuration.Observe(time.Since(start).Seconds())
}

// dispatchOne handles one popped batch. The batch sits in the
// processing set from the pop; a successful dispatch leaves it there
// until the reconciler settles the call, every other exit drops or
// requeues it. A transient store error leaves it in processing for
// the stale sweeper.
func (d *Dispatcher) dispatchOne(ctx context.Context, batchID string) {
	bt, err := d.deps.Batches.FindByID(ctx, batchID)
	if errors.Is(err, batch.ErrNotFound) {
		d.drop(ctx, batchID, "batch no longer exists")
		metrics.DispatchBatchesTotal.WithLabelValues("stale").Inc()
		return
	}
	if err != nil {
		slog.Error("Failed to load popped batch", "batchId", batchID, "error", err)
		return
	}

	if bt.Status != batch.StatusQueued {
		d.drop(ctx, batchID, fmt.Sprintf("status is %s", bt.Status))
		metrics.DispatchBatchesTotal.WithLabelValues("stale").Inc()
		return
	}

	// A batch waiting on a callback window is parked on the callback
	// queue; the scheduler promotes it when due.
	if bt.ScheduledFor != nil && bt.ScheduledFor.After(time.Now()) {
		if err := d.deps.Queue.EnqueueCallback(ctx, batchID, *bt.ScheduledFor); err != nil {
			slog.Error("Failed to park batch on callback queue", "batchId", batchID, "error", err)
			return
		}
		if err := d.deps.Queue.FinishProcessing(ctx, batchID); err != nil {
			slog.Warn("Failed to clear processing entry", "batchId", batchID, "error", err)
		}
		slog.Debug("Parked batch until its callback window",
			"batchId", batchID,
			"scheduledFor", bt.ScheduledFor)
		return
	}

	if !bt.HasAttemptsLeft() {
		d.exhaust(ctx, bt)
		return
	}

	claimed, err := d.deps.Queue.ClaimSupplier(ctx, bt.SupplierID)
	if err != nil {
		slog.Error("Failed to claim supplier", "supplierId", bt.SupplierID, "error", err)
		return
	}
	if !claimed {
		// Supplier already on a call; push the batch out briefly.
		score := float64(time.Now().Add(d.cfg.ContentionRequeueDelay).UnixMilli())
		if err := d.deps.Queue.Requeue(ctx, batchID, score); err != nil {
			slog.Error("Failed to requeue contended batch", "batchId", batchID, "error", err)
			return
		}
		metrics.DispatchBatchesTotal.WithLabelValues("contention").Inc()
		metrics.QueueRequeues.WithLabelValues("supplier_busy").Inc()
		slog.Debug("Supplier busy, requeued batch",
			"batchId", batchID,
			"supplierId", bt.SupplierID,
			"delay", d.cfg.ContentionRequeueDelay)
		return
	}

	if _, err := d.startCall(ctx, bt, "", ""); err != nil {
		d.releaseSupplier(ctx, bt.SupplierID)
		if err := d.deps.Queue.Requeue(ctx, batchID, bt.QueueScore()); err != nil {
			slog.Error("Failed to requeue batch after trigger failure", "batchId", batchID, "error", err)
		}
		metrics.DispatchBatchesTotal.WithLabelValues("provider_error").Inc()
		metrics.QueueRequeues.WithLabelValues("provider_error").Inc()
		return
	}

	// The processing entry stays for the life of the call; the
	// reconciler clears it when the call settles. An IN_PROGRESS batch
	// is always visible in the processing set.
	metrics.DispatchBatchesTotal.WithLabelValues("started").Inc()
}

// TriggerManual dispatches a QUEUED batch immediately on behalf of an
// operator, with optional contact overrides.
func (d *Dispatcher) TriggerManual(ctx context.Context, batchID, phoneOverride, emailOverride string) (agent.CallResult, error) {
	bt, err := d.deps.Batches.FindByID(ctx, batchID)
	if errors.Is(err, batch.ErrNotFound) {
		return agent.CallResult{}, apperr.NotFound(apperr.CodeBatchNotFound, "batch not found")
	}
	if err != nil {
		return agent.CallResult{}, err
	}
	if bt.Status != batch.StatusQueued {
		return agent.CallResult{}, apperr.InvalidState(apperr.CodeNotQueued,
			fmt.Sprintf("batch is %s, only QUEUED batches can be dispatched", bt.Status))
	}

	claimed, err := d.deps.Queue.ClaimSupplier(ctx, bt.SupplierID)
	if err != nil {
		return agent.CallResult{}, err
	}
	if !claimed {
		return agent.CallResult{}, apperr.Conflict(apperr.CodeSupplierBusy, "supplier already has a call in flight")
	}

	result, err := d.startCall(ctx, bt, phoneOverride, emailOverride)
	if err != nil {
		d.releaseSupplier(ctx, bt.SupplierID)
		return agent.CallResult{}, err
	}

	// Clear the waiting-queue entries, then track the live call in the
	// processing set like a loop-dispatched one; the reconciler clears
	// it when the call settles.
	if err := d.deps.Queue.Remove(ctx, batchID); err != nil {
		slog.Warn("Failed to clear queue entries after manual trigger", "batchId", batchID, "error", err)
	}
	if err := d.deps.Queue.StartProcessing(ctx, batchID, time.Now()); err != nil {
		slog.Warn("Failed to record processing entry after manual trigger", "batchId", batchID, "error", err)
	}
	metrics.DispatchBatchesTotal.WithLabelValues("started").Inc()
	return result, nil
}

// startCall flips the batch and its POs to IN_PROGRESS, invokes the
// provider, and records the run. On trigger failure the flip is
// reverted and the attempt refunded; the caller still owns the
// supplier claim and the queue entry.
func (d *Dispatcher) startCall(ctx context.Context, bt *batch.Batch, phoneOverride, emailOverride string) (agent.CallResult, error) {
	err := d.deps.Txn.RunTransaction(ctx, func(ctx context.Context) error {
		ok, err := d.deps.Batches.UpdateStatusIf(ctx, bt.ID, batch.StatusQueued, batch.StatusInProgress, nil)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Conflict(apperr.CodeStatusChanged, "batch is no longer queued")
		}
		if _, err := d.deps.POs.UpdateStatusByBatch(ctx, bt.ID,
			[]purchaseorder.Status{purchaseorder.StatusQueued, purchaseorder.StatusPending},
			purchaseorder.StatusInProgress); err != nil {
			return err
		}
		return d.deps.Batches.IncrementAttempts(ctx, bt.ID, 1)
	})
	if err != nil {
		return agent.CallResult{}, err
	}
	attempt := bt.AttemptCount + 1

	sup, err := d.deps.Suppliers.FindByID(ctx, bt.SupplierID)
	if err != nil {
		d.revert(ctx, bt)
		return agent.CallResult{}, err
	}
	members, err := d.deps.POs.FindByBatch(ctx, bt.ID)
	if err != nil {
		d.revert(ctx, bt)
		return agent.CallResult{}, err
	}

	result, err := d.deps.Agent.TriggerCall(ctx, d.buildCallRequest(bt, sup, members, attempt, phoneOverride, emailOverride))
	if err != nil {
		d.revert(ctx, bt)
		d.log(ctx, bt.ID, batchlog.LevelError, fmt.Sprintf("call trigger failed: %v", apperr.From(err).Message))
		d.publishPipeline(ctx, eventbus.PipelineEvent{
			Type:         eventbus.PipelineBatchCompleted,
			BatchID:      bt.ID,
			SupplierID:   bt.SupplierID,
			SupplierName: bt.SupplierName,
			Status:       string(batch.StatusQueued),
			Outcome:      "failed",
		})
		d.publishBatch(ctx, eventbus.BatchEvent{
			Type:    eventbus.BatchStatusChange,
			BatchID: bt.ID,
			Status:  string(batch.StatusQueued),
			Level:   "error",
			Message: "call trigger failed",
		})
		return agent.CallResult{}, err
	}

	// The call is placed; bookkeeping failures from here are logged,
	// never reverted.
	run := &agentrun.AgentRun{
		BatchID:     bt.ID,
		SupplierID:  bt.SupplierID,
		ExternalID:  result.RunID,
		ExternalURL: result.RunURL,
		Status:      agentrun.StatusStarted,
		Attempt:     attempt,
		StartedAt:   time.Now(),
	}
	if err := d.deps.Runs.Insert(ctx, run); err != nil {
		slog.Error("Failed to record agent run", "batchId", bt.ID, "runId", result.RunID, "error", err)
	}
	if err := d.deps.Batches.SetDispatched(ctx, bt.ID, result.RunID, result.RunURL); err != nil {
		slog.Error("Failed to record run identity on batch", "batchId", bt.ID, "error", err)
	}

	d.logStatus(ctx, bt.ID, batchlog.LevelInfo,
		fmt.Sprintf("call started (attempt %d/%d)", attempt, bt.MaxAttempts),
		map[string]any{
			"status":  string(batch.StatusInProgress),
			"attempt": attempt,
			"runId":   result.RunID,
		})
	d.publishPipeline(ctx, eventbus.PipelineEvent{
		Type:         eventbus.PipelineBatchStarted,
		BatchID:      bt.ID,
		SupplierID:   bt.SupplierID,
		SupplierName: bt.SupplierName,
		Status:       string(batch.StatusInProgress),
	})
	d.publishBatch(ctx, eventbus.BatchEvent{
		Type:    eventbus.BatchStatusChange,
		BatchID: bt.ID,
		Status:  string(batch.StatusInProgress),
		Level:   "info",
		Message: fmt.Sprintf("call started (attempt %d/%d)", attempt, bt.MaxAttempts),
	})
	metrics.DispatchActiveCalls.Inc()

	slog.Info("Dispatched batch",
		"batchId", bt.ID,
		"supplierId", bt.SupplierID,
		"runId", result.RunID,
		"attempt", attempt)
	return result, nil
}

// revert undoes the IN_PROGRESS flip after a trigger failure so the
// batch can be retried without consuming an attempt.
func (d *Dispatcher) revert(ctx context.Context, bt *batch.Batch) {
	err := d.deps.Txn.RunTransaction(ctx, func(ctx context.Context) error {
		if _, err := d.deps.Batches.UpdateStatusIf(ctx, bt.ID, batch.StatusInProgress, batch.StatusQueued, nil); err != nil {
			return err
		}
		if _, err := d.deps.POs.UpdateStatusByBatch(ctx, bt.ID,
			[]purchaseorder.Status{purchaseorder.StatusInProgress},
			purchaseorder.StatusQueued); err != nil {
			return err
		}
		return d.deps.Batches.IncrementAttempts(ctx, bt.ID, -1)
	})
	if err != nil {
		slog.Error("Failed to revert batch after trigger failure", "batchId", bt.ID, "error", err)
	}
}

// exhaust fails a batch whose retry budget is spent.
func (d *Dispatcher) exhaust(ctx context.Context, bt *batch.Batch) {
	now := time.Now()
	err := d.deps.Txn.RunTransaction(ctx, func(ctx context.Context) error {
		ok, err := d.deps.Batches.UpdateStatusIf(ctx, bt.ID, batch.StatusQueued, batch.StatusFailed, map[string]any{
			"completedAt": now,
			"lastOutcome": "attempts_exhausted",
		})
		if err != nil || !ok {
			return err
		}
		_, err = d.deps.POs.UpdateStatusByBatch(ctx, bt.ID,
			[]purchaseorder.Status{purchaseorder.StatusQueued, purchaseorder.StatusInProgress},
			purchaseorder.StatusFailed)
		return err
	})
	if err != nil {
		slog.Error("Failed to fail exhausted batch", "batchId", bt.ID, "error", err)
		return
	}

	if err := d.deps.Queue.Remove(ctx, bt.ID); err != nil {
		slog.Warn("Failed to clear queue entries for exhausted batch", "batchId", bt.ID, "error", err)
	}

	message := fmt.Sprintf("retry budget exhausted after %d attempts", bt.AttemptCount)
	d.logStatus(ctx, bt.ID, batchlog.LevelError, message, map[string]any{
		"status":  string(batch.StatusFailed),
		"outcome": "attempts_exhausted",
	})
	d.publishPipeline(ctx, eventbus.PipelineEvent{
		Type:         eventbus.PipelineBatchCompleted,
		BatchID:      bt.ID,
		SupplierID:   bt.SupplierID,
		SupplierName: bt.SupplierName,
		Status:       string(batch.StatusFailed),
		Outcome:      "failed",
	})
	d.publishBatch(ctx, eventbus.BatchEvent{
		Type:    eventbus.BatchStatusChange,
		BatchID: bt.ID,
		Status:  string(batch.StatusFailed),
		Level:   "error",
		Message: message,
	})
	metrics.DispatchBatchesTotal.WithLabelValues("exhausted").Inc()
	slog.Warn("Batch failed, retry budget exhausted", "batchId", bt.ID, "attempts", bt.AttemptCount)
}

// sweepStale inspects processing entries older than the threshold.
// These are batches a dispatcher popped and never finished, usually a
// crash between pop and dispatch.
func (d *Dispatcher) sweepStale(ctx context.Context, now time.Time) {
	cutoff := now.Add(-d.cfg.StaleProcessingThreshold)
	ids, err := d.deps.Queue.ProcessingOlderThan(ctx, cutoff)
	if err != nil {
		slog.Error("Failed to scan processing set", "error", err)
		return
	}

	for _, id := range ids {
		bt, err := d.deps.Batches.FindByID(ctx, id)
		switch {
		case errors.Is(err, batch.ErrNotFound):
			d.finishProcessing(ctx, id)
		case err != nil:
			slog.Error("Failed to load stale processing batch", "batchId", id, "error", err)
		case bt.Status == batch.StatusQueued:
			// A crash between supplier claim and the status flip can
			// leave the claim held; release before requeueing.
			d.releaseSupplier(ctx, bt.SupplierID)
			if err := d.deps.Queue.Requeue(ctx, id, bt.QueueScore()); err != nil {
				slog.Error("Failed to requeue stale batch", "batchId", id, "error", err)
				continue
			}
			metrics.DispatchStaleRecovered.Inc()
			slog.Warn("Recovered stale processing entry", "batchId", id)
		case bt.Status == batch.StatusInProgress:
			// Live call; the reconciler clears the entry when it settles.
			// Long calls outlive the stale threshold routinely.
		default:
			// Terminal but never settled, a crash between the terminal
			// flip and the settle.
			d.finishProcessing(ctx, id)
			d.maybeReleaseClaim(ctx, bt.SupplierID)
			metrics.DispatchStaleRecovered.Inc()
			slog.Warn("Cleared processing entry of unsettled terminal batch", "batchId", id, "status", bt.Status)
		}
	}
}

// maybeReleaseClaim frees a supplier claim during stale recovery,
// unless another batch of the supplier is still mid-call and owns it.
func (d *Dispatcher) maybeReleaseClaim(ctx context.Context, supplierID string) {
	siblings, err := d.deps.Batches.FindBySupplier(ctx, supplierID, 0)
	if err != nil {
		slog.Warn("Failed to check supplier batches before claim release", "supplierId", supplierID, "error", err)
		return
	}
	for _, b := range siblings {
		if b.Status == batch.StatusInProgress {
			return
		}
	}
	d.releaseSupplier(ctx, supplierID)
}

func (d *Dispatcher) drop(ctx context.Context, batchID, reason string) {
	if err := d.deps.Queue.Remove(ctx, batchID); err != nil {
		slog.Warn("Failed to drop batch from queues", "batchId", batchID, "error", err)
		return
	}
	slog.Debug("Dropped batch from queue", "batchId", batchID, "reason", reason)
}

func (d *Dispatcher) finishProcessing(ctx context.Context, batchID string) {
	if err := d.deps.Queue.FinishProcessing(ctx, batchID); err != nil {
		slog.Warn("Failed to clear processing entry", "batchId", batchID, "error", err)
	}
}

func (d *Dispatcher) releaseSupplier(ctx context.Context, supplierID string) {
	if err := d.deps.Queue.ReleaseSupplier(ctx, supplierID); err != nil {
		slog.Error("Failed to release supplier claim", "supplierId", supplierID, "error", err)
	}
}

func (d *Dispatcher) log(ctx context.Context, batchID string, level batchlog.Level, message string) {
	if err := d.deps.Logs.Insert(ctx, &batchlog.Entry{
		BatchID: batchID,
		Level:   level,
		Message: message,
		Source:  "dispatcher",
	}); err != nil {
		slog.Warn("Failed to write batch log", "batchId", batchID, "error", err)
	}
}

// logStatus records a batch status transition with its structured
// payload.
func (d *Dispatcher) logStatus(ctx context.Context, batchID string, level batchlog.Level, message string, data map[string]any) {
	if err := d.deps.Logs.Insert(ctx, &batchlog.Entry{
		BatchID: batchID,
		Type:    batchlog.TypeStatusChange,
		Level:   level,
		Message: message,
		Source:  "dispatcher",
		Data:    data,
	}); err != nil {
		slog.Warn("Failed to write batch log", "batchId", batchID, "error", err)
	}
}

func (d *Dispatcher) publishPipeline(ctx context.Context, ev eventbus.PipelineEvent) {
	if err := d.deps.Bus.PublishPipeline(ctx, ev); err != nil {
		slog.Warn("Failed to publish pipeline event", "type", ev.Type, "batchId", ev.BatchID, "error", err)
	}
}

func (d *Dispatcher) publishBatch(ctx context.Context, ev eventbus.BatchEvent) {
	if err := d.deps.Bus.PublishBatch(ctx, ev); err != nil {
		slog.Warn("Failed to publish batch event", "type", ev.Type, "batchId", ev.BatchID, "error", err)
	}
}

func (d *Dispatcher) buildCallRequest(bt *batch.Batch, sup *supplier.Supplier, members []*purchaseorder.PurchaseOrder, attempt int, phoneOverride, emailOverride string) agent.CallRequest {
	phone := sup.Phone
	if phoneOverride != "" {
		phone = phoneOverride
	}
	email := sup.Email
	if emailOverride != "" {
		email = emailOverride
	}

	items := make([]agent.POItem, 0, len(members))
	for _, po := range members {
		item := agent.POItem{
			ID:         po.ID,
			PONumber:   po.PONumber,
			POLine:     po.POLine,
			ActionType: string(po.ActionType),
			DueDate:    po.DueDate.Format("2006-01-02"),
			DaysDiff:   po.DaysDiff,
			ValueCents: po.ValueCents,
		}
		if po.RecommendedDate != nil {
			item.Recommended = po.RecommendedDate.Format("2006-01-02")
		}
		items = append(items, item)
	}

	return agent.CallRequest{
		BatchID:      bt.ID,
		SupplierID:   bt.SupplierID,
		SupplierName: bt.SupplierName,
		Phone:        phone,
		Email:        email,
		Attempt:      attempt,
		POs:          items,
		CallbackURL:  d.callbackURL,
	}
}
