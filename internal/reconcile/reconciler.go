// Package reconcile applies agent provider webhook events to the
// durable store, the queues, and the event bus. Every handler is
// idempotent: duplicate deliveries of a terminal transition are no-ops.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.povoice.tech/internal/common/apperr"
	"go.povoice.tech/internal/common/metrics"
	"go.povoice.tech/internal/eventbus"
	"go.povoice.tech/internal/queuestore"
	"go.povoice.tech/internal/store/activity"
	"go.povoice.tech/internal/store/agentrun"
	"go.povoice.tech/internal/store/batch"
	"go.povoice.tech/internal/store/batchlog"
	"go.povoice.tech/internal/store/conflict"
	"go.povoice.tech/internal/store/purchaseorder"
)

// Event types accepted from the agent provider.
const (
	EventLog               = "log"
	EventPOResolved        = "po_resolved"
	EventCallbackRequested = "callback_requested"
	EventEscalation        = "escalation"
	EventCallComplete      = "call_complete"
)

// PO outcomes carried by log and po_resolved events.
const (
	poOutcomeSuccess  = "success"
	poOutcomeRejected = "rejected"
	poOutcomeFailed   = "failed"
)

// Event is the provider webhook payload. One flat shape covers the
// whole taxonomy; which fields matter depends on EventType.
type Event struct {
	EventType string `json:"event_type"`
	BatchID   string `json:"batch_id"`
	RunID     string `json:"run_id,omitempty"`

	// log
	Message string `json:"message,omitempty"`
	Level   string `json:"level,omitempty"`
	Source  string `json:"source,omitempty"`

	// log / po_resolved
	POID      string `json:"po_id,omitempty"`
	PONumber  string `json:"po_number,omitempty"`
	POLine    string `json:"po_line,omitempty"`
	POOutcome string `json:"po_outcome,omitempty"`
	Outcome   string `json:"outcome,omitempty"`
	Reason    string `json:"reason,omitempty"`

	// callback_requested
	ScheduledFor string `json:"scheduled_for,omitempty"`

	// escalation
	Priority string `json:"priority,omitempty"`

	// call_complete
	Summary         string  `json:"summary,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	ResolvedCount   int     `json:"resolved_count,omitempty"`
	FailedCount     int     `json:"failed_count,omitempty"`
}

// Reconciler applies webhook events.
type Reconciler struct {
	batches   batch.Repository
	pos       purchaseorder.Repository
	runs      agentrun.Repository
	logs      batchlog.Repository
	conflicts conflict.Repository
	activity  activity.Repository
	queue     *queuestore.Store
	bus       eventbus.Bus
}

// NewReconciler creates the webhook reconciler
func NewReconciler(
	batches batch.Repository,
	pos purchaseorder.Repository,
	runs agentrun.Repository,
	logs batchlog.Repository,
	conflicts conflict.Repository,
	activityRepo activity.Repository,
	queue *queuestore.Store,
	bus eventbus.Bus,
) *Reconciler {
	return &Reconciler{
		batches:   batches,
		pos:       pos,
		runs:      runs,
		logs:      logs,
		conflicts: conflicts,
		activity:  activityRepo,
		queue:     queue,
		bus:       bus,
	}
}

// Handle applies one webhook event. Unknown event types are accepted
// with a warning so the provider does not retry unimplemented events.
func (r *Reconciler) Handle(ctx context.Context, ev Event) error {
	if ev.BatchID == "" {
		metrics.WebhookEventsTotal.WithLabelValues(ev.EventType, "invalid").Inc()
		return apperr.Validation(apperr.CodeRequired, "batch_id is required")
	}

	start := time.Now()
	defer func() {
		metrics.WebhookProcessingDuration.WithLabelValues(ev.EventType).Observe(time.Since(start).Seconds())
	}()

	var err error
	switch ev.EventType {
	case EventLog:
		err = r.handleLog(ctx, ev)
	case EventPOResolved:
		err = r.handlePOResolved(ctx, ev)
	case EventCallbackRequested:
		err = r.handleCallbackRequested(ctx, ev)
	case EventEscalation:
		err = r.handleEscalation(ctx, ev)
	case EventCallComplete:
		err = r.handleCallComplete(ctx, ev)
	default:
		metrics.WebhookEventsTotal.WithLabelValues(ev.EventType, "unknown").Inc()
		slog.Warn("Ignoring unknown webhook event type",
			"eventType", ev.EventType,
			"batchId", ev.BatchID)
		return nil
	}

	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(ev.EventType, "invalid").Inc()
	}
	return err
}

// handleLog appends the message to the batch log and mirrors it to the
// batch's live channel. A log that carries a PO outcome also resolves
// that PO.
func (r *Reconciler) handleLog(ctx context.Context, ev Event) error {
	level := batchlog.Level(ev.Level)
	switch level {
	case batchlog.LevelDebug, batchlog.LevelInfo, batchlog.LevelWarning,
		batchlog.LevelError, batchlog.LevelSuccess:
	default:
		level = batchlog.LevelInfo
	}
	source := ev.Source
	if source == "" {
		source = "agent"
	}

	if err := r.logs.Insert(ctx, &batchlog.Entry{
		BatchID: ev.BatchID,
		Level:   level,
		Message: ev.Message,
		Source:  source,
	}); err != nil {
		return err
	}
	r.publishBatch(ctx, eventbus.BatchEvent{
		Type:    eventbus.BatchLog,
		BatchID: ev.BatchID,
		Level:   string(level),
		Message: ev.Message,
	})

	if ev.POID != "" && ev.POOutcome != "" {
		if err := r.resolvePO(ctx, ev.BatchID, ev.POID, ev.POOutcome); err != nil {
			return err
		}
	}

	metrics.WebhookEventsTotal.WithLabelValues(EventLog, "applied").Inc()
	return nil
}

// handlePOResolved resolves a single PO and records the prior due date
// in the batch log.
func (r *Reconciler) handlePOResolved(ctx context.Context, ev Event) error {
	outcome := ev.Outcome
	if outcome == "" {
		outcome = ev.POOutcome
	}
	if outcome == "" {
		return apperr.Validation(apperr.CodeRequired, "outcome is required")
	}

	po, err := r.findPO(ctx, ev)
	if errors.Is(err, purchaseorder.ErrNotFound) {
		slog.Warn("Webhook references unknown purchase order",
			"batchId", ev.BatchID,
			"poId", ev.POID,
			"poNumber", ev.PONumber)
		metrics.WebhookEventsTotal.WithLabelValues(EventPOResolved, "noop").Inc()
		return nil
	}
	if err != nil {
		return err
	}

	message := fmt.Sprintf("PO %s-%s resolved %s (previous due date %s)",
		po.PONumber, po.POLine, outcome, po.DueDate.Format("2006-01-02"))
	if ev.Reason != "" {
		message += ": " + ev.Reason
	}
	if err := r.logs.Insert(ctx, &batchlog.Entry{
		BatchID: ev.BatchID,
		Level:   batchlog.LevelInfo,
		Message: message,
		Source:  "reconciler",
	}); err != nil {
		return err
	}

	if err := r.resolvePO(ctx, ev.BatchID, po.ID, outcome); err != nil {
		return err
	}

	metrics.WebhookEventsTotal.WithLabelValues(EventPOResolved, "applied").Inc()
	return nil
}

// handleCallbackRequested moves an in-flight batch back to QUEUED and
// parks it on the callback queue for the requested time.
func (r *Reconciler) handleCallbackRequested(ctx context.Context, ev Event) error {
	if ev.ScheduledFor == "" {
		return apperr.Validation(apperr.CodeRequired, "scheduled_for is required")
	}
	at, err := time.Parse(time.RFC3339, ev.ScheduledFor)
	if err != nil {
		return apperr.Validation(apperr.CodeInvalidValue, "scheduled_for must be an RFC 3339 timestamp").WithCause(err)
	}

	// Load before the flip so the settle below cannot be skipped by a
	// transient read failure afterwards.
	bt, err := r.batches.FindByID(ctx, ev.BatchID)
	if errors.Is(err, batch.ErrNotFound) {
		slog.Warn("Webhook references unknown batch", "batchId", ev.BatchID)
		metrics.WebhookEventsTotal.WithLabelValues(EventCallbackRequested, "noop").Inc()
		return nil
	}
	if err != nil {
		return err
	}

	applied, err := r.batches.UpdateStatusIf(ctx, ev.BatchID, batch.StatusInProgress, batch.StatusQueued, map[string]any{
		"scheduledFor": at,
	})
	if err != nil {
		return err
	}
	if !applied {
		if bt.IsTerminal() {
			r.releaseOrphanedClaim(ctx, ev.BatchID, bt.SupplierID)
		}
		metrics.WebhookEventsTotal.WithLabelValues(EventCallbackRequested, "noop").Inc()
		return nil
	}
	// The flip happened; whatever fails from here on, the supplier claim
	// and processing entry must not outlive the call.
	defer r.settleCall(ctx, ev.BatchID, bt.SupplierID)

	if err := r.batches.IncrementAttempts(ctx, ev.BatchID, 1); err != nil {
		return err
	}
	if err := r.queue.EnqueueCallback(ctx, ev.BatchID, at); err != nil {
		return err
	}

	message := "callback requested for " + at.Format(time.RFC3339)
	if ev.Reason != "" {
		message += ": " + ev.Reason
	}
	if err := r.logs.Insert(ctx, &batchlog.Entry{
		BatchID: ev.BatchID,
		Type:    batchlog.TypeStatusChange,
		Level:   batchlog.LevelInfo,
		Message: message,
		Source:  "reconciler",
		Data: map[string]any{
			"status":       string(batch.StatusQueued),
			"outcome":      string(batch.OutcomeCallback),
			"scheduledFor": at.Format(time.RFC3339),
		},
	}); err != nil {
		slog.Warn("Failed to write batch log", "batchId", ev.BatchID, "error", err)
	}

	r.publishPipeline(ctx, eventbus.PipelineEvent{
		Type:         eventbus.PipelineBatchRetry,
		BatchID:      ev.BatchID,
		SupplierID:   bt.SupplierID,
		SupplierName: bt.SupplierName,
		Status:       string(batch.StatusQueued),
		Outcome:      string(batch.OutcomeCallback),
	})
	r.publishBatch(ctx, eventbus.BatchEvent{
		Type:    eventbus.BatchStatusChange,
		BatchID: ev.BatchID,
		Status:  string(batch.StatusQueued),
		Level:   "info",
		Message: message,
	})

	metrics.WebhookEventsTotal.WithLabelValues(EventCallbackRequested, "applied").Inc()
	return nil
}

// handleEscalation records the escalation without touching batch
// status.
func (r *Reconciler) handleEscalation(ctx context.Context, ev Event) error {
	if ev.Reason == "" {
		return apperr.Validation(apperr.CodeRequired, "reason is required")
	}

	if ev.POID != "" {
		po, err := r.pos.FindByID(ctx, ev.POID)
		if err != nil && !errors.Is(err, purchaseorder.ErrNotFound) {
			return err
		}
		c := &conflict.Conflict{
			BatchID:      ev.BatchID,
			ConflictType: conflict.TypeEscalation,
			Reason:       ev.Reason,
			Resolution:   conflict.ResolutionPending,
		}
		if ev.Priority != "" {
			c.Details = map[string]any{"priority": ev.Priority}
		}
		if po != nil {
			c.PurchaseOrderID = po.ID
			c.POExternalID = po.ExternalID
			c.PONumber = po.PONumber
			c.POLine = po.POLine
		}
		if err := r.conflicts.Insert(ctx, c); err != nil {
			return err
		}
	}

	message := "escalation: " + ev.Reason
	if ev.Priority != "" {
		message = fmt.Sprintf("escalation (%s): %s", ev.Priority, ev.Reason)
	}
	details := map[string]any{"reason": ev.Reason}
	if ev.Priority != "" {
		details["priority"] = ev.Priority
	}
	if ev.POID != "" {
		details["poId"] = ev.POID
	}
	if err := r.activity.Insert(ctx, &activity.Entry{
		Kind:       activity.KindEscalation,
		Message:    message,
		EntityType: activity.EntityBatch,
		EntityID:   ev.BatchID,
		Action:     "escalation",
		Details:    details,
		BatchID:    ev.BatchID,
	}); err != nil {
		return err
	}

	if err := r.logs.Insert(ctx, &batchlog.Entry{
		BatchID: ev.BatchID,
		Level:   batchlog.LevelWarning,
		Message: message,
		Source:  "agent",
	}); err != nil {
		slog.Warn("Failed to write batch log", "batchId", ev.BatchID, "error", err)
	}
	r.publishBatch(ctx, eventbus.BatchEvent{
		Type:    eventbus.BatchLog,
		BatchID: ev.BatchID,
		Level:   "warning",
		Message: message,
	})

	metrics.WebhookEventsTotal.WithLabelValues(EventEscalation, "applied").Inc()
	return nil
}

// handleCallComplete finalizes the call: terminal batch status for
// success/partial/failed, back to QUEUED for callback.
func (r *Reconciler) handleCallComplete(ctx context.Context, ev Event) error {
	outcome := batch.Outcome(ev.Outcome)
	next, ok := batch.StatusForOutcome(outcome)
	if !ok {
		return apperr.Validation(apperr.CodeInvalidValue,
			fmt.Sprintf("unknown call outcome %q", ev.Outcome))
	}

	// End the run first; it is idempotent on its own and the batch flip
	// below may already have happened on a redelivery.
	if ev.RunID != "" {
		if _, err := r.runs.End(ctx, ev.RunID, ev.Outcome); err != nil && !errors.Is(err, agentrun.ErrNotFound) {
			return err
		}
	}

	// Load before the flip so the settle below cannot be skipped by a
	// transient read failure afterwards.
	bt, err := r.batches.FindByID(ctx, ev.BatchID)
	if errors.Is(err, batch.ErrNotFound) {
		slog.Warn("Webhook references unknown batch", "batchId", ev.BatchID)
		metrics.WebhookEventsTotal.WithLabelValues(EventCallComplete, "noop").Inc()
		return nil
	}
	if err != nil {
		return err
	}

	set := map[string]any{"lastOutcome": ev.Outcome}
	if outcome != batch.OutcomeCallback {
		set["completedAt"] = time.Now()
	}
	applied, err := r.batches.UpdateStatusIf(ctx, ev.BatchID, batch.StatusInProgress, next, set)
	if err != nil {
		return err
	}
	if !applied {
		if bt.IsTerminal() {
			r.releaseOrphanedClaim(ctx, ev.BatchID, bt.SupplierID)
		}
		metrics.WebhookEventsTotal.WithLabelValues(EventCallComplete, "noop").Inc()
		return nil
	}
	// The flip happened; whatever fails from here on, the supplier claim
	// and processing entry must not outlive the call.
	defer r.settleCall(ctx, ev.BatchID, bt.SupplierID)

	if outcome == batch.OutcomeCallback {
		// Without a scheduled time the batch just rejoins the primary
		// queue; a callback_requested event carries the window.
		if bt.ScheduledFor == nil {
			if err := r.queue.Enqueue(ctx, ev.BatchID, bt.QueueScore()); err != nil {
				slog.Error("Failed to requeue callback batch", "batchId", ev.BatchID, "error", err)
			}
		}
	} else {
		// Mirror the terminal batch status onto any still-open POs.
		poStatus := purchaseorder.StatusCompleted
		if next == batch.StatusFailed {
			poStatus = purchaseorder.StatusFailed
		}
		if next != batch.StatusPartial {
			if _, err := r.pos.UpdateStatusByBatch(ctx, ev.BatchID,
				[]purchaseorder.Status{purchaseorder.StatusQueued, purchaseorder.StatusInProgress},
				poStatus); err != nil {
				return err
			}
		}
	}

	message := fmt.Sprintf("call complete: %s", ev.Outcome)
	if ev.DurationSeconds > 0 {
		message = fmt.Sprintf("call complete: %s (%.0fs)", ev.Outcome, ev.DurationSeconds)
	}
	if ev.Summary != "" {
		message += " - " + ev.Summary
	}
	level := batchlog.LevelInfo
	switch outcome {
	case batch.OutcomeSuccess:
		level = batchlog.LevelSuccess
	case batch.OutcomeFailed:
		level = batchlog.LevelError
	}
	if err := r.logs.Insert(ctx, &batchlog.Entry{
		BatchID: ev.BatchID,
		Type:    batchlog.TypeStatusChange,
		Level:   level,
		Message: message,
		Source:  "reconciler",
		Data: map[string]any{
			"status":        string(next),
			"outcome":       ev.Outcome,
			"resolvedCount": ev.ResolvedCount,
			"failedCount":   ev.FailedCount,
		},
	}); err != nil {
		slog.Warn("Failed to write batch log", "batchId", ev.BatchID, "error", err)
	}

	pipelineType := eventbus.PipelineBatchCompleted
	if outcome == batch.OutcomeCallback {
		pipelineType = eventbus.PipelineBatchRetry
	}
	r.publishPipeline(ctx, eventbus.PipelineEvent{
		Type:         pipelineType,
		BatchID:      ev.BatchID,
		SupplierID:   bt.SupplierID,
		SupplierName: bt.SupplierName,
		Status:       string(next),
		Outcome:      ev.Outcome,
	})
	r.publishBatch(ctx, eventbus.BatchEvent{
		Type:    eventbus.BatchStatusChange,
		BatchID: ev.BatchID,
		Status:  string(next),
		Level:   "info",
		Message: message,
	})

	metrics.WebhookEventsTotal.WithLabelValues(EventCallComplete, "applied").Inc()
	return nil
}

// resolvePO applies a per-PO outcome and completes the batch once no
// open POs remain. Already-terminal POs make the whole call a no-op.
func (r *Reconciler) resolvePO(ctx context.Context, batchID, poID, outcome string) error {
	var (
		applied bool
		status  purchaseorder.Status
		err     error
	)
	switch outcome {
	case poOutcomeSuccess:
		applied, err = r.pos.Complete(ctx, poID)
		status = purchaseorder.StatusCompleted
	case poOutcomeRejected, poOutcomeFailed:
		applied, err = r.pos.Fail(ctx, poID)
		status = purchaseorder.StatusFailed
	default:
		slog.Warn("Ignoring unknown PO outcome", "batchId", batchID, "poId", poID, "outcome", outcome)
		return nil
	}
	if errors.Is(err, purchaseorder.ErrNotFound) {
		slog.Warn("Webhook references unknown purchase order", "batchId", batchID, "poId", poID)
		return nil
	}
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	level := batchlog.LevelSuccess
	if status == purchaseorder.StatusFailed {
		level = batchlog.LevelWarning
	}
	if err := r.logs.Insert(ctx, &batchlog.Entry{
		BatchID: batchID,
		Type:    batchlog.TypePOUpdate,
		Level:   level,
		Message: fmt.Sprintf("PO %s marked %s", poID, status),
		Source:  "reconciler",
		Data: map[string]any{
			"poId":    poID,
			"status":  string(status),
			"outcome": outcome,
		},
	}); err != nil {
		slog.Warn("Failed to write batch log", "batchId", batchID, "error", err)
	}

	r.publishBatch(ctx, eventbus.BatchEvent{
		Type:     eventbus.BatchPOUpdate,
		BatchID:  batchID,
		POID:     poID,
		POStatus: string(status),
	})

	return r.maybeCompleteBatch(ctx, batchID)
}

// maybeCompleteBatch transitions the batch to COMPLETED once every PO
// has left the open set. The conditional flip keeps redeliveries and
// racing call_complete events from double-finishing.
func (r *Reconciler) maybeCompleteBatch(ctx context.Context, batchID string) error {
	open, err := r.pos.CountOpenByBatch(ctx, batchID)
	if err != nil {
		return err
	}
	if open > 0 {
		return nil
	}

	// Load before the flip so the settle below cannot be skipped by a
	// transient read failure afterwards.
	bt, err := r.batches.FindByID(ctx, batchID)
	if errors.Is(err, batch.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	applied, err := r.batches.UpdateStatusIf(ctx, batchID, batch.StatusInProgress, batch.StatusCompleted, map[string]any{
		"completedAt": time.Now(),
		"lastOutcome": string(batch.OutcomeSuccess),
	})
	if err != nil {
		return err
	}
	if !applied {
		if bt.IsTerminal() {
			r.releaseOrphanedClaim(ctx, batchID, bt.SupplierID)
		}
		return nil
	}
	defer r.settleCall(ctx, batchID, bt.SupplierID)

	if err := r.logs.Insert(ctx, &batchlog.Entry{
		BatchID: batchID,
		Type:    batchlog.TypeStatusChange,
		Level:   batchlog.LevelSuccess,
		Message: "all purchase orders resolved",
		Source:  "reconciler",
		Data: map[string]any{
			"status":  string(batch.StatusCompleted),
			"outcome": string(batch.OutcomeSuccess),
		},
	}); err != nil {
		slog.Warn("Failed to write batch log", "batchId", batchID, "error", err)
	}

	r.publishPipeline(ctx, eventbus.PipelineEvent{
		Type:         eventbus.PipelineBatchCompleted,
		BatchID:      batchID,
		SupplierID:   bt.SupplierID,
		SupplierName: bt.SupplierName,
		Status:       string(batch.StatusCompleted),
		Outcome:      string(batch.OutcomeSuccess),
	})
	r.publishBatch(ctx, eventbus.BatchEvent{
		Type:    eventbus.BatchStatusChange,
		BatchID: batchID,
		Status:  string(batch.StatusCompleted),
		Level:   "info",
		Message: "all purchase orders resolved",
	})
	return nil
}

// settleCall releases the call-level bookkeeping after a batch leaves
// IN_PROGRESS: the processing entry, the supplier claim, and the
// active-call gauge. Runs exactly once per transition because every
// caller sits behind a conditional status flip.
func (r *Reconciler) settleCall(ctx context.Context, batchID, supplierID string) {
	if err := r.queue.FinishProcessing(ctx, batchID); err != nil {
		slog.Warn("Failed to clear processing entry", "batchId", batchID, "error", err)
	}
	if err := r.queue.ReleaseSupplier(ctx, supplierID); err != nil {
		slog.Error("Failed to release supplier claim", "supplierId", supplierID, "error", err)
	}
	metrics.DispatchActiveCalls.Dec()
}

// releaseOrphanedClaim frees a supplier claim left behind when a
// process died between a batch's terminal flip and its settle. Only
// runs off the no-op redelivery path, and only when no other batch of
// the supplier is still mid-call, so a live call can never lose its
// claim. The dead process's gauge increment died with it, so the gauge
// is left alone.
func (r *Reconciler) releaseOrphanedClaim(ctx context.Context, batchID, supplierID string) {
	if supplierID == "" {
		return
	}
	active, err := r.queue.IsSupplierActive(ctx, supplierID)
	if err != nil || !active {
		return
	}
	siblings, err := r.batches.FindBySupplier(ctx, supplierID, 0)
	if err != nil {
		slog.Warn("Failed to check supplier batches for orphaned claim", "supplierId", supplierID, "error", err)
		return
	}
	for _, b := range siblings {
		if b.Status == batch.StatusInProgress {
			return
		}
	}
	slog.Warn("Releasing orphaned supplier claim", "batchId", batchID, "supplierId", supplierID)
	if err := r.queue.FinishProcessing(ctx, batchID); err != nil {
		slog.Warn("Failed to clear processing entry", "batchId", batchID, "error", err)
	}
	if err := r.queue.ReleaseSupplier(ctx, supplierID); err != nil {
		slog.Error("Failed to release supplier claim", "supplierId", supplierID, "error", err)
	}
}

// findPO locates the PO named by a webhook event, by ID first, falling
// back to the (poNumber, poLine) external identity.
func (r *Reconciler) findPO(ctx context.Context, ev Event) (*purchaseorder.PurchaseOrder, error) {
	if ev.POID != "" {
		return r.pos.FindByID(ctx, ev.POID)
	}
	if ev.PONumber == "" {
		return nil, purchaseorder.ErrNotFound
	}
	line := ev.POLine
	if line == "" {
		line = "1"
	}
	return r.pos.FindByExternalID(ctx, purchaseorder.ExternalIDFor(ev.PONumber, line))
}

func (r *Reconciler) publishPipeline(ctx context.Context, ev eventbus.PipelineEvent) {
	if err := r.bus.PublishPipeline(ctx, ev); err != nil {
		slog.Warn("Failed to publish pipeline event", "type", ev.Type, "batchId", ev.BatchID, "error", err)
	}
}

func (r *Reconciler) publishBatch(ctx context.Context, ev eventbus.BatchEvent) {
	if err := r.bus.PublishBatch(ctx, ev); err != nil {
		slog.Warn("Failed to publish batch event", "type", ev.Type, "batchId", ev.BatchID, "error", err)
	}
}
