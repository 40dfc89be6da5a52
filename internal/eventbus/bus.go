// Package eventbus fans out pipeline, batch, and upload events to SSE
// subscribers over NATS core pub/sub.
package eventbus

import (
	"context"
	"time"
)

// Pipeline event types
const (
	PipelineBatchQueued    = "batch_queued"
	PipelineBatchStarted   = "batch_started"
	PipelineBatchCompleted = "batch_completed"
	PipelineBatchRetry     = "batch_retry"
)

// Batch event types
const (
	BatchConnected    = "connected"
	BatchLog          = "log"
	BatchPOUpdate     = "po_update"
	BatchStatusChange = "status_change"
)

// PipelineEvent describes a batch lifecycle transition for the
// dashboard-wide stream.
type PipelineEvent struct {
	Type         string    `json:"type"`
	BatchID      string    `json:"batchId"`
	SupplierID   string    `json:"supplierId,omitempty"`
	SupplierName string    `json:"supplierName,omitempty"`
	Status       string    `json:"status,omitempty"`
	Outcome      string    `json:"outcome,omitempty"`
	At           time.Time `json:"at"`
}

// BatchEvent describes activity on a single batch's stream.
type BatchEvent struct {
	Type     string    `json:"type"`
	BatchID  string    `json:"batchId"`
	Level    string    `json:"level,omitempty"`
	Message  string    `json:"message,omitempty"`
	POID     string    `json:"poId,omitempty"`
	POStatus string    `json:"poStatus,omitempty"`
	Status   string    `json:"status,omitempty"`
	At       time.Time `json:"at"`
}

// UploadEvent reports progress of an upload pipeline job.
type UploadEvent struct {
	JobID     string `json:"jobId"`
	Stage     string `json:"stage"`
	Processed int    `json:"processed"`
	Total     int    `json:"total"`
	Message   string `json:"message,omitempty"`
	Done      bool   `json:"done"`
	Error     string `json:"error,omitempty"`
}

// Bus publishes and subscribes to domain events. Delivery is
// best-effort fan-out; the durable store stays the source of truth.
type Bus interface {
	// PublishPipeline emits a batch lifecycle event to the global stream
	PublishPipeline(ctx context.Context, ev PipelineEvent) error

	// PublishBatch emits an event on a single batch's stream
	PublishBatch(ctx context.Context, ev BatchEvent) error

	// PublishUpload emits a progress event for an upload job
	PublishUpload(ctx context.Context, ev UploadEvent) error

	// SubscribePipeline streams global batch lifecycle events.
	// The returned cancel func must be called to release the
	// subscription.
	SubscribePipeline(ctx context.Context) (<-chan PipelineEvent, func(), error)

	// SubscribeBatch streams one batch's events
	SubscribeBatch(ctx context.Context, batchID string) (<-chan BatchEvent, func(), error)

	// SubscribeUpload streams one upload job's progress events
	SubscribeUpload(ctx context.Context, jobID string) (<-chan UploadEvent, func(), error)

	// Connected reports whether the bus transport is up
	Connected() bool

	// Close releases the bus
	Close() error
}

// Subject names
const (
	subjectPipeline = "povoice.pipeline"
	subjectBatch    = "povoice.batch."
	subjectUpload   = "povoice.upload."
)

func batchSubject(batchID string) string { return subjectBatch + batchID }
func uploadSubject(jobID string) string  { return subjectUpload + jobID }
