package batch

import (
	"time"

	"go.povoice.tech/internal/store/purchaseorder"
)

// Status is the lifecycle state of a supplier batch.
type Status string

const (
	StatusQueued     Status = "QUEUED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusPartial    Status = "PARTIAL"
)

// Outcome is the terminal result reported for a call attempt.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomePartial  Outcome = "partial"
	OutcomeFailed   Outcome = "failed"
	OutcomeCallback Outcome = "callback"
)

// Batch bundles one supplier's POs for resolution in a single call.
// Collection: batches
//
// SupplierNumber and SupplierName are denormalized from the supplier so
// list search and sort never need a join.
type Batch struct {
	ID              string                     `bson:"_id" json:"id"`
	SupplierID      string                     `bson:"supplierId" json:"supplierId"`
	SupplierNumber  string                     `bson:"supplierNumber" json:"supplierNumber"`
	SupplierName    string                     `bson:"supplierName" json:"supplierName"`
	Status          Status                     `bson:"status" json:"status"`
	ActionTypes     []purchaseorder.ActionType `bson:"actionTypes" json:"actionTypes"`
	TotalValueCents int64                      `bson:"totalValueCents" json:"totalValueCents"`
	POCount         int                        `bson:"poCount" json:"poCount"`

	// Priority is the primary-queue score: the negated value so a
	// pop-min yields the highest-value batch first.
	Priority int64 `bson:"priority" json:"priority"`

	AttemptCount int        `bson:"attemptCount" json:"attemptCount"`
	MaxAttempts  int        `bson:"maxAttempts" json:"maxAttempts"`
	ScheduledFor *time.Time `bson:"scheduledFor,omitempty" json:"scheduledFor,omitempty"`

	// ExternalID and ExternalURL identify the in-flight run at the
	// agent provider.
	ExternalID  string `bson:"externalId,omitempty" json:"externalId,omitempty"`
	ExternalURL string `bson:"externalUrl,omitempty" json:"externalUrl,omitempty"`

	LastOutcome string     `bson:"lastOutcome,omitempty" json:"lastOutcome,omitempty"`
	CompletedAt *time.Time `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
	CreatedAt   time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time  `bson:"updatedAt" json:"updatedAt"`
}

// IsTerminal returns true if the batch is in a terminal state.
func (b *Batch) IsTerminal() bool {
	return b.Status == StatusCompleted || b.Status == StatusFailed || b.Status == StatusPartial
}

// QueueScore is the primary-queue score: the negated total value in
// dollars, so higher-value batches sort first under pop-min.
func (b *Batch) QueueScore() float64 {
	return -float64(b.TotalValueCents) / 100
}

// HasAttemptsLeft reports whether another call attempt fits the budget.
func (b *Batch) HasAttemptsLeft() bool {
	return b.AttemptCount < b.MaxAttempts
}

// StatusForOutcome maps a call outcome to the resulting batch status.
func StatusForOutcome(o Outcome) (Status, bool) {
	switch o {
	case OutcomeSuccess:
		return StatusCompleted, true
	case OutcomePartial:
		return StatusPartial, true
	case OutcomeFailed:
		return StatusFailed, true
	case OutcomeCallback:
		return StatusQueued, true
	default:
		return "", false
	}
}

// StatusStats aggregates batches by status.
type StatusStats struct {
	Status     Status `bson:"_id" json:"status"`
	Count      int64  `bson:"count" json:"count"`
	ValueCents int64  `bson:"valueCents" json:"valueCents"`
}

// SupplierRollup aggregates batch counts and value per supplier.
type SupplierRollup struct {
	SupplierID string `bson:"_id" json:"supplierId"`
	BatchCount int64  `bson:"batchCount" json:"batchCount"`
	ValueCents int64  `bson:"valueCents" json:"valueCents"`
}

// ListFilter narrows and orders a batch listing.
type ListFilter struct {
	Status     Status
	ActionType purchaseorder.ActionType

	// Search matches supplier name or number, case-insensitive substring
	Search string

	// SortBy is one of totalValue, supplierName, createdAt, priority
	SortBy string

	// Descending reverses the sort
	Descending bool

	Page     int
	PageSize int
}
