package purchaseorder

import (
	"fmt"
	"time"
)

// ActionType is the resolution requested from the supplier for a PO line.
type ActionType string

const (
	ActionCancel   ActionType = "CANCEL"
	ActionExpedite ActionType = "EXPEDITE"
	ActionPushOut  ActionType = "PUSH_OUT"
)

// Status is the lifecycle state of a purchase order line.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusQueued     Status = "QUEUED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusConflict   Status = "CONFLICT"
)

// PurchaseOrder represents a single PO line awaiting resolution.
// Collection: purchase_orders
type PurchaseOrder struct {
	ID              string     `bson:"_id" json:"id"`
	ExternalID      string     `bson:"externalId" json:"externalId"`
	PONumber        string     `bson:"poNumber" json:"poNumber"`
	POLine          string     `bson:"poLine" json:"poLine"`
	SupplierID      string     `bson:"supplierId" json:"supplierId"`
	BatchID         string     `bson:"batchId,omitempty" json:"batchId,omitempty"`
	ActionType      ActionType `bson:"actionType" json:"actionType"`
	Status          Status     `bson:"status" json:"status"`
	DueDate         time.Time  `bson:"dueDate" json:"dueDate"`
	OriginalDueDate *time.Time `bson:"originalDueDate,omitempty" json:"originalDueDate,omitempty"`
	RecommendedDate *time.Time `bson:"recommendedDate,omitempty" json:"recommendedDate,omitempty"`
	DaysDiff        int        `bson:"daysDiff" json:"daysDiff"`

	// ValueCents is the calculated total value in minor units. Money is
	// kept as fixed-point cents so priority sums and aggregations never
	// touch binary floating point.
	ValueCents int64 `bson:"valueCents" json:"valueCents"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// ExternalIDFor composes the reload-stable identity of a PO line.
func ExternalIDFor(poNumber, poLine string) string {
	return fmt.Sprintf("%s-%s", poNumber, poLine)
}

// IsTerminal returns true if the PO is in a terminal state.
func (p *PurchaseOrder) IsTerminal() bool {
	return p.Status == StatusCompleted || p.Status == StatusFailed
}

// IsOpen returns true if the PO still counts against batch completion.
func (p *PurchaseOrder) IsOpen() bool {
	return p.Status == StatusQueued || p.Status == StatusInProgress
}

// ActionStats aggregates POs by action type.
type ActionStats struct {
	ActionType ActionType `bson:"_id" json:"actionType"`
	Count      int64      `bson:"count" json:"count"`
	ValueCents int64      `bson:"valueCents" json:"valueCents"`
}
