package conflict

import "time"

// Type classifies what diverged.
type Type string

const (
	TypeDateChanged  Type = "date_changed"
	TypeValueChanged Type = "value_changed"
	TypeActiveCall   Type = "active_call"
	TypeEscalation   Type = "escalation"
)

// How the conflicting row was handled.
const (
	ResolutionApplied    = "applied"
	ResolutionNotApplied = "not_applied"
	ResolutionPending    = "pending"
)

// Conflict records a PO whose incoming data diverged from stored
// state, or an agent escalation needing operator review. Details holds
// the stored-vs-incoming field values.
// Collection: conflicts
type Conflict struct {
	ID              string         `bson:"_id" json:"id"`
	PurchaseOrderID string         `bson:"purchaseOrderId,omitempty" json:"purchaseOrderId,omitempty"`
	POExternalID    string         `bson:"poExternalId" json:"poExternalId"`
	PONumber        string         `bson:"poNumber" json:"poNumber"`
	POLine          string         `bson:"poLine" json:"poLine"`
	BatchID         string         `bson:"batchId,omitempty" json:"batchId,omitempty"`
	ConflictType    Type           `bson:"conflictType" json:"conflictType"`
	Reason          string         `bson:"reason" json:"reason"`
	Details         map[string]any `bson:"conflictDetails,omitempty" json:"conflictDetails,omitempty"`
	Resolution      string         `bson:"resolution,omitempty" json:"resolution,omitempty"`
	CreatedAt       time.Time      `bson:"createdAt" json:"createdAt"`
}
