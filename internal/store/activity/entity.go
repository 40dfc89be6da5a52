package activity

import "time"

// Kind classifies an activity entry.
type Kind string

const (
	KindUpload     Kind = "upload"
	KindEscalation Kind = "escalation"
	KindDispatch   Kind = "dispatch"
	KindReset      Kind = "reset"
	KindSystem     Kind = "system"
)

// Entity types an entry can reference.
const (
	EntityBatch = "BATCH"
	EntityPO    = "PO"
)

// Entry is a system-wide audit record. Entries survive an operator
// reset so escalations and resets stay traceable.
// Collection: activity_log
type Entry struct {
	ID      string `bson:"_id" json:"id"`
	Kind    Kind   `bson:"kind" json:"kind"`
	Message string `bson:"message" json:"message"`

	// EntityType/EntityID anchor the entry to a batch or PO; Action is
	// the machine-readable verb. UserID is empty for engine-initiated
	// actions.
	EntityType string         `bson:"entityType,omitempty" json:"entityType,omitempty"`
	EntityID   string         `bson:"entityId,omitempty" json:"entityId,omitempty"`
	Action     string         `bson:"action,omitempty" json:"action,omitempty"`
	UserID     string         `bson:"userId,omitempty" json:"userId,omitempty"`
	Details    map[string]any `bson:"details,omitempty" json:"details,omitempty"`

	BatchID   string    `bson:"batchId,omitempty" json:"batchId,omitempty"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}
