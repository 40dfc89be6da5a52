package agentrun

import "time"

// Status is the lifecycle state of a single agent call attempt.
type Status string

const (
	StatusStarted Status = "STARTED"
	StatusEnded   Status = "ENDED"
)

// AgentRun records one call attempt handed to the agent provider.
// Collection: agent_runs
type AgentRun struct {
	ID         string `bson:"_id" json:"id"`
	BatchID    string `bson:"batchId" json:"batchId"`
	SupplierID string `bson:"supplierId" json:"supplierId"`

	// ExternalID is the run identifier at the agent provider; webhook
	// events reference it.
	ExternalID  string `bson:"externalId" json:"externalId"`
	ExternalURL string `bson:"externalUrl,omitempty" json:"externalUrl,omitempty"`

	Status  Status `bson:"status" json:"status"`
	Outcome string `bson:"outcome,omitempty" json:"outcome,omitempty"`
	Attempt int    `bson:"attempt" json:"attempt"`

	StartedAt time.Time  `bson:"startedAt" json:"startedAt"`
	EndedAt   *time.Time `bson:"endedAt,omitempty" json:"endedAt,omitempty"`
	CreatedAt time.Time  `bson:"createdAt" json:"createdAt"`
}
