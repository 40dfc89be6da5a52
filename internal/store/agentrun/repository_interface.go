package agentrun

import "context"

// Repository provides access to agent run data
type Repository interface {
	// FindByExternalID finds a run by the provider run identifier
	FindByExternalID(ctx context.Context, externalID string) (*AgentRun, error)

	// FindByBatch returns runs for a batch, newest first
	FindByBatch(ctx context.Context, batchID string) ([]*AgentRun, error)

	// Insert creates a new run record
	Insert(ctx context.Context, run *AgentRun) error

	// End marks the run ended with the given outcome. Returns false when
	// the run was already ended (duplicate webhook delivery).
	End(ctx context.Context, externalID, outcome string) (bool, error)

	// DeleteAll removes every run (operator reset)
	DeleteAll(ctx context.Context) error
}
