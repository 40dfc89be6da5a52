package agentrun

import (
	"context"

	"go.povoice.tech/internal/common/repository"
)

const collectionName = "agent_runs"

// instrumentedRepository wraps a Repository with metrics and logging
type instrumentedRepository struct {
	inner Repository
}

// newInstrumentedRepository creates an instrumented wrapper around a Repository
func newInstrumentedRepository(inner Repository) Repository {
	return &instrumentedRepository{inner: inner}
}

func (r *instrumentedRepository) FindByExternalID(ctx context.Context, externalID string) (*AgentRun, error) {
	return repository.Instrument(ctx, collectionName, "FindByExternalID", func() (*AgentRun, error) {
		return r.inner.FindByExternalID(ctx, externalID)
	})
}

func (r *instrumentedRepository) FindByBatch(ctx context.Context, batchID string) ([]*AgentRun, error) {
	return repository.Instrument(ctx, collectionName, "FindByBatch", func() ([]*AgentRun, error) {
		return r.inner.FindByBatch(ctx, batchID)
	})
}

func (r *instrumentedRepository) Insert(ctx context.Context, run *AgentRun) error {
	_, err := repository.Instrument(ctx, collectionName, "Insert", func() (struct{}, error) {
		return struct{}{}, r.inner.Insert(ctx, run)
	})
	return err
}

func (r *instrumentedRepository) End(ctx context.Context, externalID, outcome string) (bool, error) {
	return repository.Instrument(ctx, collectionName, "End", func() (bool, error) {
		return r.inner.End(ctx, externalID, outcome)
	})
}

func (r *instrumentedRepository) DeleteAll(ctx context.Context) error {
	_, err := repository.Instrument(ctx, collectionName, "DeleteAll", func() (struct{}, error) {
		return struct{}{}, r.inner.DeleteAll(ctx)
	})
	return err
}
