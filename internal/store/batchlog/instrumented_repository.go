package batchlog

import (
	"context"

	"go.povoice.tech/internal/common/repository"
)

const collectionName = "batch_logs"

// instrumentedRepository wraps a Repository with metrics and logging
type instrumentedRepository struct {
	inner Repository
}

// newInstrumentedRepository creates an instrumented wrapper around a Repository
func newInstrumentedRepository(inner Repository) Repository {
	return &instrumentedRepository{inner: inner}
}

func (r *instrumentedRepository) Insert(ctx context.Context, e *Entry) error {
	_, err := repository.Instrument(ctx, collectionName, "Insert", func() (struct{}, error) {
		return struct{}{}, r.inner.Insert(ctx, e)
	})
	return err
}

func (r *instrumentedRepository) FindByBatch(ctx context.Context, batchID string) ([]*Entry, error) {
	return repository.Instrument(ctx, collectionName, "FindByBatch", func() ([]*Entry, error) {
		return r.inner.FindByBatch(ctx, batchID)
	})
}

func (r *instrumentedRepository) DeleteAll(ctx context.Context) error {
	_, err := repository.Instrument(ctx, collectionName, "DeleteAll", func() (struct{}, error) {
		return struct{}{}, r.inner.DeleteAll(ctx)
	})
	return err
}
