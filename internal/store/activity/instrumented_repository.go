package activity

import (
	"context"

	"go.povoice.tech/internal/common/repository"
)

const collectionName = "activity_log"

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

func (r *instrumentedRepository) ListRecent(ctx context.Context, limit int64) ([]*Entry, error) {
	return repository.Instrument(ctx, collectionName, "ListRecent", func() ([]*Entry, error) {
		return r.inner.ListRecent(ctx, limit)
	})
}
