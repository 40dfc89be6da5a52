package conflict

import (
	"context"

	"go.povoice.tech/internal/common/repository"
)

const collectionName = "conflicts"

// instrumentedRepository wraps a Repository with metrics and logging
type instrumentedRepository struct {
	inner Repository
}

// newInstrumentedRepository creates an instrumented wrapper around a Repository
func newInstrumentedRepository(inner Repository) Repository {
	return &instrumentedRepository{inner: inner}
}

func (r *instrumentedRepository) Insert(ctx context.Context, c *Conflict) error {
	_, err := repository.Instrument(ctx, collectionName, "Insert", func() (struct{}, error) {
		return struct{}{}, r.inner.Insert(ctx, c)
	})
	return err
}

func (r *instrumentedRepository) ListRecent(ctx context.Context, limit int64) ([]*Conflict, error) {
	return repository.Instrument(ctx, collectionName, "ListRecent", func() ([]*Conflict, error) {
		return r.inner.ListRecent(ctx, limit)
	})
}

func (r *instrumentedRepository) CountAll(ctx context.Context) (int64, error) {
	return repository.Instrument(ctx, collectionName, "CountAll", func() (int64, error) {
		return r.inner.CountAll(ctx)
	})
}

func (r *instrumentedRepository) DeleteAll(ctx context.Context) error {
	_, err := repository.Instrument(ctx, collectionName, "DeleteAll", func() (struct{}, error) {
		return struct{}{}, r.inner.DeleteAll(ctx)
	})
	return err
}
