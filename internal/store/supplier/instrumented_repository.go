package supplier

import (
	"context"

	"go.povoice.tech/internal/common/repository"
)

const collectionName = "suppliers"

// instrumentedRepository wraps a Repository with metrics and logging
type instrumentedRepository struct {
	inner Repository
}

// newInstrumentedRepository creates an instrumented wrapper around a Repository
func newInstrumentedRepository(inner Repository) Repository {
	return &instrumentedRepository{inner: inner}
}

func (r *instrumentedRepository) FindByID(ctx context.Context, id string) (*Supplier, error) {
	return repository.Instrument(ctx, collectionName, "FindByID", func() (*Supplier, error) {
		return r.inner.FindByID(ctx, id)
	})
}

func (r *instrumentedRepository) FindByNumber(ctx context.Context, number string) (*Supplier, error) {
	return repository.Instrument(ctx, collectionName, "FindByNumber", func() (*Supplier, error) {
		return r.inner.FindByNumber(ctx, number)
	})
}

func (r *instrumentedRepository) FindByIDs(ctx context.Context, ids []string) ([]*Supplier, error) {
	return repository.Instrument(ctx, collectionName, "FindByIDs", func() ([]*Supplier, error) {
		return r.inner.FindByIDs(ctx, ids)
	})
}

func (r *instrumentedRepository) Upsert(ctx context.Context, s *Supplier) (*Supplier, error) {
	return repository.Instrument(ctx, collectionName, "Upsert", func() (*Supplier, error) {
		return r.inner.Upsert(ctx, s)
	})
}

func (r *instrumentedRepository) List(ctx context.Context, filter ListFilter) ([]*Supplier, int64, error) {
	type page struct {
		suppliers []*Supplier
		total     int64
	}
	p, err := repository.Instrument(ctx, collectionName, "List", func() (page, error) {
		suppliers, total, err := r.inner.List(ctx, filter)
		return page{suppliers, total}, err
	})
	return p.suppliers, p.total, err
}

func (r *instrumentedRepository) DeleteAll(ctx context.Context) error {
	_, err := repository.Instrument(ctx, collectionName, "DeleteAll", func() (struct{}, error) {
		return struct{}{}, r.inner.DeleteAll(ctx)
	})
	return err
}
