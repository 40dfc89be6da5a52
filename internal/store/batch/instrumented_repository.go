package batch

import (
	"context"
	"time"

	"go.povoice.tech/internal/common/repository"
)

const collectionName = "batches"

// instrumentedRepository wraps a Repository with metrics and logging
type instrumentedRepository struct {
	inner Repository
}

// newInstrumentedRepository creates an instrumented wrapper around a Repository
func newInstrumentedRepository(inner Repository) Repository {
	return &instrumentedRepository{inner: inner}
}

func (r *instrumentedRepository) FindByID(ctx context.Context, id string) (*Batch, error) {
	return repository.Instrument(ctx, collectionName, "FindByID", func() (*Batch, error) {
		return r.inner.FindByID(ctx, id)
	})
}

func (r *instrumentedRepository) FindByExternalID(ctx context.Context, externalID string) (*Batch, error) {
	return repository.Instrument(ctx, collectionName, "FindByExternalID", func() (*Batch, error) {
		return r.inner.FindByExternalID(ctx, externalID)
	})
}

func (r *instrumentedRepository) FindBySupplier(ctx context.Context, supplierID string, limit int64) ([]*Batch, error) {
	return repository.Instrument(ctx, collectionName, "FindBySupplier", func() ([]*Batch, error) {
		return r.inner.FindBySupplier(ctx, supplierID, limit)
	})
}

func (r *instrumentedRepository) Insert(ctx context.Context, b *Batch) error {
	_, err := repository.Instrument(ctx, collectionName, "Insert", func() (struct{}, error) {
		return struct{}{}, r.inner.Insert(ctx, b)
	})
	return err
}

func (r *instrumentedRepository) List(ctx context.Context, filter ListFilter) ([]*Batch, int64, error) {
	type page struct {
		batches []*Batch
		total   int64
	}
	p, err := repository.Instrument(ctx, collectionName, "List", func() (page, error) {
		batches, total, err := r.inner.List(ctx, filter)
		return page{batches, total}, err
	})
	return p.batches, p.total, err
}

func (r *instrumentedRepository) UpdateStatusIf(ctx context.Context, id string, expected, next Status, set map[string]any) (bool, error) {
	return repository.Instrument(ctx, collectionName, "UpdateStatusIf", func() (bool, error) {
		return r.inner.UpdateStatusIf(ctx, id, expected, next, set)
	})
}

func (r *instrumentedRepository) IncrementAttempts(ctx context.Context, id string, delta int) error {
	_, err := repository.Instrument(ctx, collectionName, "IncrementAttempts", func() (struct{}, error) {
		return struct{}{}, r.inner.IncrementAttempts(ctx, id, delta)
	})
	return err
}

func (r *instrumentedRepository) SetDispatched(ctx context.Context, id, externalID, externalURL string) error {
	_, err := repository.Instrument(ctx, collectionName, "SetDispatched", func() (struct{}, error) {
		return struct{}{}, r.inner.SetDispatched(ctx, id, externalID, externalURL)
	})
	return err
}

func (r *instrumentedRepository) SetScheduledFor(ctx context.Context, id string, at *time.Time) error {
	_, err := repository.Instrument(ctx, collectionName, "SetScheduledFor", func() (struct{}, error) {
		return struct{}{}, r.inner.SetScheduledFor(ctx, id, at)
	})
	return err
}

func (r *instrumentedRepository) StatsByStatus(ctx context.Context) ([]StatusStats, error) {
	return repository.Instrument(ctx, collectionName, "StatsByStatus", func() ([]StatusStats, error) {
		return r.inner.StatsByStatus(ctx)
	})
}

func (r *instrumentedRepository) RollupBySupplier(ctx context.Context, supplierIDs []string) ([]SupplierRollup, error) {
	return repository.Instrument(ctx, collectionName, "RollupBySupplier", func() ([]SupplierRollup, error) {
		return r.inner.RollupBySupplier(ctx, supplierIDs)
	})
}

func (r *instrumentedRepository) DeleteAll(ctx context.Context) error {
	_, err := repository.Instrument(ctx, collectionName, "DeleteAll", func() (struct{}, error) {
		return struct{}{}, r.inner.DeleteAll(ctx)
	})
	return err
}
