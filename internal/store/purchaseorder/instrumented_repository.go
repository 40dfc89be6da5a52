package purchaseorder

import (
	"context"

	"go.povoice.tech/internal/common/repository"
)

const collectionName = "purchase_orders"

// instrumentedRepository wraps a Repository with metrics and logging
type instrumentedRepository struct {
	inner Repository
}

// newInstrumentedRepository creates an instrumented wrapper around a Repository
func newInstrumentedRepository(inner Repository) Repository {
	return &instrumentedRepository{inner: inner}
}

func (r *instrumentedRepository) FindByID(ctx context.Context, id string) (*PurchaseOrder, error) {
	return repository.Instrument(ctx, collectionName, "FindByID", func() (*PurchaseOrder, error) {
		return r.inner.FindByID(ctx, id)
	})
}

func (r *instrumentedRepository) FindByExternalID(ctx context.Context, externalID string) (*PurchaseOrder, error) {
	return repository.Instrument(ctx, collectionName, "FindByExternalID", func() (*PurchaseOrder, error) {
		return r.inner.FindByExternalID(ctx, externalID)
	})
}

func (r *instrumentedRepository) FindByBatch(ctx context.Context, batchID string) ([]*PurchaseOrder, error) {
	return repository.Instrument(ctx, collectionName, "FindByBatch", func() ([]*PurchaseOrder, error) {
		return r.inner.FindByBatch(ctx, batchID)
	})
}

func (r *instrumentedRepository) FindBySupplier(ctx context.Context, supplierID string, limit int64) ([]*PurchaseOrder, error) {
	return repository.Instrument(ctx, collectionName, "FindBySupplier", func() ([]*PurchaseOrder, error) {
		return r.inner.FindBySupplier(ctx, supplierID, limit)
	})
}

func (r *instrumentedRepository) Insert(ctx context.Context, po *PurchaseOrder) error {
	_, err := repository.Instrument(ctx, collectionName, "Insert", func() (struct{}, error) {
		return struct{}{}, r.inner.Insert(ctx, po)
	})
	return err
}

func (r *instrumentedRepository) UpdateFromReupload(ctx context.Context, po *PurchaseOrder) error {
	_, err := repository.Instrument(ctx, collectionName, "UpdateFromReupload", func() (struct{}, error) {
		return struct{}{}, r.inner.UpdateFromReupload(ctx, po)
	})
	return err
}

func (r *instrumentedRepository) LinkToBatch(ctx context.Context, batchID string, externalIDs []string) (int64, error) {
	return repository.Instrument(ctx, collectionName, "LinkToBatch", func() (int64, error) {
		return r.inner.LinkToBatch(ctx, batchID, externalIDs)
	})
}

func (r *instrumentedRepository) UpdateStatusByBatch(ctx context.Context, batchID string, from []Status, to Status) (int64, error) {
	return repository.Instrument(ctx, collectionName, "UpdateStatusByBatch", func() (int64, error) {
		return r.inner.UpdateStatusByBatch(ctx, batchID, from, to)
	})
}

func (r *instrumentedRepository) Complete(ctx context.Context, id string) (bool, error) {
	return repository.Instrument(ctx, collectionName, "Complete", func() (bool, error) {
		return r.inner.Complete(ctx, id)
	})
}

func (r *instrumentedRepository) Fail(ctx context.Context, id string) (bool, error) {
	return repository.Instrument(ctx, collectionName, "Fail", func() (bool, error) {
		return r.inner.Fail(ctx, id)
	})
}

func (r *instrumentedRepository) CountOpenByBatch(ctx context.Context, batchID string) (int64, error) {
	return repository.Instrument(ctx, collectionName, "CountOpenByBatch", func() (int64, error) {
		return r.inner.CountOpenByBatch(ctx, batchID)
	})
}

func (r *instrumentedRepository) StatsByActionType(ctx context.Context) ([]ActionStats, error) {
	return repository.Instrument(ctx, collectionName, "StatsByActionType", func() ([]ActionStats, error) {
		return r.inner.StatsByActionType(ctx)
	})
}

func (r *instrumentedRepository) CountBySupplier(ctx context.Context, supplierID string) (int64, error) {
	return repository.Instrument(ctx, collectionName, "CountBySupplier", func() (int64, error) {
		return r.inner.CountBySupplier(ctx, supplierID)
	})
}

func (r *instrumentedRepository) DeleteAll(ctx context.Context) error {
	_, err := repository.Instrument(ctx, collectionName, "DeleteAll", func() (struct{}, error) {
		return struct{}{}, r.inner.DeleteAll(ctx)
	})
	return err
}
