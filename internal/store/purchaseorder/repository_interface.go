package purchaseorder

import (
	"context"
)

// Repository provides access to purchase order data
type Repository interface {
	// FindByID finds a PO by ID
	FindByID(ctx context.Context, id string) (*PurchaseOrder, error)

	// FindByExternalID finds a PO by its reload-stable external ID
	FindByExternalID(ctx context.Context, externalID string) (*PurchaseOrder, error)

	// FindByBatch returns all POs linked to a batch
	FindByBatch(ctx context.Context, batchID string) ([]*PurchaseOrder, error)

	// FindBySupplier returns POs for a supplier, newest first
	FindBySupplier(ctx context.Context, supplierID string, limit int64) ([]*PurchaseOrder, error)

	// Insert creates a new PO
	Insert(ctx context.Context, po *PurchaseOrder) error

	// UpdateFromReupload overwrites classification fields, clears the
	// batch link and resets status to PENDING so the PO joins a new batch
	UpdateFromReupload(ctx context.Context, po *PurchaseOrder) error

	// LinkToBatch links unassigned POs (batchId empty) with the given
	// external IDs to a batch and marks them QUEUED. Returns the number
	// of POs actually linked.
	LinkToBatch(ctx context.Context, batchID string, externalIDs []string) (int64, error)

	// UpdateStatusByBatch transitions every PO of the batch whose status
	// is in from to the to status. Returns the number transitioned.
	UpdateStatusByBatch(ctx context.Context, batchID string, from []Status, to Status) (int64, error)

	// Complete marks a PO COMPLETED if it is still open. For EXPEDITE and
	// PUSH_OUT actions the recommended date is rolled into the due date,
	// preserving the prior due date. Returns false when the PO was
	// already terminal (idempotent re-delivery).
	Complete(ctx context.Context, id string) (bool, error)

	// Fail marks a PO FAILED if it is still open.
	Fail(ctx context.Context, id string) (bool, error)

	// CountOpenByBatch counts POs of the batch still QUEUED or IN_PROGRESS
	CountOpenByBatch(ctx context.Context, batchID string) (int64, error)

	// StatsByActionType aggregates count and value grouped by action type
	StatsByActionType(ctx context.Context) ([]ActionStats, error)

	// CountBySupplier counts POs belonging to a supplier
	CountBySupplier(ctx context.Context, supplierID string) (int64, error)

	// DeleteAll removes every PO (operator reset)
	DeleteAll(ctx context.Context) error
}
