package batch

import (
	"context"
	"time"
)

// Repository provides access to batch data
type Repository interface {
	// FindByID finds a batch by ID
	FindByID(ctx context.Context, id string) (*Batch, error)

	// FindByExternalID finds the batch owning an agent provider run
	FindByExternalID(ctx context.Context, externalID string) (*Batch, error)

	// FindBySupplier returns batches for a supplier, newest first
	FindBySupplier(ctx context.Context, supplierID string, limit int64) ([]*Batch, error)

	// Insert creates a new batch
	Insert(ctx context.Context, b *Batch) error

	// List returns a filtered, sorted page of batches and the total count
	List(ctx context.Context, filter ListFilter) ([]*Batch, int64, error)

	// UpdateStatusIf transitions the batch from expected to next and
	// applies extra $set fields. Returns false when the batch was not in
	// the expected status (optimistic concurrency).
	UpdateStatusIf(ctx context.Context, id string, expected, next Status, set map[string]any) (bool, error)

	// IncrementAttempts adds delta to attemptCount (may be negative)
	IncrementAttempts(ctx context.Context, id string, delta int) error

	// SetDispatched records the provider run identity on the batch
	SetDispatched(ctx context.Context, id, externalID, externalURL string) error

	// SetScheduledFor records the next callback time
	SetScheduledFor(ctx context.Context, id string, at *time.Time) error

	// StatsByStatus aggregates count and value grouped by status
	StatsByStatus(ctx context.Context) ([]StatusStats, error)

	// RollupBySupplier aggregates batch count and value per supplier
	RollupBySupplier(ctx context.Context, supplierIDs []string) ([]SupplierRollup, error)

	// DeleteAll removes every batch (operator reset)
	DeleteAll(ctx context.Context) error
}
