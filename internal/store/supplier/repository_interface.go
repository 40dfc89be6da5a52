package supplier

import "context"

// Repository provides access to supplier data
type Repository interface {
	// FindByID finds a supplier by ID
	FindByID(ctx context.Context, id string) (*Supplier, error)

	// FindByNumber finds a supplier by its supplier number
	FindByNumber(ctx context.Context, number string) (*Supplier, error)

	// FindByIDs returns the suppliers with the given IDs
	FindByIDs(ctx context.Context, ids []string) ([]*Supplier, error)

	// Upsert inserts or updates a supplier keyed by supplier number,
	// returning the stored supplier with its ID populated.
	Upsert(ctx context.Context, s *Supplier) (*Supplier, error)

	// List returns a filtered page of suppliers and the total count
	List(ctx context.Context, filter ListFilter) ([]*Supplier, int64, error)

	// DeleteAll removes every supplier (operator reset)
	DeleteAll(ctx context.Context) error
}
