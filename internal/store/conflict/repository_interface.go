package conflict

import "context"

// Repository provides access to upload conflict records
type Repository interface {
	// Insert records a conflict
	Insert(ctx context.Context, c *Conflict) error

	// ListRecent returns the newest conflicts, most recent first
	ListRecent(ctx context.Context, limit int64) ([]*Conflict, error)

	// CountAll returns the total number of conflicts
	CountAll(ctx context.Context) (int64, error)

	// DeleteAll removes every conflict (operator reset)
	DeleteAll(ctx context.Context) error
}
