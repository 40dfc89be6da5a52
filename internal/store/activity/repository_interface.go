package activity

import "context"

// Repository provides access to the activity log
type Repository interface {
	// Insert appends an activity entry
	Insert(ctx context.Context, e *Entry) error

	// ListRecent returns the newest entries, most recent first
	ListRecent(ctx context.Context, limit int64) ([]*Entry, error)
}
