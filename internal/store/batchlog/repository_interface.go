package batchlog

import "context"

// Repository provides access to batch log entries
type Repository interface {
	// Insert appends a log entry
	Insert(ctx context.Context, e *Entry) error

	// FindByBatch returns a batch's log entries in chronological order
	FindByBatch(ctx context.Context, batchID string) ([]*Entry, error)

	// DeleteAll removes every log entry (operator reset)
	DeleteAll(ctx context.Context) error
}
