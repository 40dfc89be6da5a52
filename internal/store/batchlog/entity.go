package batchlog

import "time"

// Type classifies what an entry records: a free-form log line, a
// per-PO transition, or a batch status transition.
type Type string

const (
	TypeLog          Type = "log"
	TypePOUpdate     Type = "po_update"
	TypeStatusChange Type = "status_change"
)

// Level classifies a log line.
type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelSuccess Level = "success"
)

// Entry is one line of a batch's call transcript or processing log.
// Data carries the structured payload of po_update and status_change
// entries so the batch history is replayable from the log alone.
// Collection: batch_logs
type Entry struct {
	ID        string         `bson:"_id" json:"id"`
	BatchID   string         `bson:"batchId" json:"batchId"`
	Type      Type           `bson:"type" json:"type"`
	Level     Level          `bson:"level" json:"level"`
	Message   string         `bson:"message" json:"message"`
	Source    string         `bson:"source,omitempty" json:"source,omitempty"`
	Data      map[string]any `bson:"data,omitempty" json:"data,omitempty"`
	CreatedAt time.Time      `bson:"createdAt" json:"createdAt"`
}
