package batchlog

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"go.povoice.tech/internal/common/tsid"
)

// mongoRepository provides MongoDB access to batch log entries
type mongoRepository struct {
	logs *mongo.Collection
}

// NewRepository creates a new batch log repository with instrumentation
func NewRepository(db *mongo.Database) Repository {
	return newInstrumentedRepository(&mongoRepository{
		logs: db.Collection("batch_logs"),
	})
}

// Insert appends a log entry
func (r *mongoRepository) Insert(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = tsid.Generate()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if e.Level == "" {
		e.Level = LevelInfo
	}
	if e.Type == "" {
		e.Type = TypeLog
	}

	_, err := r.logs.InsertOne(ctx, e)
	return err
}

// FindByBatch returns a batch's log entries in chronological order
func (r *mongoRepository) FindByBatch(ctx context.Context, batchID string) ([]*Entry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := r.logs.Find(ctx, bson.M{"batchId": batchID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var entries []*Entry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// DeleteAll removes every log entry (operator reset)
func (r *mongoRepository) DeleteAll(ctx context.Context) error {
	_, err := r.logs.DeleteMany(ctx, bson.M{})
	return err
}
