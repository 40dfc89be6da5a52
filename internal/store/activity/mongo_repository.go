package activity

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"go.povoice.tech/internal/common/tsid"
)

// mongoRepository provides MongoDB access to the activity log
type mongoRepository struct {
	entries *mongo.Collection
}

// NewRepository creates a new activity log repository with instrumentation
func NewRepository(db *mongo.Database) Repository {
	return newInstrumentedRepository(&mongoRepository{
		entries: db.Collection("activity_log"),
	})
}

// Insert appends an activity entry
func (r *mongoRepository) Insert(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = tsid.Generate()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	_, err := r.entries.InsertOne(ctx, e)
	return err
}

// ListRecent returns the newest entries, most recent first
func (r *mongoRepository) ListRecent(ctx context.Context, limit int64) ([]*Entry, error) {
	if limit < 1 {
		limit = 50
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(limit)

	cursor, err := r.entries.Find(ctx, bson.M{}, opts)
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
