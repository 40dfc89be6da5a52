package conflict

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"go.povoice.tech/internal/common/tsid"
)

// mongoRepository provides MongoDB access to upload conflict records
type mongoRepository struct {
	conflicts *mongo.Collection
}

// NewRepository creates a new conflict repository with instrumentation
func NewRepository(db *mongo.Database) Repository {
	return newInstrumentedRepository(&mongoRepository{
		conflicts: db.Collection("conflicts"),
	})
}

// Insert records a conflict
func (r *mongoRepository) Insert(ctx context.Context, c *Conflict) error {
	if c.ID == "" {
		c.ID = tsid.Generate()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	_, err := r.conflicts.InsertOne(ctx, c)
	return err
}

// ListRecent returns the newest conflicts, most recent first
func (r *mongoRepository) ListRecent(ctx context.Context, limit int64) ([]*Conflict, error) {
	if limit < 1 {
		limit = 50
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(limit)

	cursor, err := r.conflicts.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var conflicts []*Conflict
	if err := cursor.All(ctx, &conflicts); err != nil {
		return nil, err
	}
	return conflicts, nil
}

// CountAll returns the total number of conflicts
func (r *mongoRepository) CountAll(ctx context.Context) (int64, error) {
	return r.conflicts.CountDocuments(ctx, bson.M{})
}

// DeleteAll removes every conflict (operator reset)
func (r *mongoRepository) DeleteAll(ctx context.Context) error {
	_, err := r.conflicts.DeleteMany(ctx, bson.M{})
	return err
}
