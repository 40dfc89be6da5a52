package batch

import (
	"context"
	"errors"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"go.povoice.tech/internal/common/tsid"
)

var ErrNotFound = errors.New("batch not found")

// mongoRepository provides MongoDB access to batch data
type mongoRepository struct {
	batches *mongo.Collection
}

// NewRepository creates a new batch repository with instrumentation
func NewRepository(db *mongo.Database) Repository {
	return newInstrumentedRepository(&mongoRepository{
		batches: db.Collection("batches"),
	})
}

// FindByID finds a batch by ID
func (r *mongoRepository) FindByID(ctx context.Context, id string) (*Batch, error) {
	var b Batch
	err := r.batches.FindOne(ctx, bson.M{"_id": id}).Decode(&b)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

// FindByExternalID finds the batch owning an agent provider run
func (r *mongoRepository) FindByExternalID(ctx context.Context, externalID string) (*Batch, error) {
	var b Batch
	err := r.batches.FindOne(ctx, bson.M{"externalId": externalID}).Decode(&b)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

// FindBySupplier returns batches for a supplier, newest first
func (r *mongoRepository) FindBySupplier(ctx context.Context, supplierID string, limit int64) ([]*Batch, error) {
	opts := options.Find().
		SetLimit(limit).
		SetSort(bson.D{{Key: "createdAt", Value: -1}})

	cursor, err := r.batches.Find(ctx, bson.M{"supplierId": supplierID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var batches []*Batch
	if err := cursor.All(ctx, &batches); err != nil {
		return nil, err
	}
	return batches, nil
}

// Insert creates a new batch
func (r *mongoRepository) Insert(ctx context.Context, b *Batch) error {
	if b.ID == "" {
		b.ID = tsid.Generate()
	}
	now := time.Now()
	b.CreatedAt = now
	b.UpdatedAt = now

	if b.Status == "" {
		b.Status = StatusQueued
	}

	_, err := r.batches.InsertOne(ctx, b)
	return err
}

// sortFields maps API sort keys to document fields
var sortFields = map[string]string{
	"totalValue":   "totalValueCents",
	"supplierName": "supplierName",
	"createdAt":    "createdAt",
	"priority":     "priority",
}

// List returns a filtered, sorted page of batches and the total count
func (r *mongoRepository) List(ctx context.Context, filter ListFilter) ([]*Batch, int64, error) {
	query := bson.M{}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.ActionType != "" {
		query["actionTypes"] = filter.ActionType
	}
	if filter.Search != "" {
		escaped := regexp.QuoteMeta(filter.Search)
		query["$or"] = []bson.M{
			{"supplierName": primitive.Regex{Pattern: escaped, Options: "i"}},
			{"supplierNumber": primitive.Regex{Pattern: escaped, Options: "i"}},
		}
	}

	total, err := r.batches.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, err
	}

	field, ok := sortFields[filter.SortBy]
	if !ok {
		field = "createdAt"
	}
	dir := 1
	if filter.Descending {
		dir = -1
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size < 1 {
		size = 20
	}

	opts := options.Find().
		SetSort(bson.D{{Key: field, Value: dir}, {Key: "_id", Value: 1}}).
		SetSkip(int64(page-1) * int64(size)).
		SetLimit(int64(size))

	cursor, err := r.batches.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var batches []*Batch
	if err := cursor.All(ctx, &batches); err != nil {
		return nil, 0, err
	}
	return batches, total, nil
}

// UpdateStatusIf transitions the batch from expected to next, applying
// extra fields atomically with the status check.
func (r *mongoRepository) UpdateStatusIf(ctx context.Context, id string, expected, next Status, set map[string]any) (bool, error) {
	fields := bson.M{
		"status":    next,
		"updatedAt": time.Now(),
	}
	for k, v := range set {
		fields[k] = v
	}

	result, err := r.batches.UpdateOne(ctx,
		bson.M{"_id": id, "status": expected},
		bson.M{"$set": fields},
	)
	if err != nil {
		return false, err
	}
	return result.ModifiedCount > 0, nil
}

// IncrementAttempts adds delta to attemptCount
func (r *mongoRepository) IncrementAttempts(ctx context.Context, id string, delta int) error {
	_, err := r.batches.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{
			"$inc": bson.M{"attemptCount": delta},
			"$set": bson.M{"updatedAt": time.Now()},
		},
	)
	return err
}

// SetDispatched records the provider run identity on the batch
func (r *mongoRepository) SetDispatched(ctx context.Context, id, externalID, externalURL string) error {
	_, err := r.batches.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"externalId":  externalID,
			"externalUrl": externalURL,
			"updatedAt":   time.Now(),
		}},
	)
	return err
}

// SetScheduledFor records the next callback time
func (r *mongoRepository) SetScheduledFor(ctx context.Context, id string, at *time.Time) error {
	update := bson.M{"$set": bson.M{"updatedAt": time.Now()}}
	if at != nil {
		update["$set"].(bson.M)["scheduledFor"] = *at
	} else {
		update["$unset"] = bson.M{"scheduledFor": ""}
	}

	_, err := r.batches.UpdateOne(ctx, bson.M{"_id": id}, update)
	return err
}

// StatsByStatus aggregates count and value grouped by status
func (r *mongoRepository) StatsByStatus(ctx context.Context) ([]StatusStats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":        "$status",
			"count":      bson.M{"$sum": 1},
			"valueCents": bson.M{"$sum": "$totalValueCents"},
		}}},
	}

	cursor, err := r.batches.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var stats []StatusStats
	if err := cursor.All(ctx, &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// RollupBySupplier aggregates batch count and value per supplier
func (r *mongoRepository) RollupBySupplier(ctx context.Context, supplierIDs []string) ([]SupplierRollup, error) {
	match := bson.M{}
	if len(supplierIDs) > 0 {
		match["supplierId"] = bson.M{"$in": supplierIDs}
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.M{
			"_id":        "$supplierId",
			"batchCount": bson.M{"$sum": 1},
			"valueCents": bson.M{"$sum": "$totalValueCents"},
		}}},
	}

	cursor, err := r.batches.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rollups []SupplierRollup
	if err := cursor.All(ctx, &rollups); err != nil {
		return nil, err
	}
	return rollups, nil
}

// DeleteAll removes every batch (operator reset)
func (r *mongoRepository) DeleteAll(ctx context.Context) error {
	_, err := r.batches.DeleteMany(ctx, bson.M{})
	return err
}
