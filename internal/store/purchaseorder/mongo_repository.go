package purchaseorder

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"go.povoice.tech/internal/common/tsid"
)

var (
	ErrNotFound  = errors.New("purchase order not found")
	ErrDuplicate = errors.New("duplicate purchase order")
)

// mongoRepository provides MongoDB access to purchase order data
type mongoRepository struct {
	pos *mongo.Collection
}

// NewRepository creates a new purchase order repository with instrumentation
func NewRepository(db *mongo.Database) Repository {
	return newInstrumentedRepository(&mongoRepository{
		pos: db.Collection("purchase_orders"),
	})
}

// FindByID finds a PO by ID
func (r *mongoRepository) FindByID(ctx context.Context, id string) (*PurchaseOrder, error) {
	var po PurchaseOrder
	err := r.pos.FindOne(ctx, bson.M{"_id": id}).Decode(&po)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &po, nil
}

// FindByExternalID finds a PO by its reload-stable external ID
func (r *mongoRepository) FindByExternalID(ctx context.Context, externalID string) (*PurchaseOrder, error) {
	var po PurchaseOrder
	err := r.pos.FindOne(ctx, bson.M{"externalId": externalID}).Decode(&po)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &po, nil
}

// FindByBatch returns all POs linked to a batch
func (r *mongoRepository) FindByBatch(ctx context.Context, batchID string) ([]*PurchaseOrder, error) {
	opts := options.Find().SetSort(bson.D{{Key: "valueCents", Value: -1}})

	cursor, err := r.pos.Find(ctx, bson.M{"batchId": batchID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var pos []*PurchaseOrder
	if err := cursor.All(ctx, &pos); err != nil {
		return nil, err
	}
	return pos, nil
}

// FindBySupplier returns POs for a supplier, newest first
func (r *mongoRepository) FindBySupplier(ctx context.Context, supplierID string, limit int64) ([]*PurchaseOrder, error) {
	opts := options.Find().
		SetLimit(limit).
		SetSort(bson.D{{Key: "createdAt", Value: -1}})

	cursor, err := r.pos.Find(ctx, bson.M{"supplierId": supplierID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var pos []*PurchaseOrder
	if err := cursor.All(ctx, &pos); err != nil {
		return nil, err
	}
	return pos, nil
}

// Insert creates a new PO
func (r *mongoRepository) Insert(ctx context.Context, po *PurchaseOrder) error {
	if po.ID == "" {
		po.ID = tsid.Generate()
	}
	now := time.Now()
	po.CreatedAt = now
	po.UpdatedAt = now

	if po.Status == "" {
		po.Status = StatusPending
	}

	_, err := r.pos.InsertOne(ctx, po)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return err
}

// UpdateFromReupload overwrites classification fields, clears the batch
// link and resets status so the PO joins a new batch.
func (r *mongoRepository) UpdateFromReupload(ctx context.Context, po *PurchaseOrder) error {
	update := bson.M{
		"$set": bson.M{
			"actionType":      po.ActionType,
			"dueDate":         po.DueDate,
			"recommendedDate": po.RecommendedDate,
			"daysDiff":        po.DaysDiff,
			"valueCents":      po.ValueCents,
			"status":          StatusPending,
			"updatedAt":       time.Now(),
		},
		"$unset": bson.M{
			"batchId":         "",
			"originalDueDate": "",
		},
	}

	result, err := r.pos.UpdateOne(ctx, bson.M{"externalId": po.ExternalID}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// LinkToBatch links unassigned POs to a batch and marks them QUEUED
func (r *mongoRepository) LinkToBatch(ctx context.Context, batchID string, externalIDs []string) (int64, error) {
	filter := bson.M{
		"externalId": bson.M{"$in": externalIDs},
		"$or": []bson.M{
			{"batchId": bson.M{"$exists": false}},
			{"batchId": ""},
		},
	}
	update := bson.M{
		"$set": bson.M{
			"batchId":   batchID,
			"status":    StatusQueued,
			"updatedAt": time.Now(),
		},
	}

	result, err := r.pos.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, err
	}
	return result.ModifiedCount, nil
}

// UpdateStatusByBatch transitions every PO of the batch whose status is in
// from to the to status.
func (r *mongoRepository) UpdateStatusByBatch(ctx context.Context, batchID string, from []Status, to Status) (int64, error) {
	filter := bson.M{
		"batchId": batchID,
		"status":  bson.M{"$in": from},
	}
	update := bson.M{
		"$set": bson.M{
			"status":    to,
			"updatedAt": time.Now(),
		},
	}

	result, err := r.pos.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, err
	}
	return result.ModifiedCount, nil
}

// Complete marks a PO COMPLETED if it is still open. Uses an aggregation
// pipeline update so the due-date roll reads the stored recommendedDate
// atomically with the status check.
func (r *mongoRepository) Complete(ctx context.Context, id string) (bool, error) {
	filter := bson.M{
		"_id":    id,
		"status": bson.M{"$in": []Status{StatusQueued, StatusInProgress}},
	}

	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"status":    StatusCompleted,
			"updatedAt": "$$NOW",
			"originalDueDate": bson.M{"$cond": bson.A{
				bson.M{"$in": bson.A{"$actionType", bson.A{ActionExpedite, ActionPushOut}}},
				"$dueDate",
				"$originalDueDate",
			}},
			"dueDate": bson.M{"$cond": bson.A{
				bson.M{"$and": bson.A{
					bson.M{"$in": bson.A{"$actionType", bson.A{ActionExpedite, ActionPushOut}}},
					bson.M{"$ne": bson.A{"$recommendedDate", nil}},
				}},
				"$recommendedDate",
				"$dueDate",
			}},
		}}},
	}

	result, err := r.pos.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, err
	}
	return result.ModifiedCount > 0, nil
}

// Fail marks a PO FAILED if it is still open
func (r *mongoRepository) Fail(ctx context.Context, id string) (bool, error) {
	filter := bson.M{
		"_id":    id,
		"status": bson.M{"$in": []Status{StatusQueued, StatusInProgress}},
	}
	update := bson.M{
		"$set": bson.M{
			"status":    StatusFailed,
			"updatedAt": time.Now(),
		},
	}

	result, err := r.pos.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, err
	}
	return result.ModifiedCount > 0, nil
}

// CountOpenByBatch counts POs of the batch still QUEUED or IN_PROGRESS
func (r *mongoRepository) CountOpenByBatch(ctx context.Context, batchID string) (int64, error) {
	return r.pos.CountDocuments(ctx, bson.M{
		"batchId": batchID,
		"status":  bson.M{"$in": []Status{StatusQueued, StatusInProgress}},
	})
}

// StatsByActionType aggregates count and value grouped by action type
func (r *mongoRepository) StatsByActionType(ctx context.Context) ([]ActionStats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":        "$actionType",
			"count":      bson.M{"$sum": 1},
			"valueCents": bson.M{"$sum": "$valueCents"},
		}}},
	}

	cursor, err := r.pos.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var stats []ActionStats
	if err := cursor.All(ctx, &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// CountBySupplier counts POs belonging to a supplier
func (r *mongoRepository) CountBySupplier(ctx context.Context, supplierID string) (int64, error) {
	return r.pos.CountDocuments(ctx, bson.M{"supplierId": supplierID})
}

// DeleteAll removes every PO (operator reset)
func (r *mongoRepository) DeleteAll(ctx context.Context) error {
	_, err := r.pos.DeleteMany(ctx, bson.M{})
	return err
}
