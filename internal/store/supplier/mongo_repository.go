package supplier

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

var ErrNotFound = errors.New("supplier not found")

// mongoRepository provides MongoDB access to supplier data
type mongoRepository struct {
	suppliers *mongo.Collection
}

// NewRepository creates a new supplier repository with instrumentation
func NewRepository(db *mongo.Database) Repository {
	return newInstrumentedRepository(&mongoRepository{
		suppliers: db.Collection("suppliers"),
	})
}

// FindByID finds a supplier by ID
func (r *mongoRepository) FindByID(ctx context.Context, id string) (*Supplier, error) {
	var s Supplier
	err := r.suppliers.FindOne(ctx, bson.M{"_id": id}).Decode(&s)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// FindByNumber finds a supplier by its supplier number
func (r *mongoRepository) FindByNumber(ctx context.Context, number string) (*Supplier, error) {
	var s Supplier
	err := r.suppliers.FindOne(ctx, bson.M{"supplierNumber": number}).Decode(&s)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// FindByIDs returns the suppliers with the given IDs
func (r *mongoRepository) FindByIDs(ctx context.Context, ids []string) ([]*Supplier, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	cursor, err := r.suppliers.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var suppliers []*Supplier
	if err := cursor.All(ctx, &suppliers); err != nil {
		return nil, err
	}
	return suppliers, nil
}

// Upsert inserts or updates a supplier keyed by supplier number
func (r *mongoRepository) Upsert(ctx context.Context, s *Supplier) (*Supplier, error) {
	now := time.Now()

	update := bson.M{
		"$set": bson.M{
			"name":        s.Name,
			"contactName": s.ContactName,
			"phone":       s.Phone,
			"email":       s.Email,
			"updatedAt":   now,
		},
		"$setOnInsert": bson.M{
			"_id":            tsid.Generate(),
			"supplierNumber": s.SupplierNumber,
			"createdAt":      now,
		},
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var stored Supplier
	err := r.suppliers.FindOneAndUpdate(ctx,
		bson.M{"supplierNumber": s.SupplierNumber},
		update, opts,
	).Decode(&stored)
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// List returns a filtered page of suppliers and the total count
func (r *mongoRepository) List(ctx context.Context, filter ListFilter) ([]*Supplier, int64, error) {
	query := bson.M{}
	if filter.Search != "" {
		escaped := regexp.QuoteMeta(filter.Search)
		query["$or"] = []bson.M{
			{"name": primitive.Regex{Pattern: escaped, Options: "i"}},
			{"supplierNumber": primitive.Regex{Pattern: escaped, Options: "i"}},
		}
	}

	total, err := r.suppliers.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, err
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size < 1 {
		size = 20
	}

	sortField := "name"
	switch filter.SortBy {
	case "supplierNumber":
		sortField = "supplierNumber"
	case "createdAt":
		sortField = "createdAt"
	}
	direction := 1
	if filter.Descending {
		direction = -1
	}

	opts := options.Find().
		SetSort(bson.D{{Key: sortField, Value: direction}, {Key: "_id", Value: 1}}).
		SetSkip(int64(page-1) * int64(size)).
		SetLimit(int64(size))

	cursor, err := r.suppliers.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var suppliers []*Supplier
	if err := cursor.All(ctx, &suppliers); err != nil {
		return nil, 0, err
	}
	return suppliers, total, nil
}

// DeleteAll removes every supplier (operator reset)
func (r *mongoRepository) DeleteAll(ctx context.Context) error {
	_, err := r.suppliers.DeleteMany(ctx, bson.M{})
	return err
}
