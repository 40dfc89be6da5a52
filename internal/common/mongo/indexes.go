package mongo

import (
	"context"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// IndexDefinition defines a MongoDB index
type IndexDefinition struct {
	Collection string
	Keys       bson.D
	Options    *options.IndexOptions
}

// IndexInitializer creates indexes on startup
type IndexInitializer struct {
	client *Client
}

// NewIndexInitializer creates a new index initializer
func NewIndexInitializer(client *Client) *IndexInitializer {
	return &IndexInitializer{client: client}
}

// Initialize creates all required indexes
func (i *IndexInitializer) Initialize(ctx context.Context) error {
	indexes := i.getIndexDefinitions()

	for _, idx := range indexes {
		if err := i.createIndex(ctx, idx); err != nil {
			slog.Warn("Failed to create index (may already exist)",
				"error", err,
				"collection", idx.Collection)
		}
	}

	slog.Info("Index initialization complete", "count", len(indexes))
	return nil
}

func (i *IndexInitializer) createIndex(ctx context.Context, idx IndexDefinition) error {
	collection := i.client.Collection(idx.Collection)

	indexModel := mongo.IndexModel{
		Keys:    idx.Keys,
		Options: idx.Options,
	}

	_, err := collection.Indexes().CreateOne(ctx, indexModel)
	return err
}

func (i *IndexInitializer) getIndexDefinitions() []IndexDefinition {
	return []IndexDefinition{
		// purchase_orders
		{
			Collection: "purchase_orders",
			Keys:       bson.D{{Key: "externalId", Value: 1}},
			Options:    options.Index().SetUnique(true),
		},
		{
			Collection: "purchase_orders",
			Keys:       bson.D{{Key: "batchId", Value: 1}, {Key: "status", Value: 1}},
		},
		{
			Collection: "purchase_orders",
			Keys:       bson.D{{Key: "supplierId", Value: 1}},
		},
		{
			Collection: "purchase_orders",
			Keys:       bson.D{{Key: "actionType", Value: 1}, {Key: "status", Value: 1}},
		},

		// batches
		{
			Collection: "batches",
			Keys:       bson.D{{Key: "status", Value: 1}},
		},
		{
			Collection: "batches",
			Keys:       bson.D{{Key: "supplierId", Value: 1}, {Key: "createdAt", Value: -1}},
		},
		{
			Collection: "batches",
			Keys:       bson.D{{Key: "externalId", Value: 1}},
			Options:    options.Index().SetSparse(true),
		},
		{
			Collection: "batches",
			Keys:       bson.D{{Key: "supplierName", Value: 1}},
		},
		{
			Collection: "batches",
			Keys:       bson.D{{Key: "totalValueCents", Value: -1}},
		},

		// suppliers
		{
			Collection: "suppliers",
			Keys:       bson.D{{Key: "supplierNumber", Value: 1}},
			Options:    options.Index().SetUnique(true),
		},
		{
			Collection: "suppliers",
			Keys:       bson.D{{Key: "name", Value: 1}},
		},

		// agent_runs
		{
			Collection: "agent_runs",
			Keys:       bson.D{{Key: "externalId", Value: 1}},
		},
		{
			Collection: "agent_runs",
			Keys:       bson.D{{Key: "batchId", Value: 1}, {Key: "startedAt", Value: -1}},
		},

		// batch_logs
		{
			Collection: "batch_logs",
			Keys:       bson.D{{Key: "batchId", Value: 1}, {Key: "createdAt", Value: 1}},
		},
		{
			Collection: "batch_logs",
			Keys:       bson.D{{Key: "createdAt", Value: 1}},
			Options:    options.Index().SetExpireAfterSeconds(int32(30 * 24 * time.Hour / time.Second)),
		},

		// conflicts
		{
			Collection: "conflicts",
			Keys:       bson.D{{Key: "createdAt", Value: -1}},
		},
		{
			Collection: "conflicts",
			Keys:       bson.D{{Key: "poExternalId", Value: 1}},
		},

		// activity_log
		{
			Collection: "activity_log",
			Keys:       bson.D{{Key: "createdAt", Value: -1}},
		},
		{
			Collection: "activity_log",
			Keys:       bson.D{{Key: "kind", Value: 1}, {Key: "createdAt", Value: -1}},
		},
	}
}
