package agentrun

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"go.povoice.tech/internal/common/tsid"
)

var ErrNotFound = errors.New("agent run not found")

// mongoRepository provides MongoDB access to agent run data
type mongoRepository struct {
	runs *mongo.Collection
}

// NewRepository creates a new agent run repository with instrumentation
func NewRepository(db *mongo.Database) Repository {
	return newInstrumentedRepository(&mongoRepository{
		runs: db.Collection("agent_runs"),
	})
}

// FindByExternalID finds a run by the provider run identifier
func (r *mongoRepository) FindByExternalID(ctx context.Context, externalID string) (*AgentRun, error) {
	var run AgentRun
	err := r.runs.FindOne(ctx, bson.M{"externalId": externalID}).Decode(&run)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &run, nil
}

// FindByBatch returns runs for a batch, newest first
func (r *mongoRepository) FindByBatch(ctx context.Context, batchID string) ([]*AgentRun, error) {
	opts := options.Find().SetSort(bson.D{{Key: "startedAt", Value: -1}})

	cursor, err := r.runs.Find(ctx, bson.M{"batchId": batchID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var runs []*AgentRun
	if err := cursor.All(ctx, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

// Insert creates a new run record
func (r *mongoRepository) Insert(ctx context.Context, run *AgentRun) error {
	if run.ID == "" {
		run.ID = tsid.Generate()
	}
	now := time.Now()
	run.CreatedAt = now
	if run.StartedAt.IsZero() {
		run.StartedAt = now
	}
	if run.Status == "" {
		run.Status = StatusStarted
	}

	_, err := r.runs.InsertOne(ctx, run)
	return err
}

// End marks the run ended with the given outcome
func (r *mongoRepository) End(ctx context.Context, externalID, outcome string) (bool, error) {
	now := time.Now()
	result, err := r.runs.UpdateOne(ctx,
		bson.M{"externalId": externalID, "status": StatusStarted},
		bson.M{"$set": bson.M{
			"status":  StatusEnded,
			"outcome": outcome,
			"endedAt": now,
		}},
	)
	if err != nil {
		return false, err
	}
	return result.ModifiedCount > 0, nil
}

// DeleteAll removes every run (operator reset)
func (r *mongoRepository) DeleteAll(ctx context.Context) error {
	_, err := r.runs.DeleteMany(ctx, bson.M{})
	return err
}
