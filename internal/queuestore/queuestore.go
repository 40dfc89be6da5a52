// Package queuestore implements the Redis-backed batch queues.
//
// Three sorted sets and one plain set drive dispatching:
//
//	<prefix>:queue:primary     ZSET  member=batchID score=priority
//	<prefix>:queue:callbacks   ZSET  member=batchID score=epoch millis
//	<prefix>:queue:processing  ZSET  member=batchID score=acquired millis
//	<prefix>:suppliers:active  SET   supplierIDs with a call in flight
//
// Primary scores are the negated batch value in dollars, so ZPOPMIN
// order is highest value first. Equal scores fall back to Redis's
// lexicographic member order, which keeps ties deterministic.
package queuestore

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"go.povoice.tech/internal/common/metrics"
)

// Store provides atomic access to the batch queues
type Store struct {
	client redis.UniversalClient
	prefix string
}

// Depths reports the number of members in each queue
type Depths struct {
	Primary         int64 `json:"primary"`
	Callbacks       int64 `json:"callbacks"`
	Processing      int64 `json:"processing"`
	ActiveSuppliers int64 `json:"activeSuppliers"`
}

// New creates a queue store using the given Redis client
func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "povoice"
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) primaryKey() string    { return s.prefix + ":queue:primary" }
func (s *Store) callbacksKey() string  { return s.prefix + ":queue:callbacks" }
func (s *Store) processingKey() string { return s.prefix + ":queue:processing" }
func (s *Store) suppliersKey() string  { return s.prefix + ":suppliers:active" }

// Ping checks the Redis connection
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Enqueue puts a batch on the primary queue with the given priority
// score. Re-adding an existing member just updates its score.
func (s *Store) Enqueue(ctx context.Context, batchID string, score float64) error {
	return s.client.ZAdd(ctx, s.primaryKey(), redis.Z{Score: score, Member: batchID}).Err()
}

// EnqueueCallback schedules a batch on the callback queue for the
// given wall-clock time.
func (s *Store) EnqueueCallback(ctx context.Context, batchID string, at time.Time) error {
	return s.client.ZAdd(ctx, s.callbacksKey(), redis.Z{
		Score:  float64(at.UnixMilli()),
		Member: batchID,
	}).Err()
}

// popMinScript atomically moves the lowest-scored member from the
// primary queue into the processing set, stamped with the acquisition
// time. A crash between pop and dispatch therefore leaves a visible
// processing entry instead of losing the batch.
var popMinScript = redis.NewScript(`
	local popped = redis.call("ZRANGE", KEYS[1], 0, 0)
	if #popped == 0 then
		return false
	end
	redis.call("ZREM", KEYS[1], popped[1])
	redis.call("ZADD", KEYS[2], ARGV[1], popped[1])
	return popped[1]
`)

// PopMin removes the highest-priority batch from the primary queue and
// parks it in the processing set. Returns ok=false when the queue is
// empty.
func (s *Store) PopMin(ctx context.Context, now time.Time) (string, bool, error) {
	result, err := popMinScript.Run(ctx, s.client,
		[]string{s.primaryKey(), s.processingKey()},
		now.UnixMilli(),
	).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	batchID, ok := result.(string)
	if !ok {
		return "", false, nil
	}
	return batchID, true, nil
}

// requeueScript atomically moves a batch from the processing set back
// onto the primary queue.
var requeueScript = redis.NewScript(`
	redis.call("ZREM", KEYS[1], ARGV[2])
	redis.call("ZADD", KEYS[2], ARGV[1], ARGV[2])
	return 1
`)

// Requeue puts a popped batch back on the primary queue with the given
// score and clears its processing entry.
func (s *Store) Requeue(ctx context.Context, batchID string, score float64) error {
	return requeueScript.Run(ctx, s.client,
		[]string{s.processingKey(), s.primaryKey()},
		score, batchID,
	).Err()
}

// StartProcessing adds a batch to the processing set directly, for
// calls started outside the pop path (manual trigger). The entry is
// stamped like a popped one so the stale sweep treats both alike.
func (s *Store) StartProcessing(ctx context.Context, batchID string, now time.Time) error {
	return s.client.ZAdd(ctx, s.processingKey(), redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: batchID,
	}).Err()
}

// FinishProcessing clears a batch's processing entry once its call has
// settled or its dispatch attempt was abandoned.
func (s *Store) FinishProcessing(ctx context.Context, batchID string) error {
	return s.client.ZRem(ctx, s.processingKey(), batchID).Err()
}

// ProcessingOlderThan returns batches whose processing entry is older
// than the cutoff. The sweeper inspects these for crashed dispatch
// attempts.
func (s *Store) ProcessingOlderThan(ctx context.Context, cutoff time.Time) ([]string, error) {
	return s.client.ZRangeByScore(ctx, s.processingKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: formatMillis(cutoff),
	}).Result()
}

// ClaimSupplier marks a supplier as having a call in flight. Returns
// false when the supplier is already claimed, enforcing one live call
// per supplier.
func (s *Store) ClaimSupplier(ctx context.Context, supplierID string) (bool, error) {
	added, err := s.client.SAdd(ctx, s.suppliersKey(), supplierID).Result()
	if err != nil {
		return false, err
	}
	return added == 1, nil
}

// ReleaseSupplier clears a supplier's in-flight claim
func (s *Store) ReleaseSupplier(ctx context.Context, supplierID string) error {
	return s.client.SRem(ctx, s.suppliersKey(), supplierID).Err()
}

// IsSupplierActive reports whether a supplier has a call in flight
func (s *Store) IsSupplierActive(ctx context.Context, supplierID string) (bool, error) {
	return s.client.SIsMember(ctx, s.suppliersKey(), supplierID).Result()
}

// DueCallbacks returns batches whose callback time has arrived
func (s *Store) DueCallbacks(ctx context.Context, now time.Time) ([]string, error) {
	return s.client.ZRangeByScore(ctx, s.callbacksKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: formatMillis(now),
	}).Result()
}

// RemoveCallback clears a batch's callback entry
func (s *Store) RemoveCallback(ctx context.Context, batchID string) error {
	return s.client.ZRem(ctx, s.callbacksKey(), batchID).Err()
}

// Remove clears a batch from every queue. Used when a batch is dropped
// because its durable status no longer allows dispatching.
func (s *Store) Remove(ctx context.Context, batchID string) error {
	pipe := s.client.TxPipeline()
	pipe.ZRem(ctx, s.primaryKey(), batchID)
	pipe.ZRem(ctx, s.callbacksKey(), batchID)
	pipe.ZRem(ctx, s.processingKey(), batchID)
	_, err := pipe.Exec(ctx)
	return err
}

// Depths returns the current size of each queue and updates the depth
// gauges.
func (s *Store) Depths(ctx context.Context) (Depths, error) {
	pipe := s.client.Pipeline()
	primary := pipe.ZCard(ctx, s.primaryKey())
	callbacks := pipe.ZCard(ctx, s.callbacksKey())
	processing := pipe.ZCard(ctx, s.processingKey())
	suppliers := pipe.SCard(ctx, s.suppliersKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return Depths{}, err
	}

	d := Depths{
		Primary:         primary.Val(),
		Callbacks:       callbacks.Val(),
		Processing:      processing.Val(),
		ActiveSuppliers: suppliers.Val(),
	}

	metrics.QueueDepth.WithLabelValues("primary").Set(float64(d.Primary))
	metrics.QueueDepth.WithLabelValues("callbacks").Set(float64(d.Callbacks))
	metrics.QueueDepth.WithLabelValues("processing").Set(float64(d.Processing))
	metrics.ActiveSuppliers.Set(float64(d.ActiveSuppliers))

	return d, nil
}

// FlushAll deletes every queue key (operator reset)
func (s *Store) FlushAll(ctx context.Context) error {
	return s.client.Del(ctx,
		s.primaryKey(),
		s.callbacksKey(),
		s.processingKey(),
		s.suppliersKey(),
	).Err()
}

func formatMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
