package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.povoice.tech/internal/store/activity"
	"go.povoice.tech/internal/store/agentrun"
	"go.povoice.tech/internal/store/batch"
	"go.povoice.tech/internal/store/batchlog"
	"go.povoice.tech/internal/store/conflict"
	"go.povoice.tech/internal/store/purchaseorder"
)

// fakeBatchRepo is an in-memory batch.Repository.
type fakeBatchRepo struct {
	mu   sync.Mutex
	byID map[string]*batch.Batch
}

func newFakeBatchRepo() *fakeBatchRepo {
	return &fakeBatchRepo{byID: make(map[string]*batch.Batch)}
}

func (r *fakeBatchRepo) put(b *batch.Batch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *b
	r.byID[b.ID] = &clone
}

func (r *fakeBatchRepo) FindByID(ctx context.Context, id string) (*batch.Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.byID[id]; ok {
		clone := *b
		return &clone, nil
	}
	return nil, batch.ErrNotFound
}

func (r *fakeBatchRepo) FindByExternalID(ctx context.Context, externalID string) (*batch.Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.byID {
		if b.ExternalID == externalID {
			clone := *b
			return &clone, nil
		}
	}
	return nil, batch.ErrNotFound
}

func (r *fakeBatchRepo) FindBySupplier(ctx context.Context, supplierID string, limit int64) ([]*batch.Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*batch.Batch
	for _, b := range r.byID {
		if b.SupplierID == supplierID {
			clone := *b
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *fakeBatchRepo) Insert(ctx context.Context, b *batch.Batch) error {
	r.put(b)
	return nil
}

func (r *fakeBatchRepo) List(ctx context.Context, filter batch.ListFilter) ([]*batch.Batch, int64, error) {
	return nil, 0, nil
}

func (r *fakeBatchRepo) UpdateStatusIf(ctx context.Context, id string, expected, next batch.Status, set map[string]any) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.byID[id]
	if !ok || b.Status != expected {
		return false, nil
	}
	b.Status = next
	b.UpdatedAt = time.Now()
	for k, v := range set {
		switch k {
		case "lastOutcome":
			b.LastOutcome = v.(string)
		case "completedAt":
			at := v.(time.Time)
			b.CompletedAt = &at
		case "scheduledFor":
			at := v.(time.Time)
			b.ScheduledFor = &at
		}
	}
	return true, nil
}

func (r *fakeBatchRepo) IncrementAttempts(ctx context.Context, id string, delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.byID[id]; ok {
		b.AttemptCount += delta
	}
	return nil
}

func (r *fakeBatchRepo) SetDispatched(ctx context.Context, id, externalID, externalURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.byID[id]; ok {
		b.ExternalID = externalID
		b.ExternalURL = externalURL
	}
	return nil
}

func (r *fakeBatchRepo) SetScheduledFor(ctx context.Context, id string, at *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.byID[id]; ok {
		b.ScheduledFor = at
	}
	return nil
}

func (r *fakeBatchRepo) StatsByStatus(ctx context.Context) ([]batch.StatusStats, error) {
	return nil, nil
}

func (r *fakeBatchRepo) RollupBySupplier(ctx context.Context, supplierIDs []string) ([]batch.SupplierRollup, error) {
	return nil, nil
}

func (r *fakeBatchRepo) DeleteAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID = make(map[string]*batch.Batch)
	return nil
}

// fakePORepo is an in-memory purchaseorder.Repository keyed by ID. Its
// Complete mirrors the production due-date roll for EXPEDITE and
// PUSH_OUT actions. failStatusByBatch makes the next UpdateStatusByBatch
// call fail once.
type fakePORepo struct {
	mu                sync.Mutex
	byID              map[string]*purchaseorder.PurchaseOrder
	failStatusByBatch error
}

func newFakePORepo() *fakePORepo {
	return &fakePORepo{byID: make(map[string]*purchaseorder.PurchaseOrder)}
}

func (r *fakePORepo) put(po *purchaseorder.PurchaseOrder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *po
	r.byID[po.ID] = &clone
}

func (r *fakePORepo) FindByID(ctx context.Context, id string) (*purchaseorder.PurchaseOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if po, ok := r.byID[id]; ok {
		clone := *po
		return &clone, nil
	}
	return nil, purchaseorder.ErrNotFound
}

func (r *fakePORepo) FindByExternalID(ctx context.Context, externalID string) (*purchaseorder.PurchaseOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, po := range r.byID {
		if po.ExternalID == externalID {
			clone := *po
			return &clone, nil
		}
	}
	return nil, purchaseorder.ErrNotFound
}

func (r *fakePORepo) FindByBatch(ctx context.Context, batchID string) ([]*purchaseorder.PurchaseOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*purchaseorder.PurchaseOrder
	for _, po := range r.byID {
		if po.BatchID == batchID {
			clone := *po
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *fakePORepo) FindBySupplier(ctx context.Context, supplierID string, limit int64) ([]*purchaseorder.PurchaseOrder, error) {
	return nil, nil
}

func (r *fakePORepo) Insert(ctx context.Context, po *purchaseorder.PurchaseOrder) error {
	r.put(po)
	return nil
}

func (r *fakePORepo) UpdateFromReupload(ctx context.Context, po *purchaseorder.PurchaseOrder) error {
	return nil
}

func (r *fakePORepo) LinkToBatch(ctx context.Context, batchID string, externalIDs []string) (int64, error) {
	return 0, nil
}

func (r *fakePORepo) UpdateStatusByBatch(ctx context.Context, batchID string, from []purchaseorder.Status, to purchaseorder.Status) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.failStatusByBatch; err != nil {
		r.failStatusByBatch = nil
		return 0, err
	}

	var n int64
	for _, po := range r.byID {
		if po.BatchID != batchID {
			continue
		}
		for _, f := range from {
			if po.Status == f {
				po.Status = to
				n++
				break
			}
		}
	}
	return n, nil
}

func (r *fakePORepo) Complete(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	po, ok := r.byID[id]
	if !ok {
		return false, purchaseorder.ErrNotFound
	}
	if !po.IsOpen() {
		return false, nil
	}
	if po.ActionType == purchaseorder.ActionExpedite || po.ActionType == purchaseorder.ActionPushOut {
		due := po.DueDate
		po.OriginalDueDate = &due
		if po.RecommendedDate != nil {
			po.DueDate = *po.RecommendedDate
		}
	}
	po.Status = purchaseorder.StatusCompleted
	return true, nil
}

func (r *fakePORepo) Fail(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	po, ok := r.byID[id]
	if !ok {
		return false, purchaseorder.ErrNotFound
	}
	if !po.IsOpen() {
		return false, nil
	}
	po.Status = purchaseorder.StatusFailed
	return true, nil
}

func (r *fakePORepo) CountOpenByBatch(ctx context.Context, batchID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, po := range r.byID {
		if po.BatchID == batchID && po.IsOpen() {
			n++
		}
	}
	return n, nil
}

func (r *fakePORepo) StatsByActionType(ctx context.Context) ([]purchaseorder.ActionStats, error) {
	return nil, nil
}

func (r *fakePORepo) CountBySupplier(ctx context.Context, supplierID string) (int64, error) {
	return 0, nil
}

func (r *fakePORepo) DeleteAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID = make(map[string]*purchaseorder.PurchaseOrder)
	return nil
}

// fakeRunRepo is an in-memory agentrun.Repository.
type fakeRunRepo struct {
	mu   sync.Mutex
	runs []*agentrun.AgentRun
}

func newFakeRunRepo() *fakeRunRepo {
	return &fakeRunRepo{}
}

func (r *fakeRunRepo) FindByExternalID(ctx context.Context, externalID string) (*agentrun.AgentRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, run := range r.runs {
		if run.ExternalID == externalID {
			clone := *run
			return &clone, nil
		}
	}
	return nil, agentrun.ErrNotFound
}

func (r *fakeRunRepo) FindByBatch(ctx context.Context, batchID string) ([]*agentrun.AgentRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*agentrun.AgentRun
	for _, run := range r.runs {
		if run.BatchID == batchID {
			clone := *run
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *fakeRunRepo) Insert(ctx context.Context, run *agentrun.AgentRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *run
	clone.ID = fmt.Sprintf("ar-%d", len(r.runs)+1)
	clone.CreatedAt = time.Now()
	r.runs = append(r.runs, &clone)
	return nil
}

func (r *fakeRunRepo) End(ctx context.Context, externalID, outcome string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, run := range r.runs {
		if run.ExternalID != externalID {
			continue
		}
		if run.Status == agentrun.StatusEnded {
			return false, nil
		}
		now := time.Now()
		run.Status = agentrun.StatusEnded
		run.Outcome = outcome
		run.EndedAt = &now
		return true, nil
	}
	return false, agentrun.ErrNotFound
}

func (r *fakeRunRepo) DeleteAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = nil
	return nil
}

// fakeLogRepo is an in-memory batchlog.Repository.
type fakeLogRepo struct {
	mu      sync.Mutex
	entries []*batchlog.Entry
}

func newFakeLogRepo() *fakeLogRepo {
	return &fakeLogRepo{}
}

func (r *fakeLogRepo) Insert(ctx context.Context, e *batchlog.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *e
	clone.ID = fmt.Sprintf("log-%d", len(r.entries)+1)
	clone.CreatedAt = time.Now()
	if clone.Type == "" {
		clone.Type = batchlog.TypeLog
	}
	r.entries = append(r.entries, &clone)
	return nil
}

func (r *fakeLogRepo) FindByBatch(ctx context.Context, batchID string) ([]*batchlog.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*batchlog.Entry
	for _, e := range r.entries {
		if e.BatchID == batchID {
			clone := *e
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *fakeLogRepo) DeleteAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
	return nil
}

// fakeConflictRepo is an in-memory conflict.Repository.
type fakeConflictRepo struct {
	mu      sync.Mutex
	entries []*conflict.Conflict
}

func newFakeConflictRepo() *fakeConflictRepo {
	return &fakeConflictRepo{}
}

func (r *fakeConflictRepo) all() []*conflict.Conflict {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*conflict.Conflict, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *fakeConflictRepo) Insert(ctx context.Context, c *conflict.Conflict) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *c
	clone.ID = fmt.Sprintf("conflict-%d", len(r.entries)+1)
	clone.CreatedAt = time.Now()
	r.entries = append(r.entries, &clone)
	return nil
}

func (r *fakeConflictRepo) ListRecent(ctx context.Context, limit int64) ([]*conflict.Conflict, error) {
	return r.all(), nil
}

func (r *fakeConflictRepo) CountAll(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.entries)), nil
}

func (r *fakeConflictRepo) DeleteAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
	return nil
}

// fakeActivityRepo is an in-memory activity.Repository.
type fakeActivityRepo struct {
	mu      sync.Mutex
	entries []*activity.Entry
}

func newFakeActivityRepo() *fakeActivityRepo {
	return &fakeActivityRepo{}
}

func (r *fakeActivityRepo) Insert(ctx context.Context, e *activity.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *e
	clone.ID = fmt.Sprintf("activity-%d", len(r.entries)+1)
	clone.CreatedAt = time.Now()
	r.entries = append(r.entries, &clone)
	return nil
}

func (r *fakeActivityRepo) ListRecent(ctx context.Context, limit int64) ([]*activity.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*activity.Entry, len(r.entries))
	copy(out, r.entries)
	return out, nil
}
