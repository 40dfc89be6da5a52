package ingest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.povoice.tech/internal/store/activity"
	"go.povoice.tech/internal/store/batch"
	"go.povoice.tech/internal/store/conflict"
	"go.povoice.tech/internal/store/purchaseorder"
	"go.povoice.tech/internal/store/supplier"
)

// fakeTxn runs the callback directly; the fakes are already atomic
// under their own locks.
type fakeTxn struct{}

func (fakeTxn) RunTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// fakePORepo is an in-memory purchaseorder.Repository.
type fakePORepo struct {
	mu         sync.Mutex
	byExternal map[string]*purchaseorder.PurchaseOrder
	seq        int
}

func newFakePORepo() *fakePORepo {
	return &fakePORepo{byExternal: make(map[string]*purchaseorder.PurchaseOrder)}
}

func (r *fakePORepo) get(externalID string) *purchaseorder.PurchaseOrder {
	r.mu.Lock()
	defer r.mu.Unlock()
	if po, ok := r.byExternal[externalID]; ok {
		clone := *po
		return &clone
	}
	return nil
}

func (r *fakePORepo) FindByID(ctx context.Context, id string) (*purchaseorder.PurchaseOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, po := range r.byExternal {
		if po.ID == id {
			clone := *po
			return &clone, nil
		}
	}
	return nil, purchaseorder.ErrNotFound
}

func (r *fakePORepo) FindByExternalID(ctx context.Context, externalID string) (*purchaseorder.PurchaseOrder, error) {
	if po := r.get(externalID); po != nil {
		return po, nil
	}
	return nil, purchaseorder.ErrNotFound
}

func (r *fakePORepo) FindByBatch(ctx context.Context, batchID string) ([]*purchaseorder.PurchaseOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var pos []*purchaseorder.PurchaseOrder
	for _, po := range r.byExternal {
		if po.BatchID == batchID {
			clone := *po
			pos = append(pos, &clone)
		}
	}
	sort.Slice(pos, func(i, j int) bool { return pos[i].ValueCents > pos[j].ValueCents })
	return pos, nil
}

func (r *fakePORepo) FindBySupplier(ctx context.Context, supplierID string, limit int64) ([]*purchaseorder.PurchaseOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var pos []*purchaseorder.PurchaseOrder
	for _, po := range r.byExternal {
		if po.SupplierID == supplierID {
			clone := *po
			pos = append(pos, &clone)
		}
	}
	return pos, nil
}

func (r *fakePORepo) Insert(ctx context.Context, po *purchaseorder.PurchaseOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byExternal[po.ExternalID]; exists {
		return purchaseorder.ErrDuplicate
	}
	r.seq++
	if po.ID == "" {
		po.ID = fmt.Sprintf("po-%d", r.seq)
	}
	if po.Status == "" {
		po.Status = purchaseorder.StatusPending
	}
	po.CreatedAt = time.Now()
	po.UpdatedAt = po.CreatedAt

	clone := *po
	r.byExternal[po.ExternalID] = &clone
	return nil
}

func (r *fakePORepo) UpdateFromReupload(ctx context.Context, po *purchaseorder.PurchaseOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byExternal[po.ExternalID]
	if !ok {
		return purchaseorder.ErrNotFound
	}
	stored.ActionType = po.ActionType
	stored.DueDate = po.DueDate
	stored.RecommendedDate = po.RecommendedDate
	stored.DaysDiff = po.DaysDiff
	stored.ValueCents = po.ValueCents
	stored.Status = purchaseorder.StatusPending
	stored.BatchID = ""
	stored.OriginalDueDate = nil
	stored.UpdatedAt = time.Now()
	return nil
}

func (r *fakePORepo) LinkToBatch(ctx context.Context, batchID string, externalIDs []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var linked int64
	for _, id := range externalIDs {
		po, ok := r.byExternal[id]
		if !ok || po.BatchID != "" {
			continue
		}
		po.BatchID = batchID
		po.Status = purchaseorder.StatusQueued
		linked++
	}
	return linked, nil
}

func (r *fakePORepo) UpdateStatusByBatch(ctx context.Context, batchID string, from []purchaseorder.Status, to purchaseorder.Status) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, po := range r.byExternal {
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

	for _, po := range r.byExternal {
		if po.ID != id {
			continue
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
	return false, purchaseorder.ErrNotFound
}

func (r *fakePORepo) Fail(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, po := range r.byExternal {
		if po.ID != id {
			continue
		}
		if !po.IsOpen() {
			return false, nil
		}
		po.Status = purchaseorder.StatusFailed
		return true, nil
	}
	return false, purchaseorder.ErrNotFound
}

func (r *fakePORepo) CountOpenByBatch(ctx context.Context, batchID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, po := range r.byExternal {
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
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, po := range r.byExternal {
		if po.SupplierID == supplierID {
			n++
		}
	}
	return n, nil
}

func (r *fakePORepo) DeleteAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byExternal = make(map[string]*purchaseorder.PurchaseOrder)
	return nil
}

// fakeBatchRepo is an in-memory batch.Repository.
type fakeBatchRepo struct {
	mu      sync.Mutex
	byID    map[string]*batch.Batch
	ordered []string
	seq     int
}

func newFakeBatchRepo() *fakeBatchRepo {
	return &fakeBatchRepo{byID: make(map[string]*batch.Batch)}
}

func (r *fakeBatchRepo) all() []*batch.Batch {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*batch.Batch, 0, len(r.ordered))
	for _, id := range r.ordered {
		clone := *r.byID[id]
		out = append(out, &clone)
	}
	return out
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
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	if b.ID == "" {
		b.ID = fmt.Sprintf("batch-%d", r.seq)
	}
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt

	clone := *b
	r.byID[b.ID] = &clone
	r.ordered = append(r.ordered, b.ID)
	return nil
}

func (r *fakeBatchRepo) List(ctx context.Context, filter batch.ListFilter) ([]*batch.Batch, int64, error) {
	all := r.all()
	return all, int64(len(all)), nil
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
	r.ordered = nil
	return nil
}

// fakeSupplierRepo is an in-memory supplier.Repository.
type fakeSupplierRepo struct {
	mu        sync.Mutex
	byNumber  map[string]*supplier.Supplier
	seq       int
	upsertErr error
}

func newFakeSupplierRepo() *fakeSupplierRepo {
	return &fakeSupplierRepo{byNumber: make(map[string]*supplier.Supplier)}
}

func (r *fakeSupplierRepo) FindByID(ctx context.Context, id string) (*supplier.Supplier, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.byNumber {
		if s.ID == id {
			clone := *s
			return &clone, nil
		}
	}
	return nil, supplier.ErrNotFound
}

func (r *fakeSupplierRepo) FindByNumber(ctx context.Context, number string) (*supplier.Supplier, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.byNumber[number]; ok {
		clone := *s
		return &clone, nil
	}
	return nil, supplier.ErrNotFound
}

func (r *fakeSupplierRepo) FindByIDs(ctx context.Context, ids []string) ([]*supplier.Supplier, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*supplier.Supplier
	for _, s := range r.byNumber {
		for _, id := range ids {
			if s.ID == id {
				clone := *s
				out = append(out, &clone)
				break
			}
		}
	}
	return out, nil
}

func (r *fakeSupplierRepo) Upsert(ctx context.Context, s *supplier.Supplier) (*supplier.Supplier, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.upsertErr != nil {
		return nil, r.upsertErr
	}

	if existing, ok := r.byNumber[s.SupplierNumber]; ok {
		existing.Name = s.Name
		existing.ContactName = s.ContactName
		existing.Phone = s.Phone
		existing.Email = s.Email
		existing.UpdatedAt = time.Now()
		clone := *existing
		return &clone, nil
	}

	r.seq++
	stored := *s
	stored.ID = fmt.Sprintf("sup-%d", r.seq)
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	r.byNumber[s.SupplierNumber] = &stored

	clone := stored
	return &clone, nil
}

func (r *fakeSupplierRepo) List(ctx context.Context, filter supplier.ListFilter) ([]*supplier.Supplier, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*supplier.Supplier
	for _, s := range r.byNumber {
		clone := *s
		out = append(out, &clone)
	}
	return out, int64(len(out)), nil
}

func (r *fakeSupplierRepo) DeleteAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byNumber = make(map[string]*supplier.Supplier)
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
