package api

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"go.povoice.tech/internal/agent"
	"go.povoice.tech/internal/ingest"
	"go.povoice.tech/internal/reconcile"
	"go.povoice.tech/internal/store/activity"
	"go.povoice.tech/internal/store/agentrun"
	"go.povoice.tech/internal/store/batch"
	"go.povoice.tech/internal/store/batchlog"
	"go.povoice.tech/internal/store/conflict"
	"go.povoice.tech/internal/store/purchaseorder"
	"go.povoice.tech/internal/store/supplier"
)

// fakeBatchRepo is an in-memory batch.Repository with enough List and
// aggregation behavior for handler tests.
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

func (r *fakeBatchRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
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
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []*batch.Batch
	for _, b := range r.byID {
		if filter.Status != "" && b.Status != filter.Status {
			continue
		}
		if filter.Search != "" &&
			!strings.Contains(strings.ToLower(b.SupplierName), strings.ToLower(filter.Search)) &&
			!strings.Contains(b.SupplierNumber, filter.Search) {
			continue
		}
		if filter.ActionType != "" {
			found := false
			for _, at := range b.ActionTypes {
				if at == filter.ActionType {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		clone := *b
		matched = append(matched, &clone)
	}

	sort.Slice(matched, func(i, j int) bool {
		var less bool
		switch filter.SortBy {
		case "totalValue":
			less = matched[i].TotalValueCents < matched[j].TotalValueCents
		case "supplierName":
			less = matched[i].SupplierName < matched[j].SupplierName
		case "priority":
			less = matched[i].Priority < matched[j].Priority
		default:
			less = matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		if filter.Descending {
			return !less
		}
		return less
	})

	total := int64(len(matched))
	start := (filter.Page - 1) * filter.PageSize
	if start >= len(matched) {
		return nil, total, nil
	}
	end := start + filter.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (r *fakeBatchRepo) UpdateStatusIf(ctx context.Context, id string, expected, next batch.Status, set map[string]any) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.byID[id]
	if !ok || b.Status != expected {
		return false, nil
	}
	b.Status = next
	for k, v := range set {
		switch k {
		case "attemptCount":
			if n, ok := v.(int); ok {
				b.AttemptCount = n
			}
		case "lastOutcome":
			if s, ok := v.(string); ok {
				b.LastOutcome = s
			}
		case "completedAt":
			if t, ok := v.(time.Time); ok {
				b.CompletedAt = &t
			} else {
				b.CompletedAt = nil
			}
		case "scheduledFor":
			if t, ok := v.(time.Time); ok {
				b.ScheduledFor = &t
			} else {
				b.ScheduledFor = nil
			}
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
	return nil
}

func (r *fakeBatchRepo) SetScheduledFor(ctx context.Context, id string, at *time.Time) error {
	return nil
}

func (r *fakeBatchRepo) StatsByStatus(ctx context.Context) ([]batch.StatusStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	byStatus := map[batch.Status]*batch.StatusStats{}
	for _, b := range r.byID {
		st, ok := byStatus[b.Status]
		if !ok {
			st = &batch.StatusStats{Status: b.Status}
			byStatus[b.Status] = st
		}
		st.Count++
		st.ValueCents += b.TotalValueCents
	}

	var out []batch.StatusStats
	for _, st := range byStatus {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Status < out[j].Status })
	return out, nil
}

func (r *fakeBatchRepo) RollupBySupplier(ctx context.Context, supplierIDs []string) ([]batch.SupplierRollup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	wanted := map[string]bool{}
	for _, id := range supplierIDs {
		wanted[id] = true
	}

	bySupplier := map[string]*batch.SupplierRollup{}
	for _, b := range r.byID {
		if !wanted[b.SupplierID] {
			continue
		}
		roll, ok := bySupplier[b.SupplierID]
		if !ok {
			roll = &batch.SupplierRollup{SupplierID: b.SupplierID}
			bySupplier[b.SupplierID] = roll
		}
		roll.BatchCount++
		roll.ValueCents += b.TotalValueCents
	}

	var out []batch.SupplierRollup
	for _, roll := range bySupplier {
		out = append(out, *roll)
	}
	return out, nil
}

func (r *fakeBatchRepo) DeleteAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID = make(map[string]*batch.Batch)
	return nil
}

// fakePORepo is an in-memory purchaseorder.Repository keyed by ID.
type fakePORepo struct {
	mu   sync.Mutex
	byID map[string]*purchaseorder.PurchaseOrder
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

func (r *fakePORepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
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
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*purchaseorder.PurchaseOrder
	for _, po := range r.byID {
		if po.SupplierID == supplierID {
			clone := *po
			out = append(out, &clone)
		}
	}
	return out, nil
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
	return false, nil
}

func (r *fakePORepo) Fail(ctx context.Context, id string) (bool, error) {
	return false, nil
}

func (r *fakePORepo) CountOpenByBatch(ctx context.Context, batchID string) (int64, error) {
	return 0, nil
}

func (r *fakePORepo) StatsByActionType(ctx context.Context) ([]purchaseorder.ActionStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	byAction := map[purchaseorder.ActionType]*purchaseorder.ActionStats{}
	for _, po := range r.byID {
		st, ok := byAction[po.ActionType]
		if !ok {
			st = &purchaseorder.ActionStats{ActionType: po.ActionType}
			byAction[po.ActionType] = st
		}
		st.Count++
		st.ValueCents += po.ValueCents
	}

	var out []purchaseorder.ActionStats
	for _, st := range byAction {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ActionType < out[j].ActionType })
	return out, nil
}

func (r *fakePORepo) CountBySupplier(ctx context.Context, supplierID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, po := range r.byID {
		if po.SupplierID == supplierID {
			n++
		}
	}
	return n, nil
}

func (r *fakePORepo) DeleteAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID = make(map[string]*purchaseorder.PurchaseOrder)
	return nil
}

// fakeSupplierRepo is an in-memory supplier.Repository keyed by ID.
type fakeSupplierRepo struct {
	mu   sync.Mutex
	byID map[string]*supplier.Supplier
}

func newFakeSupplierRepo() *fakeSupplierRepo {
	return &fakeSupplierRepo{byID: make(map[string]*supplier.Supplier)}
}

func (r *fakeSupplierRepo) put(s *supplier.Supplier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *s
	r.byID[s.ID] = &clone
}

func (r *fakeSupplierRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

func (r *fakeSupplierRepo) FindByID(ctx context.Context, id string) (*supplier.Supplier, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.byID[id]; ok {
		clone := *s
		return &clone, nil
	}
	return nil, supplier.ErrNotFound
}

func (r *fakeSupplierRepo) FindByNumber(ctx context.Context, number string) (*supplier.Supplier, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.byID {
		if s.SupplierNumber == number {
			clone := *s
			return &clone, nil
		}
	}
	return nil, supplier.ErrNotFound
}

func (r *fakeSupplierRepo) FindByIDs(ctx context.Context, ids []string) ([]*supplier.Supplier, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*supplier.Supplier
	for _, id := range ids {
		if s, ok := r.byID[id]; ok {
			clone := *s
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *fakeSupplierRepo) Upsert(ctx context.Context, s *supplier.Supplier) (*supplier.Supplier, error) {
	r.put(s)
	return s, nil
}

func (r *fakeSupplierRepo) List(ctx context.Context, filter supplier.ListFilter) ([]*supplier.Supplier, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []*supplier.Supplier
	for _, s := range r.byID {
		if filter.Search != "" &&
			!strings.Contains(strings.ToLower(s.Name), strings.ToLower(filter.Search)) &&
			!strings.Contains(s.SupplierNumber, filter.Search) {
			continue
		}
		clone := *s
		matched = append(matched, &clone)
	}
	sort.Slice(matched, func(i, j int) bool {
		var less bool
		switch filter.SortBy {
		case "supplierNumber":
			less = matched[i].SupplierNumber < matched[j].SupplierNumber
		case "createdAt":
			less = matched[i].CreatedAt.Before(matched[j].CreatedAt)
		default:
			less = matched[i].Name < matched[j].Name
		}
		if filter.Descending {
			return !less
		}
		return less
	})

	total := int64(len(matched))
	start := (filter.Page - 1) * filter.PageSize
	if start >= len(matched) {
		return nil, total, nil
	}
	end := start + filter.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (r *fakeSupplierRepo) DeleteAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID = make(map[string]*supplier.Supplier)
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
	r.runs = append(r.runs, &clone)
	return nil
}

func (r *fakeRunRepo) End(ctx context.Context, externalID, outcome string) (bool, error) {
	return false, nil
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

// fakeActivityRepo is an in-memory activity.Repository.
type fakeActivityRepo struct {
	mu      sync.Mutex
	entries []*activity.Entry
}

func newFakeActivityRepo() *fakeActivityRepo {
	return &fakeActivityRepo{}
}

func (r *fakeActivityRepo) all() []*activity.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*activity.Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *fakeActivityRepo) Insert(ctx context.Context, e *activity.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *e
	clone.ID = fmt.Sprintf("act-%d", len(r.entries)+1)
	r.entries = append(r.entries, &clone)
	return nil
}

func (r *fakeActivityRepo) ListRecent(ctx context.Context, limit int64) ([]*activity.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*activity.Entry
	for i := len(r.entries) - 1; i >= 0 && int64(len(out)) < limit; i-- {
		clone := *r.entries[i]
		out = append(out, &clone)
	}
	return out, nil
}

// fakeConflictRepo is an in-memory conflict.Repository.
type fakeConflictRepo struct {
	mu        sync.Mutex
	conflicts []*conflict.Conflict
}

func newFakeConflictRepo() *fakeConflictRepo {
	return &fakeConflictRepo{}
}

func (r *fakeConflictRepo) Insert(ctx context.Context, c *conflict.Conflict) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *c
	clone.ID = fmt.Sprintf("cf-%d", len(r.conflicts)+1)
	r.conflicts = append(r.conflicts, &clone)
	return nil
}

func (r *fakeConflictRepo) ListRecent(ctx context.Context, limit int64) ([]*conflict.Conflict, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*conflict.Conflict
	for i := len(r.conflicts) - 1; i >= 0 && int64(len(out)) < limit; i-- {
		clone := *r.conflicts[i]
		out = append(out, &clone)
	}
	return out, nil
}

func (r *fakeConflictRepo) CountAll(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.conflicts)), nil
}

func (r *fakeConflictRepo) DeleteAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conflicts = nil
	return nil
}

// fakeUploads is a scripted UploadService.
type fakeUploads struct {
	mu      sync.Mutex
	jobs    map[string]ingest.Job
	started int
	err     error
}

func newFakeUploads() *fakeUploads {
	return &fakeUploads{jobs: make(map[string]ingest.Job)}
}

func (u *fakeUploads) Start(ctx context.Context, r io.Reader) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.err != nil {
		return "", u.err
	}
	u.started++
	id := fmt.Sprintf("job-%d", u.started)
	u.jobs[id] = ingest.Job{ID: id, Status: ingest.JobProcessing, Stage: ingest.StageParsing}
	return id, nil
}

func (u *fakeUploads) Job(id string) (ingest.Job, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	job, ok := u.jobs[id]
	return job, ok
}

// fakeTrigger is a scripted CallTrigger.
type fakeTrigger struct {
	mu      sync.Mutex
	result  agent.CallResult
	err     error
	batchID string
	phone   string
	email   string
}

func (t *fakeTrigger) TriggerManual(ctx context.Context, batchID, phoneOverride, emailOverride string) (agent.CallResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.batchID = batchID
	t.phone = phoneOverride
	t.email = emailOverride
	if t.err != nil {
		return agent.CallResult{}, t.err
	}
	return t.result, nil
}

// fakeWebhooks records handled events.
type fakeWebhooks struct {
	mu     sync.Mutex
	events []reconcile.Event
	err    error
}

func (h *fakeWebhooks) Handle(ctx context.Context, ev reconcile.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.err != nil {
		return h.err
	}
	h.events = append(h.events, ev)
	return nil
}

func (h *fakeWebhooks) handled() []reconcile.Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]reconcile.Event, len(h.events))
	copy(out, h.events)
	return out
}
