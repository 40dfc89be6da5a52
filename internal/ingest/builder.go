package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"go.povoice.tech/internal/classify"
	"go.povoice.tech/internal/common/metrics"
	"go.povoice.tech/internal/common/tsid"
	"go.povoice.tech/internal/eventbus"
	"go.povoice.tech/internal/queuestore"
	"go.povoice.tech/internal/store/batch"
	"go.povoice.tech/internal/store/conflict"
	"go.povoice.tech/internal/store/purchaseorder"
	"go.povoice.tech/internal/store/supplier"
)

// Transactor runs a function atomically against the durable store
type Transactor interface {
	RunTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// errAbandoned aborts a batch creation transaction when no POs could be
// linked. Not an error for the upload as a whole.
var errAbandoned = errors.New("no purchase orders linked")

// Builder turns classified rows into suppliers, POs, and queued batches.
type Builder struct {
	batches   batch.Repository
	pos       purchaseorder.Repository
	suppliers supplier.Repository
	conflicts conflict.Repository
	queue     *queuestore.Store
	bus       eventbus.Bus
	txn       Transactor

	maxPOsPerBatch int
	chunkSize      int
	maxAttempts    int
}

// NewBuilder creates a batch builder
func NewBuilder(
	batches batch.Repository,
	pos purchaseorder.Repository,
	suppliers supplier.Repository,
	conflicts conflict.Repository,
	queue *queuestore.Store,
	bus eventbus.Bus,
	txn Transactor,
	maxPOsPerBatch, chunkSize, maxAttempts int,
) *Builder {
	if maxPOsPerBatch <= 0 {
		maxPOsPerBatch = 10
	}
	if chunkSize <= 0 {
		chunkSize = 50
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Builder{
		batches:        batches,
		pos:            pos,
		suppliers:      suppliers,
		conflicts:      conflicts,
		queue:          queue,
		bus:            bus,
		txn:            txn,
		maxPOsPerBatch: maxPOsPerBatch,
		chunkSize:      chunkSize,
		maxAttempts:    maxAttempts,
	}
}

// UpsertSuppliers creates or refreshes one supplier per distinct
// supplier number in the rows. Returns suppliers keyed by number.
func (b *Builder) UpsertSuppliers(ctx context.Context, rows []Row) (map[string]*supplier.Supplier, error) {
	byNumber := make(map[string]*supplier.Supplier)
	for _, row := range rows {
		if _, seen := byNumber[row.SupplierNumber]; seen {
			continue
		}
		stored, err := b.suppliers.Upsert(ctx, &supplier.Supplier{
			SupplierNumber: row.SupplierNumber,
			Name:           row.SupplierName,
			ContactName:    row.ContactName,
			Phone:          row.Phone,
			Email:          row.Email,
		})
		if err != nil {
			return nil, fmt.Errorf("upsert supplier %s: %w", row.SupplierNumber, err)
		}
		byNumber[row.SupplierNumber] = stored
	}
	return byNumber, nil
}

// RowResult reports what ApplyRows did with each row.
type RowResult struct {
	Created   int
	Updated   int
	Skipped   int
	Conflicts int

	// BySupplier holds the POs eligible for batching, keyed by supplier ID
	BySupplier map[string][]*purchaseorder.PurchaseOrder
}

// ApplyRows classifies each row and writes it to the durable store.
// New POs are inserted PENDING; known POs are re-classified with the
// batch link cleared so they join a fresh batch. Rows whose recommended
// date matches the due date need no action and are skipped.
//
// A PO whose batch is on a live call is not touched; a conflict record
// is written instead so the row can be re-uploaded after the call.
func (b *Builder) ApplyRows(ctx context.Context, rows []Row, suppliers map[string]*supplier.Supplier, onProgress func(done, total int)) (*RowResult, error) {
	result := &RowResult{
		BySupplier: make(map[string][]*purchaseorder.PurchaseOrder),
	}

	for i, row := range rows {
		sup, ok := suppliers[row.SupplierNumber]
		if !ok {
			metrics.UploadRowsTotal.WithLabelValues("invalid").Inc()
			continue
		}

		classified, actionable := classify.Classify(row.DueDate, row.Recommended)
		if !actionable {
			result.Skipped++
			metrics.UploadRowsTotal.WithLabelValues("skipped").Inc()
			reportProgress(onProgress, i+1, len(rows))
			continue
		}

		po, err := b.applyRow(ctx, row, sup, classified, result)
		if err != nil {
			return nil, err
		}
		if po != nil {
			result.BySupplier[sup.ID] = append(result.BySupplier[sup.ID], po)
			metrics.UploadRowsTotal.WithLabelValues(strings.ToLower(string(classified.ActionType))).Inc()
		}
		reportProgress(onProgress, i+1, len(rows))
	}

	return result, nil
}

func (b *Builder) applyRow(ctx context.Context, row Row, sup *supplier.Supplier, classified classify.Result, result *RowResult) (*purchaseorder.PurchaseOrder, error) {
	externalID := purchaseorder.ExternalIDFor(row.PONumber, row.POLine)

	existing, err := b.pos.FindByExternalID(ctx, externalID)
	if err != nil && !errors.Is(err, purchaseorder.ErrNotFound) {
		return nil, fmt.Errorf("find po %s: %w", externalID, err)
	}

	po := &purchaseorder.PurchaseOrder{
		ExternalID:      externalID,
		PONumber:        row.PONumber,
		POLine:          row.POLine,
		SupplierID:      sup.ID,
		ActionType:      classified.ActionType,
		Status:          purchaseorder.StatusPending,
		DueDate:         row.DueDate,
		RecommendedDate: row.Recommended,
		DaysDiff:        classified.DaysDiff,
		ValueCents:      row.ValueCents,
	}

	if existing == nil {
		if err := b.pos.Insert(ctx, po); err != nil {
			return nil, fmt.Errorf("insert po %s: %w", externalID, err)
		}
		result.Created++
		return po, nil
	}

	if existing.Status == purchaseorder.StatusInProgress {
		err := b.recordConflict(ctx, existing, conflict.TypeActiveCall,
			"purchase order is in an active call, row not applied",
			conflict.ResolutionNotApplied,
			map[string]any{"status": string(existing.Status)})
		if err != nil {
			return nil, err
		}
		result.Conflicts++
		metrics.UploadRowsTotal.WithLabelValues("conflict").Inc()
		return nil, nil
	}

	if typ, details, reason := diffReupload(existing, po); reason != "" {
		if err := b.recordConflict(ctx, existing, typ, reason, conflict.ResolutionApplied, details); err != nil {
			return nil, err
		}
		result.Conflicts++
		metrics.UploadRowsTotal.WithLabelValues("conflict").Inc()
	}

	if err := b.pos.UpdateFromReupload(ctx, po); err != nil {
		return nil, fmt.Errorf("reupload po %s: %w", externalID, err)
	}
	po.ID = existing.ID
	result.Updated++
	return po, nil
}

func (b *Builder) recordConflict(ctx context.Context, po *purchaseorder.PurchaseOrder, typ conflict.Type, reason, resolution string, details map[string]any) error {
	return b.conflicts.Insert(ctx, &conflict.Conflict{
		PurchaseOrderID: po.ID,
		POExternalID:    po.ExternalID,
		PONumber:        po.PONumber,
		POLine:          po.POLine,
		BatchID:         po.BatchID,
		ConflictType:    typ,
		Reason:          reason,
		Details:         details,
		Resolution:      resolution,
	})
}

// diffReupload compares a re-uploaded row against the stored PO.
// Returns reason "" when nothing changed. A value change classifies
// the conflict as value_changed even when dates moved too, since value
// drives queue priority.
func diffReupload(stored, incoming *purchaseorder.PurchaseOrder) (conflict.Type, map[string]any, string) {
	var changes []string
	typ := conflict.TypeDateChanged
	details := map[string]any{}

	if !sameDay(stored.DueDate, incoming.DueDate) {
		changes = append(changes, fmt.Sprintf("dueDate %s -> %s",
			stored.DueDate.Format("2006-01-02"), incoming.DueDate.Format("2006-01-02")))
		details["storedDueDate"] = stored.DueDate.Format("2006-01-02")
		details["incomingDueDate"] = incoming.DueDate.Format("2006-01-02")
	}
	if !sameOptionalDay(stored.RecommendedDate, incoming.RecommendedDate) {
		changes = append(changes, fmt.Sprintf("recommendedDate %s -> %s",
			formatOptionalDay(stored.RecommendedDate), formatOptionalDay(incoming.RecommendedDate)))
		details["storedRecommendedDate"] = formatOptionalDay(stored.RecommendedDate)
		details["incomingRecommendedDate"] = formatOptionalDay(incoming.RecommendedDate)
	}
	if stored.ValueCents != incoming.ValueCents {
		changes = append(changes, fmt.Sprintf("value %d.%02d -> %d.%02d",
			stored.ValueCents/100, stored.ValueCents%100,
			incoming.ValueCents/100, incoming.ValueCents%100))
		details["storedValueCents"] = stored.ValueCents
		details["incomingValueCents"] = incoming.ValueCents
		typ = conflict.TypeValueChanged
	}

	if len(changes) == 0 {
		return "", nil, ""
	}
	return typ, details, "re-upload changed " + strings.Join(changes, ", ")
}

func sameDay(a, b time.Time) bool {
	a, b = a.UTC(), b.UTC()
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

func sameOptionalDay(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return sameDay(*a, *b)
}

func formatOptionalDay(t *time.Time) string {
	if t == nil {
		return "none"
	}
	return t.Format("2006-01-02")
}

// proposal is a batch definition awaiting creation.
type proposal struct {
	supplier    *supplier.Supplier
	externalIDs []string
	valueCents  int64
}

// BuildResult reports what BuildBatches created.
type BuildResult struct {
	Batches   []*batch.Batch
	Abandoned int
}

// BuildBatches groups the POs per supplier into batches of at most
// MaxPOsPerBatch, highest-value POs first, and persists them. Each
// batch is created transactionally with its PO links; a batch whose
// link matched no unassigned POs is abandoned.
//
// Proposals are persisted highest value first, in chunks created
// concurrently, so the most valuable work reaches the store soonest.
func (b *Builder) BuildBatches(ctx context.Context, bySupplier map[string][]*purchaseorder.PurchaseOrder, onProgress func(done, total int)) (*BuildResult, error) {
	var proposals []proposal
	for supplierID, pos := range bySupplier {
		sup, err := b.suppliers.FindByID(ctx, supplierID)
		if err != nil {
			return nil, fmt.Errorf("load supplier %s: %w", supplierID, err)
		}
		proposals = append(proposals, b.propose(sup, pos)...)
	}

	sort.SliceStable(proposals, func(i, j int) bool {
		if proposals[i].valueCents != proposals[j].valueCents {
			return proposals[i].valueCents > proposals[j].valueCents
		}
		return proposals[i].supplier.SupplierNumber < proposals[j].supplier.SupplierNumber
	})

	result := &BuildResult{}
	var mu sync.Mutex
	done := 0

	for start := 0; start < len(proposals); start += b.chunkSize {
		end := start + b.chunkSize
		if end > len(proposals) {
			end = len(proposals)
		}

		var wg sync.WaitGroup
		var firstErr error
		created := make([]*batch.Batch, end-start)

		for i, p := range proposals[start:end] {
			wg.Add(1)
			go func(i int, p proposal) {
				defer wg.Done()
				bt, err := b.createOne(ctx, p)
				if err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					return
				}
				created[i] = bt
			}(i, p)
		}
		wg.Wait()

		if firstErr != nil {
			return result, firstErr
		}
		for _, bt := range created {
			if bt == nil {
				result.Abandoned++
				continue
			}
			result.Batches = append(result.Batches, bt)
		}
		done = end
		reportProgress(onProgress, done, len(proposals))
	}

	return result, nil
}

// propose splits one supplier's POs into batch definitions.
func (b *Builder) propose(sup *supplier.Supplier, pos []*purchaseorder.PurchaseOrder) []proposal {
	sorted := make([]*purchaseorder.PurchaseOrder, len(pos))
	copy(sorted, pos)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ValueCents > sorted[j].ValueCents
	})

	var proposals []proposal
	for start := 0; start < len(sorted); start += b.maxPOsPerBatch {
		end := start + b.maxPOsPerBatch
		if end > len(sorted) {
			end = len(sorted)
		}

		p := proposal{supplier: sup}
		for _, po := range sorted[start:end] {
			p.externalIDs = append(p.externalIDs, po.ExternalID)
			p.valueCents += po.ValueCents
		}
		proposals = append(proposals, p)
	}
	return proposals
}

// createOne creates a batch and links its POs in one transaction. The
// batch totals are computed from the POs actually linked, so a PO
// claimed by a concurrent upload never inflates the batch value.
// Returns nil when no POs could be linked (abandoned).
func (b *Builder) createOne(ctx context.Context, p proposal) (*batch.Batch, error) {
	batchID := tsid.Generate()
	var created *batch.Batch

	err := b.txn.RunTransaction(ctx, func(ctx context.Context) error {
		linked, err := b.pos.LinkToBatch(ctx, batchID, p.externalIDs)
		if err != nil {
			return err
		}
		if linked == 0 {
			return errAbandoned
		}

		members, err := b.pos.FindByBatch(ctx, batchID)
		if err != nil {
			return err
		}

		bt := &batch.Batch{
			ID:             batchID,
			SupplierID:     p.supplier.ID,
			SupplierNumber: p.supplier.SupplierNumber,
			SupplierName:   p.supplier.Name,
			Status:         batch.StatusQueued,
			MaxAttempts:    b.maxAttempts,
		}
		seen := make(map[purchaseorder.ActionType]bool)
		for _, po := range members {
			bt.TotalValueCents += po.ValueCents
			bt.POCount++
			if !seen[po.ActionType] {
				seen[po.ActionType] = true
				bt.ActionTypes = append(bt.ActionTypes, po.ActionType)
			}
		}
		bt.Priority = -bt.TotalValueCents / 100

		if err := b.batches.Insert(ctx, bt); err != nil {
			return err
		}
		created = bt
		return nil
	})

	if errors.Is(err, errAbandoned) {
		slog.Debug("Abandoned batch with no linkable POs",
			"supplierId", p.supplier.ID,
			"poCount", len(p.externalIDs))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create batch for supplier %s: %w", p.supplier.ID, err)
	}
	return created, nil
}

// EnqueueBatches puts created batches on the primary queue and
// announces each on the pipeline stream.
func (b *Builder) EnqueueBatches(ctx context.Context, batches []*batch.Batch, onProgress func(done, total int)) error {
	for i, bt := range batches {
		if err := b.queue.Enqueue(ctx, bt.ID, bt.QueueScore()); err != nil {
			return fmt.Errorf("enqueue batch %s: %w", bt.ID, err)
		}

		if err := b.bus.PublishPipeline(ctx, eventbus.PipelineEvent{
			Type:         eventbus.PipelineBatchQueued,
			BatchID:      bt.ID,
			SupplierID:   bt.SupplierID,
			SupplierName: bt.SupplierName,
			Status:       string(batch.StatusQueued),
		}); err != nil {
			slog.Warn("Failed to publish batch_queued event", "batchId", bt.ID, "error", err)
		}
		reportProgress(onProgress, i+1, len(batches))
	}
	return nil
}

func reportProgress(onProgress func(done, total int), done, total int) {
	if onProgress != nil {
		onProgress(done, total)
	}
}
