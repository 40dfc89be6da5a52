package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"go.povoice.tech/internal/common/apperr"
	"go.povoice.tech/internal/eventbus"
	"go.povoice.tech/internal/queuestore"
	"go.povoice.tech/internal/store/agentrun"
	"go.povoice.tech/internal/store/batch"
	"go.povoice.tech/internal/store/batchlog"
	"go.povoice.tech/internal/store/purchaseorder"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	return n
}

func pageParams(r *http.Request) (page, pageSize int) {
	page = queryInt(r, "page", 1)
	pageSize = queryInt(r, "limit", defaultPageSize)
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

var validBatchStatuses = map[batch.Status]bool{
	batch.StatusQueued:     true,
	batch.StatusInProgress: true,
	batch.StatusCompleted:  true,
	batch.StatusFailed:     true,
	batch.StatusPartial:    true,
}

var validActionTypes = map[purchaseorder.ActionType]bool{
	purchaseorder.ActionCancel:   true,
	purchaseorder.ActionExpedite: true,
	purchaseorder.ActionPushOut:  true,
}

// listBatches returns a filtered, sorted page of batches.
// GET /api/batches?status=&actionType=&search=&sortBy=&order=&page=&limit=
func (s *Server) listBatches(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := batch.ListFilter{
		Search: q.Get("search"),
		SortBy: q.Get("sort"),
	}
	if v := q.Get("sortBy"); v != "" {
		filter.SortBy = v
	}

	if raw := q.Get("status"); raw != "" {
		st := batch.Status(raw)
		if !validBatchStatuses[st] {
			WriteError(w, http.StatusBadRequest, apperr.CodeInvalidValue, "unknown batch status: "+raw)
			return
		}
		filter.Status = st
	}

	if raw := q.Get("actionType"); raw != "" {
		at := purchaseorder.ActionType(raw)
		if !validActionTypes[at] {
			WriteError(w, http.StatusBadRequest, apperr.CodeInvalidValue, "unknown action type: "+raw)
			return
		}
		filter.ActionType = at
	}

	switch filter.SortBy {
	case "", "createdAt":
		filter.SortBy = "createdAt"
	case "totalValue", "supplierName", "priority":
	default:
		WriteError(w, http.StatusBadRequest, apperr.CodeInvalidValue, "unknown sort field: "+filter.SortBy)
		return
	}

	// Descending by default so the biggest and newest surface first
	filter.Descending = q.Get("order") != "asc"
	filter.Page, filter.PageSize = pageParams(r)

	batches, total, err := s.deps.Batches.List(r.Context(), filter)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, NewPagedResponse(batches, filter.Page, filter.PageSize, total))
}

// batchDetail is a batch with its POs, logs, and call attempts
type batchDetail struct {
	Batch *batch.Batch                   `json:"batch"`
	POs   []*purchaseorder.PurchaseOrder `json:"pos"`
	Logs  []*batchlog.Entry              `json:"logs"`
	Runs  []*agentrun.AgentRun           `json:"runs"`
}

// getBatch returns one batch with its POs, logs, and runs.
// GET /api/batches/{batchID}
func (s *Server) getBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	batchID := chi.URLParam(r, "batchID")

	bt, err := s.deps.Batches.FindByID(ctx, batchID)
	if err != nil {
		if errors.Is(err, batch.ErrNotFound) {
			WriteError(w, http.StatusNotFound, apperr.CodeBatchNotFound, "batch not found: "+batchID)
			return
		}
		WriteAppError(w, err)
		return
	}

	pos, err := s.deps.POs.FindByBatch(ctx, batchID)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	logs, err := s.deps.Logs.FindByBatch(ctx, batchID)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	runs, err := s.deps.Runs.FindByBatch(ctx, batchID)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	if pos == nil {
		pos = []*purchaseorder.PurchaseOrder{}
	}
	if logs == nil {
		logs = []*batchlog.Entry{}
	}
	if runs == nil {
		runs = []*agentrun.AgentRun{}
	}

	WriteJSON(w, http.StatusOK, batchDetail{Batch: bt, POs: pos, Logs: logs, Runs: runs})
}

// batchStatsResponse combines store aggregates with live queue depths
type batchStatsResponse struct {
	ByStatus     []batch.StatusStats         `json:"byStatus"`
	ByActionType []purchaseorder.ActionStats `json:"byActionType"`
	Queues       queuestore.Depths           `json:"queues"`
}

// batchStats returns dashboard aggregates.
// GET /api/batches/stats
func (s *Server) batchStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	byStatus, err := s.deps.Batches.StatsByStatus(ctx)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	byAction, err := s.deps.POs.StatsByActionType(ctx)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	depths, err := s.deps.Queue.Depths(ctx)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	if byStatus == nil {
		byStatus = []batch.StatusStats{}
	}
	if byAction == nil {
		byAction = []purchaseorder.ActionStats{}
	}

	WriteJSON(w, http.StatusOK, batchStatsResponse{
		ByStatus:     byStatus,
		ByActionType: byAction,
		Queues:       depths,
	})
}

type triggerCallRequest struct {
	PhoneOverride string `json:"phoneOverride"`
	EmailOverride string `json:"emailOverride"`
}

type triggerCallResponse struct {
	BatchID string `json:"batchId"`
	RunID   string `json:"runId"`
	RunURL  string `json:"externalUrl,omitempty"`
}

// triggerCall starts a call for the batch immediately, bypassing the
// queue order. POST /api/batches/{batchID}/trigger-call
func (s *Server) triggerCall(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")

	var req triggerCallRequest
	if r.ContentLength > 0 {
		if err := DecodeJSON(r, &req); err != nil {
			WriteError(w, http.StatusBadRequest, apperr.CodeInvalidFormat, "invalid JSON body")
			return
		}
	}

	result, err := s.deps.Dispatch.TriggerManual(r.Context(), batchID, req.PhoneOverride, req.EmailOverride)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, triggerCallResponse{
		BatchID: batchID,
		RunID:   result.RunID,
		RunURL:  result.RunURL,
	})
}

// requeueBatch puts a FAILED or PARTIAL batch back on the primary queue
// with a fresh attempt budget. POST /api/batches/{batchID}/requeue
func (s *Server) requeueBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	batchID := chi.URLParam(r, "batchID")

	bt, err := s.deps.Batches.FindByID(ctx, batchID)
	if err != nil {
		if errors.Is(err, batch.ErrNotFound) {
			WriteError(w, http.StatusNotFound, apperr.CodeBatchNotFound, "batch not found: "+batchID)
			return
		}
		WriteAppError(w, err)
		return
	}

	if bt.Status != batch.StatusFailed && bt.Status != batch.StatusPartial {
		WriteError(w, http.StatusBadRequest, apperr.CodeStatusChanged,
			"only FAILED or PARTIAL batches can be requeued, batch is "+string(bt.Status))
		return
	}

	applied, err := s.deps.Batches.UpdateStatusIf(ctx, batchID, bt.Status, batch.StatusQueued, map[string]any{
		"attemptCount": 0,
		"lastOutcome":  "",
		"completedAt":  nil,
		"scheduledFor": nil,
	})
	if err != nil {
		WriteAppError(w, err)
		return
	}
	if !applied {
		WriteError(w, http.StatusConflict, apperr.CodeStatusChanged, "batch status changed, requeue aborted")
		return
	}

	// Failed POs ride along; resolved ones keep their outcome.
	if _, err := s.deps.POs.UpdateStatusByBatch(ctx, batchID,
		[]purchaseorder.Status{purchaseorder.StatusFailed}, purchaseorder.StatusQueued); err != nil {
		WriteAppError(w, err)
		return
	}

	if err := s.deps.Queue.Enqueue(ctx, batchID, bt.QueueScore()); err != nil {
		WriteAppError(w, err)
		return
	}

	if err := s.deps.Logs.Insert(ctx, &batchlog.Entry{
		BatchID: batchID,
		Type:    batchlog.TypeStatusChange,
		Level:   batchlog.LevelInfo,
		Message: "operator requeued batch after " + string(bt.Status),
		Source:  "api",
		Data: map[string]any{
			"status":         string(batch.StatusQueued),
			"previousStatus": string(bt.Status),
		},
	}); err != nil {
		slog.Warn("Failed to write batch log", "batchId", batchID, "error", err)
	}

	if err := s.deps.Bus.PublishPipeline(ctx, eventbus.PipelineEvent{
		Type:         eventbus.PipelineBatchRetry,
		BatchID:      batchID,
		SupplierID:   bt.SupplierID,
		SupplierName: bt.SupplierName,
		Status:       string(batch.StatusQueued),
		At:           time.Now(),
	}); err != nil {
		slog.Warn("Failed to publish pipeline event", "batchId", batchID, "error", err)
	}

	WriteJSON(w, http.StatusOK, map[string]string{"status": "queued", "batchId": batchID})
}
