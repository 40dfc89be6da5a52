package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"go.povoice.tech/internal/common/apperr"
	"go.povoice.tech/internal/store/batch"
	"go.povoice.tech/internal/store/purchaseorder"
	"go.povoice.tech/internal/store/supplier"
)

// supplierSummary is a supplier with its batch rollup
type supplierSummary struct {
	Supplier   *supplier.Supplier `json:"supplier"`
	BatchCount int64              `json:"batchCount"`
	ValueCents int64              `json:"valueCents"`
}

// listSuppliers returns a page of suppliers with per-supplier batch
// rollups. GET /api/suppliers?search=&sortBy=&sortOrder=&page=&limit=
func (s *Server) listSuppliers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	filter := supplier.ListFilter{Search: q.Get("search")}
	switch sortBy := q.Get("sortBy"); sortBy {
	case "", "name":
		filter.SortBy = "name"
	case "supplierNumber", "createdAt":
		filter.SortBy = sortBy
	default:
		WriteError(w, http.StatusBadRequest, apperr.CodeInvalidValue, "unknown sort field: "+sortBy)
		return
	}
	filter.Descending = q.Get("sortOrder") == "desc"
	filter.Page, filter.PageSize = pageParams(r)

	sups, total, err := s.deps.Suppliers.List(ctx, filter)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	ids := make([]string, 0, len(sups))
	for _, sp := range sups {
		ids = append(ids, sp.ID)
	}

	rollups := map[string]batch.SupplierRollup{}
	if len(ids) > 0 {
		rows, err := s.deps.Batches.RollupBySupplier(ctx, ids)
		if err != nil {
			WriteAppError(w, err)
			return
		}
		for _, row := range rows {
			rollups[row.SupplierID] = row
		}
	}

	summaries := make([]supplierSummary, 0, len(sups))
	for _, sp := range sups {
		roll := rollups[sp.ID]
		summaries = append(summaries, supplierSummary{
			Supplier:   sp,
			BatchCount: roll.BatchCount,
			ValueCents: roll.ValueCents,
		})
	}

	WriteJSON(w, http.StatusOK, NewPagedResponse(summaries, filter.Page, filter.PageSize, total))
}

// supplierDetail is a supplier with its recent batches and POs
type supplierDetail struct {
	Supplier *supplier.Supplier             `json:"supplier"`
	Batches  []*batch.Batch                 `json:"batches"`
	POs      []*purchaseorder.PurchaseOrder `json:"pos"`
	POCount  int64                          `json:"poCount"`
}

// getSupplier returns one supplier with recent batches and POs.
// GET /api/suppliers/{supplierID}
func (s *Server) getSupplier(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	supplierID := chi.URLParam(r, "supplierID")

	sp, err := s.deps.Suppliers.FindByID(ctx, supplierID)
	if err != nil {
		if errors.Is(err, supplier.ErrNotFound) {
			WriteError(w, http.StatusNotFound, apperr.CodeSupplierNotFound, "supplier not found: "+supplierID)
			return
		}
		WriteAppError(w, err)
		return
	}

	batches, err := s.deps.Batches.FindBySupplier(ctx, supplierID, 50)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	pos, err := s.deps.POs.FindBySupplier(ctx, supplierID, 200)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	poCount, err := s.deps.POs.CountBySupplier(ctx, supplierID)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	if batches == nil {
		batches = []*batch.Batch{}
	}
	if pos == nil {
		pos = []*purchaseorder.PurchaseOrder{}
	}

	WriteJSON(w, http.StatusOK, supplierDetail{
		Supplier: sp,
		Batches:  batches,
		POs:      pos,
		POCount:  poCount,
	})
}
