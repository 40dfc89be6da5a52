package api

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"go.povoice.tech/internal/common/apperr"
	"go.povoice.tech/internal/store/activity"
	"go.povoice.tech/internal/store/conflict"
)

// uploadPOs accepts a PO spreadsheet and starts an upload job.
// POST /api/upload/pos (multipart, field "file")
func (s *Server) uploadPOs(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, http.StatusRequestEntityTooLarge, apperr.CodeInvalidValue, "upload exceeds the size limit")
			return
		}
		WriteError(w, http.StatusBadRequest, apperr.CodeRequired, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext != ".xlsx" && ext != ".xls" {
		WriteError(w, http.StatusBadRequest, apperr.CodeInvalidFormat, "unsupported file type: "+ext)
		return
	}

	jobID, err := s.deps.Uploads.Start(r.Context(), file)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]string{"jobId": jobID})
}

// getUploadJob returns an upload job snapshot.
// GET /api/upload/jobs/{jobID}
func (s *Server) getUploadJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	job, ok := s.deps.Uploads.Job(jobID)
	if !ok {
		WriteError(w, http.StatusNotFound, apperr.CodeJobNotFound, "upload job not found: "+jobID)
		return
	}

	WriteJSON(w, http.StatusOK, job)
}

// listActivity returns the most recent activity entries.
// GET /api/activity?limit=
func (s *Server) listActivity(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	if limit > maxPageSize {
		limit = maxPageSize
	}

	entries, err := s.deps.Activity.ListRecent(r.Context(), int64(limit))
	if err != nil {
		WriteAppError(w, err)
		return
	}
	if entries == nil {
		entries = []*activity.Entry{}
	}

	WriteJSON(w, http.StatusOK, map[string]any{"data": entries})
}

// listConflicts returns the most recent upload conflicts.
// GET /api/conflicts?limit=
func (s *Server) listConflicts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := queryInt(r, "limit", 50)
	if limit > maxPageSize {
		limit = maxPageSize
	}

	conflicts, err := s.deps.Conflicts.ListRecent(ctx, int64(limit))
	if err != nil {
		WriteAppError(w, err)
		return
	}
	if conflicts == nil {
		conflicts = []*conflict.Conflict{}
	}
	total, err := s.deps.Conflicts.CountAll(ctx)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"data": conflicts, "total": total})
}
