package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"go.povoice.tech/internal/common/apperr"
	"go.povoice.tech/internal/common/metrics"
	"go.povoice.tech/internal/eventbus"
	"go.povoice.tech/internal/ingest"
	"go.povoice.tech/internal/store/batch"
)

const sseHeartbeatInterval = 30 * time.Second

// sseStart sets the stream headers and returns the flusher. A nil
// flusher means the response writer cannot stream.
func sseStart(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, http.StatusInternalServerError, apperr.CodeUnexpected, "streaming unsupported")
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return flusher, true
}

// sseSend writes one named event with a JSON payload
func sseSend(w http.ResponseWriter, flusher http.Flusher, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
}

// sseHeartbeat writes a comment line to keep proxies from closing the
// connection
func sseHeartbeat(w http.ResponseWriter, flusher http.Flusher) {
	fmt.Fprint(w, ": heartbeat\n\n")
	flusher.Flush()
}

// streamBatchEvents streams one batch's live events. The first event
// is always "connected" carrying the batch's current status, so a
// client that missed earlier events can render immediately.
// GET /api/batches/{batchID}/events
func (s *Server) streamBatchEvents(w http.ResponseWriter, r *http.Request) {
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

	events, cancel, err := s.deps.Bus.SubscribeBatch(ctx, batchID)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	defer cancel()

	flusher, ok := sseStart(w)
	if !ok {
		return
	}

	metrics.SSEActiveStreams.WithLabelValues("batch").Inc()
	defer metrics.SSEActiveStreams.WithLabelValues("batch").Dec()

	sseSend(w, flusher, eventbus.BatchConnected, eventbus.BatchEvent{
		Type:    eventbus.BatchConnected,
		BatchID: batchID,
		Status:  string(bt.Status),
		At:      time.Now(),
	})

	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			sseSend(w, flusher, ev.Type, ev)
		case <-heartbeat.C:
			sseHeartbeat(w, flusher)
		}
	}
}

// streamPipelineEvents streams dashboard-wide batch lifecycle events.
// GET /api/events/pipeline
func (s *Server) streamPipelineEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	events, cancel, err := s.deps.Bus.SubscribePipeline(ctx)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	defer cancel()

	flusher, ok := sseStart(w)
	if !ok {
		return
	}

	metrics.SSEActiveStreams.WithLabelValues("pipeline").Inc()
	defer metrics.SSEActiveStreams.WithLabelValues("pipeline").Dec()

	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			sseSend(w, flusher, ev.Type, ev)
		case <-heartbeat.C:
			sseHeartbeat(w, flusher)
		}
	}
}

// streamUploadProgress streams an upload job's progress. The first
// event is the current job snapshot; the stream ends when the job
// reaches a terminal stage. GET /api/upload/progress/{jobID}
func (s *Server) streamUploadProgress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID := chi.URLParam(r, "jobID")

	job, found := s.deps.Uploads.Job(jobID)
	if !found {
		WriteError(w, http.StatusNotFound, apperr.CodeJobNotFound, "upload job not found: "+jobID)
		return
	}

	events, cancel, err := s.deps.Bus.SubscribeUpload(ctx, jobID)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	defer cancel()

	flusher, ok := sseStart(w)
	if !ok {
		return
	}

	metrics.SSEActiveStreams.WithLabelValues("upload").Inc()
	defer metrics.SSEActiveStreams.WithLabelValues("upload").Dec()

	// A client connecting after the job finished still gets the
	// terminal frame.
	switch job.Status {
	case ingest.JobComplete:
		sseSend(w, flusher, "complete", job)
		return
	case ingest.JobError:
		sseSend(w, flusher, "error", job)
		return
	}

	sseSend(w, flusher, "snapshot", job)

	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Error != "" {
				sseSend(w, flusher, "error", ev)
				return
			}
			if ev.Done {
				// the tracker holds the summary, the event does not
				if latest, found := s.deps.Uploads.Job(jobID); found {
					sseSend(w, flusher, "complete", latest)
				} else {
					sseSend(w, flusher, "complete", ev)
				}
				return
			}
			sseSend(w, flusher, "progress", ev)
		case <-heartbeat.C:
			sseHeartbeat(w, flusher)
		}
	}
}
