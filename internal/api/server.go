// Package api exposes the dispatch engine over HTTP: batch and
// supplier listings, spreadsheet uploads, provider webhooks, SSE
// streams, and operator controls.
package api

import (
	"context"
	"io"
	"time"

	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go.povoice.tech/internal/agent"
	"go.povoice.tech/internal/common/health"
	"go.povoice.tech/internal/config"
	"go.povoice.tech/internal/eventbus"
	"go.povoice.tech/internal/ingest"
	"go.povoice.tech/internal/queuestore"
	"go.povoice.tech/internal/reconcile"
	"go.povoice.tech/internal/store/activity"
	"go.povoice.tech/internal/store/agentrun"
	"go.povoice.tech/internal/store/batch"
	"go.povoice.tech/internal/store/batchlog"
	"go.povoice.tech/internal/store/conflict"
	"go.povoice.tech/internal/store/purchaseorder"
	"go.povoice.tech/internal/store/supplier"
)

// UploadService runs upload jobs and reports their progress
type UploadService interface {
	// Start parses the spreadsheet and kicks off the background pipeline
	Start(ctx context.Context, r io.Reader) (string, error)

	// Job returns an upload job snapshot
	Job(id string) (ingest.Job, bool)
}

// CallTrigger starts a call for one batch on demand
type CallTrigger interface {
	TriggerManual(ctx context.Context, batchID, phoneOverride, emailOverride string) (agent.CallResult, error)
}

// WebhookHandler applies a provider webhook event
type WebhookHandler interface {
	Handle(ctx context.Context, ev reconcile.Event) error
}

// Deps wires the server's collaborators
type Deps struct {
	Batches   batch.Repository
	POs       purchaseorder.Repository
	Suppliers supplier.Repository
	Runs      agentrun.Repository
	Logs      batchlog.Repository
	Activity  activity.Repository
	Conflicts conflict.Repository

	Queue    *queuestore.Store
	Bus      eventbus.Bus
	Uploads  UploadService
	Dispatch CallTrigger
	Webhooks WebhookHandler
	Checker  *health.Checker
}

// Server is the HTTP API
type Server struct {
	cfg  *config.Config
	deps Deps
}

// NewServer creates the API server
func NewServer(cfg *config.Config, deps Deps) *Server {
	return &Server{cfg: cfg, deps: deps}
}

// Routes builds the router. SSE endpoints sit outside the request
// timeout so streams can outlive it.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.HTTP.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "x-api-key"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(Metrics)

	if s.deps.Checker != nil {
		r.Get("/q/health", s.deps.Checker.HandleHealth)
		r.Get("/q/health/live", s.deps.Checker.HandleLive)
		r.Get("/q/health/ready", s.deps.Checker.HandleReady)
	}
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		timeout := middleware.Timeout(60 * time.Second)

		r.With(timeout).Get("/batches", s.listBatches)
		r.With(timeout).Get("/batches/stats", s.batchStats)
		r.With(timeout).Get("/batches/{batchID}", s.getBatch)
		r.With(timeout).Post("/batches/{batchID}/trigger-call", s.triggerCall)
		r.With(timeout).Post("/batches/{batchID}/requeue", s.requeueBatch)

		r.With(timeout).Get("/suppliers", s.listSuppliers)
		r.With(timeout).Get("/suppliers/{supplierID}", s.getSupplier)

		r.With(timeout).Post("/upload/pos", s.uploadPOs)
		r.With(timeout).Get("/upload/jobs/{jobID}", s.getUploadJob)

		r.With(timeout).Get("/activity", s.listActivity)
		r.With(timeout).Get("/conflicts", s.listConflicts)

		r.With(timeout, RequireWebhookKey(s.cfg.Agent.WebhookSecret)).
			Post("/webhooks/agent", s.handleWebhook)

		r.With(timeout).Post("/reset", s.reset)

		// SSE streams sit outside the request timeout
		r.Get("/batches/{batchID}/events", s.streamBatchEvents)
		r.Get("/events/pipeline", s.streamPipelineEvents)
		r.Get("/upload/progress/{jobID}", s.streamUploadProgress)
	})

	return r
}
