package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Dispatch metrics

	// DispatchBatchesTotal tracks batches handed to the agent provider
	DispatchBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "povoice",
			Subsystem: "dispatch",
			Name:      "batches_total",
			Help:      "Total batches dispatched to the agent provider",
		},
		[]string{"result"}, // result: started, contention, stale, provider_error, exhausted
	)

	// DispatchCycleDuration tracks one dispatch loop cycle
	DispatchCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "povoice",
			Subsystem: "dispatch",
			Name:      "cycle_duration_seconds",
			Help:      "Time to run one dispatch cycle",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// DispatchActiveCalls tracks batches currently on a call
	DispatchActiveCalls = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "povoice",
			Subsystem: "dispatch",
			Name:      "active_calls",
			Help:      "Number of batches currently on a call",
		},
	)

	// DispatchStaleRecovered tracks batches recovered from a stale processing entry
	DispatchStaleRecovered = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "povoice",
			Subsystem: "dispatch",
			Name:      "stale_recovered_total",
			Help:      "Total batches recovered from stale processing entries",
		},
	)

	// DispatchLeaderState tracks leader election status
	// 0 = follower, 1 = leader
	DispatchLeaderState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "povoice",
			Subsystem: "dispatch",
			Name:      "leader_election_state",
			Help:      "Leader election state (0=follower, 1=leader)",
		},
	)

	// Queue metrics

	// QueueDepth tracks entries per queue
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "povoice",
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Number of batches in each queue",
		},
		[]string{"queue"}, // primary, callbacks, processing
	)

	// QueueRequeues tracks batches put back on the primary queue
	QueueRequeues = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "povoice",
			Subsystem: "queue",
			Name:      "requeues_total",
			Help:      "Total batches requeued",
		},
		[]string{"reason"}, // reason: supplier_busy, provider_error, callback_due, manual
	)

	// ActiveSuppliers tracks suppliers currently holding the exclusivity lock
	ActiveSuppliers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "povoice",
			Subsystem: "queue",
			Name:      "active_suppliers",
			Help:      "Number of suppliers with a call in flight",
		},
	)

	// Agent provider metrics

	// AgentCallsTotal tracks HTTP calls to the agent provider
	AgentCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "povoice",
			Subsystem: "agent",
			Name:      "calls_total",
			Help:      "Total HTTP calls to the agent provider",
		},
		[]string{"result"}, // result: success, error, timeout, circuit_open
	)

	// AgentCallDuration tracks agent provider call duration
	AgentCallDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "povoice",
			Subsystem: "agent",
			Name:      "call_duration_seconds",
			Help:      "Agent provider call duration",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	// AgentCircuitBreakerState tracks circuit breaker state
	// 0 = closed (healthy), 1 = open (tripped), 2 = half-open (testing)
	AgentCircuitBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "povoice",
			Subsystem: "agent",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
	)

	// Webhook metrics

	// WebhookEventsTotal tracks webhook events by type and result
	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "povoice",
			Subsystem: "webhook",
			Name:      "events_total",
			Help:      "Total webhook events received",
		},
		[]string{"event_type", "result"}, // result: applied, noop, unknown, invalid
	)

	// WebhookProcessingDuration tracks webhook handling duration
	WebhookProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "povoice",
			Subsystem: "webhook",
			Name:      "processing_duration_seconds",
			Help:      "Time to apply a webhook event",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"event_type"},
	)

	// Upload metrics

	// UploadRowsTotal tracks spreadsheet rows by classification result
	UploadRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "povoice",
			Subsystem: "upload",
			Name:      "rows_total",
			Help:      "Total uploaded rows by classification result",
		},
		[]string{"result"}, // result: cancel, expedite, push_out, skipped, conflict, invalid
	)

	// UploadJobsTotal tracks upload jobs by final state
	UploadJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "povoice",
			Subsystem: "upload",
			Name:      "jobs_total",
			Help:      "Total upload jobs by final state",
		},
		[]string{"result"}, // result: complete, failed
	)

	// UploadJobDuration tracks end-to-end upload pipeline duration
	UploadJobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "povoice",
			Subsystem: "upload",
			Name:      "job_duration_seconds",
			Help:      "Time to run an upload pipeline end to end",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	// Event bus metrics

	// BusEventsPublished tracks events published to the bus
	BusEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "povoice",
			Subsystem: "bus",
			Name:      "events_published_total",
			Help:      "Total events published to the event bus",
		},
		[]string{"channel"}, // pipeline, batch, upload
	)

	// BusPublishErrors tracks bus publish errors
	BusPublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "povoice",
			Subsystem: "bus",
			Name:      "publish_errors_total",
			Help:      "Total event bus publish errors",
		},
		[]string{"channel"},
	)

	// HTTP API metrics

	// HTTPRequestsTotal tracks HTTP API requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "povoice",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP API requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks HTTP API request duration
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "povoice",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP API request duration",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// SSEActiveStreams tracks open server-sent event streams
	SSEActiveStreams = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "povoice",
			Subsystem: "http",
			Name:      "sse_active_streams",
			Help:      "Number of open SSE streams",
		},
		[]string{"stream"}, // batch, upload, pipeline
	)
)

// CircuitBreakerState constants
const (
	CircuitBreakerClosed   = 0
	CircuitBreakerOpen     = 1
	CircuitBreakerHalfOpen = 2
)
