package ingest

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of an upload job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobComplete   JobStatus = "complete"
	JobError      JobStatus = "error"
)

// Upload pipeline stages, in order.
const (
	StageParsing   = "parsing"
	StageSuppliers = "suppliers"
	StagePOs       = "pos"
	StageBatches   = "batches"
	StageQueuing   = "queuing"
	StageComplete  = "complete"
)

// Summary totals what an upload pipeline produced.
type Summary struct {
	RowsParsed      int   `json:"rowsParsed"`
	RowsSkipped     int   `json:"rowsSkipped"`
	POsCreated      int   `json:"posCreated"`
	POsUpdated      int   `json:"posUpdated"`
	Conflicts       int   `json:"conflicts"`
	Suppliers       int   `json:"suppliers"`
	BatchesCreated  int   `json:"batchesCreated"`
	TotalValueCents int64 `json:"totalValueCents"`
}

// Job tracks one upload through the pipeline. Jobs are ephemeral and
// expire after the tracker's TTL regardless of outcome.
type Job struct {
	ID        string    `json:"id"`
	Status    JobStatus `json:"status"`
	Stage     string    `json:"stage"`
	Processed int       `json:"processed"`
	Total     int       `json:"total"`
	Message   string    `json:"message,omitempty"`
	Summary   *Summary  `json:"summary,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// JobTracker holds in-flight and recently finished upload jobs in
// memory. Jobs are not durable; a restart drops them, and clients fall
// back to the stats endpoints.
type JobTracker struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	ttl  time.Duration
}

// NewJobTracker creates a tracker whose jobs expire after ttl
func NewJobTracker(ttl time.Duration) *JobTracker {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &JobTracker{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

// Create registers a new pending job and returns its ID
func (t *JobTracker) Create() string {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.sweepLocked(now)

	id := uuid.NewString()
	t.jobs[id] = &Job{
		ID:        id,
		Status:    JobPending,
		Stage:     StageParsing,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return id
}

// Get returns a snapshot of the job, or ok=false when unknown or expired
func (t *JobTracker) Get(id string) (Job, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	job, ok := t.jobs[id]
	if !ok || time.Since(job.CreatedAt) > t.ttl {
		return Job{}, false
	}
	return *job, true
}

// SetProgress records the job's current stage and counters
func (t *JobTracker) SetProgress(id, stage string, processed, total int, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[id]
	if !ok {
		return
	}
	job.Status = JobProcessing
	job.Stage = stage
	job.Processed = processed
	job.Total = total
	job.Message = message
	job.UpdatedAt = time.Now()
}

// Complete marks the job finished with its result summary
func (t *JobTracker) Complete(id string, summary Summary) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[id]
	if !ok {
		return
	}
	job.Status = JobComplete
	job.Stage = StageComplete
	job.Processed = job.Total
	job.Summary = &summary
	job.UpdatedAt = time.Now()
}

// Fail marks the job errored with a message
func (t *JobTracker) Fail(id, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[id]
	if !ok {
		return
	}
	job.Status = JobError
	job.Error = message
	job.UpdatedAt = time.Now()
}

// Sweep drops expired jobs and returns how many were removed
func (t *JobTracker) Sweep(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sweepLocked(now)
}

func (t *JobTracker) sweepLocked(now time.Time) int {
	removed := 0
	for id, job := range t.jobs {
		if now.Sub(job.CreatedAt) > t.ttl {
			delete(t.jobs, id)
			removed++
		}
	}
	return removed
}
