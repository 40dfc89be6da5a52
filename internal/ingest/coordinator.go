package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.povoice.tech/internal/common/apperr"
	"go.povoice.tech/internal/common/metrics"
	"go.povoice.tech/internal/eventbus"
	"go.povoice.tech/internal/store/activity"
)

// progressEvery throttles per-row progress publishes.
const progressEvery = 25

// jobTimeout bounds a background upload pipeline.
const jobTimeout = 10 * time.Minute

// Coordinator runs the upload pipeline. Parsing is synchronous so the
// caller gets immediate feedback on a broken file; everything after
// that runs as a background job reported over the event bus.
type Coordinator struct {
	parser   RowParser
	builder  *Builder
	jobs     *JobTracker
	bus      eventbus.Bus
	activity activity.Repository
}

// NewCoordinator creates an upload coordinator
func NewCoordinator(parser RowParser, builder *Builder, jobs *JobTracker, bus eventbus.Bus, activityRepo activity.Repository) *Coordinator {
	return &Coordinator{
		parser:   parser,
		builder:  builder,
		jobs:     jobs,
		bus:      bus,
		activity: activityRepo,
	}
}

// Start parses the upload and kicks off the background pipeline,
// returning the job ID for progress tracking.
func (c *Coordinator) Start(ctx context.Context, r io.Reader) (string, error) {
	rows, err := c.parser.Parse(r)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", apperr.Validation(apperr.CodeInvalidValue, "no valid rows in upload")
	}

	jobID := c.jobs.Create()
	go c.run(jobID, rows)
	return jobID, nil
}

// Job returns a snapshot of an upload job
func (c *Coordinator) Job(id string) (Job, bool) {
	return c.jobs.Get(id)
}

// run drives the pipeline stages. Background jobs are detached from
// the request context; they run to completion or error.
func (c *Coordinator) run(jobID string, rows []Row) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		metrics.UploadJobDuration.Observe(time.Since(start).Seconds())
	}()

	slog.Info("Upload pipeline started", "jobId", jobID, "rows", len(rows))
	c.progress(ctx, jobID, StageParsing, len(rows), len(rows), fmt.Sprintf("parsed %d rows", len(rows)))

	c.progress(ctx, jobID, StageSuppliers, 0, len(rows), "upserting suppliers")
	suppliers, err := c.builder.UpsertSuppliers(ctx, rows)
	if err != nil {
		c.fail(ctx, jobID, StageSuppliers, err)
		return
	}

	c.progress(ctx, jobID, StagePOs, 0, len(rows), "applying purchase orders")
	rowResult, err := c.builder.ApplyRows(ctx, rows, suppliers, func(done, total int) {
		if done%progressEvery == 0 || done == total {
			c.progress(ctx, jobID, StagePOs, done, total, "")
		}
	})
	if err != nil {
		c.fail(ctx, jobID, StagePOs, err)
		return
	}

	c.progress(ctx, jobID, StageBatches, 0, 0, "building batches")
	buildResult, err := c.builder.BuildBatches(ctx, rowResult.BySupplier, func(done, total int) {
		c.progress(ctx, jobID, StageBatches, done, total, "")
	})
	if err != nil {
		c.fail(ctx, jobID, StageBatches, err)
		return
	}

	c.progress(ctx, jobID, StageQueuing, 0, len(buildResult.Batches), "queuing batches")
	if err := c.builder.EnqueueBatches(ctx, buildResult.Batches, func(done, total int) {
		if done%progressEvery == 0 || done == total {
			c.progress(ctx, jobID, StageQueuing, done, total, "")
		}
	}); err != nil {
		c.fail(ctx, jobID, StageQueuing, err)
		return
	}

	summary := Summary{
		RowsParsed:     len(rows),
		RowsSkipped:    rowResult.Skipped,
		POsCreated:     rowResult.Created,
		POsUpdated:     rowResult.Updated,
		Conflicts:      rowResult.Conflicts,
		Suppliers:      len(suppliers),
		BatchesCreated: len(buildResult.Batches),
	}
	for _, bt := range buildResult.Batches {
		summary.TotalValueCents += bt.TotalValueCents
	}

	c.jobs.Complete(jobID, summary)
	metrics.UploadJobsTotal.WithLabelValues("complete").Inc()

	message := fmt.Sprintf("upload complete: %d batches from %d rows (%d conflicts)",
		summary.BatchesCreated, summary.RowsParsed, summary.Conflicts)
	c.publish(ctx, eventbus.UploadEvent{
		JobID:   jobID,
		Stage:   StageComplete,
		Done:    true,
		Message: message,
	})

	if err := c.activity.Insert(ctx, &activity.Entry{
		Kind:    activity.KindUpload,
		Message: message,
		Action:  "upload",
		Details: map[string]any{
			"rowsParsed":     summary.RowsParsed,
			"posCreated":     summary.POsCreated,
			"posUpdated":     summary.POsUpdated,
			"conflicts":      summary.Conflicts,
			"batchesCreated": summary.BatchesCreated,
		},
	}); err != nil {
		slog.Warn("Failed to record upload activity", "jobId", jobID, "error", err)
	}

	slog.Info("Upload pipeline complete",
		"jobId", jobID,
		"batches", summary.BatchesCreated,
		"posCreated", summary.POsCreated,
		"posUpdated", summary.POsUpdated,
		"conflicts", summary.Conflicts,
		"duration", time.Since(start))
}

func (c *Coordinator) progress(ctx context.Context, jobID, stage string, done, total int, message string) {
	c.jobs.SetProgress(jobID, stage, done, total, message)
	c.publish(ctx, eventbus.UploadEvent{
		JobID:     jobID,
		Stage:     stage,
		Processed: done,
		Total:     total,
		Message:   message,
	})
}

func (c *Coordinator) fail(ctx context.Context, jobID, stage string, err error) {
	slog.Error("Upload pipeline failed", "jobId", jobID, "stage", stage, "error", err)
	c.jobs.Fail(jobID, err.Error())
	metrics.UploadJobsTotal.WithLabelValues("failed").Inc()
	c.publish(ctx, eventbus.UploadEvent{
		JobID: jobID,
		Stage: stage,
		Done:  true,
		Error: err.Error(),
	})
}

func (c *Coordinator) publish(ctx context.Context, ev eventbus.UploadEvent) {
	if err := c.bus.PublishUpload(ctx, ev); err != nil {
		slog.Warn("Failed to publish upload progress", "jobId", ev.JobID, "error", err)
	}
}
