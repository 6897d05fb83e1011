package handler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/frontier-design/projectory-web-to-print/internal/notify"
	"github.com/frontier-design/projectory-web-to-print/internal/pipeline"
	"github.com/frontier-design/projectory-web-to-print/internal/store"
	"github.com/frontier-design/projectory-web-to-print/pkg/models"
)

const historyTimeout = 5 * time.Second

// JobRecorder persists job outcomes.
type JobRecorder interface {
	CreateJob(ctx context.Context, job *models.JobRecord) error
	UpdateJob(ctx context.Context, jobID string, status string, opts ...store.JobUpdateOption) error
}

// jobTracker records one request's job in history and announces its
// outcome. Failures are logged and never reach the client.
type jobTracker struct {
	jobs JobRecorder
	pub  notify.Publisher
	rec  models.JobRecord
	now  func() time.Time
}

func newJobTracker(jobs JobRecorder, pub notify.Publisher, jobID string, totalItems, batchSize int) *jobTracker {
	if pub == nil {
		pub = notify.Nop{}
	}
	return &jobTracker{
		jobs: jobs,
		pub:  pub,
		rec: models.JobRecord{
			ID:            uuid.New(),
			JobID:         jobID,
			Status:        models.JobStatusRunning,
			TotalItems:    totalItems,
			TotalBatches:  pipeline.BatchCount(totalItems, batchSize),
			FailedBatches: []models.BatchFailure{},
		},
		now: time.Now,
	}
}

func (t *jobTracker) start(ctx context.Context) {
	t.rec.StartedAt = t.now().UTC()
	if t.jobs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, historyTimeout)
	defer cancel()
	if err := t.jobs.CreateJob(ctx, &t.rec); err != nil {
		slog.Warn("failed to record job start", "job_id", t.rec.JobID, "error", err)
	}
}

func (t *jobTracker) finish(ctx context.Context, res *pipeline.Result, genErr error) {
	t.rec.Status = outcomeStatus(genErr)
	if res != nil {
		t.rec.TotalBatches = res.TotalBatches
		t.rec.SuccessCount = res.SuccessCount
		t.rec.FailedCount = res.FailedCount
		if res.Failed != nil {
			t.rec.FailedBatches = res.Failed
		}
	}
	if genErr != nil {
		msg := genErr.Error()
		t.rec.ErrorMessage = &msg
	}
	completed := t.now().UTC()
	t.rec.CompletedAt = &completed

	ctx, cancel := context.WithTimeout(ctx, historyTimeout)
	defer cancel()

	if t.jobs != nil {
		opts := []store.JobUpdateOption{
			store.WithCounts(t.rec.TotalBatches, t.rec.SuccessCount, t.rec.FailedCount),
			store.WithFailedBatches(t.rec.FailedBatches),
		}
		if t.rec.ErrorMessage != nil {
			opts = append(opts, store.WithErrorMessage(*t.rec.ErrorMessage))
		}
		if err := t.jobs.UpdateJob(ctx, t.rec.JobID, t.rec.Status, opts...); err != nil {
			slog.Warn("failed to record job outcome", "job_id", t.rec.JobID, "status", t.rec.Status, "error", err)
		}
	}

	if err := t.pub.PublishJobOutcome(ctx, &t.rec); err != nil {
		slog.Warn("failed to publish job outcome", "job_id", t.rec.JobID, "status", t.rec.Status, "error", err)
	}
}

func outcomeStatus(err error) string {
	switch {
	case err == nil:
		return models.JobStatusCompleted
	case errors.Is(err, pipeline.ErrJobTimeout):
		return models.JobStatusTimedOut
	default:
		return models.JobStatusFailed
	}
}
