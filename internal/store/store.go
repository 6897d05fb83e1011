package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/frontier-design/projectory-web-to-print/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error

	// CreateJob records a job start. Reusing a job ID restarts its record.
	CreateJob(ctx context.Context, job *models.JobRecord) error
	UpdateJob(ctx context.Context, jobID string, status string, opts ...JobUpdateOption) error
	GetJobByJobID(ctx context.Context, jobID string) (*models.JobRecord, error)
}

type jobUpdateParams struct {
	ErrorMessage  *string
	TotalBatches  *int
	SuccessCount  *int
	FailedCount   *int
	FailedBatches []models.BatchFailure
}

type JobUpdateOption func(*jobUpdateParams)

func WithErrorMessage(msg string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.ErrorMessage = &msg
	}
}

func WithCounts(totalBatches, success, failed int) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.TotalBatches = &totalBatches
		p.SuccessCount = &success
		p.FailedCount = &failed
	}
}

func WithFailedBatches(f []models.BatchFailure) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.FailedBatches = f
	}
}
