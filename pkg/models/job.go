package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusTimedOut  = "timed_out"
)

// BatchFailure describes one batch that could not be rendered.
// Batch and Rows are 1-based.
type BatchFailure struct {
	Batch    int    `json:"batch"`
	Error    string `json:"error"`
	Rows     []int  `json:"rows"`
	RowCount int    `json:"rowCount"`
}

// JobRecord is the persisted summary of one PDF generation request.
// Progress events are never stored; only the outcome is.
type JobRecord struct {
	ID            uuid.UUID      `db:"id"             json:"id"`
	JobID         string         `db:"job_id"         json:"jobId"`
	Status        string         `db:"status"         json:"status"`
	TotalItems    int            `db:"total_items"    json:"totalItems"`
	TotalBatches  int            `db:"total_batches"  json:"totalBatches"`
	SuccessCount  int            `db:"success_count"  json:"successCount"`
	FailedCount   int            `db:"failed_count"   json:"failedCount"`
	FailedBatches []BatchFailure `db:"failed_batches" json:"failedBatches"`
	ErrorMessage  *string        `db:"error_message"  json:"errorMessage,omitempty"`
	StartedAt     time.Time      `db:"started_at"     json:"startedAt"`
	CompletedAt   *time.Time     `db:"completed_at"   json:"completedAt,omitempty"`
	CreatedAt     time.Time      `db:"created_at"     json:"createdAt"`
	UpdatedAt     time.Time      `db:"updated_at"     json:"updatedAt"`
}
