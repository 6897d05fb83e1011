package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/frontier-design/projectory-web-to-print/internal/api/response"
	"github.com/frontier-design/projectory-web-to-print/internal/store"
	"github.com/frontier-design/projectory-web-to-print/pkg/jobid"
	"github.com/frontier-design/projectory-web-to-print/pkg/models"
)

// JobReader looks up recorded jobs.
type JobReader interface {
	GetJobByJobID(ctx context.Context, jobID string) (*models.JobRecord, error)
}

// NewJobHandler returns an http.HandlerFunc for GET /jobs/{jobId}.
func NewJobHandler(jobs JobReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "jobId")
		if !jobid.Valid(jobID) {
			writeInvalidJobID(w)
			return
		}

		rec, err := jobs.GetJobByJobID(r.Context(), jobID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "Job not found", map[string]any{"jobId": jobID})
				return
			}
			slog.Error("job lookup failed", "job_id", jobID, "error", err)
			response.Error(w, http.StatusInternalServerError, "Failed to load job", map[string]any{"jobId": jobID})
			return
		}

		response.JSON(w, http.StatusOK, rec)
	}
}
