package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frontier-design/projectory-web-to-print/internal/store"
	"github.com/frontier-design/projectory-web-to-print/pkg/models"
)

type stubJobReader struct {
	rec *models.JobRecord
	err error
}

func (s stubJobReader) GetJobByJobID(context.Context, string) (*models.JobRecord, error) {
	return s.rec, s.err
}

func serveJob(reader JobReader, path string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Get("/jobs/{jobId}", NewJobHandler(reader))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestJob_Found(t *testing.T) {
	rec := serveJob(stubJobReader{rec: &models.JobRecord{
		JobID:        testJobID,
		Status:       models.JobStatusCompleted,
		TotalItems:   25,
		TotalBatches: 3,
		SuccessCount: 3,
	}}, "/jobs/"+testJobID)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, testJobID, body["jobId"])
	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, float64(3), body["successCount"])
}

func TestJob_NotFound(t *testing.T) {
	rec := serveJob(stubJobReader{err: store.ErrNotFound}, "/jobs/"+testJobID)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Job not found", decodeBody(t, rec)["error"])
}

func TestJob_StoreError(t *testing.T) {
	rec := serveJob(stubJobReader{err: errors.New("db down")}, "/jobs/"+testJobID)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestJob_InvalidID(t *testing.T) {
	rec := serveJob(stubJobReader{}, "/jobs/.hidden")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
