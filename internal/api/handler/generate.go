package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/frontier-design/projectory-web-to-print/internal/api/response"
	"github.com/frontier-design/projectory-web-to-print/internal/notify"
	"github.com/frontier-design/projectory-web-to-print/internal/pipeline"
	"github.com/frontier-design/projectory-web-to-print/pkg/jobid"
	"github.com/frontier-design/projectory-web-to-print/pkg/models"
)

const (
	defaultMaxBodyBytes = 50 << 20
	// writeSlack covers archive transfer after the job deadline.
	writeSlack = time.Minute
)

const invalidJobIDMessage = "Job ID must start with a letter or digit and contain only letters, digits, dots, underscores or hyphens (max 100 characters)"

// Generator runs a PDF generation job.
type Generator interface {
	Generate(ctx context.Context, jobID string, items []models.Item) (*pipeline.Result, error)
	BatchSize() int
}

// GenerateDeps wires NewGenerateHandler. Jobs and Publisher are optional.
type GenerateDeps struct {
	Generator    Generator
	Jobs         JobRecorder
	Publisher    notify.Publisher
	MaxBodyBytes int64
	JobTimeout   time.Duration
}

type generateRequest struct {
	Items []models.Item `json:"items"`
	JobID *string       `json:"jobId"`
}

// NewGenerateHandler returns an http.HandlerFunc for POST /generate-pdfs.
// The job runs to completion or timeout even if the client goes away.
func NewGenerateHandler(deps GenerateDeps) (http.HandlerFunc, error) {
	schema, err := compileGenerateSchema()
	if err != nil {
		return nil, fmt.Errorf("compile request schema: %w", err)
	}
	maxBody := deps.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	jobTimeout := deps.JobTimeout
	if jobTimeout <= 0 {
		jobTimeout = pipeline.DefaultJobTimeout
	}

	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				response.Error(w, http.StatusRequestEntityTooLarge, "Request body too large", nil)
				return
			}
			response.Error(w, http.StatusBadRequest, "Failed to read request body", nil)
			return
		}

		var doc any
		if err := json.Unmarshal(body, &doc); err != nil {
			response.Error(w, http.StatusBadRequest, "Invalid JSON body", nil)
			return
		}
		if !hasItems(doc) {
			response.Error(w, http.StatusBadRequest, "No items provided", nil)
			return
		}
		if err := schema.Validate(doc); err != nil {
			response.Error(w, http.StatusBadRequest, "Invalid request body", map[string]any{
				"details": validationDetails(err),
			})
			return
		}

		var req generateRequest
		if err := json.Unmarshal(body, &req); err != nil {
			response.Error(w, http.StatusBadRequest, "Invalid request body", nil)
			return
		}

		jobID := ""
		if req.JobID != nil {
			jobID = *req.JobID
		}
		if jobID == "" {
			jobID = jobid.New()
		} else if !jobid.Valid(jobID) {
			response.Error(w, http.StatusBadRequest, "Invalid jobId format", map[string]any{
				"message": invalidJobIDMessage,
			})
			return
		}

		rc := http.NewResponseController(w)
		if err := rc.SetWriteDeadline(time.Now().Add(jobTimeout + writeSlack)); err != nil && !errors.Is(err, http.ErrNotSupported) {
			slog.Warn("failed to extend write deadline", "job_id", jobID, "error", err)
		}

		slog.Info("pdf generation requested", "job_id", jobID, "items", len(req.Items))

		ctx := context.WithoutCancel(r.Context())
		tracker := newJobTracker(deps.Jobs, deps.Publisher, jobID, len(req.Items), deps.Generator.BatchSize())
		tracker.start(ctx)

		res, genErr := deps.Generator.Generate(ctx, jobID, req.Items)
		tracker.finish(ctx, res, genErr)

		if genErr != nil {
			writeGenerateError(w, jobID, res, genErr)
			return
		}

		writeArchive(w, res)
		slog.Info("pdf generation complete",
			"job_id", jobID,
			"success_count", res.SuccessCount,
			"failed_count", res.FailedCount,
			"archive_bytes", len(res.Archive),
		)
	}, nil
}

func hasItems(doc any) bool {
	obj, ok := doc.(map[string]any)
	if !ok {
		return false
	}
	items, ok := obj["items"].([]any)
	return ok && len(items) > 0
}

func validationDetails(err error) []string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []string{err.Error()}
	}
	var out []string
	for _, e := range ve.BasicOutput().Errors {
		if e.Error == "" || e.InstanceLocation == "" {
			continue
		}
		out = append(out, e.InstanceLocation+": "+e.Error)
	}
	if len(out) == 0 {
		out = append(out, ve.Error())
	}
	return out
}

func writeGenerateError(w http.ResponseWriter, jobID string, res *pipeline.Result, err error) {
	switch {
	case errors.Is(err, pipeline.ErrNoItems):
		response.Error(w, http.StatusBadRequest, "No items provided", nil)
	case errors.Is(err, pipeline.ErrInvalidJobID):
		response.Error(w, http.StatusBadRequest, "Invalid jobId format", map[string]any{
			"message": invalidJobIDMessage,
		})
	case errors.Is(err, pipeline.ErrAllBatchesFailed):
		extra := map[string]any{"jobId": jobID}
		if res != nil {
			extra["failedBatches"] = res.Failed
			extra["totalBatches"] = res.TotalBatches
		}
		response.Error(w, http.StatusInternalServerError, "All batches failed. No PDFs generated.", extra)
	case errors.Is(err, pipeline.ErrJobTimeout):
		response.Error(w, http.StatusGatewayTimeout, err.Error(), map[string]any{"jobId": jobID})
	default:
		response.Error(w, http.StatusInternalServerError, err.Error(), map[string]any{"jobId": jobID})
	}
}

func writeArchive(w http.ResponseWriter, res *pipeline.Result) {
	h := w.Header()
	h.Set("Content-Type", "application/zip")
	h.Set("Content-Disposition", "attachment; filename="+pipeline.ArchiveName)
	h.Set("Content-Length", strconv.Itoa(len(res.Archive)))
	h.Set("X-Job-Id", res.JobID)
	h.Set("X-Batch-Success-Count", strconv.Itoa(res.SuccessCount))
	h.Set("X-Batch-Failed-Count", strconv.Itoa(res.FailedCount))
	h.Set("X-Batch-Total-Count", strconv.Itoa(res.TotalBatches))
	if len(res.Failed) > 0 {
		if b, err := json.Marshal(res.Failed); err == nil {
			h.Set("X-Failed-Batches", string(b))
		}
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.Archive); err != nil {
		slog.Warn("failed to write archive", "job_id", res.JobID, "error", err)
	}
}
