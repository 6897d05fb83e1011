package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/frontier-design/projectory-web-to-print/internal/progress"
	"github.com/frontier-design/projectory-web-to-print/pkg/jobid"
)

const testMessageCount = 3

// NewTestSSEHandler returns an http.HandlerFunc for GET /test-sse/{jobId}.
// It streams a fixed sequence so clients can check SSE works end to end
// without starting a job.
func NewTestSSEHandler(interval time.Duration) http.HandlerFunc {
	if interval <= 0 {
		interval = time.Second
	}
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "jobId")
		if !jobid.Valid(jobID) {
			writeInvalidJobID(w)
			return
		}

		sse := startSSE(w)
		if err := sse.data(connectedFrame{Type: progress.EventConnected, JobID: jobID}); err != nil {
			slog.Warn("test stream closed before connect", "job_id", jobID, "error", err)
			return
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for n := 1; n <= testMessageCount; n++ {
			select {
			case <-r.Context().Done():
				slog.Info("test stream client disconnected", "job_id", jobID)
				return
			case <-ticker.C:
			}
			e := progress.Event{
				Type:      progress.EventTest,
				Message:   fmt.Sprintf("Test message %d", n),
				Timestamp: time.Now(),
			}
			if err := sse.data(e); err != nil {
				slog.Warn("test stream write failed", "job_id", jobID, "error", err)
				return
			}
		}

		done := progress.Event{
			Type:      progress.EventComplete,
			Message:   "Test complete",
			Timestamp: time.Now(),
		}
		if err := sse.data(done); err != nil {
			slog.Warn("test stream write failed", "job_id", jobID, "error", err)
		}
	}
}
