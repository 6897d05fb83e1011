package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/frontier-design/projectory-web-to-print/internal/api/response"
	"github.com/frontier-design/projectory-web-to-print/internal/progress"
	"github.com/frontier-design/projectory-web-to-print/pkg/jobid"
)

const (
	defaultHeartbeat = 30 * time.Second
	streamBuffer     = 64
)

// streamSubscriber hands events from the emitting job to the connection
// goroutine. Send drops events when the buffer is full.
type streamSubscriber struct {
	events chan progress.Event
}

func newStreamSubscriber() *streamSubscriber {
	return &streamSubscriber{events: make(chan progress.Event, streamBuffer)}
}

func (s *streamSubscriber) Send(e progress.Event) bool {
	select {
	case s.events <- e:
		return true
	default:
		return false
	}
}

// sseWriter writes Server-Sent Events frames and flushes each one.
type sseWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

func startSSE(w http.ResponseWriter) *sseWriter {
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		slog.Warn("failed to clear write deadline for stream", "error", err)
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	return &sseWriter{w: w, rc: rc}
}

func (s *sseWriter) data(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.frame("data: %s\n\n", b)
}

func (s *sseWriter) comment(text string) error {
	return s.frame(": %s\n\n", text)
}

func (s *sseWriter) frame(format string, args ...any) error {
	if _, err := fmt.Fprintf(s.w, format, args...); err != nil {
		return err
	}
	return s.rc.Flush()
}

type connectedFrame struct {
	Type  progress.EventType `json:"type"`
	JobID string             `json:"jobId"`
}

func writeInvalidJobID(w http.ResponseWriter) {
	response.Error(w, http.StatusBadRequest, "Invalid jobId format", map[string]any{
		"message": invalidJobIDMessage,
	})
}

// NewStatusHandler returns an http.HandlerFunc for GET /status/{jobId}.
//
// The stream registers as the job's only subscriber and forwards every event
// it receives. It ends when the client disconnects, a write fails, or a
// heartbeat finds nobody registered for the job any more.
func NewStatusHandler(reg progress.Registry, heartbeat time.Duration) http.HandlerFunc {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "jobId")
		if !jobid.Valid(jobID) {
			writeInvalidJobID(w)
			return
		}

		sse := startSSE(w)
		if err := sse.data(connectedFrame{Type: progress.EventConnected, JobID: jobID}); err != nil {
			slog.Warn("status stream closed before connect", "job_id", jobID, "error", err)
			return
		}

		sub := newStreamSubscriber()
		reg.Register(jobID, sub)
		defer reg.Detach(jobID, sub)
		slog.Info("status stream opened", "job_id", jobID)

		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()

		for {
			select {
			case <-r.Context().Done():
				slog.Info("status stream client disconnected", "job_id", jobID)
				return

			case e := <-sub.events:
				if err := sse.data(e); err != nil {
					slog.Warn("status stream write failed", "job_id", jobID, "error", err)
					return
				}

			case <-ticker.C:
				if !reg.HasSubscriber(jobID) {
					drain(sse, sub)
					slog.Info("status stream ended, job no longer tracked", "job_id", jobID)
					return
				}
				if err := sse.comment("heartbeat"); err != nil {
					slog.Warn("status stream heartbeat failed", "job_id", jobID, "error", err)
					return
				}
			}
		}
	}
}

func drain(sse *sseWriter, sub *streamSubscriber) {
	for {
		select {
		case e := <-sub.events:
			if sse.data(e) != nil {
				return
			}
		default:
			return
		}
	}
}
