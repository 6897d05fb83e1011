package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/frontier-design/projectory-web-to-print/internal/api/response"
)

const readyTimeout = 2 * time.Second

// Pinger is a dependency the readiness probe checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health is the liveness probe.
func Health(w http.ResponseWriter, _ *http.Request) {
	response.JSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "PDF server is running",
	})
}

// NewReadyHandler checks each configured dependency. Nil entries are skipped.
func NewReadyHandler(deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		checks := make(map[string]string, len(deps))
		degraded := false
		for name, p := range deps {
			if p == nil {
				continue
			}
			if err := p.Ping(ctx); err != nil {
				checks[name] = "degraded"
				degraded = true
				continue
			}
			checks[name] = "ok"
		}

		if degraded {
			response.JSON(w, http.StatusServiceUnavailable, map[string]any{
				"status":   "degraded",
				"services": checks,
			})
			return
		}

		response.JSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
