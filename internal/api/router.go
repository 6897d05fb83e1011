package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	mw "github.com/frontier-design/projectory-web-to-print/internal/api/middleware"
	"github.com/frontier-design/projectory-web-to-print/internal/api/response"
	"github.com/frontier-design/projectory-web-to-print/pkg/models"
)

// Dependencies holds all handler and middleware dependencies for the router.
// Auth and RateLimit are optional; nil disables them.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler      http.HandlerFunc
	ReadyHandler       http.HandlerFunc
	DiagnosticsHandler http.HandlerFunc
	DebugHTMLHandler   http.HandlerFunc
	GenerateHandler    http.HandlerFunc
	StatusHandler      http.HandlerFunc
	TestSSEHandler     http.HandlerFunc
	JobHandler         http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RealIP)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	r.Use(mw.CORS)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusNotFound, "Not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed", nil)
	})

	r.Get("/health", orNotImplemented(deps.HealthHandler))
	r.Get("/ready", orNotImplemented(deps.ReadyHandler))
	r.Get("/diagnostics", orNotImplemented(deps.DiagnosticsHandler))
	r.Post("/diagnostics/debug-html", orNotImplemented(deps.DebugHTMLHandler))

	// EventSource cannot send headers, so streams stay public.
	r.Get("/status/{jobId}", orNotImplemented(deps.StatusHandler))
	r.Get("/test-sse/{jobId}", orNotImplemented(deps.TestSSEHandler))

	r.Group(func(r chi.Router) {
		if deps.Auth != nil {
			r.Use(deps.Auth.Authenticate)
			r.Use(deps.Auth.RequireScope(models.ScopeGenerate))
		}
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit.Limit)
		}
		r.Post("/generate-pdfs", orNotImplemented(deps.GenerateHandler))
	})

	r.Group(func(r chi.Router) {
		if deps.Auth != nil {
			r.Use(deps.Auth.Authenticate)
			r.Use(deps.Auth.RequireScope(models.ScopeHistory))
		}
		r.Get("/jobs/{jobId}", orNotImplemented(deps.JobHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "Endpoint not enabled", nil)
	}
}
