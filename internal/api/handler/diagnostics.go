package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"

	"github.com/frontier-design/projectory-web-to-print/internal/api/response"
	"github.com/frontier-design/projectory-web-to-print/internal/render"
	"github.com/frontier-design/projectory-web-to-print/pkg/models"
)

// DiagnosticsInfo is the runtime configuration reported by /diagnostics.
type DiagnosticsInfo struct {
	Loader          *render.Loader
	ImagesEnabled   bool
	ProgressBackend string
	BatchSize       int
}

type diagnosticsBody struct {
	render.Status
	WorkingDir        string   `json:"cwd"`
	ServerDirContents []string `json:"serverDirContents,omitempty"`
	ImagesEnabled     bool     `json:"aiImagesEnabled"`
	ProgressBackend   string   `json:"progressBackend"`
	BatchSize         int      `json:"batchSize"`
}

// NewDiagnosticsHandler reports which assets exist and how the server is
// configured.
func NewDiagnosticsHandler(info DiagnosticsInfo) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		body := diagnosticsBody{
			Status:          info.Loader.Inspect(),
			ImagesEnabled:   info.ImagesEnabled,
			ProgressBackend: info.ProgressBackend,
			BatchSize:       info.BatchSize,
		}
		if wd, err := os.Getwd(); err == nil {
			body.WorkingDir = wd
			if entries, err := os.ReadDir(wd); err == nil {
				for _, e := range entries {
					body.ServerDirContents = append(body.ServerDirContents, e.Name())
				}
			}
		}
		response.JSON(w, http.StatusOK, body)
	}
}

// NewDebugHTMLHandler returns the composed page for a list of items without
// rendering it, so layout problems can be inspected in a browser.
func NewDebugHTMLHandler(loader *render.Loader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Items []models.Item `json:"items"`
		}
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				response.Error(w, http.StatusBadRequest, "Invalid JSON body", nil)
				return
			}
		}

		assets, err := loader.Load(nil)
		if err != nil {
			slog.Error("debug html asset load failed", "error", err)
			response.Error(w, http.StatusInternalServerError, err.Error(), nil)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(render.BuildHTML(req.Items, assets)))
	}
}
