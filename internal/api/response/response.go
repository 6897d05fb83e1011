package response

import (
	"encoding/json"
	"maps"
	"net/http"
)

// JSON writes v as the response body with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Error writes {"error": message} merged with extra. Keys in extra never
// override the error message.
func Error(w http.ResponseWriter, status int, message string, extra map[string]any) {
	body := make(map[string]any, len(extra)+1)
	maps.Copy(body, extra)
	body["error"] = message
	JSON(w, status, body)
}
