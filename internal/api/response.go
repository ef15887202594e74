package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/michelskapp-design/3DFANS/internal/models"
)

// writeJSONResponse writes a standard JSON API response with the given status
// code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response models.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("writeJSONResponse: failed to encode response", "error", err)
	}
}
