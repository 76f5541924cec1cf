// Package api exposes the HTTP control surfaces: the analysis backend, the
// red-team service, and the tracker integration service.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/sentinelai/sentinel/internal/logging"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Op().Warn("response encode failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"detail": message})
}
