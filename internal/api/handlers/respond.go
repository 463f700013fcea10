package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/recallhq/memory-api/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeAppError maps a service error onto the REST taxonomy. Internal detail
// is logged, never echoed to the client.
func writeAppError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	msg := apperr.Message(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "kind", apperr.KindOf(err).String(), "error", err)
	}
	if apperr.KindOf(err) == apperr.Internal {
		msg = "Internal server error"
	}
	writeError(w, status, msg)
}
