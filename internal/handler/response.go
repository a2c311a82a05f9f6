package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/templui/fintrack/internal/repository"
	"github.com/templui/fintrack/internal/service"
	"github.com/templui/fintrack/internal/storage"
	"github.com/templui/fintrack/internal/validation"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

// writeError maps service errors to responses. Anything unrecognised is an
// internal failure; its details are logged, never sent to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if verr, ok := validation.AsError(err); ok {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error": verr.Message,
			"field": verr.Field,
		})
		return
	}

	switch {
	case errors.Is(err, repository.ErrRecordNotFound),
		errors.Is(err, service.ErrNoAttachment),
		errors.Is(err, storage.ErrNotFound):
		writeErr(w, http.StatusNotFound, "Not found")
	case errors.Is(err, service.ErrUnknownIntent):
		writeErr(w, http.StatusBadRequest, "Bad request")
	default:
		slog.Error("request failed", "error", err, "method", r.Method, "path", r.URL.Path)
		writeErr(w, http.StatusInternalServerError, "Something went wrong")
	}
}
