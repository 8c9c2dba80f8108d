package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/programista/programista/internal/domain"
	"github.com/programista/programista/internal/favorites"
	"github.com/programista/programista/internal/feedback"
)

// Envelope is the shape of every JSON answer.
type Envelope struct {
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Success bool   `json:"success"`
}

func writeJSON(w http.ResponseWriter, status int, data any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(Envelope{Success: status < 400, Data: data}); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(Envelope{Error: message}); err != nil {
		logger.Error("failed to encode error response", "error", err)
	}
}

// handleError maps domain errors to status codes. Anything unknown is a 500.
func handleError(w http.ResponseWriter, err error, logger *slog.Logger) {
	var status int
	switch {
	case errors.Is(err, domain.ErrUnknownProvider), errors.Is(err, domain.ErrUnknownSource),
		errors.Is(err, favorites.ErrNotFavorite):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidRange), errors.Is(err, feedback.ErrInvalidReport):
		status = http.StatusBadRequest
	case errors.Is(err, feedback.ErrNotConfigured), errors.Is(err, domain.ErrRemoteSearchUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrTransientProvider), errors.Is(err, domain.ErrPermanentProvider),
		errors.Is(err, domain.ErrParse):
		status = http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	default:
		logger.Error("unhandled error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error", logger)
		return
	}
	writeError(w, status, err.Error(), logger)
}
