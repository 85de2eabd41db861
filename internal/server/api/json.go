// Package api provides the HTTP handlers of the control surface.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/session"
)

type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// StatusFor maps session and configuration errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrDeviceBusy):
		return http.StatusConflict
	case errors.Is(err, session.ErrProgramMismatch), errors.Is(err, session.ErrUnknownProgram):
		return http.StatusBadRequest
	case errors.Is(err, config.ErrInvalid):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
