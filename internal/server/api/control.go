package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/ayusman/mudra/internal/session"
)

// Controller starts and terminates programs.
type Controller interface {
	Start(ctx context.Context, name string, replace bool) (*session.Session, error)
	Terminate(name string) error
}

// ControlHandler serves POST /api/start and POST /api/terminate.
type ControlHandler struct {
	controller Controller
}

// NewControlHandler creates a ControlHandler over c.
func NewControlHandler(c Controller) *ControlHandler {
	return &ControlHandler{controller: c}
}

type programRequest struct {
	Program string `json:"program"`
	// Replace stops a running program instead of rejecting the start.
	Replace bool `json:"replace"`
}

type startResponse struct {
	Message string `json:"message"`
	Session string `json:"session"`
	Program string `json:"program"`
}

func decodeProgram(w http.ResponseWriter, r *http.Request) (programRequest, bool) {
	var req programRequest
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return req, false
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return req, false
	}
	if req.Program == "" {
		writeError(w, http.StatusBadRequest, "Program not specified")
		return req, false
	}
	return req, true
}

// Start handles POST /api/start.
func (h *ControlHandler) Start(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeProgram(w, r)
	if !ok {
		return
	}

	s, err := h.controller.Start(r.Context(), req.Program, req.Replace)
	if err != nil {
		log.Printf("api: start %s: %v", req.Program, err)
		writeError(w, StatusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, startResponse{
		Message: fmt.Sprintf("Program %s started", s.Program),
		Session: s.ID,
		Program: string(s.Program),
	})
}

// Terminate handles POST /api/terminate.
func (h *ControlHandler) Terminate(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeProgram(w, r)
	if !ok {
		return
	}

	if err := h.controller.Terminate(req.Program); err != nil {
		writeError(w, StatusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: fmt.Sprintf("Program %s terminated", req.Program)})
}
