package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/session"
	"github.com/ayusman/mudra/internal/store"
)

// maxProfileSize bounds a calibration upload.
const maxProfileSize = 64 << 10

// CalibrationHandler serves per-program threshold profiles.
type CalibrationHandler struct {
	store *store.Store
	base  config.Config
}

// NewCalibrationHandler creates a CalibrationHandler. Uploaded profiles are
// validated against base.
func NewCalibrationHandler(s *store.Store, base config.Config) *CalibrationHandler {
	return &CalibrationHandler{store: s, base: base}
}

// ServeHTTP handles GET, PUT and DELETE on /api/calibration/{program}.
func (h *CalibrationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/api/calibration"), "/")
	p, err := session.ParseProgram(name)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w, p)
	case http.MethodPut:
		h.put(w, r, p)
	case http.MethodDelete:
		h.delete(w, p)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *CalibrationHandler) get(w http.ResponseWriter, p session.Program) {
	profile, err := h.store.Calibration().Get(string(p))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "No calibration for "+string(p))
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get calibration")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *CalibrationHandler) put(w http.ResponseWriter, r *http.Request, p session.Program) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxProfileSize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read body")
		return
	}
	if !json.Valid(body) {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if _, err := session.Calibrate(p, h.base, body); err != nil {
		writeError(w, StatusFor(err), err.Error())
		return
	}
	if err := h.store.Calibration().Put(string(p), body); err != nil {
		writeError(w, http.StatusBadRequest, "Calibration must be a JSON object")
		return
	}
	writeJSON(w, http.StatusOK, json.RawMessage(body))
}

func (h *CalibrationHandler) delete(w http.ResponseWriter, p session.Program) {
	if err := h.store.Calibration().Delete(string(p)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "No calibration for "+string(p))
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete calibration")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
