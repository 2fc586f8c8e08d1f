package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"botsim/pkg/engine"
	"botsim/pkg/fleet"

	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// decodeJSON reads a single JSON value, rejecting unknown fields.
func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("trailing data after JSON body")
	}
	return nil
}

// writeFleetError maps fleet sentinels onto HTTP status codes.
func writeFleetError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, fleet.ErrBotNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, fleet.ErrBotNotRunning):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, fleet.ErrNoButton):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, fleet.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

// writeSimulationError reports engine failures with their kind.
func writeSimulationError(w http.ResponseWriter, err error) {
	kind := "execution"
	switch {
	case errors.Is(err, engine.ErrModuleNotAvailable):
		kind = "module_not_available"
	case errors.Is(err, engine.ErrNoBotInstance):
		kind = "no_bot_instance"
	case errors.Is(err, engine.ErrMultipleInstances):
		kind = "multiple_instances"
	}
	writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error(), "kind": kind})
}

// botFromPath resolves {botID}, which may also be a name or unique ID prefix.
func (s *Server) botFromPath(w http.ResponseWriter, r *http.Request) (fleet.Bot, bool) {
	b, err := s.fleet.Find(chi.URLParam(r, "botID"))
	if err != nil {
		writeFleetError(w, err)
		return fleet.Bot{}, false
	}
	return b, true
}

func parseTail(raw string) int {
	tail := 200
	if raw == "" {
		return tail
	}
	if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		tail = n
	}
	if tail > 5000 {
		tail = 5000
	}
	return tail
}
