package handler

import (
	"net/http"

	"github.com/flavien-hugs/apikey-hub/internal/model"
	"github.com/flavien-hugs/apikey-hub/internal/store"
)

// SystemHandler serves the unauthenticated liveness and readiness probes.
type SystemHandler struct {
	store   *store.Store
	version string
}

// NewSystemHandler creates a SystemHandler.
func NewSystemHandler(st *store.Store, version string) *SystemHandler {
	return &SystemHandler{store: st, version: version}
}

// Healthz reports process liveness.
// GET /healthz
func (h *SystemHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.version,
	})
}

// Readyz reports readiness by pinging the key record store.
// GET /readyz
func (h *SystemHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, model.CodeInternalError,
			"Store unavailable: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Ping is the tiny connectivity check kept for clients of the historical
// deployment.
// GET /@ping
func (h *SystemHandler) Ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "pong !"})
}
