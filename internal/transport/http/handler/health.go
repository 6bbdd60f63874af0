package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// HealthHandler handles health-check endpoints.
type HealthHandler struct {
	tickRunning func() bool
}

// NewHealthHandler reports the scheduler state through tickRunning, which may be nil.
func NewHealthHandler(tickRunning func() bool) *HealthHandler {
	return &HealthHandler{tickRunning: tickRunning}
}

type healthEnvelope struct {
	Message     string `json:"message"`
	TickRunning bool   `json:"tick_running"`
}

func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	if chi.URLParam(r, "action") != "ping" {
		writeError(w, http.StatusBadRequest, "unknown action")
		return
	}
	out := healthEnvelope{Message: "pong"}
	if h.tickRunning != nil {
		out.TickRunning = h.tickRunning()
	}
	writeJSON(w, http.StatusOK, out)
}
