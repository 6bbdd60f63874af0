package handler

import (
	"context"
	"net/http"

	"github.com/go-dead-mans-switch/internal/application/scheduler"
)

type ticker interface {
	Tick(ctx context.Context) (scheduler.Report, error)
}

// AdminHandler exposes operator actions.
type AdminHandler struct {
	sched ticker
}

func NewAdminHandler(sched ticker) *AdminHandler { return &AdminHandler{sched: sched} }

// Tick runs one scheduler pass synchronously. A concurrent tick yields 409.
func (h *AdminHandler) Tick(w http.ResponseWriter, r *http.Request) {
	report, err := h.sched.Tick(r.Context())
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
