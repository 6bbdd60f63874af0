package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-dead-mans-switch/internal/application/user"
)

// UserHandler manages contact records used for notifications.
type UserHandler struct {
	svc user.Service
}

func NewUserHandler(svc user.Service) *UserHandler { return &UserHandler{svc: svc} }

func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	uid, ok := callerID(w, r)
	if !ok {
		return
	}
	u, err := h.svc.Get(r.Context(), uid)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *UserHandler) PutMe(w http.ResponseWriter, r *http.Request) {
	uid, ok := callerID(w, r)
	if !ok {
		return
	}
	var req user.ContactRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	u, err := h.svc.SaveContact(r.Context(), uid, req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// Confirm is operator-only: it records out-of-band verification of a user's
// email or phone.
func (h *UserHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req user.ConfirmRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	u, err := h.svc.Confirm(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
