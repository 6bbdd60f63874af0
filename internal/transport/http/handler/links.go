package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-dead-mans-switch/internal/application/link"
	"github.com/go-dead-mans-switch/internal/pkg/validate"
)

// LinkHandler manages owner-to-beneficiary links.
type LinkHandler struct {
	svc link.Service
}

func NewLinkHandler(svc link.Service) *LinkHandler { return &LinkHandler{svc: svc} }

type createLinkRequest struct {
	SwitchID      string `json:"switch_id" validate:"required"`
	BeneficiaryID string `json:"beneficiary_id" validate:"required"`
}

func (h *LinkHandler) Create(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req createLinkRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	l, err := h.svc.Create(r.Context(), ownerID, req.SwitchID, req.BeneficiaryID)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

func (h *LinkHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := callerID(w, r)
	if !ok {
		return
	}
	links, err := h.svc.ListByOwner(r.Context(), ownerID)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, links)
}

func (h *LinkHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := callerID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Revoke(r.Context(), ownerID, chi.URLParam(r, "id")); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "link revoked"})
}
