package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-dead-mans-switch/internal/application/claim"
	"github.com/go-dead-mans-switch/internal/application/recovery"
	"github.com/go-dead-mans-switch/internal/pkg/validate"
)

// ClaimHandler drives death claims for beneficiaries and owners.
type ClaimHandler struct {
	sm claim.StateMachine
	gw recovery.Gateway
}

func NewClaimHandler(sm claim.StateMachine, gw recovery.Gateway) *ClaimHandler {
	return &ClaimHandler{sm: sm, gw: gw}
}

type submitClaimRequest struct {
	LinkID string `json:"link_id" validate:"required"`
}

type respondRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type respondTokenRequest struct {
	Token  string `json:"token" validate:"required,len=64,hexadecimal"`
	Reason string `json:"reason" validate:"max=500"`
}

type recoverRequest struct {
	Share string `json:"share" validate:"omitempty,share"`
}

type keyRetrievedRequest struct {
	// Format is checked by the state machine after its claim guards.
	TxHash string `json:"tx_hash" validate:"required"`
}

func (h *ClaimHandler) Submit(w http.ResponseWriter, r *http.Request) {
	beneficiaryID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req submitClaimRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	c, err := h.sm.Submit(r.Context(), beneficiaryID, req.LinkID)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *ClaimHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	view, err := h.sm.GetStatus(r.Context(), chi.URLParam(r, "id"), caller)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *ClaimHandler) Respond(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req respondRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	c, err := h.sm.Respond(r.Context(), chi.URLParam(r, "id"), ownerID, req.Reason)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// RespondWithToken is public: the emailed token is the credential.
func (h *ClaimHandler) RespondWithToken(w http.ResponseWriter, r *http.Request) {
	var req respondTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid token")
		return
	}
	c, err := h.sm.RespondWithToken(r.Context(), req.Token, req.Reason)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "claim " + c.ClaimID + " rejected"})
}

func (h *ClaimHandler) Recover(w http.ResponseWriter, r *http.Request) {
	beneficiaryID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req recoverRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid shares")
		return
	}
	key, err := h.gw.RecoverKey(r.Context(), chi.URLParam(r, "id"), beneficiaryID, req.Share)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, secretResponse{Secret: key})
}

func (h *ClaimHandler) KeyRetrieved(w http.ResponseWriter, r *http.Request) {
	beneficiaryID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req keyRetrievedRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	c, err := h.sm.MarkKeyRetrieved(r.Context(), chi.URLParam(r, "id"), beneficiaryID, req.TxHash)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
