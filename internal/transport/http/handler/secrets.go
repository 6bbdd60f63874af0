package handler

import (
	"net/http"

	"github.com/go-dead-mans-switch/internal/application/recovery"
	"github.com/go-dead-mans-switch/internal/pkg/validate"
)

// SecretHandler exposes the stateless split and reconstruct operations.
type SecretHandler struct {
	gw recovery.Gateway
}

func NewSecretHandler(gw recovery.Gateway) *SecretHandler { return &SecretHandler{gw: gw} }

type splitRequest struct {
	Secret []byte `json:"secret"` // base64 in JSON
}

type splitResponse struct {
	Shares []string `json:"shares"`
}

type reconstructRequest struct {
	ShareA string `json:"share_a" validate:"required,share"`
	ShareB string `json:"share_b" validate:"required,share"`
}

type secretResponse struct {
	Secret []byte `json:"secret"`
}

func (h *SecretHandler) Split(w http.ResponseWriter, r *http.Request) {
	var req splitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	shares, err := h.gw.SplitSecret(req.Secret)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, splitResponse{Shares: shares[:]})
}

func (h *SecretHandler) Reconstruct(w http.ResponseWriter, r *http.Request) {
	var req reconstructRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid shares")
		return
	}
	secret, err := h.gw.ReconstructSecret(req.ShareA, req.ShareB)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, secretResponse{Secret: secret})
}
