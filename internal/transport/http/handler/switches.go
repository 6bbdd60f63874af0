package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-dead-mans-switch/internal/application/deadswitch"
	"github.com/go-dead-mans-switch/internal/application/liveness"
	"github.com/go-dead-mans-switch/internal/application/notification"
	"github.com/go-dead-mans-switch/internal/pkg/validate"
)

// SwitchHandler handles switch setup, check-in and beneficiary resend.
type SwitchHandler struct {
	svc        deadswitch.Service
	monitor    liveness.Monitor
	deliveries notification.Service
}

func NewSwitchHandler(svc deadswitch.Service, monitor liveness.Monitor, deliveries notification.Service) *SwitchHandler {
	return &SwitchHandler{svc: svc, monitor: monitor, deliveries: deliveries}
}

type beneficiaryRequest struct {
	Name   string `json:"name" validate:"required,max=120"`
	Email  string `json:"email" validate:"required,email"`
	UserID string `json:"user_id"`
}

// createSwitchRequest is the JSON body, or the "metadata" part of a multipart
// upload whose "file" part carries the encrypted file.
type createSwitchRequest struct {
	IntervalDays      int                  `json:"interval_days" validate:"interval_days"`
	Key               []byte               `json:"key" validate:"required"`
	EncryptedFileHash string               `json:"encrypted_file_hash" validate:"omitempty,len=64,hexadecimal"`
	Beneficiaries     []beneficiaryRequest `json:"beneficiaries" validate:"required,min=1,dive"`
}

func (h *SwitchHandler) Create(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := callerID(w, r)
	if !ok {
		return
	}
	var (
		req  createSwitchRequest
		file io.Reader
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			writeError(w, http.StatusBadRequest, "invalid multipart form")
			return
		}
		if err := json.Unmarshal([]byte(r.FormValue("metadata")), &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid metadata field")
			return
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "missing file field")
			return
		}
		defer f.Close()
		file = f
	} else if !decodeJSON(w, r, &req) {
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	in := deadswitch.CreateInput{
		IntervalDays:      req.IntervalDays,
		Key:               req.Key,
		EncryptedFileHash: req.EncryptedFileHash,
		File:              file,
	}
	for _, b := range req.Beneficiaries {
		in.Beneficiaries = append(in.Beneficiaries, deadswitch.BeneficiaryInput{Name: b.Name, Email: b.Email, UserID: b.UserID})
	}
	created, err := h.svc.Create(r.Context(), ownerID, in)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *SwitchHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := callerID(w, r)
	if !ok {
		return
	}
	switches, err := h.svc.List(r.Context(), ownerID)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, switches)
}

func (h *SwitchHandler) Get(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := callerID(w, r)
	if !ok {
		return
	}
	view, err := h.svc.Get(r.Context(), ownerID, chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *SwitchHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := callerID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), ownerID, chi.URLParam(r, "id")); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "switch deleted"})
}

func (h *SwitchHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := callerID(w, r)
	if !ok {
		return
	}
	sw, err := h.svc.CheckIn(r.Context(), ownerID, chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sw)
}

func (h *SwitchHandler) Resend(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := callerID(w, r)
	if !ok {
		return
	}
	err := h.monitor.ResendBeneficiary(r.Context(), ownerID, chi.URLParam(r, "id"), chi.URLParam(r, "beneficiaryId"))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "share delivered"})
}

// Deliveries lists notifier outcomes for one of the caller's switches.
func (h *SwitchHandler) Deliveries(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := callerID(w, r)
	if !ok {
		return
	}
	switchID := chi.URLParam(r, "id")
	if _, err := h.svc.Get(r.Context(), ownerID, switchID); err != nil {
		httpError(w, err)
		return
	}
	out, err := h.deliveries.ListBySubject(r.Context(), switchID)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
