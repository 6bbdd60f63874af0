package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")

	// ErrDeliveryFailed means the notifier rejected or failed a message.
	ErrDeliveryFailed = errors.New("delivery failed")
)

// State-machine guard violations. These are returned as rejected operations and
// never abort a scheduler tick.
var (
	ErrClaimNotFound          = errors.New("claim not found")
	ErrClaimNotAuthorized     = errors.New("claim not authorized")
	ErrDuplicateActiveClaim   = errors.New("duplicate active claim")
	ErrInvalidStageTransition = errors.New("invalid stage transition")
	ErrAlreadyTriggered       = errors.New("recovery already triggered")

	// ErrCheckedIn means the owner checked in after the deadline was observed.
	ErrCheckedIn = errors.New("owner checked in")
)
