// Package notify delivers templated email and SMS messages. Callers treat a
// failed Result as data to record, never as a reason to undo a transition.
package notify

import (
	"context"
	"fmt"

	"github.com/go-dead-mans-switch/internal/config"
	smtpinfra "github.com/go-dead-mans-switch/internal/infrastructure/smtp"
	snsinfra "github.com/go-dead-mans-switch/internal/infrastructure/sns"
)

const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// Template names in the catalog.
const (
	TemplateRecoveryShare        = "recovery_share"
	TemplateOwnerEmailCheck      = "owner_email_check"
	TemplateOwnerSMSCheck        = "owner_sms_check"
	TemplateClaimSubmitted       = "claim_submitted"
	TemplateClaimEscalated       = "claim_escalated"
	TemplateVerificationComplete = "claim_verification_complete"
	TemplateClaimRejected        = "claim_rejected"
	TemplateKeyRetrieved         = "claim_key_retrieved"
)

// Message is one logical notification.
type Message struct {
	Channel   string
	Recipient string
	Template  string
	Payload   map[string]string
}

// Result is the outcome of a Send. Error is set when Success is false.
type Result struct {
	Success   bool
	MessageID string
	Error     string
}

// Notifier sends messages. Send is safe to call repeatedly with the same
// content; deduplication is the caller's job.
type Notifier interface {
	Send(ctx context.Context, msg Message) Result
}

func failed(format string, args ...any) Result {
	return Result{Error: fmt.Sprintf(format, args...)}
}

// New selects the implementation named by cfg.NotifierMode.
func New(cfg *config.Config, mailer smtpinfra.Mailer, sms snsinfra.SMSSender) (Notifier, error) {
	catalog, err := LoadCatalog(cfg.NotifyTemplatesPath)
	if err != nil {
		return nil, err
	}
	switch cfg.NotifierMode {
	case "mock":
		return NewMock(catalog), nil
	case "provider", "":
		return NewProvider(mailer, sms, catalog), nil
	default:
		return nil, fmt.Errorf("unknown notifier mode %q", cfg.NotifierMode)
	}
}
