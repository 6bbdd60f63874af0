package notify

import (
	"context"
	"log/slog"

	smtpinfra "github.com/go-dead-mans-switch/internal/infrastructure/smtp"
	snsinfra "github.com/go-dead-mans-switch/internal/infrastructure/sns"
)

// Provider sends email over SMTP and SMS over AWS SNS.
type Provider struct {
	mailer  smtpinfra.Mailer
	sms     snsinfra.SMSSender
	catalog *Catalog
}

func NewProvider(mailer smtpinfra.Mailer, sms snsinfra.SMSSender, catalog *Catalog) *Provider {
	return &Provider{mailer: mailer, sms: sms, catalog: catalog}
}

func (p *Provider) Send(ctx context.Context, msg Message) Result {
	if msg.Recipient == "" {
		return failed("no recipient")
	}
	subject, body, err := p.catalog.Render(msg.Template, msg.Payload)
	if err != nil {
		return failed("%v", err)
	}

	var id string
	switch msg.Channel {
	case ChannelEmail:
		if p.mailer == nil {
			return failed("email channel not configured")
		}
		id, err = p.mailer.SendEmail(msg.Recipient, subject, body)
	case ChannelSMS:
		if p.sms == nil {
			return failed("sms channel not configured")
		}
		id, err = p.sms.SendSMS(ctx, msg.Recipient, body)
	default:
		return failed("unknown channel %q", msg.Channel)
	}
	if err != nil {
		slog.Warn("notification failed", "channel", msg.Channel, "template", msg.Template, "err", err)
		return failed("%s send: %v", msg.Channel, err)
	}
	return Result{Success: true, MessageID: id}
}
