package smtp

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/go-dead-mans-switch/internal/config"
	"github.com/go-dead-mans-switch/internal/pkg/id"
)

// Mailer sends emails.
type Mailer interface {
	SendEmail(to, subject, body string) (messageID string, err error)
}

type mailer struct {
	host     string
	port     string
	from     string
	username string
	password string
	send     func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewMailer(cfg *config.Config) Mailer {
	return &mailer{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		from:     cfg.SMTPFrom,
		username: cfg.SMTPUsername,
		password: cfg.SMTPPassword,
		send:     smtp.SendMail,
	}
}

func (m *mailer) SendEmail(to, subject, body string) (string, error) {
	if strings.ContainsAny(to, "\r\n") || strings.ContainsAny(subject, "\r\n") {
		return "", fmt.Errorf("header injection in recipient or subject")
	}
	domainPart := "localhost"
	if at := strings.LastIndex(m.from, "@"); at >= 0 {
		domainPart = m.from[at+1:]
	}
	messageID := fmt.Sprintf("<%s@%s>", id.New(), domainPart)
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMessage-ID: %s\r\n\r\n%s", m.from, to, subject, messageID, body)
	addr := fmt.Sprintf("%s:%s", m.host, m.port)

	var auth smtp.Auth
	if m.username != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}

	if err := m.send(addr, auth, m.from, []string{to}, []byte(msg)); err != nil {
		return "", err
	}
	return messageID, nil
}
