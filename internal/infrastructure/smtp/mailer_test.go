package smtp

import (
	"errors"
	"net/smtp"
	"testing"

	"github.com/go-dead-mans-switch/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendEmail_BuildsMessage(t *testing.T) {
	m := NewMailer(&config.Config{SMTPHost: "mail", SMTPPort: "25", SMTPFrom: "noreply@vault.example"}).(*mailer)
	var gotAddr string
	var gotMsg []byte
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr = addr
		gotMsg = msg
		assert.Nil(t, a)
		assert.Equal(t, []string{"owner@example.com"}, to)
		return nil
	}

	msgID, err := m.SendEmail("owner@example.com", "Are you there?", "body")
	require.NoError(t, err)
	assert.Equal(t, "mail:25", gotAddr)
	assert.Contains(t, msgID, "@vault.example>")
	assert.Contains(t, string(gotMsg), "Message-ID: "+msgID)
	assert.Contains(t, string(gotMsg), "Subject: Are you there?\r\n")
}

func TestSendEmail_RejectsHeaderInjection(t *testing.T) {
	m := NewMailer(&config.Config{SMTPFrom: "noreply@vault.example"}).(*mailer)
	m.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("send must not be called")
		return nil
	}
	_, err := m.SendEmail("a@example.com\r\nBcc: x@example.com", "s", "b")
	assert.Error(t, err)
}

func TestSendEmail_TransportError(t *testing.T) {
	m := NewMailer(&config.Config{SMTPFrom: "noreply@vault.example", SMTPUsername: "u"}).(*mailer)
	m.send = func(_ string, a smtp.Auth, _ string, _ []string, _ []byte) error {
		assert.NotNil(t, a)
		return errors.New("connection refused")
	}
	_, err := m.SendEmail("a@example.com", "s", "b")
	assert.ErrorContains(t, err, "connection refused")
}
