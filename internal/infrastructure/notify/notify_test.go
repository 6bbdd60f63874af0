package notify

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-dead-mans-switch/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockMailer struct{ mock.Mock }

func (m *mockMailer) SendEmail(to, subject, body string) (string, error) {
	args := m.Called(to, subject, body)
	return args.String(0), args.Error(1)
}

type mockSMS struct{ mock.Mock }

func (m *mockSMS) SendSMS(ctx context.Context, to, message string) (string, error) {
	args := m.Called(ctx, to, message)
	return args.String(0), args.Error(1)
}

func defaultCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := LoadCatalog("")
	require.NoError(t, err)
	return c
}

func recoveryPayload() map[string]string {
	return map[string]string{
		"beneficiary_name": "Bob",
		"owner_name":       "Alice",
		"last_check_in":    "2026-01-01",
		"share":            "dms2000a",
		"switch_share":     "dms3000b",
		"file_hash":        "abc123",
		"download_url":     "",
	}
}

func TestCatalog_EmbeddedTemplatesRender(t *testing.T) {
	c := defaultCatalog(t)
	subject, body, err := c.Render(TemplateRecoveryShare, recoveryPayload())
	require.NoError(t, err)
	assert.NotEmpty(t, subject)
	assert.Contains(t, body, "dms2000a")
	assert.Contains(t, body, "dms3000b")
	assert.Contains(t, body, "abc123")
	assert.NotContains(t, body, "Download")

	for _, name := range []string{
		TemplateOwnerEmailCheck, TemplateOwnerSMSCheck, TemplateClaimSubmitted, TemplateClaimEscalated,
		TemplateVerificationComplete, TemplateClaimRejected, TemplateKeyRetrieved,
	} {
		_, ok := c.Templates[name]
		assert.True(t, ok, name)
	}
}

func TestCatalog_MissingPayloadKeyFails(t *testing.T) {
	c := defaultCatalog(t)
	p := recoveryPayload()
	delete(p, "share")
	_, _, err := c.Render(TemplateRecoveryShare, p)
	assert.Error(t, err)

	_, _, err = c.Render("nope", nil)
	assert.ErrorContains(t, err, "unknown template")
}

func TestLoadCatalog_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.toml")
	require.NoError(t, os.WriteFile(path, []byte("[templates.hello]\nsubject = \"Hi {{.name}}\"\nbody = \"b\"\n"), 0o600))
	c, err := LoadCatalog(path)
	require.NoError(t, err)
	subject, _, err := c.Render("hello", map[string]string{"name": "Ann"})
	require.NoError(t, err)
	assert.Equal(t, "Hi Ann", subject)

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestProvider_Email(t *testing.T) {
	mailer := new(mockMailer)
	mailer.On("SendEmail", "bob@example.com", mock.Anything, mock.AnythingOfType("string")).Return("<id@x>", nil)
	p := NewProvider(mailer, nil, defaultCatalog(t))

	res := p.Send(context.Background(), Message{
		Channel: ChannelEmail, Recipient: "bob@example.com", Template: TemplateRecoveryShare, Payload: recoveryPayload(),
	})
	assert.True(t, res.Success)
	assert.Equal(t, "<id@x>", res.MessageID)
	mailer.AssertExpectations(t)
}

func TestProvider_SMSFailureIsAResult(t *testing.T) {
	sms := new(mockSMS)
	sms.On("SendSMS", mock.Anything, "+15550100", mock.Anything).Return("", errors.New("throttled"))
	p := NewProvider(nil, sms, defaultCatalog(t))

	res := p.Send(context.Background(), Message{
		Channel: ChannelSMS, Recipient: "+15550100", Template: TemplateOwnerSMSCheck,
		Payload: map[string]string{"attempt": "1", "response_url": "https://x/r"},
	})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "throttled")
}

func TestProvider_Rejects(t *testing.T) {
	p := NewProvider(nil, nil, defaultCatalog(t))
	ctx := context.Background()

	assert.False(t, p.Send(ctx, Message{Channel: ChannelEmail, Template: TemplateClaimSubmitted}).Success)
	assert.False(t, p.Send(ctx, Message{
		Channel: "pigeon", Recipient: "x", Template: TemplateClaimSubmitted,
		Payload: map[string]string{"beneficiary_name": "B", "claim_id": "c"},
	}).Success)
	res := p.Send(ctx, Message{
		Channel: ChannelEmail, Recipient: "x", Template: TemplateClaimSubmitted,
		Payload: map[string]string{"beneficiary_name": "B", "claim_id": "c"},
	})
	assert.Equal(t, "email channel not configured", res.Error)
}

func TestMock_RecordsAndInjectsFailures(t *testing.T) {
	m := NewMock(defaultCatalog(t))
	ctx := context.Background()
	msg := Message{Channel: ChannelEmail, Recipient: "bob@example.com", Template: TemplateRecoveryShare, Payload: recoveryPayload()}

	res := m.Send(ctx, msg)
	require.True(t, res.Success)
	assert.NotEmpty(t, res.MessageID)

	m.FailFor("bob@example.com", "mailbox full")
	res = m.Send(ctx, msg)
	assert.False(t, res.Success)
	assert.Equal(t, "mailbox full", res.Error)

	m.Recover("bob@example.com")
	assert.True(t, m.Send(ctx, msg).Success)
	assert.Len(t, m.SentTo("bob@example.com"), 2)
	assert.Len(t, m.Sent(), 2)
}

func TestNew_SelectsByMode(t *testing.T) {
	n, err := New(&config.Config{NotifierMode: "mock"}, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &Mock{}, n)

	n, err = New(&config.Config{NotifierMode: "provider"}, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &Provider{}, n)

	_, err = New(&config.Config{NotifierMode: "carrier-pigeon"}, nil, nil)
	assert.Error(t, err)
}
