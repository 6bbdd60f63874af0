package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Mock records messages in memory instead of sending them. Templates are still
// rendered so payload mistakes surface in development.
type Mock struct {
	catalog *Catalog

	mu       sync.Mutex
	sent     []Message
	failures map[string]string // recipient -> error
}

func NewMock(catalog *Catalog) *Mock {
	return &Mock{catalog: catalog, failures: make(map[string]string)}
}

func (m *Mock) Send(_ context.Context, msg Message) Result {
	if msg.Channel != ChannelEmail && msg.Channel != ChannelSMS {
		return failed("unknown channel %q", msg.Channel)
	}
	if m.catalog != nil {
		if _, _, err := m.catalog.Render(msg.Template, msg.Payload); err != nil {
			return failed("%v", err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if reason, ok := m.failures[msg.Recipient]; ok {
		return failed("%s", reason)
	}
	m.sent = append(m.sent, msg)
	id := uuid.NewString()
	slog.Debug("mock notification", "channel", msg.Channel, "recipient", msg.Recipient, "template", msg.Template, "message_id", id)
	return Result{Success: true, MessageID: id}
}

// FailFor makes every send to recipient fail with reason.
func (m *Mock) FailFor(recipient, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[recipient] = reason
}

// Recover clears an injected failure.
func (m *Mock) Recover(recipient string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.failures, recipient)
}

// Sent returns a copy of every successfully sent message.
func (m *Mock) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.sent...)
}

// SentTo returns the messages sent to recipient.
func (m *Mock) SentTo(recipient string) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Message
	for _, msg := range m.sent {
		if msg.Recipient == recipient {
			out = append(out, msg)
		}
	}
	return out
}
