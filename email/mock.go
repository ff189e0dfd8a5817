package email

import (
	"context"
	"log/slog"
	"sync"
)

// MockProvider is a mock email provider for local development and tests.
type MockProvider struct {
	logger *slog.Logger

	mu   sync.Mutex
	sent []*Message
	fail func(msg *Message) error
}

// NewMockProvider creates a new mock email provider.
func NewMockProvider(logger *slog.Logger) *MockProvider {
	return &MockProvider{logger: logger}
}

func (*MockProvider) Name() string { return "mock" }

// Send logs the email instead of sending it.
func (m *MockProvider) Send(_ context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail != nil {
		if err := m.fail(msg); err != nil {
			return err
		}
	}

	m.sent = append(m.sent, msg)
	m.logger.Info("MOCK EMAIL",
		"to", msg.To,
		"subject", msg.Subject,
		"body_length", len(msg.HTML))
	return nil
}

// Sent returns a copy of every message accepted so far.
func (m *MockProvider) Sent() []*Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Message(nil), m.sent...)
}

// FailWith installs a per-message failure hook for tests.
func (m *MockProvider) FailWith(fn func(msg *Message) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = fn
}
