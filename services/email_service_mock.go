package services

import (
	"sync"

	"github.com/everestmart/everestmart-api/models"
)

// SentMail is one message recorded by the mock mailer.
type SentMail struct {
	To          string
	OrderID     uint
	ExpiryHours int
}

// MockMailer is a mock implementation of Mailer for testing
type MockMailer struct {
	sent []SentMail
	mu   sync.Mutex
}

// NewMockMailer creates a new mock mailer
func NewMockMailer() *MockMailer {
	return &MockMailer{}
}

// SetAsMockForTesting sets this mock as the global mailer instance for testing
func (m *MockMailer) SetAsMockForTesting() {
	SetMailer(m)
}

// SendOrderConfirmation records the message instead of sending it
func (m *MockMailer) SendOrderConfirmation(to string, order *models.Order, expiryHours int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sent = append(m.sent, SentMail{To: to, OrderID: order.ID, ExpiryHours: expiryHours})
	return nil
}

// Sent returns all recorded messages (for testing assertions)
func (m *MockMailer) Sent() []SentMail {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]SentMail, len(m.sent))
	copy(out, m.sent)
	return out
}
