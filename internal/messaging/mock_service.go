package messaging

import (
	"context"
	"sync"

	"github.com/dmirchev92/servicetext/internal/models"
)

// MockService records sent messages in memory. It implements Service and is
// shared by tests across packages.
type MockService struct {
	mu       sync.Mutex
	sent     []models.OutboundMessage
	receipts chan models.DeliveryReceipt
	incoming chan models.IncomingMessage
	SendErr  error
}

// NewMockService creates an empty MockService.
func NewMockService() *MockService {
	return &MockService{
		receipts: make(chan models.DeliveryReceipt, DefaultChannelBufferSize),
		incoming: make(chan models.IncomingMessage, DefaultChannelBufferSize),
	}
}

// ValidateAndCanonicalizeRecipient applies the standard phone rules.
func (s *MockService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone(recipient)
}

// SendMessage records the message, or fails with SendErr when set.
func (s *MockService) SendMessage(ctx context.Context, to string, body string) error {
	if s.SendErr != nil {
		return s.SendErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, models.OutboundMessage{Recipient: to, Text: body})
	return nil
}

// Start is a no-op.
func (s *MockService) Start(ctx context.Context) error { return nil }

// Stop is a no-op.
func (s *MockService) Stop() error { return nil }

// Receipts returns the receipt channel.
func (s *MockService) Receipts() <-chan models.DeliveryReceipt { return s.receipts }

// Incoming returns the inbound message channel.
func (s *MockService) Incoming() <-chan models.IncomingMessage { return s.incoming }

// Sent returns a copy of the recorded messages.
func (s *MockService) Sent() []models.OutboundMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.OutboundMessage, len(s.sent))
	copy(out, s.sent)
	return out
}
