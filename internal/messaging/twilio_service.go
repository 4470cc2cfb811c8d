package messaging

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dmirchev92/servicetext/internal/models"
	"github.com/dmirchev92/servicetext/internal/twiliosms"
)

// TwilioService implements the Service interface using the Twilio SMS API.
// Inbound SMS arrives via webhooks handled outside this core, so the
// incoming channel only carries messages injected through the API surface.
type TwilioService struct {
	client   twiliosms.Sender
	receipts chan models.DeliveryReceipt
	incoming chan models.IncomingMessage
	done     chan struct{}
	mu       sync.RWMutex
	stopped  bool
}

// NewTwilioService creates a TwilioService around a Twilio SMS client.
func NewTwilioService(client twiliosms.Sender) *TwilioService {
	return &TwilioService{
		client:   client,
		receipts: make(chan models.DeliveryReceipt, DefaultChannelBufferSize),
		incoming: make(chan models.IncomingMessage, DefaultChannelBufferSize),
		done:     make(chan struct{}),
	}
}

// ValidateAndCanonicalizeRecipient validates and canonicalizes an SMS phone
// number.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone(recipient)
}

// Start is a no-op for Twilio (no live event stream).
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop closes channels and stops the service.
func (s *TwilioService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.done)

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(s.receipts)
		close(s.incoming)
	}()
	return nil
}

// SendMessage sends a message via Twilio and emits a receipt.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		return ErrServiceStopped
	}
	s.mu.RUnlock()

	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService SendMessage validation error", "error", err, "to", to)
		return err
	}

	if err := s.client.SendMessage(ctx, canonicalTo, body); err != nil {
		return err
	}
	s.safeEmitReceipt(models.DeliveryReceipt{To: canonicalTo, Status: models.MessageStatusSent, Time: time.Now().Unix()})
	return nil
}

// Receipts returns the delivery receipt channel.
func (s *TwilioService) Receipts() <-chan models.DeliveryReceipt {
	return s.receipts
}

// Incoming returns the inbound message channel.
func (s *TwilioService) Incoming() <-chan models.IncomingMessage {
	return s.incoming
}

// InjectIncoming feeds an inbound SMS (e.g. from a webhook handler) into the
// incoming channel.
func (s *TwilioService) InjectIncoming(m models.IncomingMessage) {
	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		return
	}
	s.mu.RUnlock()
	select {
	case s.incoming <- m:
	default:
		slog.Warn("TwilioService incoming channel full, dropping message", "from", m.From)
	}
}

func (s *TwilioService) safeEmitReceipt(r models.DeliveryReceipt) {
	select {
	case <-s.done:
	case s.receipts <- r:
	default:
		slog.Warn("TwilioService receipt channel full, dropping receipt", "to", r.To)
	}
}
