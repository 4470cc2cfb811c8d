package messaging

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dmirchev92/servicetext/internal/models"
	"github.com/dmirchev92/servicetext/internal/whatsapp"
)

// WhatsAppService implements the Service interface over the whatsmeow
// wrapper.
type WhatsAppService struct {
	client   whatsapp.Sender
	receipts chan models.DeliveryReceipt
	incoming chan models.IncomingMessage
	done     chan struct{}
	mu       sync.RWMutex
	stopped  bool
}

// eventSource is implemented by clients that surface inbound messages.
type eventSource interface {
	OnIncomingMessage(func(models.IncomingMessage))
}

// NewWhatsAppService creates a WhatsAppService around a WhatsApp client.
func NewWhatsAppService(client whatsapp.Sender) *WhatsAppService {
	return &WhatsAppService{
		client:   client,
		receipts: make(chan models.DeliveryReceipt, DefaultChannelBufferSize),
		incoming: make(chan models.IncomingMessage, DefaultChannelBufferSize),
		done:     make(chan struct{}),
	}
}

// ValidateAndCanonicalizeRecipient validates and canonicalizes a WhatsApp
// phone number.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone(recipient)
}

// Start subscribes to inbound message events when the client supports them.
func (s *WhatsAppService) Start(ctx context.Context) error {
	if src, ok := s.client.(eventSource); ok {
		src.OnIncomingMessage(func(msg models.IncomingMessage) {
			s.safeEmitIncoming(msg)
		})
		slog.Debug("WhatsAppService subscribed to incoming messages")
	}
	return nil
}

// Stop closes channels and stops the service.
func (s *WhatsAppService) Stop() error {
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

// SendMessage sends a message via WhatsApp and emits a receipt.
func (s *WhatsAppService) SendMessage(ctx context.Context, to string, body string) error {
	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		return ErrServiceStopped
	}
	s.mu.RUnlock()

	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("WhatsAppService SendMessage validation error", "error", err, "to", to)
		return err
	}

	if err := s.client.SendMessage(ctx, canonicalTo, body); err != nil {
		return err
	}
	s.safeEmitReceipt(models.DeliveryReceipt{To: canonicalTo, Status: models.MessageStatusSent, Time: time.Now().Unix()})
	return nil
}

// Receipts returns the delivery receipt channel.
func (s *WhatsAppService) Receipts() <-chan models.DeliveryReceipt {
	return s.receipts
}

// Incoming returns the inbound message channel.
func (s *WhatsAppService) Incoming() <-chan models.IncomingMessage {
	return s.incoming
}

func (s *WhatsAppService) safeEmitReceipt(r models.DeliveryReceipt) {
	select {
	case <-s.done:
	case s.receipts <- r:
	default:
		slog.Warn("WhatsAppService receipt channel full, dropping receipt", "to", r.To)
	}
}

func (s *WhatsAppService) safeEmitIncoming(m models.IncomingMessage) {
	select {
	case <-s.done:
	case s.incoming <- m:
	default:
		slog.Warn("WhatsAppService incoming channel full, dropping message", "from", m.From)
	}
}
