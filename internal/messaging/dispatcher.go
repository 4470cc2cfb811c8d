// Package messaging outbound dispatcher: a buffered delivery queue so that
// enqueueing a message never blocks a conversation state transition.
package messaging

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dmirchev92/servicetext/internal/models"
)

// DefaultQueueSize bounds the outbound queues.
const DefaultQueueSize = 256

// retryBackoff is the delay before a failed message is re-enqueued.
const retryBackoff = 5 * time.Second

// ErrQueueFull is returned when the outbound queue cannot accept a message.
var ErrQueueFull = errors.New("outbound queue is full")

// Dispatcher consumes outbound message requests and delivers them through a
// Service. Urgent messages are drained before normal ones; failed sends are
// retried with backoff until MaxRetries is exhausted.
type Dispatcher struct {
	service Service
	normal  chan models.OutboundMessage
	urgent  chan models.OutboundMessage
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
}

// NewDispatcher creates a dispatcher delivering through the given service.
func NewDispatcher(service Service) *Dispatcher {
	return &Dispatcher{
		service: service,
		normal:  make(chan models.OutboundMessage, DefaultQueueSize),
		urgent:  make(chan models.OutboundMessage, DefaultQueueSize),
		done:    make(chan struct{}),
	}
}

// Enqueue queues a message for asynchronous delivery. It never blocks: when
// the queue is full the message is rejected so the caller can decide.
func (d *Dispatcher) Enqueue(msg models.OutboundMessage) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return ErrServiceStopped
	}
	d.mu.Unlock()

	queue := d.normal
	if msg.Priority == models.PriorityUrgent {
		queue = d.urgent
	}
	select {
	case queue <- msg:
		slog.Debug("Dispatcher enqueued message", "id", msg.ID, "to", msg.Recipient, "priority", msg.Priority)
		return nil
	default:
		slog.Error("Dispatcher queue full, rejecting message", "id", msg.ID, "to", msg.Recipient)
		return ErrQueueFull
	}
}

// Start launches the delivery loop.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go d.run(ctx)
}

func (d *Dispatcher) run(ctx context.Context) {
	defer d.wg.Done()
	for {
		// Urgent messages first.
		select {
		case msg := <-d.urgent:
			d.deliver(ctx, msg)
			continue
		default:
		}
		select {
		case <-ctx.Done():
			return
		case <-d.done:
			return
		case msg := <-d.urgent:
			d.deliver(ctx, msg)
		case msg := <-d.normal:
			d.deliver(ctx, msg)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, msg models.OutboundMessage) {
	err := d.service.SendMessage(ctx, msg.Recipient, msg.Text)
	if err == nil {
		slog.Debug("Dispatcher delivered message", "id", msg.ID, "to", msg.Recipient)
		return
	}

	if msg.RetryCount >= msg.MaxRetries {
		slog.Error("Dispatcher giving up on message", "id", msg.ID, "to", msg.Recipient, "retries", msg.RetryCount, "error", err)
		return
	}
	msg.RetryCount++
	slog.Warn("Dispatcher delivery failed, scheduling retry", "id", msg.ID, "to", msg.Recipient, "attempt", msg.RetryCount, "error", err)
	retry := msg
	time.AfterFunc(retryBackoff, func() {
		if err := d.Enqueue(retry); err != nil {
			slog.Error("Dispatcher retry enqueue failed", "id", retry.ID, "error", err)
		}
	})
}

// Stop shuts down the delivery loop. Queued messages are dropped.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.mu.Unlock()

	close(d.done)
	d.wg.Wait()
}
