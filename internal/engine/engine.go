// Package engine wires the ServiceText triage pipeline together: it reacts to
// missed-call events, routes inbound customer messages through the flow
// manager, sends generated responses via the messaging dispatcher and
// executes follow-up actions on the timer.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmirchev92/servicetext/internal/flow"
	"github.com/dmirchev92/servicetext/internal/messaging"
	"github.com/dmirchev92/servicetext/internal/models"
	"github.com/dmirchev92/servicetext/internal/response"
	"github.com/dmirchev92/servicetext/internal/scheduler"
	"github.com/dmirchev92/servicetext/internal/store"
)

// DefaultMaxRetries is the delivery retry budget per outbound message.
const DefaultMaxRetries = 3

// Reminder and summary texts sent by delayed follow-up actions.
const (
	reminderText = "Напомняне: имате уговорено обаждане от техник относно вашия проблем. Ако вече не е актуално, отговорете с 'отказ'."
	summaryText  = "Кратко обобщение: заявката ви е приета и е насрочено обаждане. Благодаря за търпението!"
)

// ContextProvider supplies the read-only business context fetched once per
// response generation.
type ContextProvider interface {
	BusinessContext(ctx context.Context) (models.BusinessContext, error)
}

// EscalationNotifier hands escalation records to the human-operator
// collaborator.
type EscalationNotifier interface {
	NotifyEscalation(ctx context.Context, rec models.EscalationRecord) error
}

// LogNotifier is the default notifier: it only logs. Deployments plug in a
// real collaborator through WithNotifier.
type LogNotifier struct{}

// NotifyEscalation logs the escalation.
func (LogNotifier) NotifyEscalation(ctx context.Context, rec models.EscalationRecord) error {
	slog.Warn("Escalation raised", "phone", rec.PhoneNumber, "reason", rec.Reason, "priority", rec.Priority)
	return nil
}

// Opts holds configuration options for the engine.
type Opts struct {
	Notifier   EscalationNotifier
	MaxRetries int
}

// Option defines a configuration option for the engine.
type Option func(*Opts)

// WithNotifier sets the escalation notifier.
func WithNotifier(n EscalationNotifier) Option {
	return func(o *Opts) { o.Notifier = n }
}

// WithMaxRetries sets the delivery retry budget per outbound message.
func WithMaxRetries(n int) Option {
	return func(o *Opts) { o.MaxRetries = n }
}

// Engine is the orchestrator. All conversation mutation goes through the flow
// manager; the engine only sequences the surrounding effects.
type Engine struct {
	flow       *flow.Manager
	store      store.Store
	generator  *response.Generator
	dispatcher *messaging.Dispatcher
	timer      scheduler.Timer
	contexts   ContextProvider
	notifier   EscalationNotifier
	maxRetries int
}

// New creates an engine with its collaborators.
func New(fm *flow.Manager, st store.Store, gen *response.Generator, disp *messaging.Dispatcher, timer scheduler.Timer, contexts ContextProvider, opts ...Option) *Engine {
	cfg := Opts{Notifier: LogNotifier{}, MaxRetries: DefaultMaxRetries}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("Creating Engine", "maxRetries", cfg.MaxRetries)
	return &Engine{
		flow:       fm,
		store:      st,
		generator:  gen,
		dispatcher: disp,
		timer:      timer,
		contexts:   contexts,
		notifier:   cfg.Notifier,
		maxRetries: cfg.MaxRetries,
	}
}

// HandleMissedCall starts (or resumes) a conversation for a missed-call event
// and sends the greeting. A reused active conversation gets no second
// greeting.
func (e *Engine) HandleMissedCall(ctx context.Context, event models.CallEvent) (*models.Conversation, error) {
	conv, err := e.flow.StartConversation(ctx, event)
	if err != nil {
		return nil, err
	}
	if hasAgentMessage(conv) {
		slog.Debug("Engine reusing conversation, skipping greeting", "conversationID", conv.ID)
		return conv, nil
	}

	bctx, err := e.contexts.BusinessContext(ctx)
	if err != nil {
		slog.Error("Engine failed to fetch business context for greeting", "error", err, "conversationID", conv.ID)
		return nil, fmt.Errorf("failed to fetch business context: %w", err)
	}
	greeting := e.generator.Greeting(bctx)
	if err := e.flow.AppendAgentMessage(ctx, conv.ID, greeting); err != nil {
		return nil, err
	}
	e.send(conv, greeting, models.PriorityNormal)

	conv, err = e.flow.GetConversation(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// ProcessIncomingMessage runs one inbound customer message through the triage
// pipeline and replies. Escalated conversations produce an escalation record
// instead of further automated replies beyond the emergency advice.
func (e *Engine) ProcessIncomingMessage(ctx context.Context, conversationID, text string) (*flow.Result, error) {
	res, err := e.flow.ProcessCustomerMessage(ctx, conversationID, text)
	if err != nil {
		return nil, err
	}
	conv := res.Conversation

	bctx, err := e.contexts.BusinessContext(ctx)
	if err != nil {
		slog.Error("Engine failed to fetch business context, using zero value", "error", err, "conversationID", conv.ID)
		bctx = models.BusinessContext{}
	}

	resp := e.generator.Generate(conv, res.Analysis, bctx)
	if err := e.appendReply(ctx, conv.ID, resp.Text); err != nil {
		return nil, err
	}

	priority := models.PriorityNormal
	if flow.IsEmergency(res.Analysis) {
		priority = models.PriorityUrgent
	}
	e.send(conv, resp.Text, priority)

	for _, action := range resp.FollowUpActions {
		e.executeFollowUp(ctx, conv, action)
	}

	if res.Escalated {
		rec := models.EscalationRecord{
			PhoneNumber: conv.PhoneNumber,
			Reason:      resp.Reasoning,
			Timestamp:   time.Now(),
			Priority:    models.PriorityUrgent,
		}
		if err := e.store.AddEscalation(rec); err != nil {
			slog.Error("Engine failed to persist escalation", "error", err, "conversationID", conv.ID)
		}
		if err := e.notifier.NotifyEscalation(ctx, rec); err != nil {
			slog.Error("Engine escalation notify failed", "error", err, "conversationID", conv.ID)
		}
	}
	return res, nil
}

// ProcessIncomingFromPhone resolves the active conversation for a phone
// number and processes the message, bootstrapping a new conversation when the
// customer texts first without a recorded missed call.
func (e *Engine) ProcessIncomingFromPhone(ctx context.Context, phone, text string, channel models.Channel) (*flow.Result, error) {
	conv, err := e.store.GetActiveConversationByPhone(phone)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		event := models.CallEvent{PhoneNumber: phone, Channel: channel, OccurredAt: time.Now()}
		conv, err = e.HandleMissedCall(ctx, event)
		if err != nil {
			return nil, err
		}
	}
	return e.ProcessIncomingMessage(ctx, conv.ID, text)
}

// CloseConversation archives a conversation.
func (e *Engine) CloseConversation(ctx context.Context, conversationID, reason string) error {
	return e.flow.CloseConversation(ctx, conversationID, reason)
}

// GetConversation loads a conversation by id.
func (e *Engine) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	return e.flow.GetConversation(ctx, id)
}

// ListActive returns all non-terminal conversations.
func (e *Engine) ListActive(ctx context.Context) ([]models.Conversation, error) {
	return e.flow.ListActive(ctx)
}

// Stats summarizes engine activity for the operational API.
type Stats struct {
	ActiveConversations int `json:"active_conversations"`
	Escalations         int `json:"escalations"`
}

// GetStats returns current counters.
func (e *Engine) GetStats(ctx context.Context) (Stats, error) {
	active, err := e.store.ListActiveConversations()
	if err != nil {
		return Stats{}, err
	}
	escalations, err := e.store.GetEscalations()
	if err != nil {
		return Stats{}, err
	}
	return Stats{ActiveConversations: len(active), Escalations: len(escalations)}, nil
}

// ListenIncoming consumes a messaging service's inbound channel until it is
// closed or the context is cancelled. Per-message errors are logged, never
// fatal.
func (e *Engine) ListenIncoming(ctx context.Context, incoming <-chan models.IncomingMessage, channel models.Channel) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-incoming:
			if !ok {
				return
			}
			if _, err := e.ProcessIncomingFromPhone(ctx, msg.From, msg.Body, channel); err != nil {
				slog.Error("Engine failed to process inbound message", "error", err, "from", msg.From)
			}
		}
	}
}

func hasAgentMessage(conv *models.Conversation) bool {
	for _, msg := range conv.Messages {
		if msg.Sender == models.SenderAgent {
			return true
		}
	}
	return false
}

// send enqueues an outbound message; queue rejection is logged, not fatal.
func (e *Engine) send(conv *models.Conversation, text string, priority models.MessagePriority) {
	msg := models.OutboundMessage{
		ID:         models.NewMessageID(),
		Channel:    conv.Channel,
		Recipient:  conv.PhoneNumber,
		Text:       text,
		Priority:   priority,
		MaxRetries: e.maxRetries,
		CreatedAt:  time.Now(),
	}
	if err := e.dispatcher.Enqueue(msg); err != nil {
		slog.Error("Engine failed to enqueue outbound message", "error", err, "conversationID", conv.ID)
	}
}

// appendReply records the agent reply, tolerating the race where the
// conversation just reached a terminal status.
func (e *Engine) appendReply(ctx context.Context, conversationID, text string) error {
	err := e.flow.AppendAgentMessage(ctx, conversationID, text)
	if err == models.ErrConversationClosed {
		slog.Debug("Engine skipping reply append on closed conversation", "conversationID", conversationID)
		return nil
	}
	return err
}

// executeFollowUp runs one follow-up action. Delayed actions re-check the
// conversation when they fire so a closed conversation never gets a stale
// reminder.
func (e *Engine) executeFollowUp(ctx context.Context, conv *models.Conversation, action models.FollowUpAction) {
	conversationID := conv.ID
	phone := conv.PhoneNumber
	channel := conv.Channel

	switch action.Type {
	case models.ActionSetReminder:
		e.scheduleDelayedMessage(conversationID, phone, channel, action.Delay, reminderText)
	case models.ActionSendSummary:
		e.scheduleDelayedMessage(conversationID, phone, channel, action.Delay, summaryText)
	case models.ActionCreateTask, models.ActionEscalate:
		rec := models.EscalationRecord{
			PhoneNumber: phone,
			Reason:      action.Payload["reason"],
			Timestamp:   time.Now(),
			Priority:    models.PriorityUrgent,
		}
		if action.Type == models.ActionEscalate {
			if err := e.store.AddEscalation(rec); err != nil {
				slog.Error("Engine failed to persist escalation action", "error", err, "conversationID", conversationID)
			}
		}
		if err := e.notifier.NotifyEscalation(ctx, rec); err != nil {
			slog.Error("Engine follow-up notify failed", "error", err, "conversationID", conversationID)
		}
	default:
		slog.Warn("Engine ignoring unknown follow-up action", "type", action.Type)
	}
}

func (e *Engine) scheduleDelayedMessage(conversationID, phone string, channel models.Channel, delay time.Duration, text string) {
	id, err := e.timer.ScheduleAfter(delay, func() {
		conv, err := e.store.GetConversation(conversationID)
		if err != nil || conv == nil {
			slog.Warn("Engine delayed message: conversation unavailable", "conversationID", conversationID, "error", err)
			return
		}
		if conv.Status == models.StatusClosed {
			slog.Debug("Engine delayed message skipped, conversation closed", "conversationID", conversationID)
			return
		}
		msg := models.OutboundMessage{
			ID:         models.NewMessageID(),
			Channel:    channel,
			Recipient:  phone,
			Text:       text,
			Priority:   models.PriorityNormal,
			MaxRetries: e.maxRetries,
			CreatedAt:  time.Now(),
		}
		if err := e.dispatcher.Enqueue(msg); err != nil {
			slog.Error("Engine failed to enqueue delayed message", "error", err, "conversationID", conversationID)
		}
	})
	if err != nil {
		slog.Error("Engine failed to schedule delayed message", "error", err, "conversationID", conversationID)
		return
	}
	slog.Debug("Engine scheduled delayed message", "timerID", id, "conversationID", conversationID, "delay", delay)
}
