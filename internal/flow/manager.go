// Package flow provides the conversation flow manager: it persists
// conversation records, appends messages, invokes text understanding on each
// new customer message, refreshes the diagnosis and drives the state machine.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmirchev92/servicetext/internal/models"
	"github.com/dmirchev92/servicetext/internal/store"
)

// Understander is the text-understanding stage contract.
type Understander interface {
	Process(text string) models.UnderstandingResult
}

// IssueAnalyzer is the diagnosis stage contract.
type IssueAnalyzer interface {
	Analyze(conv *models.Conversation) models.Analysis
}

// Result reports the outcome of processing one customer message. Completed
// and Escalated are mutually exclusive terminal outcomes.
type Result struct {
	Conversation *models.Conversation
	Analysis     models.Analysis
	Completed    bool
	Escalated    bool
}

// Manager owns the per-conversation state machine. Each conversation is
// processed one inbound message at a time: the conversation id is locked
// around every understand → append → analyze → transition → persist cycle,
// while distinct conversations proceed fully in parallel.
type Manager struct {
	store      store.Store
	locks      *store.KeyMutex
	phoneLocks *store.KeyMutex
	nlp        Understander
	analyzer   IssueAnalyzer
	language   string
}

// NewManager creates a flow manager with its dependencies.
func NewManager(st store.Store, nlp Understander, analyzer IssueAnalyzer) *Manager {
	slog.Debug("Creating flow Manager")
	return &Manager{
		store:      st,
		locks:      store.NewKeyMutex(),
		phoneLocks: store.NewKeyMutex(),
		nlp:        nlp,
		analyzer:   analyzer,
		language:   "bg",
	}
}

// missedCallText is the synthetic bootstrap message standing in for the
// call itself. It carries the system sender role so customer-message
// counting stays limited to real texts.
const missedCallText = "[пропуснато обаждане]"

// StartConversation creates and persists a conversation for an inbound call
// event, seeded with a synthetic bootstrap message representing the missed
// call. An existing active conversation for the same phone number is reused
// instead of starting a parallel one.
func (m *Manager) StartConversation(ctx context.Context, event models.CallEvent) (*models.Conversation, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}

	// Lookup-or-create is serialized per phone number so concurrent call
	// events never spawn two parallel conversations for the same caller.
	m.phoneLocks.Lock(event.PhoneNumber)
	defer m.phoneLocks.Unlock(event.PhoneNumber)

	existing, err := m.store.GetActiveConversationByPhone(event.PhoneNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to look up active conversation: %w", err)
	}
	if existing != nil {
		slog.Debug("Manager StartConversation reusing active conversation", "conversationID", existing.ID, "phone", event.PhoneNumber)
		return existing, nil
	}

	now := time.Now()
	conv := models.Conversation{
		ID:            models.NewConversationID(),
		PhoneNumber:   event.PhoneNumber,
		ContactID:     event.ContactID,
		Channel:       event.Channel,
		Status:        models.StatusActive,
		State:         models.StateInitialResponse,
		StartedAt:     now,
		LastMessageAt: now,
		Metadata:      models.ConversationMetadata{Language: m.language},
	}
	conv.Messages = append(conv.Messages, models.Message{
		ID:             models.NewMessageID(),
		ConversationID: conv.ID,
		Sender:         models.SenderSystem,
		Kind:           models.MessageKindText,
		Text:           missedCallText,
		Timestamp:      now,
	})
	if err := m.store.SaveConversation(conv); err != nil {
		slog.Error("Manager StartConversation save failed", "error", err, "phone", event.PhoneNumber)
		return nil, fmt.Errorf("failed to persist new conversation: %w", err)
	}
	slog.Info("Manager started conversation", "conversationID", conv.ID, "phone", conv.PhoneNumber, "channel", conv.Channel)
	return &conv, nil
}

// GetConversation loads a conversation by id.
func (m *Manager) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	conv, err := m.store.GetConversation(id)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, models.ErrConversationNotFound
	}
	return conv, nil
}

// ListActive returns all non-terminal conversations.
func (m *Manager) ListActive(ctx context.Context) ([]models.Conversation, error) {
	return m.store.ListActiveConversations()
}

// ProcessCustomerMessage runs the full pipeline for one inbound customer
// message: understand, append, re-analyze the whole conversation, compute
// the next state and persist. Persistence errors propagate; understanding
// and analysis errors degrade internally and bump the error counter.
func (m *Manager) ProcessCustomerMessage(ctx context.Context, conversationID, text string) (*Result, error) {
	if text == "" {
		return nil, models.ErrEmptyMessageText
	}

	m.locks.Lock(conversationID)
	defer m.locks.Unlock(conversationID)

	conv, err := m.store.GetConversation(conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, models.ErrConversationNotFound
	}
	switch conv.Status {
	case models.StatusClosed:
		return nil, models.ErrConversationClosed
	case models.StatusCompleted, models.StatusEscalated:
		return nil, models.ErrConversationCompleted
	}

	understanding := m.nlp.Process(text)
	if understanding.Intent == models.IntentUnknown {
		// Understanding failure was recovered into the default result.
		conv.Metadata.ErrorCount++
	}

	now := time.Now()
	conv.Messages = append(conv.Messages, models.Message{
		ID:             models.NewMessageID(),
		ConversationID: conv.ID,
		Sender:         models.SenderCustomer,
		Kind:           models.MessageKindText,
		Text:           text,
		Timestamp:      now,
		Understanding:  &understanding,
	})
	conv.LastMessageAt = now

	analysis := m.analyzer.Analyze(conv)
	conv.Analysis = &analysis

	prevState := conv.State
	conv.State = NextState(prevState, understanding, analysis)

	escalated := false
	completed := false
	if conv.State == models.StateCompleted {
		conv.CompletedAt = &now
		if IsEmergency(analysis) {
			conv.Status = models.StatusEscalated
			escalated = true
		} else {
			conv.Status = models.StatusCompleted
			completed = true
		}
	} else {
		conv.Status = models.StatusActive
	}

	if err := m.store.SaveConversation(*conv); err != nil {
		slog.Error("Manager ProcessCustomerMessage persist failed", "error", err, "conversationID", conv.ID)
		return nil, fmt.Errorf("failed to persist conversation %s: %w", conv.ID, err)
	}

	slog.Info("Manager processed customer message",
		"conversationID", conv.ID, "intent", understanding.Intent,
		"from", prevState, "to", conv.State,
		"urgency", analysis.Urgency, "risk", analysis.Risk.Level,
		"completed", completed, "escalated", escalated)

	return &Result{Conversation: conv, Analysis: analysis, Completed: completed, Escalated: escalated}, nil
}

// AppendAgentMessage records an outbound agent message on the conversation.
// Active conversations move to waiting_response until the customer replies.
func (m *Manager) AppendAgentMessage(ctx context.Context, conversationID, text string) error {
	m.locks.Lock(conversationID)
	defer m.locks.Unlock(conversationID)

	conv, err := m.store.GetConversation(conversationID)
	if err != nil {
		return err
	}
	if conv == nil {
		return models.ErrConversationNotFound
	}
	if conv.Status == models.StatusClosed {
		return models.ErrConversationClosed
	}

	now := time.Now()
	conv.Messages = append(conv.Messages, models.Message{
		ID:             models.NewMessageID(),
		ConversationID: conv.ID,
		Sender:         models.SenderAgent,
		Kind:           models.MessageKindText,
		Text:           text,
		Timestamp:      now,
	})
	conv.LastMessageAt = now
	if conv.Status == models.StatusActive {
		conv.Status = models.StatusWaitingResponse
	}

	if err := m.store.SaveConversation(*conv); err != nil {
		slog.Error("Manager AppendAgentMessage persist failed", "error", err, "conversationID", conv.ID)
		return fmt.Errorf("failed to persist conversation %s: %w", conv.ID, err)
	}
	return nil
}

// CloseConversation archives a conversation. Records are never deleted;
// closing an already-closed conversation is a no-op.
func (m *Manager) CloseConversation(ctx context.Context, conversationID, reason string) error {
	m.locks.Lock(conversationID)
	defer m.locks.Unlock(conversationID)

	conv, err := m.store.GetConversation(conversationID)
	if err != nil {
		return err
	}
	if conv == nil {
		return models.ErrConversationNotFound
	}
	if conv.Status == models.StatusClosed {
		return nil
	}

	now := time.Now()
	conv.Status = models.StatusClosed
	if conv.CompletedAt == nil {
		conv.CompletedAt = &now
	}
	conv.Messages = append(conv.Messages, models.Message{
		ID:             models.NewMessageID(),
		ConversationID: conv.ID,
		Sender:         models.SenderSystem,
		Kind:           models.MessageKindText,
		Text:           "conversation closed: " + reason,
		Timestamp:      now,
	})
	conv.LastMessageAt = now

	if err := m.store.SaveConversation(*conv); err != nil {
		slog.Error("Manager CloseConversation persist failed", "error", err, "conversationID", conv.ID)
		return fmt.Errorf("failed to persist conversation %s: %w", conv.ID, err)
	}
	slog.Info("Manager closed conversation", "conversationID", conv.ID, "reason", reason)
	return nil
}
