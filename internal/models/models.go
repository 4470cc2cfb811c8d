// Package models defines the core data structures for ServiceText.
//
// It includes the conversation record and its lifecycle enums, inbound call
// events, outbound message requests and escalation records, which are shared
// across modules.
package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Channel identifies the delivery channel for a conversation.
type Channel string

const (
	// ChannelWhatsApp delivers messages over WhatsApp.
	ChannelWhatsApp Channel = "whatsapp"
	// ChannelSMS delivers messages over SMS.
	ChannelSMS Channel = "sms"
	// ChannelViber delivers messages over Viber.
	ChannelViber Channel = "viber"
)

// IsValidChannel checks if the given channel is supported.
func IsValidChannel(c Channel) bool {
	switch c {
	case ChannelWhatsApp, ChannelSMS, ChannelViber:
		return true
	default:
		return false
	}
}

// ConversationStatus represents the lifecycle status of a conversation.
type ConversationStatus string

const (
	// StatusActive indicates the conversation is in progress.
	StatusActive ConversationStatus = "active"
	// StatusWaitingResponse indicates the agent is waiting for the customer.
	StatusWaitingResponse ConversationStatus = "waiting_response"
	// StatusEscalated indicates the conversation was handed to a human.
	StatusEscalated ConversationStatus = "escalated"
	// StatusCompleted indicates triage concluded with a scheduled callback.
	StatusCompleted ConversationStatus = "completed"
	// StatusClosed indicates the conversation was archived.
	StatusClosed ConversationStatus = "closed"
)

// ConversationState represents the position in the triage state machine.
type ConversationState string

const (
	StateInitialResponse     ConversationState = "initial_response"
	StateAwaitingDescription ConversationState = "awaiting_description"
	StateFollowUpQuestions   ConversationState = "follow_up_questions"
	StateGatheringDetails    ConversationState = "gathering_details"
	StateProvidingAdvice     ConversationState = "providing_advice"
	StateSchedulingVisit     ConversationState = "scheduling_visit"
	StateCompleted           ConversationState = "completed"
)

// SenderRole identifies who produced a message.
type SenderRole string

const (
	// SenderCustomer is the person who placed the missed call.
	SenderCustomer SenderRole = "customer"
	// SenderAgent is the automated dispatcher.
	SenderAgent SenderRole = "agent"
	// SenderSystem marks synthesized bookkeeping messages.
	SenderSystem SenderRole = "system"
)

// MessageKind identifies the content type of a message.
type MessageKind string

const (
	MessageKindText     MessageKind = "text"
	MessageKindImage    MessageKind = "image"
	MessageKindLocation MessageKind = "location"
)

// Error variables for better error handling and testability
var (
	ErrConversationNotFound  = errors.New("conversation not found")
	ErrConversationClosed    = errors.New("conversation is closed")
	ErrConversationCompleted = errors.New("conversation is completed")
	ErrEmptyPhoneNumber      = errors.New("phone number cannot be empty")
	ErrEmptyMessageText      = errors.New("message text cannot be empty")
	ErrInvalidChannel        = errors.New("invalid delivery channel")
)

// Message is a single entry in a conversation. Messages are immutable once
// appended; the Understanding field is attached only for customer messages.
type Message struct {
	ID             string               `json:"id"`
	ConversationID string               `json:"conversation_id"`
	Sender         SenderRole           `json:"sender"`
	Kind           MessageKind          `json:"kind"`
	Text           string               `json:"text"`
	Timestamp      time.Time            `json:"timestamp"`
	Understanding  *UnderstandingResult `json:"understanding,omitempty"`
}

// ConversationMetadata carries free-form observability fields.
type ConversationMetadata struct {
	Language       string `json:"language"`
	LexiconVersion string `json:"lexicon_version,omitempty"`
	ErrorCount     int    `json:"error_count"`
}

// Conversation is the durable record of one triage dialogue, keyed by the
// originating phone number. It is owned exclusively by the flow manager:
// created on the first inbound event, mutated on every processed message and
// archived (never deleted) on completion.
type Conversation struct {
	ID            string               `json:"id"`
	PhoneNumber   string               `json:"phone_number"`
	ContactID     string               `json:"contact_id,omitempty"`
	Channel       Channel              `json:"channel"`
	Status        ConversationStatus   `json:"status"`
	State         ConversationState    `json:"state"`
	Messages      []Message            `json:"messages"`
	Analysis      *Analysis            `json:"analysis,omitempty"`
	StartedAt     time.Time            `json:"started_at"`
	LastMessageAt time.Time            `json:"last_message_at"`
	CompletedAt   *time.Time           `json:"completed_at,omitempty"`
	Metadata      ConversationMetadata `json:"metadata"`
}

// CustomerMessages returns the customer-authored messages in order.
func (c *Conversation) CustomerMessages() []Message {
	var out []Message
	for _, m := range c.Messages {
		if m.Sender == SenderCustomer {
			out = append(out, m)
		}
	}
	return out
}

// CustomerMessageCount returns how many customer messages have been exchanged.
func (c *Conversation) CustomerMessageCount() int {
	n := 0
	for _, m := range c.Messages {
		if m.Sender == SenderCustomer {
			n++
		}
	}
	return n
}

// IsTerminal reports whether no further automated processing may occur.
func (c *Conversation) IsTerminal() bool {
	switch c.Status {
	case StatusEscalated, StatusCompleted, StatusClosed:
		return true
	default:
		return false
	}
}

// NewMessageID generates a unique message identifier.
func NewMessageID() string {
	return "msg_" + uuid.NewString()
}

// NewConversationID generates a unique conversation identifier.
func NewConversationID() string {
	return "conv_" + uuid.NewString()
}

// CallEvent is the inbound trigger produced by the call-detection
// collaborator. The engine treats it as an opaque starting fact.
type CallEvent struct {
	PhoneNumber string    `json:"phone_number"`
	Channel     Channel   `json:"channel"`
	ContactID   string    `json:"contact_id,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Validate performs validation on a CallEvent.
func (e *CallEvent) Validate() error {
	if e.PhoneNumber == "" {
		return ErrEmptyPhoneNumber
	}
	if !IsValidChannel(e.Channel) {
		return ErrInvalidChannel
	}
	return nil
}

// MessagePriority controls outbound delivery ordering.
type MessagePriority string

const (
	// PriorityNormal is the default delivery priority.
	PriorityNormal MessagePriority = "normal"
	// PriorityUrgent is used when risk is critical or urgency is emergency.
	PriorityUrgent MessagePriority = "urgent"
)

// OutboundMessage is a delivery request pushed to the messaging dispatcher.
type OutboundMessage struct {
	ID         string          `json:"id"`
	Channel    Channel         `json:"channel"`
	Recipient  string          `json:"recipient"`
	Text       string          `json:"text"`
	Priority   MessagePriority `json:"priority"`
	RetryCount int             `json:"retry_count"`
	MaxRetries int             `json:"max_retries"`
	CreatedAt  time.Time       `json:"created_at"`
}

// EscalationRecord is handed to the human-escalation collaborator whenever
// risk is critical.
type EscalationRecord struct {
	PhoneNumber string          `json:"phone_number"`
	Reason      string          `json:"reason"`
	Timestamp   time.Time       `json:"timestamp"`
	Priority    MessagePriority `json:"priority"`
}

// BusinessContext is the read-only record fetched once per response
// generation. The engine never mutates it.
type BusinessContext struct {
	AgentName        string `json:"agent_name"`
	Profession       string `json:"profession"`
	ExperienceYears  int    `json:"experience_years"`
	WorkingHours     string `json:"working_hours"`
	EmergencyContact string `json:"emergency_contact"`
	IsBusinessHours  bool   `json:"is_business_hours"`
}
