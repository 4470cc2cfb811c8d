// Package store provides storage backends for ServiceText conversations.
//
// It includes an in-memory store for tests and single-process deployments,
// plus SQLite and PostgreSQL backends selected by DSN detection. All
// backends serialize mutations per conversation id while allowing full
// concurrency across distinct ids.
package store

import (
	"sort"
	"sync"

	"github.com/dmirchev92/servicetext/internal/models"
)

// Store is the narrow persistence contract injected into the flow manager.
// Lookups return (nil, nil) when no record exists.
type Store interface {
	GetConversation(id string) (*models.Conversation, error)
	// GetActiveConversationByPhone returns the most recent non-terminal
	// conversation for a phone number, or nil.
	GetActiveConversationByPhone(phone string) (*models.Conversation, error)
	SaveConversation(conv models.Conversation) error
	ListActiveConversations() ([]models.Conversation, error)
	AddEscalation(rec models.EscalationRecord) error
	GetEscalations() ([]models.EscalationRecord, error)
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithSQLiteDSN sets a SQLite file path DSN.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets a PostgreSQL connection string DSN.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// InMemoryStore keeps conversations in process memory. Safe for concurrent
// use; suitable for tests and ephemeral deployments.
type InMemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]models.Conversation
	escalations   []models.EscalationRecord
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{conversations: make(map[string]models.Conversation)}
}

// GetConversation returns a copy of the stored conversation or nil.
func (s *InMemoryStore) GetConversation(id string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, nil
	}
	return &conv, nil
}

// GetActiveConversationByPhone returns the most recent active conversation
// for the phone number, or nil.
func (s *InMemoryStore) GetActiveConversationByPhone(phone string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *models.Conversation
	for _, conv := range s.conversations {
		if conv.PhoneNumber != phone || conv.IsTerminal() {
			continue
		}
		c := conv
		if best == nil || c.StartedAt.After(best.StartedAt) {
			best = &c
		}
	}
	return best, nil
}

// SaveConversation inserts or replaces the conversation record.
func (s *InMemoryStore) SaveConversation(conv models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[conv.ID] = conv
	return nil
}

// ListActiveConversations returns all non-terminal conversations ordered by
// start time.
func (s *InMemoryStore) ListActiveConversations() ([]models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Conversation
	for _, conv := range s.conversations {
		if conv.Status == models.StatusActive || conv.Status == models.StatusWaitingResponse {
			out = append(out, conv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

// AddEscalation appends an escalation record.
func (s *InMemoryStore) AddEscalation(rec models.EscalationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.escalations = append(s.escalations, rec)
	return nil
}

// GetEscalations returns all escalation records.
func (s *InMemoryStore) GetEscalations() ([]models.EscalationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.EscalationRecord, len(s.escalations))
	copy(out, s.escalations)
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
