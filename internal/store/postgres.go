// Package store provides storage backends for ServiceText.
//
// This file implements the PostgreSQL-backed conversation store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "embed"

	"github.com/dmirchev92/servicetext/internal/models"
	_ "github.com/lib/pq"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists conversations as JSONB documents in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store with the given DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open PostgreSQL connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("PostgreSQL ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run PostgreSQL migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgreSQL migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// GetConversation loads a conversation by id, or nil when absent.
func (s *PostgresStore) GetConversation(id string) (*models.Conversation, error) {
	var doc string
	err := s.db.QueryRow(`SELECT document FROM conversations WHERE id = $1`, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetConversation failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to query conversation %s: %w", id, err)
	}
	conv, err := unmarshalConversation(doc)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// GetActiveConversationByPhone returns the most recent non-terminal
// conversation for the phone number, or nil.
func (s *PostgresStore) GetActiveConversationByPhone(phone string) (*models.Conversation, error) {
	var doc string
	err := s.db.QueryRow(
		`SELECT document FROM conversations
		 WHERE phone_number = $1 AND status IN ($2, $3)
		 ORDER BY started_at DESC LIMIT 1`,
		phone, models.StatusActive, models.StatusWaitingResponse,
	).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetActiveConversationByPhone failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to query conversation for %s: %w", phone, err)
	}
	conv, err := unmarshalConversation(doc)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// SaveConversation upserts the conversation document.
func (s *PostgresStore) SaveConversation(conv models.Conversation) error {
	doc, err := marshalConversation(conv)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO conversations (id, phone_number, channel, status, state, document, started_at, last_message_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		 ON CONFLICT (id) DO UPDATE SET
		   status = EXCLUDED.status,
		   state = EXCLUDED.state,
		   document = EXCLUDED.document,
		   last_message_at = EXCLUDED.last_message_at,
		   updated_at = now()`,
		conv.ID, conv.PhoneNumber, conv.Channel, conv.Status, conv.State, doc, conv.StartedAt, conv.LastMessageAt,
	)
	if err != nil {
		slog.Error("PostgresStore SaveConversation failed", "error", err, "id", conv.ID)
		return fmt.Errorf("failed to save conversation %s: %w", conv.ID, err)
	}
	slog.Debug("PostgresStore SaveConversation succeeded", "id", conv.ID, "status", conv.Status, "state", conv.State)
	return nil
}

// ListActiveConversations returns all non-terminal conversations.
func (s *PostgresStore) ListActiveConversations() ([]models.Conversation, error) {
	rows, err := s.db.Query(
		`SELECT document FROM conversations WHERE status IN ($1, $2) ORDER BY started_at`,
		models.StatusActive, models.StatusWaitingResponse,
	)
	if err != nil {
		slog.Error("PostgresStore ListActiveConversations query failed", "error", err)
		return nil, fmt.Errorf("failed to query active conversations: %w", err)
	}
	defer rows.Close()
	return scanConversations(rows)
}

// AddEscalation appends an escalation record.
func (s *PostgresStore) AddEscalation(rec models.EscalationRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO escalations (phone_number, reason, priority, created_at) VALUES ($1, $2, $3, $4)`,
		rec.PhoneNumber, rec.Reason, rec.Priority, rec.Timestamp,
	)
	if err != nil {
		slog.Error("PostgresStore AddEscalation failed", "error", err, "phone", rec.PhoneNumber)
		return fmt.Errorf("failed to insert escalation for %s: %w", rec.PhoneNumber, err)
	}
	return nil
}

// GetEscalations returns all escalation records in insertion order.
func (s *PostgresStore) GetEscalations() ([]models.EscalationRecord, error) {
	rows, err := s.db.Query(`SELECT phone_number, reason, priority, created_at FROM escalations ORDER BY id`)
	if err != nil {
		slog.Error("PostgresStore GetEscalations query failed", "error", err)
		return nil, fmt.Errorf("failed to query escalations: %w", err)
	}
	defer rows.Close()

	var out []models.EscalationRecord
	for rows.Next() {
		var rec models.EscalationRecord
		if err := rows.Scan(&rec.PhoneNumber, &rec.Reason, &rec.Priority, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan escalation row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate escalation rows: %w", err)
	}
	return out, nil
}

// Close closes the database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
