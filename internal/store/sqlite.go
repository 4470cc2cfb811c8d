// Package store provides storage backends for ServiceText.
//
// This file implements the SQLite-backed conversation store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/dmirchev92/servicetext/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database
// directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists conversations as JSON documents in a SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN. The DSN is a
// file path; its directory is created when missing.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(cfg.DSN)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// GetConversation loads a conversation by id, or nil when absent.
func (s *SQLiteStore) GetConversation(id string) (*models.Conversation, error) {
	var doc string
	err := s.db.QueryRow(`SELECT document FROM conversations WHERE id = ?`, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetConversation failed", "error", err, "id", id)
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
func (s *SQLiteStore) GetActiveConversationByPhone(phone string) (*models.Conversation, error) {
	var doc string
	err := s.db.QueryRow(
		`SELECT document FROM conversations
		 WHERE phone_number = ? AND status IN (?, ?)
		 ORDER BY started_at DESC LIMIT 1`,
		phone, models.StatusActive, models.StatusWaitingResponse,
	).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetActiveConversationByPhone failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to query conversation for %s: %w", phone, err)
	}
	conv, err := unmarshalConversation(doc)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// SaveConversation upserts the conversation document.
func (s *SQLiteStore) SaveConversation(conv models.Conversation) error {
	doc, err := marshalConversation(conv)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO conversations (id, phone_number, channel, status, state, document, started_at, last_message_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(id) DO UPDATE SET
		   status = excluded.status,
		   state = excluded.state,
		   document = excluded.document,
		   last_message_at = excluded.last_message_at,
		   updated_at = CURRENT_TIMESTAMP`,
		conv.ID, conv.PhoneNumber, conv.Channel, conv.Status, conv.State, doc, conv.StartedAt, conv.LastMessageAt,
	)
	if err != nil {
		slog.Error("SQLiteStore SaveConversation failed", "error", err, "id", conv.ID)
		return fmt.Errorf("failed to save conversation %s: %w", conv.ID, err)
	}
	slog.Debug("SQLiteStore SaveConversation succeeded", "id", conv.ID, "status", conv.Status, "state", conv.State)
	return nil
}

// ListActiveConversations returns all non-terminal conversations.
func (s *SQLiteStore) ListActiveConversations() ([]models.Conversation, error) {
	rows, err := s.db.Query(
		`SELECT document FROM conversations WHERE status IN (?, ?) ORDER BY started_at`,
		models.StatusActive, models.StatusWaitingResponse,
	)
	if err != nil {
		slog.Error("SQLiteStore ListActiveConversations query failed", "error", err)
		return nil, fmt.Errorf("failed to query active conversations: %w", err)
	}
	defer rows.Close()
	return scanConversations(rows)
}

// AddEscalation appends an escalation record.
func (s *SQLiteStore) AddEscalation(rec models.EscalationRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO escalations (phone_number, reason, priority, created_at) VALUES (?, ?, ?, ?)`,
		rec.PhoneNumber, rec.Reason, rec.Priority, rec.Timestamp,
	)
	if err != nil {
		slog.Error("SQLiteStore AddEscalation failed", "error", err, "phone", rec.PhoneNumber)
		return fmt.Errorf("failed to insert escalation for %s: %w", rec.PhoneNumber, err)
	}
	return nil
}

// GetEscalations returns all escalation records in insertion order.
func (s *SQLiteStore) GetEscalations() ([]models.EscalationRecord, error) {
	rows, err := s.db.Query(`SELECT phone_number, reason, priority, created_at FROM escalations ORDER BY id`)
	if err != nil {
		slog.Error("SQLiteStore GetEscalations query failed", "error", err)
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
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
