package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dmirchev92/servicetext/internal/models"
)

// DetectDSNType classifies a DSN as "postgres" or "sqlite" based on its
// shape. File paths and bare names are assumed to be SQLite databases.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// marshalConversation serializes a conversation to its JSON document form.
func marshalConversation(conv models.Conversation) (string, error) {
	data, err := json.Marshal(conv)
	if err != nil {
		return "", fmt.Errorf("failed to marshal conversation %s: %w", conv.ID, err)
	}
	return string(data), nil
}

// unmarshalConversation deserializes a conversation JSON document.
func unmarshalConversation(doc string) (models.Conversation, error) {
	var conv models.Conversation
	if err := json.Unmarshal([]byte(doc), &conv); err != nil {
		return conv, fmt.Errorf("failed to unmarshal conversation document: %w", err)
	}
	return conv, nil
}

// scanConversations reads conversation documents out of a result set.
func scanConversations(rows *sql.Rows) ([]models.Conversation, error) {
	var out []models.Conversation
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		conv, err := unmarshalConversation(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversation rows: %w", err)
	}
	return out, nil
}
