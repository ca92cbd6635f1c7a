package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/haasonsaas/warden/pkg/models"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// SQLiteStore is a durable Store backed by SQLite, for sessions resumed
// across process restarts.
type SQLiteStore struct {
	db *sql.DB
}

// SQLiteConfig contains configuration for the SQLite transcript store.
type SQLiteConfig struct {
	// Path to the database file. Defaults to in-memory, which behaves like
	// MemoryStore but exercises the same SQL paths.
	Path string

	// MaxOpenConns bounds the connection pool. Defaults to 1; SQLite
	// serializes writers anyway and a single connection avoids lock
	// contention errors under concurrent sessions.
	MaxOpenConns int
}

// NewSQLiteStore opens (creating if needed) the database at cfg.Path and
// ensures the schema exists.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		cfg.Path = ":memory:"
	}
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 1
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)

	store := NewSQLiteStoreWithDB(db)
	if err := store.init(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLiteStoreWithDB wraps an existing database handle without touching the
// schema. The caller keeps ownership of schema setup.
func NewSQLiteStoreWithDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS session_messages (
			session_id   TEXT NOT NULL,
			seq          INTEGER NOT NULL,
			message_id   TEXT NOT NULL,
			role         TEXT NOT NULL,
			content      TEXT NOT NULL,
			timestamp    DATETIME NOT NULL,
			tool_calls   TEXT,
			tool_call_id TEXT,
			PRIMARY KEY (session_id, seq)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create session_messages table: %w", err)
	}
	return nil
}

// Load returns the session's transcript in insertion order.
func (s *SQLiteStore) Load(ctx context.Context, sessionID string) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, role, content, timestamp, tool_calls, tool_call_id
		FROM session_messages
		WHERE session_id = ?
		ORDER BY seq
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transcript: %w", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var (
			msg        models.Message
			role       string
			toolCalls  sql.NullString
			toolCallID sql.NullString
		)
		if err := rows.Scan(&msg.ID, &role, &msg.Content, &msg.Timestamp, &toolCalls, &toolCallID); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Role = models.Role(role)
		msg.ToolCallID = toolCallID.String
		if toolCalls.Valid && toolCalls.String != "" {
			if err := json.Unmarshal([]byte(toolCalls.String), &msg.ToolCalls); err != nil {
				return nil, fmt.Errorf("failed to decode tool calls for message %s: %w", msg.ID, err)
			}
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// Save replaces the session's transcript inside one transaction.
func (s *SQLiteStore) Save(ctx context.Context, sessionID string, messages []models.Message) error {
	messages = trimMessages(messages)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM session_messages WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("failed to clear old transcript: %w", err)
	}

	for i, msg := range messages {
		var toolCalls any
		if len(msg.ToolCalls) > 0 {
			encoded, err := json.Marshal(msg.ToolCalls)
			if err != nil {
				return fmt.Errorf("failed to encode tool calls for message %s: %w", msg.ID, err)
			}
			toolCalls = string(encoded)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO session_messages (session_id, seq, message_id, role, content, timestamp, tool_calls, tool_call_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, sessionID, i, msg.ID, string(msg.Role), msg.Content, msg.Timestamp.UTC(), toolCalls, msg.ToolCallID)
		if err != nil {
			return fmt.Errorf("failed to insert message %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transcript: %w", err)
	}
	return nil
}

// Clear removes the session's transcript.
func (s *SQLiteStore) Clear(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM session_messages WHERE session_id = ?", sessionID)
	if err != nil {
		return fmt.Errorf("failed to clear transcript: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
