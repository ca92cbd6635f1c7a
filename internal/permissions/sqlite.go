package permissions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/haasonsaas/warden/pkg/models"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// SQLiteStore is a durable Store backed by SQLite. It keeps remembered
// decisions across restarts, which matters for long-lived sessions that
// outlive the process.
type SQLiteStore struct {
	db *sql.DB
}

// SQLiteConfig contains configuration for the SQLite permission store.
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
		CREATE TABLE IF NOT EXISTS permissions (
			session_id TEXT NOT NULL,
			tool_name  TEXT NOT NULL,
			decision   TEXT NOT NULL,
			updated_at DATETIME NOT NULL,
			PRIMARY KEY (session_id, tool_name)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create permissions table: %w", err)
	}

	_, err = s.db.Exec("CREATE INDEX IF NOT EXISTS idx_permissions_updated ON permissions(updated_at)")
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

// Save records a decision for (sessionID, toolName), replacing any earlier one.
func (s *SQLiteStore) Save(ctx context.Context, sessionID, toolName string, decision models.PermissionDecision) error {
	query := `
		INSERT INTO permissions (session_id, tool_name, decision, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (session_id, tool_name)
		DO UPDATE SET decision = excluded.decision, updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query, sessionID, toolName, string(decision), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save decision: %w", err)
	}
	return nil
}

// Get returns the remembered decision for (sessionID, toolName), if any.
func (s *SQLiteStore) Get(ctx context.Context, sessionID, toolName string) (models.PermissionDecision, bool, error) {
	var decision string
	err := s.db.QueryRowContext(ctx,
		"SELECT decision FROM permissions WHERE session_id = ? AND tool_name = ?",
		sessionID, toolName,
	).Scan(&decision)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get decision: %w", err)
	}
	return models.PermissionDecision(decision), true, nil
}

// GetAll returns every remembered decision for a session keyed by tool name.
func (s *SQLiteStore) GetAll(ctx context.Context, sessionID string) (map[string]models.PermissionDecision, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT tool_name, decision FROM permissions WHERE session_id = ?",
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	defer rows.Close()

	decisions := make(map[string]models.PermissionDecision)
	for rows.Next() {
		var toolName, decision string
		if err := rows.Scan(&toolName, &decision); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		decisions[toolName] = models.PermissionDecision(decision)
	}
	return decisions, rows.Err()
}

// Clear forgets every decision for a session.
func (s *SQLiteStore) Clear(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM permissions WHERE session_id = ?", sessionID)
	if err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// Revoke forgets the decision for one tool in one session.
func (s *SQLiteStore) Revoke(ctx context.Context, sessionID, toolName string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM permissions WHERE session_id = ? AND tool_name = ?",
		sessionID, toolName,
	)
	if err != nil {
		return fmt.Errorf("failed to revoke decision: %w", err)
	}
	return nil
}

// Prune removes decisions older than the given age and returns the count.
func (s *SQLiteStore) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	result, err := s.db.ExecContext(ctx, "DELETE FROM permissions WHERE updated_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune decisions: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned decisions: %w", err)
	}
	return removed, nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
