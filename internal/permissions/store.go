package permissions

import (
	"context"
	"sync"
	"time"

	"github.com/haasonsaas/warden/pkg/models"
)

// Store persists remembered permission decisions keyed by session and tool
// name. Implementations must be safe for concurrent use from multiple
// in-flight tool executions within and across sessions.
type Store interface {
	// Save records a decision for (sessionID, toolName), replacing any
	// earlier one.
	Save(ctx context.Context, sessionID, toolName string, decision models.PermissionDecision) error

	// Get returns the remembered decision for (sessionID, toolName). The
	// second return is false when nothing is remembered.
	Get(ctx context.Context, sessionID, toolName string) (models.PermissionDecision, bool, error)

	// GetAll returns every remembered decision for a session keyed by tool
	// name. An unknown session yields an empty map, not an error.
	GetAll(ctx context.Context, sessionID string) (map[string]models.PermissionDecision, error)

	// Clear forgets every decision for a session.
	Clear(ctx context.Context, sessionID string) error

	// Revoke forgets the decision for a single (sessionID, toolName) pair.
	Revoke(ctx context.Context, sessionID, toolName string) error

	// Prune removes decisions older than the given age and returns how many
	// were removed.
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)

	// Close releases any resources held by the store.
	Close() error
}

type rememberedDecision struct {
	decision models.PermissionDecision
	savedAt  time.Time
}

// MemoryStore is an in-memory Store with per-session sub-maps. Decisions do
// not survive a restart; use SQLiteStore when they should.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]map[string]rememberedDecision
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]map[string]rememberedDecision),
	}
}

// Save records a decision for (sessionID, toolName).
func (s *MemoryStore) Save(_ context.Context, sessionID, toolName string, decision models.PermissionDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		session = make(map[string]rememberedDecision)
		s.sessions[sessionID] = session
	}
	session[toolName] = rememberedDecision{decision: decision, savedAt: time.Now()}
	return nil
}

// Get returns the remembered decision for (sessionID, toolName), if any.
func (s *MemoryStore) Get(_ context.Context, sessionID, toolName string) (models.PermissionDecision, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	remembered, ok := s.sessions[sessionID][toolName]
	if !ok {
		return "", false, nil
	}
	return remembered.decision, true, nil
}

// GetAll returns a copy of every remembered decision for a session.
func (s *MemoryStore) GetAll(_ context.Context, sessionID string) (map[string]models.PermissionDecision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	decisions := make(map[string]models.PermissionDecision, len(s.sessions[sessionID]))
	for toolName, remembered := range s.sessions[sessionID] {
		decisions[toolName] = remembered.decision
	}
	return decisions, nil
}

// Clear forgets every decision for a session.
func (s *MemoryStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	return nil
}

// Revoke forgets the decision for one tool in one session.
func (s *MemoryStore) Revoke(_ context.Context, sessionID, toolName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session, ok := s.sessions[sessionID]; ok {
		delete(session, toolName)
		if len(session) == 0 {
			delete(s.sessions, sessionID)
		}
	}
	return nil
}

// Prune removes decisions saved longer ago than olderThan.
func (s *MemoryStore) Prune(_ context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	var removed int64
	for sessionID, session := range s.sessions {
		for toolName, remembered := range session {
			if remembered.savedAt.Before(cutoff) {
				delete(session, toolName)
				removed++
			}
		}
		if len(session) == 0 {
			delete(s.sessions, sessionID)
		}
	}
	return removed, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
