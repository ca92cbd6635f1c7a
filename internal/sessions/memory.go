package sessions

import (
	"context"
	"sync"

	"github.com/haasonsaas/warden/pkg/models"
)

// MemoryStore is an in-memory Store for tests and single-run sessions.
// Transcripts are cloned on the way in and out, so callers can keep mutating
// their slices without corrupting the stored copy.
type MemoryStore struct {
	mu          sync.RWMutex
	transcripts map[string][]models.Message
}

// NewMemoryStore creates an empty in-memory transcript store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		transcripts: make(map[string][]models.Message),
	}
}

// Load returns a copy of the session's transcript.
func (m *MemoryStore) Load(ctx context.Context, sessionID string) ([]models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return cloneMessages(m.transcripts[sessionID]), nil
}

// Save replaces the session's transcript with a copy of messages.
func (m *MemoryStore) Save(ctx context.Context, sessionID string, messages []models.Message) error {
	clone := cloneMessages(trimMessages(messages))

	m.mu.Lock()
	defer m.mu.Unlock()

	m.transcripts[sessionID] = clone
	return nil
}

// Clear removes the session's transcript.
func (m *MemoryStore) Clear(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.transcripts, sessionID)
	return nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}

// cloneMessages deep-copies a transcript, including tool call slices and
// their raw parameter payloads.
func cloneMessages(messages []models.Message) []models.Message {
	if messages == nil {
		return []models.Message{}
	}
	out := make([]models.Message, len(messages))
	for i, msg := range messages {
		clone := msg
		if msg.ToolCalls != nil {
			clone.ToolCalls = make([]models.ToolCall, len(msg.ToolCalls))
			for j, call := range msg.ToolCalls {
				callClone := call
				if call.Parameters != nil {
					callClone.Parameters = append([]byte(nil), call.Parameters...)
				}
				clone.ToolCalls[j] = callClone
			}
		}
		out[i] = clone
	}
	return out
}
