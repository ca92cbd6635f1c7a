// Package sessions persists conversation transcripts so a session can be
// resumed across process restarts. The runtime never reads these stores on
// its own; callers load a transcript into a ConversationContext before
// processing and save it back afterwards.
package sessions

import (
	"context"

	"github.com/haasonsaas/warden/pkg/models"
)

// maxMessagesPerSession bounds a stored transcript. Saves keep the most
// recent messages when the bound is exceeded.
const maxMessagesPerSession = 1000

// Store is the interface for transcript persistence.
type Store interface {
	// Load returns a session's transcript, oldest message first. A session
	// that was never saved loads as an empty transcript, not an error.
	Load(ctx context.Context, sessionID string) ([]models.Message, error)

	// Save replaces the stored transcript for a session.
	Save(ctx context.Context, sessionID string, messages []models.Message) error

	// Clear removes a session's transcript.
	Clear(ctx context.Context, sessionID string) error

	// Close releases underlying resources.
	Close() error
}

// trimMessages enforces the per-session bound, keeping the newest messages.
func trimMessages(messages []models.Message) []models.Message {
	if len(messages) <= maxMessagesPerSession {
		return messages
	}
	return messages[len(messages)-maxMessagesPerSession:]
}
