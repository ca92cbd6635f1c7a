package sessions

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/haasonsaas/warden/pkg/models"
)

var _ Store = (*MemoryStore)(nil)

func sampleTranscript() []models.Message {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return []models.Message{
		{
			ID:        "msg-1",
			Role:      models.RoleUser,
			Content:   "read the config file",
			Timestamp: now,
		},
		{
			ID:        "msg-2",
			Role:      models.RoleAssistant,
			Content:   "reading it now",
			Timestamp: now.Add(time.Second),
			ToolCalls: []models.ToolCall{
				{ID: "call_1", Name: "read_file", Parameters: json.RawMessage(`{"path":"config.yaml"}`)},
			},
		},
		{
			ID:         "msg-3",
			Role:       models.RoleTool,
			Content:    `{"content":"threads: 4"}`,
			Timestamp:  now.Add(2 * time.Second),
			ToolCallID: "call_1",
		},
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	transcript := sampleTranscript()

	if err := store.Save(context.Background(), "session-1", transcript); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	loaded, err := store.Load(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(loaded) != len(transcript) {
		t.Fatalf("Load() returned %d messages, want %d", len(loaded), len(transcript))
	}
	for i := range transcript {
		if loaded[i].ID != transcript[i].ID {
			t.Errorf("loaded[%d].ID = %q, want %q", i, loaded[i].ID, transcript[i].ID)
		}
		if loaded[i].Role != transcript[i].Role {
			t.Errorf("loaded[%d].Role = %q, want %q", i, loaded[i].Role, transcript[i].Role)
		}
	}
	if len(loaded[1].ToolCalls) != 1 || loaded[1].ToolCalls[0].Name != "read_file" {
		t.Errorf("loaded[1].ToolCalls = %+v, want the read_file call", loaded[1].ToolCalls)
	}
	if loaded[2].ToolCallID != "call_1" {
		t.Errorf("loaded[2].ToolCallID = %q, want call_1", loaded[2].ToolCallID)
	}
}

func TestMemoryStoreLoadUnknownSession(t *testing.T) {
	store := NewMemoryStore()

	loaded, err := store.Load(context.Background(), "never-saved")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded == nil {
		t.Fatal("Load() = nil, want empty transcript")
	}
	if len(loaded) != 0 {
		t.Errorf("Load() returned %d messages, want 0", len(loaded))
	}
}

func TestMemoryStoreLoadReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	if err := store.Save(context.Background(), "session-1", sampleTranscript()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := store.Load(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	loaded[0].Content = "mutated"
	loaded[1].ToolCalls[0].Parameters[2] = 'X'

	again, err := store.Load(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if again[0].Content != "read the config file" {
		t.Errorf("stored content changed to %q after mutating a loaded copy", again[0].Content)
	}
	if string(again[1].ToolCalls[0].Parameters) != `{"path":"config.yaml"}` {
		t.Errorf("stored parameters changed to %s after mutating a loaded copy", again[1].ToolCalls[0].Parameters)
	}
}

func TestMemoryStoreSaveClonesInput(t *testing.T) {
	store := NewMemoryStore()
	transcript := sampleTranscript()
	if err := store.Save(context.Background(), "session-1", transcript); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	transcript[0].Content = "mutated after save"

	loaded, err := store.Load(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded[0].Content != "read the config file" {
		t.Errorf("stored content = %q, want the pre-mutation value", loaded[0].Content)
	}
}

func TestMemoryStoreSaveReplaces(t *testing.T) {
	store := NewMemoryStore()
	if err := store.Save(context.Background(), "session-1", sampleTranscript()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Save(context.Background(), "session-1", sampleTranscript()[:1]); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}

	loaded, err := store.Load(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(loaded) != 1 {
		t.Errorf("Load() returned %d messages, want 1", len(loaded))
	}
}

func TestMemoryStoreTrimsLongTranscripts(t *testing.T) {
	store := NewMemoryStore()
	long := make([]models.Message, maxMessagesPerSession+50)
	for i := range long {
		long[i] = models.Message{
			ID:      fmt.Sprintf("msg-%d", i),
			Role:    models.RoleUser,
			Content: "x",
		}
	}

	if err := store.Save(context.Background(), "session-1", long); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	loaded, err := store.Load(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(loaded) != maxMessagesPerSession {
		t.Fatalf("Load() returned %d messages, want %d", len(loaded), maxMessagesPerSession)
	}
	if loaded[0].ID != "msg-50" {
		t.Errorf("loaded[0].ID = %q, want msg-50 (oldest messages trimmed)", loaded[0].ID)
	}
}

func TestMemoryStoreClear(t *testing.T) {
	store := NewMemoryStore()
	if err := store.Save(context.Background(), "session-1", sampleTranscript()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Clear(context.Background(), "session-1"); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	loaded, err := store.Load(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("Load() after Clear returned %d messages, want 0", len(loaded))
	}
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	store := NewMemoryStore()
	transcript := sampleTranscript()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			sessionID := fmt.Sprintf("session-%d", n%2)
			for j := 0; j < 50; j++ {
				if err := store.Save(context.Background(), sessionID, transcript); err != nil {
					t.Errorf("Save() error = %v", err)
					return
				}
				if _, err := store.Load(context.Background(), sessionID); err != nil {
					t.Errorf("Load() error = %v", err)
					return
				}
			}
		}(i)
	}
	wg.Wait()
}
