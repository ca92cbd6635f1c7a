package permissions

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/haasonsaas/warden/internal/security"
	"github.com/haasonsaas/warden/pkg/models"
)

// countingInspector records how often Inspect runs so tests can prove the
// remembered-decision fast path skips inspection entirely.
type countingInspector struct {
	mu     sync.Mutex
	calls  int
	result *models.InspectionResult
}

func (i *countingInspector) Inspect(_ context.Context, _ models.ToolCall) *models.InspectionResult {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.calls++
	if i.result != nil {
		return i.result
	}
	return models.NewInspectionResult(nil)
}

func (i *countingInspector) count() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.calls
}

// failingStore returns the same error from every operation.
type failingStore struct {
	err error
}

func (s *failingStore) Save(context.Context, string, string, models.PermissionDecision) error {
	return s.err
}

func (s *failingStore) Get(context.Context, string, string) (models.PermissionDecision, bool, error) {
	return "", false, s.err
}

func (s *failingStore) GetAll(context.Context, string) (map[string]models.PermissionDecision, error) {
	return nil, s.err
}

func (s *failingStore) Clear(context.Context, string) error { return s.err }

func (s *failingStore) Revoke(context.Context, string, string) error { return s.err }

func (s *failingStore) Prune(context.Context, time.Duration) (int64, error) { return 0, s.err }

func (s *failingStore) Close() error { return nil }

func shellCall(command string) models.ToolCall {
	return models.ToolCall{
		ID:         "call-1",
		Name:       "shell",
		Parameters: []byte(`{"command":"` + command + `"}`),
	}
}

func TestSystemFastPathSkipsInspection(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	inspector := &countingInspector{}
	system := NewSystem(store, inspector, SystemConfig{
		Judge: JudgeConfig{Mode: models.ModeAsk},
	})

	if err := store.Save(ctx, "session-1", "shell", models.DecisionAllow); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	resp, err := system.RequestPermission(ctx, shellCall("ls"), models.RiskReadWrite, "session-1")
	if err != nil {
		t.Fatalf("RequestPermission() error = %v", err)
	}
	if resp.Decision != models.DecisionAllow {
		t.Errorf("Decision = %q, want %q", resp.Decision, models.DecisionAllow)
	}
	if resp.RememberDecision {
		t.Error("RememberDecision must be false from the system")
	}
	if got := inspector.count(); got != 0 {
		t.Errorf("inspector ran %d times on the fast path, want 0", got)
	}

	// A session without a remembered decision goes through inspection.
	resp, err = system.RequestPermission(ctx, shellCall("ls"), models.RiskReadWrite, "session-2")
	if err != nil {
		t.Fatalf("RequestPermission() error = %v", err)
	}
	if resp.Decision != models.DecisionAsk {
		t.Errorf("Decision = %q, want %q", resp.Decision, models.DecisionAsk)
	}
	if got := inspector.count(); got != 1 {
		t.Errorf("inspector ran %d times, want 1", got)
	}
}

func TestSystemJudgesFreshCalls(t *testing.T) {
	ctx := context.Background()
	inspector := &countingInspector{}
	system := NewSystem(NewMemoryStore(), inspector, SystemConfig{
		Judge: JudgeConfig{Mode: models.ModeAuto},
	})

	if system.Mode() != models.ModeAuto {
		t.Errorf("Mode() = %q, want %q", system.Mode(), models.ModeAuto)
	}

	resp, err := system.RequestPermission(ctx, shellCall("ls"), models.RiskReadOnly, "session-1")
	if err != nil {
		t.Fatalf("RequestPermission() error = %v", err)
	}
	if resp.Decision != models.DecisionAllow {
		t.Errorf("Decision = %q, want %q", resp.Decision, models.DecisionAllow)
	}
	if resp.RememberDecision {
		t.Error("RememberDecision must be false from the system")
	}
	if resp.Inspection == nil {
		t.Error("expected inspection result on a fresh call")
	}
	if resp.RiskLevel != models.RiskReadOnly {
		t.Errorf("RiskLevel = %v, want %v", resp.RiskLevel, models.RiskReadOnly)
	}
	if got := inspector.count(); got != 1 {
		t.Errorf("inspector ran %d times, want 1", got)
	}

	// The judged decision is not persisted; the next identical call is
	// inspected again.
	if _, err := system.RequestPermission(ctx, shellCall("ls"), models.RiskReadOnly, "session-1"); err != nil {
		t.Fatalf("RequestPermission() error = %v", err)
	}
	if got := inspector.count(); got != 2 {
		t.Errorf("inspector ran %d times, want 2", got)
	}
}

func TestSystemStoreFailureSurfaces(t *testing.T) {
	ctx := context.Background()
	inspector := &countingInspector{}
	system := NewSystem(&failingStore{err: errors.New("disk gone")}, inspector, SystemConfig{
		Judge: JudgeConfig{Mode: models.ModeAuto},
	})

	_, err := system.RequestPermission(ctx, shellCall("ls"), models.RiskReadOnly, "session-1")
	if err == nil {
		t.Fatal("expected error from failing store")
	}
	if got := inspector.count(); got != 0 {
		t.Errorf("inspector ran %d times after store failure, want 0", got)
	}

	if _, err := system.IsApproved(ctx, "session-1", "shell"); err == nil {
		t.Error("expected IsApproved to surface store error")
	}
	if err := system.Remember(ctx, "session-1", "shell", models.DecisionAllow); err == nil {
		t.Error("expected Remember to surface store error")
	}
}

func TestSystemIsApproved(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	system := NewSystem(store, &countingInspector{}, SystemConfig{
		Judge: JudgeConfig{Mode: models.ModeAsk},
	})

	approved, err := system.IsApproved(ctx, "session-1", "shell")
	if err != nil {
		t.Fatalf("IsApproved() error = %v", err)
	}
	if approved {
		t.Error("expected unapproved tool without a remembered decision")
	}

	if err := store.Save(ctx, "session-1", "shell", models.DecisionAllow); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if approved, _ = system.IsApproved(ctx, "session-1", "shell"); !approved {
		t.Error("expected approved tool after remembered allow")
	}

	if err := store.Save(ctx, "session-1", "shell", models.DecisionDeny); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if approved, _ = system.IsApproved(ctx, "session-1", "shell"); approved {
		t.Error("remembered deny must not count as approved")
	}
}

func TestSystemRemember(t *testing.T) {
	ctx := context.Background()
	inspector := &countingInspector{}
	system := NewSystem(NewMemoryStore(), inspector, SystemConfig{
		Judge: JudgeConfig{Mode: models.ModeAsk},
	})

	if err := system.Remember(ctx, "session-1", "shell", models.DecisionAllow); err != nil {
		t.Fatalf("Remember() error = %v", err)
	}

	// The remembered decision now short-circuits the ask mode.
	resp, err := system.RequestPermission(ctx, shellCall("ls"), models.RiskReadWrite, "session-1")
	if err != nil {
		t.Fatalf("RequestPermission() error = %v", err)
	}
	if resp.Decision != models.DecisionAllow {
		t.Errorf("Decision = %q, want %q", resp.Decision, models.DecisionAllow)
	}
	if got := inspector.count(); got != 0 {
		t.Errorf("inspector ran %d times, want 0", got)
	}
}

func TestSystemCriticalThreatForcesAskInAutoMode(t *testing.T) {
	ctx := context.Background()
	inspector := security.NewInspector(security.InspectorConfig{}, nil)
	system := NewSystem(NewMemoryStore(), inspector, SystemConfig{
		Judge: JudgeConfig{Mode: models.ModeAuto},
	})

	resp, err := system.RequestPermission(ctx, shellCall("rm -rf /"), models.RiskDestructive, "session-1")
	if err != nil {
		t.Fatalf("RequestPermission() error = %v", err)
	}
	if resp.Decision != models.DecisionAsk {
		t.Errorf("Decision = %q, want %q", resp.Decision, models.DecisionAsk)
	}
	if resp.Inspection == nil || resp.Inspection.MaxThreatLevel != models.ThreatLevelCritical {
		t.Errorf("expected critical inspection result, got %+v", resp.Inspection)
	}

	// The same call in a benign form sails through.
	resp, err = system.RequestPermission(ctx, shellCall("ls -la"), models.RiskReadOnly, "session-1")
	if err != nil {
		t.Fatalf("RequestPermission() error = %v", err)
	}
	if resp.Decision != models.DecisionAllow {
		t.Errorf("Decision = %q, want %q", resp.Decision, models.DecisionAllow)
	}
}
