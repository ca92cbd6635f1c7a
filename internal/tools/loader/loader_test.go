package loader

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/haasonsaas/warden/internal/agent"
	"github.com/haasonsaas/warden/pkg/models"
)

var _ agent.ModuleLoader = (*Loader)(nil)

type fakeTool struct {
	name string
}

func (f *fakeTool) Name() string                { return f.name }
func (f *fakeTool) Description() string         { return "fake tool" }
func (f *fakeTool) Schema() json.RawMessage     { return json.RawMessage(`{"type":"object"}`) }
func (f *fakeTool) RiskLevel() models.RiskLevel { return models.RiskReadOnly }

func (f *fakeTool) Execute(ctx context.Context, params json.RawMessage) (string, error) {
	return "ok", nil
}

func (f *fakeTool) Validate(ctx context.Context, params json.RawMessage) error {
	return nil
}

func TestDiscoverListsModules(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.so", "a.so", "note.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "nested.so"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	paths, err := New().Discover(dir)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	want := []string{filepath.Join(dir, "a.so"), filepath.Join(dir, "b.so")}
	if len(paths) != len(want) {
		t.Fatalf("Discover() returned %d paths, want %d: %v", len(paths), len(want), paths)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("paths[%d] = %q, want %q", i, paths[i], want[i])
		}
	}
}

func TestDiscoverMissingDirectory(t *testing.T) {
	paths, err := New().Discover(filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(paths) != 0 {
		t.Errorf("Discover() = %v, want no paths", paths)
	}
}

func TestExportedTools(t *testing.T) {
	one := &fakeTool{name: "one"}
	two := &fakeTool{name: "two"}
	exported := []any{one, two}

	tests := []struct {
		name    string
		symbol  any
		want    int
		wantErr bool
	}{
		{name: "slice pointer", symbol: &exported, want: 2},
		{name: "slice value", symbol: exported, want: 2},
		{name: "constructor", symbol: func() []any { return []any{one} }, want: 1},
		{name: "empty export", symbol: &[]any{}, wantErr: true},
		{name: "non-tool element", symbol: []any{one, 42}, wantErr: true},
		{name: "unsupported type", symbol: "nope", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tools, err := exportedTools(tt.symbol)
			if (err != nil) != tt.wantErr {
				t.Fatalf("exportedTools() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if len(tools) != tt.want {
				t.Errorf("exportedTools() returned %d tools, want %d", len(tools), tt.want)
			}
		})
	}
}

func TestLoadRejectsInvalidModule(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.so")
	if err := os.WriteFile(path, []byte("not a shared object"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	if _, err := New().Load(path); err == nil {
		t.Error("Load() error = nil, want error for invalid module")
	}
}
