package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/haasonsaas/warden/internal/permissions"
	"github.com/haasonsaas/warden/pkg/models"
)

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()

	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	for _, required := range []string{"chat", "tools", "permissions", "config", "version"} {
		if !names[required] {
			t.Errorf("root command is missing subcommand %q", required)
		}
	}
}

func writeTestConfig(t *testing.T, dir, contents string) string {
	t.Helper()
	path := filepath.Join(dir, "warden.yaml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(contents)), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func runCommand(t *testing.T, args ...string) string {
	t.Helper()
	cmd := buildRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute(%v) error = %v", args, err)
	}
	return out.String()
}

func TestConfigValidateCommand(t *testing.T) {
	path := writeTestConfig(t, t.TempDir(), `
llm:
  default_provider: anthropic
permissions:
  mode: smart
`)

	out := runCommand(t, "config", "validate", "-c", path)
	if !strings.Contains(out, "Config OK") {
		t.Errorf("output = %q, want Config OK", out)
	}
	if !strings.Contains(out, "anthropic") {
		t.Errorf("output = %q, want provider name", out)
	}
}

func TestConfigValidateRejectsBadMode(t *testing.T) {
	path := writeTestConfig(t, t.TempDir(), `
permissions:
  mode: always
`)

	cmd := buildRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"config", "validate", "-c", path})

	err := cmd.Execute()
	if err == nil {
		t.Fatal("Execute() expected error for invalid mode")
	}
	if !strings.Contains(err.Error(), "permissions.mode") {
		t.Errorf("error = %v, want mention of permissions.mode", err)
	}
}

func TestConfigSchemaCommand(t *testing.T) {
	out := runCommand(t, "config", "schema")

	var schema map[string]any
	if err := json.Unmarshal([]byte(out), &schema); err != nil {
		t.Fatalf("schema output is not valid JSON: %v", err)
	}
	for _, section := range []string{"llm", "permissions", "tools"} {
		if !strings.Contains(out, section) {
			t.Errorf("schema output missing section %q", section)
		}
	}
}

func TestToolsListCommand(t *testing.T) {
	dir := t.TempDir()
	path := writeTestConfig(t, dir, fmt.Sprintf(`
tools:
  workspace: %s
`, dir))

	out := runCommand(t, "tools", "list", "-c", path)
	for _, name := range []string{"read_file", "write_file", "list_dir", "shell"} {
		if !strings.Contains(out, name) {
			t.Errorf("tools list output missing %q:\n%s", name, out)
		}
	}
}

func TestToolsValidateCommand(t *testing.T) {
	dir := t.TempDir()
	path := writeTestConfig(t, dir, fmt.Sprintf(`
tools:
  workspace: %s
`, dir))

	out := runCommand(t, "tools", "validate", "-c", path)
	if !strings.Contains(out, "shell: ok") {
		t.Errorf("tools validate output = %q, want shell: ok", out)
	}
}

func TestToolsManifestCommand(t *testing.T) {
	dir := t.TempDir()
	path := writeTestConfig(t, dir, fmt.Sprintf(`
tools:
  workspace: %s
`, dir))

	out := runCommand(t, "tools", "manifest", "-c", path)

	var manifest struct {
		Tools []struct {
			Name      string `json:"name"`
			RiskLevel string `json:"risk_level"`
		} `json:"tools"`
	}
	if err := json.Unmarshal([]byte(out), &manifest); err != nil {
		t.Fatalf("manifest output is not valid JSON: %v", err)
	}
	if len(manifest.Tools) != 4 {
		t.Errorf("manifest has %d tools, want 4", len(manifest.Tools))
	}
}

func TestPermissionsListEmpty(t *testing.T) {
	dir := t.TempDir()
	path := writeTestConfig(t, dir, fmt.Sprintf(`
permissions:
  store:
    backend: sqlite
    path: %s
`, filepath.Join(dir, "perms.db")))

	out := runCommand(t, "permissions", "list", "-c", path, "-s", "demo")
	if !strings.Contains(out, "No remembered decisions") {
		t.Errorf("output = %q, want empty-session message", out)
	}
}

func TestPermissionsListShowsSavedDecisions(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "perms.db")
	path := writeTestConfig(t, dir, fmt.Sprintf(`
permissions:
  store:
    backend: sqlite
    path: %s
`, dbPath))

	store, err := permissions.NewSQLiteStore(permissions.SQLiteConfig{Path: dbPath})
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	if err := store.Save(context.Background(), "demo", "shell", models.DecisionAllow); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	out := runCommand(t, "permissions", "list", "-c", path, "-s", "demo")
	if !strings.Contains(out, "shell") || !strings.Contains(out, "allow") {
		t.Errorf("output = %q, want shell allow row", out)
	}
}

func TestPermissionsRevokeCommand(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "perms.db")
	path := writeTestConfig(t, dir, fmt.Sprintf(`
permissions:
  store:
    backend: sqlite
    path: %s
`, dbPath))

	store, err := permissions.NewSQLiteStore(permissions.SQLiteConfig{Path: dbPath})
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	if err := store.Save(context.Background(), "demo", "shell", models.DecisionAllow); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	runCommand(t, "permissions", "revoke", "shell", "-c", path, "-s", "demo")

	out := runCommand(t, "permissions", "list", "-c", path, "-s", "demo")
	if !strings.Contains(out, "No remembered decisions") {
		t.Errorf("output after revoke = %q, want empty-session message", out)
	}
}

func TestVersionCommand(t *testing.T) {
	out := runCommand(t, "version")
	if !strings.Contains(out, "warden") {
		t.Errorf("output = %q, want binary name", out)
	}
	if !strings.Contains(out, "go:") {
		t.Errorf("output = %q, want go runtime version", out)
	}
}

func TestAPIKeyFromEnv(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "ak-test")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "g-test")

	tests := []struct {
		provider string
		want     string
	}{
		{"anthropic", "ak-test"},
		{"", "ak-test"},
		{"openai", "sk-test"},
		{"google", "g-test"},
		{"gemini", "g-test"},
	}
	for _, tt := range tests {
		if got := apiKeyFromEnv(tt.provider); got != tt.want {
			t.Errorf("apiKeyFromEnv(%q) = %q, want %q", tt.provider, got, tt.want)
		}
	}
}

func TestLoadConfigMissingDefaultUsesBuiltins(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := loadConfig(defaultConfigName)
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.LLM.DefaultProvider != "anthropic" {
		t.Errorf("DefaultProvider = %q, want anthropic", cfg.LLM.DefaultProvider)
	}
}

func TestLoadConfigExplicitMissingPathFails(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("loadConfig() expected error for missing explicit path")
	}
}
