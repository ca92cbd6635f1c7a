package providers

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/haasonsaas/warden/internal/agent"
	"github.com/haasonsaas/warden/pkg/models"
	"google.golang.org/genai"
)

func TestNewGoogleProvider(t *testing.T) {
	if _, err := NewGoogleProvider(GoogleConfig{}); err == nil {
		t.Error("expected error for missing API key")
	}

	provider, err := NewGoogleProvider(GoogleConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("NewGoogleProvider() error = %v", err)
	}
	if provider.Name() != "google" {
		t.Errorf("Name() = %q, want %q", provider.Name(), "google")
	}
	if provider.defaultModel != defaultGoogleModel {
		t.Errorf("defaultModel = %q, want %q", provider.defaultModel, defaultGoogleModel)
	}
}

func TestConvertGoogleMessagesRoles(t *testing.T) {
	result, err := convertGoogleMessages([]models.Message{
		{Role: models.RoleSystem, Content: "Be terse."},
		{Role: models.RoleUser, Content: "Hello"},
		{Role: models.RoleAssistant, Content: "Hi"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// System is carried via config, not the transcript.
	if len(result) != 2 {
		t.Fatalf("got %d contents, want 2", len(result))
	}
	if result[0].Role != genai.RoleUser {
		t.Errorf("first role = %q, want user", result[0].Role)
	}
	if result[1].Role != genai.RoleModel {
		t.Errorf("second role = %q, want model", result[1].Role)
	}
	if result[0].Parts[0].Text != "Hello" {
		t.Errorf("text = %q, want Hello", result[0].Parts[0].Text)
	}
}

func TestConvertGoogleMessagesToolCall(t *testing.T) {
	result, err := convertGoogleMessages([]models.Message{
		{
			Role: models.RoleAssistant,
			ToolCalls: []models.ToolCall{
				{ID: "call_read_file_1", Name: "read_file", Parameters: json.RawMessage(`{"path":"/tmp/x"}`)},
			},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("got %d contents, want 1", len(result))
	}

	part := result[0].Parts[0]
	if part.FunctionCall == nil {
		t.Fatal("expected function call part")
	}
	if part.FunctionCall.Name != "read_file" {
		t.Errorf("name = %q, want read_file", part.FunctionCall.Name)
	}
	if part.FunctionCall.Args["path"] != "/tmp/x" {
		t.Errorf("args = %v", part.FunctionCall.Args)
	}
}

func TestConvertGoogleMessagesToolResult(t *testing.T) {
	messages := []models.Message{
		{
			Role: models.RoleAssistant,
			ToolCalls: []models.ToolCall{
				{ID: "call_read_file_42", Name: "read_file", Parameters: json.RawMessage(`{}`)},
			},
		},
		{Role: models.RoleTool, Content: "plain output", ToolCallID: "call_read_file_42"},
	}

	result, err := convertGoogleMessages(messages)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("got %d contents, want 2", len(result))
	}

	part := result[1].Parts[0]
	if part.FunctionResponse == nil {
		t.Fatal("expected function response part")
	}
	if part.FunctionResponse.Name != "read_file" {
		t.Errorf("name = %q, want read_file (recovered from the tool call)", part.FunctionResponse.Name)
	}
	// Non-JSON output gets wrapped in a result field.
	if part.FunctionResponse.Response["result"] != "plain output" {
		t.Errorf("response = %v", part.FunctionResponse.Response)
	}
}

func TestConvertGoogleMessagesJSONToolResult(t *testing.T) {
	result, err := convertGoogleMessages([]models.Message{
		{Role: models.RoleTool, Content: `{"entries": 3}`, ToolCallID: "call_list_dir_1"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	part := result[0].Parts[0]
	if part.FunctionResponse == nil {
		t.Fatal("expected function response part")
	}
	if part.FunctionResponse.Response["entries"] != float64(3) {
		t.Errorf("response = %v, JSON output should pass through", part.FunctionResponse.Response)
	}
	// No matching call in the transcript: name comes from the ID format.
	if part.FunctionResponse.Name != "list" {
		t.Errorf("name = %q, want segment parsed from ID", part.FunctionResponse.Name)
	}
}

func TestGoogleToolCallIDs(t *testing.T) {
	id := newGoogleToolCallID("read_file")
	if !strings.HasPrefix(id, "call_read_file_") {
		t.Errorf("ID = %q, want call_read_file_ prefix", id)
	}

	name := toolNameForCallID(id, []models.Message{
		{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{{ID: id, Name: "read_file"}}},
	})
	if name != "read_file" {
		t.Errorf("name = %q, want read_file", name)
	}

	if got := toolNameForCallID("nonsense", nil); got != "" {
		t.Errorf("name = %q, want empty for unparseable ID", got)
	}
}

func TestBuildGoogleConfig(t *testing.T) {
	req := &agent.CompletionRequest{
		System:    "Careful now.",
		MaxTokens: 2048,
		Tools: []models.ToolManifest{
			{Name: "read_file", Description: "Read a file", Schema: map[string]any{"type": "object"}},
		},
	}

	config := buildGoogleConfig(req)
	if config.SystemInstruction == nil || config.SystemInstruction.Parts[0].Text != "Careful now." {
		t.Error("system instruction not set")
	}
	if config.MaxOutputTokens != 2048 {
		t.Errorf("MaxOutputTokens = %d, want 2048", config.MaxOutputTokens)
	}
	if len(config.Tools) != 1 || len(config.Tools[0].FunctionDeclarations) != 1 {
		t.Fatal("tools not converted")
	}

	empty := buildGoogleConfig(&agent.CompletionRequest{})
	if empty.SystemInstruction != nil || empty.Tools != nil || empty.MaxOutputTokens != 0 {
		t.Error("empty request should produce zero config")
	}
}

func TestToGeminiSchema(t *testing.T) {
	schema := toGeminiSchema(map[string]any{
		"type":        "object",
		"description": "shell invocation",
		"properties": map[string]any{
			"command": map[string]any{"type": "string", "description": "command line"},
			"mode":    map[string]any{"type": "string", "enum": []any{"fast", "safe"}},
			"args": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
		"required": []any{"command"},
	})

	if schema.Type != genai.TypeObject {
		t.Errorf("Type = %v, want OBJECT", schema.Type)
	}
	if schema.Description != "shell invocation" {
		t.Errorf("Description = %q", schema.Description)
	}
	if len(schema.Properties) != 3 {
		t.Fatalf("got %d properties, want 3", len(schema.Properties))
	}
	if schema.Properties["command"].Type != genai.TypeString {
		t.Errorf("command type = %v, want STRING", schema.Properties["command"].Type)
	}
	if got := schema.Properties["mode"].Enum; len(got) != 2 || got[0] != "fast" {
		t.Errorf("enum = %v", got)
	}
	if schema.Properties["args"].Items == nil || schema.Properties["args"].Items.Type != genai.TypeString {
		t.Error("array items not converted")
	}
	if len(schema.Required) != 1 || schema.Required[0] != "command" {
		t.Errorf("required = %v", schema.Required)
	}

	if toGeminiSchema(nil) != nil {
		t.Error("nil schema should convert to nil")
	}
}

func TestWrapGoogleError(t *testing.T) {
	provider, err := NewGoogleProvider(GoogleConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("NewGoogleProvider() error = %v", err)
	}

	tests := []struct {
		name       string
		err        error
		wantReason ErrorReason
	}{
		{"rate limit", errors.New("googleapi: Error 429: resource exhausted"), ReasonRateLimit},
		{"auth", errors.New("rpc error: code = Unauthenticated"), ReasonAuth},
		{"server", errors.New("googleapi: Error 503: service backend"), ReasonServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := provider.wrapError(tt.err, "gemini-2.0-flash")
			providerErr, ok := AsProviderError(wrapped)
			if !ok {
				t.Fatalf("expected ProviderError, got %T", wrapped)
			}
			if providerErr.Reason != tt.wantReason {
				t.Errorf("Reason = %v, want %v", providerErr.Reason, tt.wantReason)
			}
			if providerErr.Provider != "google" {
				t.Errorf("Provider = %q, want google", providerErr.Provider)
			}
		})
	}
}
