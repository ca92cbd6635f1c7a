package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/warden/pkg/models"
)

func TestExecuteToolCallSuccess(t *testing.T) {
	tool := &mockTool{name: "echo", description: "echoes", execFunc: func(context.Context, json.RawMessage) (string, error) {
		return "done", nil
	}}
	runtime := newTestRuntime(t, &scriptedProvider{}, newTestPermissions(t, models.ModeAuto), nil)

	result := runtime.executeToolCall(context.Background(), tool, toolCall("call-1", "echo", `{}`))

	if !result.Success {
		t.Fatalf("Success = false, error = %q", result.Error)
	}
	if result.Output != "done" {
		t.Errorf("Output = %q, want %q", result.Output, "done")
	}
	if result.ToolCallID != "call-1" {
		t.Errorf("ToolCallID = %q, want call-1", result.ToolCallID)
	}
	if result.Duration <= 0 {
		t.Errorf("Duration = %v, want > 0", result.Duration)
	}
}

func TestExecuteToolCallError(t *testing.T) {
	tool := &mockTool{name: "broken", description: "fails", execFunc: func(context.Context, json.RawMessage) (string, error) {
		return "", errors.New("boom")
	}}
	runtime := newTestRuntime(t, &scriptedProvider{}, newTestPermissions(t, models.ModeAuto), nil)

	result := runtime.executeToolCall(context.Background(), tool, toolCall("call-1", "broken", `{}`))

	if result.Success {
		t.Fatal("Success = true, want failure")
	}
	if result.Error != "boom" {
		t.Errorf("Error = %q, want %q", result.Error, "boom")
	}
}

func TestExecuteToolCallPanic(t *testing.T) {
	tool := &mockTool{name: "panicky", description: "panics", execFunc: func(context.Context, json.RawMessage) (string, error) {
		panic("nil map write")
	}}
	runtime := newTestRuntime(t, &scriptedProvider{}, newTestPermissions(t, models.ModeAuto), nil)

	result := runtime.executeToolCall(context.Background(), tool, toolCall("call-1", "panicky", `{}`))

	if result.Success {
		t.Fatal("Success = true, want failure from recovered panic")
	}
	if !strings.Contains(result.Error, "tool panicked") {
		t.Errorf("Error = %q, want a recovered panic message", result.Error)
	}
	if !strings.Contains(result.Error, "nil map write") {
		t.Errorf("Error = %q, want the panic value", result.Error)
	}
}

func TestExecuteToolCallTimeout(t *testing.T) {
	tool := &mockTool{name: "slow", description: "sleeps", execFunc: func(ctx context.Context, _ json.RawMessage) (string, error) {
		select {
		case <-time.After(time.Second):
			return "too late", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}}

	logger := quietLogger()
	opts := DefaultRuntimeOptions()
	opts.ToolTimeout = 20 * time.Millisecond
	opts.Logger = logger
	runtime := NewRuntime(&scriptedProvider{}, NewRegistry(RegistryConfig{Logger: logger}), newTestPermissions(t, models.ModeAuto), &opts)

	result := runtime.executeToolCall(context.Background(), tool, toolCall("call-1", "slow", `{}`))

	if result.Success {
		t.Fatal("Success = true, want timeout failure")
	}
	if !strings.Contains(result.Error, "timed out") {
		t.Errorf("Error = %q, want a timeout message", result.Error)
	}
}

func TestExecuteToolCallParentCancellation(t *testing.T) {
	started := make(chan struct{})
	tool := &mockTool{name: "patient", description: "waits", execFunc: func(ctx context.Context, _ json.RawMessage) (string, error) {
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	}}
	runtime := newTestRuntime(t, &scriptedProvider{}, newTestPermissions(t, models.ModeAuto), nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	result := runtime.executeToolCall(ctx, tool, toolCall("call-1", "patient", `{}`))

	if result.Success {
		t.Fatal("Success = true, want cancellation failure")
	}
	if !strings.Contains(result.Error, "context canceled") {
		t.Errorf("Error = %q, want context cancellation", result.Error)
	}
	if strings.Contains(result.Error, "timed out") {
		t.Errorf("Error = %q, parent cancellation must not read as a timeout", result.Error)
	}
}
