package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/haasonsaas/warden/pkg/models"
)

// ShellTool runs shell commands with the workspace as working directory. A
// command's non-zero exit is reported as data for the model to read; only a
// failure to run the command at all surfaces as a tool error.
type ShellTool struct {
	resolver  Resolver
	maxOutput int
}

// NewShellTool creates a shell tool scoped to the workspace.
func NewShellTool(cfg Config) *ShellTool {
	limit := cfg.MaxOutputBytes
	if limit <= 0 {
		limit = defaultMaxOutputBytes
	}
	return &ShellTool{
		resolver:  Resolver{Root: cfg.Workspace},
		maxOutput: limit,
	}
}

// Name returns the tool name.
func (t *ShellTool) Name() string { return "shell" }

// Description returns the tool description.
func (t *ShellTool) Description() string {
	return "Run a shell command in the workspace and capture stdout, stderr, and the exit code."
}

// Schema returns the JSON schema for the tool parameters.
func (t *ShellTool) Schema() json.RawMessage {
	return marshalSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "Shell command to execute.",
			},
			"cwd": map[string]any{
				"type":        "string",
				"description": "Working directory (relative to workspace).",
			},
			"timeout_seconds": map[string]any{
				"type":        "integer",
				"description": "Timeout in seconds (0 = runtime default).",
				"minimum":     0,
			},
		},
		"required": []string{"command"},
	})
}

// RiskLevel declares the tool's risk tier.
func (t *ShellTool) RiskLevel() models.RiskLevel { return models.RiskDestructive }

type shellParams struct {
	Command        string `json:"command"`
	Cwd            string `json:"cwd"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// Validate checks the parameters without running anything.
func (t *ShellTool) Validate(ctx context.Context, params json.RawMessage) error {
	_ = ctx
	var input shellParams
	if err := json.Unmarshal(params, &input); err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}
	if strings.TrimSpace(input.Command) == "" {
		return errors.New("command is required")
	}
	if input.TimeoutSeconds < 0 {
		return errors.New("timeout_seconds must be >= 0")
	}
	if strings.TrimSpace(input.Cwd) != "" {
		if _, err := t.resolver.Resolve(input.Cwd); err != nil {
			return err
		}
	}
	return nil
}

// Execute runs the command through /bin/sh and reports its outcome.
func (t *ShellTool) Execute(ctx context.Context, params json.RawMessage) (string, error) {
	var input shellParams
	if err := json.Unmarshal(params, &input); err != nil {
		return "", fmt.Errorf("invalid parameters: %w", err)
	}
	command := strings.TrimSpace(input.Command)
	if command == "" {
		return "", errors.New("command is required")
	}

	dir := strings.TrimSpace(input.Cwd)
	if dir == "" {
		dir = "."
	}
	resolved, err := t.resolver.Resolve(dir)
	if err != nil {
		return "", err
	}

	runCtx := ctx
	if input.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(input.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", command)
	cmd.Dir = resolved
	stdout := &cappedBuffer{max: t.maxOutput}
	stderr := &cappedBuffer{max: t.maxOutput}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	runErr := cmd.Run()

	result := map[string]any{
		"command":     command,
		"cwd":         resolved,
		"stdout":      stdout.String(),
		"stderr":      stderr.String(),
		"exit_code":   exitCode(runErr),
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if runErr != nil {
		result["error"] = runErr.Error()
	}
	if runCtx.Err() == context.DeadlineExceeded {
		result["timed_out"] = true
	}
	if stdout.Truncated() {
		result["stdout_truncated"] = true
	}
	if stderr.Truncated() {
		result["stderr_truncated"] = true
	}
	return encodeResult(result)
}

// exitCode extracts a process exit code from cmd.Run's error. A command that
// never ran (or was killed by a signal) reports -1.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// cappedBuffer keeps the first max bytes written and drops the rest. Both of
// cmd.Run's copy goroutines finish before Run returns, so reads after Run need
// no locking.
type cappedBuffer struct {
	buf     []byte
	max     int
	dropped int
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if b.max > 0 && len(b.buf)+len(p) > b.max {
		keep := b.max - len(b.buf)
		if keep > 0 {
			b.buf = append(b.buf, p[:keep]...)
		}
		b.dropped += len(p) - keep
		return len(p), nil
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *cappedBuffer) String() string { return string(b.buf) }

func (b *cappedBuffer) Truncated() bool { return b.dropped > 0 }
