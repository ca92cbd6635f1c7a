// Package tools contains the built-in tool implementations registered with
// the agent runtime: workspace-confined file access and shell execution.
// Every path a tool touches is resolved through [Resolver], so a model cannot
// reach outside the configured workspace no matter what it asks for.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/haasonsaas/warden/pkg/models"
)

const (
	defaultMaxReadBytes   = 200_000
	defaultMaxOutputBytes = 64_000
	maxDirEntries         = 500
)

// Config controls the built-in tools' workspace and size limits.
type Config struct {
	// Workspace is the directory tool paths resolve against. Empty means the
	// current directory.
	Workspace string
	// MaxReadBytes caps a single read_file call. Zero means the default.
	MaxReadBytes int
	// MaxOutputBytes caps captured stdout and stderr per shell call. Zero
	// means the default.
	MaxOutputBytes int
}

// marshalSchema renders a schema map, falling back to a bare object schema.
// The fallback keeps Schema() total; a tool schema that fails to marshal is a
// programming error surfaced by ValidateTool, not a runtime crash.
func marshalSchema(schema map[string]any) json.RawMessage {
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

// encodeResult renders a tool result payload for the model to read.
func encodeResult(result map[string]any) (string, error) {
	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(payload), nil
}

// ReadFileTool reads files from the workspace with an offset and a byte cap.
type ReadFileTool struct {
	resolver Resolver
	maxBytes int
}

// NewReadFileTool creates a read tool scoped to the workspace.
func NewReadFileTool(cfg Config) *ReadFileTool {
	limit := cfg.MaxReadBytes
	if limit <= 0 {
		limit = defaultMaxReadBytes
	}
	return &ReadFileTool{
		resolver: Resolver{Root: cfg.Workspace},
		maxBytes: limit,
	}
}

// Name returns the tool name.
func (t *ReadFileTool) Name() string { return "read_file" }

// Description returns the tool description.
func (t *ReadFileTool) Description() string {
	return "Read a file from the workspace with optional offset and byte limit."
}

// Schema returns the JSON schema for the tool parameters.
func (t *ReadFileTool) Schema() json.RawMessage {
	return marshalSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Path to the file (relative to workspace).",
			},
			"offset": map[string]any{
				"type":        "integer",
				"description": "Byte offset to start reading from (default: 0).",
				"minimum":     0,
			},
			"max_bytes": map[string]any{
				"type":        "integer",
				"description": "Maximum bytes to read (capped by tool default).",
				"minimum":     0,
			},
		},
		"required": []string{"path"},
	})
}

// RiskLevel declares the tool's risk tier.
func (t *ReadFileTool) RiskLevel() models.RiskLevel { return models.RiskReadOnly }

type readFileParams struct {
	Path     string `json:"path"`
	Offset   int64  `json:"offset"`
	MaxBytes int    `json:"max_bytes"`
}

// Validate checks the parameters without touching the filesystem contents.
func (t *ReadFileTool) Validate(ctx context.Context, params json.RawMessage) error {
	_ = ctx
	var input readFileParams
	if err := json.Unmarshal(params, &input); err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}
	if strings.TrimSpace(input.Path) == "" {
		return errors.New("path is required")
	}
	if input.Offset < 0 {
		return errors.New("offset must be >= 0")
	}
	_, err := t.resolver.Resolve(input.Path)
	return err
}

// Execute reads the file and reports content, byte count, and truncation.
func (t *ReadFileTool) Execute(ctx context.Context, params json.RawMessage) (string, error) {
	_ = ctx
	var input readFileParams
	if err := json.Unmarshal(params, &input); err != nil {
		return "", fmt.Errorf("invalid parameters: %w", err)
	}
	if input.Offset < 0 {
		return "", errors.New("offset must be >= 0")
	}

	resolved, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return "", err
	}

	file, err := os.Open(resolved)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", input.Path)
	}

	if input.Offset > 0 {
		if _, err := file.Seek(input.Offset, io.SeekStart); err != nil {
			return "", fmt.Errorf("seek file: %w", err)
		}
	}

	limit := t.maxBytes
	if input.MaxBytes > 0 && input.MaxBytes < limit {
		limit = input.MaxBytes
	}
	buf, err := io.ReadAll(io.LimitReader(file, int64(limit)))
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}

	truncated := input.Offset+int64(len(buf)) < info.Size()
	return encodeResult(map[string]any{
		"path":      input.Path,
		"content":   string(buf),
		"offset":    input.Offset,
		"bytes":     len(buf),
		"truncated": truncated,
	})
}

// WriteFileTool writes files inside the workspace, creating parent
// directories as needed.
type WriteFileTool struct {
	resolver Resolver
}

// NewWriteFileTool creates a write tool scoped to the workspace.
func NewWriteFileTool(cfg Config) *WriteFileTool {
	return &WriteFileTool{resolver: Resolver{Root: cfg.Workspace}}
}

// Name returns the tool name.
func (t *WriteFileTool) Name() string { return "write_file" }

// Description returns the tool description.
func (t *WriteFileTool) Description() string {
	return "Write content to a file in the workspace (overwrites by default)."
}

// Schema returns the JSON schema for the tool parameters.
func (t *WriteFileTool) Schema() json.RawMessage {
	return marshalSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Path to write (relative to workspace).",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "File contents to write.",
			},
			"append": map[string]any{
				"type":        "boolean",
				"description": "Append instead of overwrite (default: false).",
			},
		},
		"required": []string{"path", "content"},
	})
}

// RiskLevel declares the tool's risk tier.
func (t *WriteFileTool) RiskLevel() models.RiskLevel { return models.RiskReadWrite }

type writeFileParams struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Append  bool   `json:"append"`
}

// Validate checks the parameters without writing anything.
func (t *WriteFileTool) Validate(ctx context.Context, params json.RawMessage) error {
	_ = ctx
	var input writeFileParams
	if err := json.Unmarshal(params, &input); err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}
	if strings.TrimSpace(input.Path) == "" {
		return errors.New("path is required")
	}
	_, err := t.resolver.Resolve(input.Path)
	return err
}

// Execute writes the file and reports the byte count.
func (t *WriteFileTool) Execute(ctx context.Context, params json.RawMessage) (string, error) {
	_ = ctx
	var input writeFileParams
	if err := json.Unmarshal(params, &input); err != nil {
		return "", fmt.Errorf("invalid parameters: %w", err)
	}

	resolved, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}

	flags := os.O_CREATE | os.O_WRONLY
	if input.Append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	file, err := os.OpenFile(resolved, flags, 0o644)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	n, err := file.WriteString(input.Content)
	if err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}

	return encodeResult(map[string]any{
		"path":          input.Path,
		"bytes_written": n,
		"append":        input.Append,
	})
}

// ListDirTool lists directory entries inside the workspace.
type ListDirTool struct {
	resolver Resolver
}

// NewListDirTool creates a directory listing tool scoped to the workspace.
func NewListDirTool(cfg Config) *ListDirTool {
	return &ListDirTool{resolver: Resolver{Root: cfg.Workspace}}
}

// Name returns the tool name.
func (t *ListDirTool) Name() string { return "list_dir" }

// Description returns the tool description.
func (t *ListDirTool) Description() string {
	return "List the entries of a workspace directory."
}

// Schema returns the JSON schema for the tool parameters.
func (t *ListDirTool) Schema() json.RawMessage {
	return marshalSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Directory to list (relative to workspace, default: workspace root).",
			},
		},
		"required": []string{},
	})
}

// RiskLevel declares the tool's risk tier.
func (t *ListDirTool) RiskLevel() models.RiskLevel { return models.RiskReadOnly }

type listDirParams struct {
	Path string `json:"path"`
}

// Validate checks that any supplied path stays inside the workspace.
func (t *ListDirTool) Validate(ctx context.Context, params json.RawMessage) error {
	_ = ctx
	var input listDirParams
	if err := json.Unmarshal(params, &input); err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}
	if strings.TrimSpace(input.Path) == "" {
		return nil
	}
	_, err := t.resolver.Resolve(input.Path)
	return err
}

// Execute lists the directory, capping the entry count.
func (t *ListDirTool) Execute(ctx context.Context, params json.RawMessage) (string, error) {
	_ = ctx
	var input listDirParams
	if err := json.Unmarshal(params, &input); err != nil {
		return "", fmt.Errorf("invalid parameters: %w", err)
	}

	path := strings.TrimSpace(input.Path)
	if path == "" {
		path = "."
	}
	resolved, err := t.resolver.Resolve(path)
	if err != nil {
		return "", err
	}

	entries, err := os.ReadDir(resolved)
	if err != nil {
		return "", fmt.Errorf("read directory: %w", err)
	}

	truncated := false
	if len(entries) > maxDirEntries {
		entries = entries[:maxDirEntries]
		truncated = true
	}

	listed := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		kind := "file"
		if entry.IsDir() {
			kind = "dir"
		}
		item := map[string]any{
			"name": entry.Name(),
			"type": kind,
		}
		if info, err := entry.Info(); err == nil && !entry.IsDir() {
			item["size"] = info.Size()
		}
		listed = append(listed, item)
	}

	return encodeResult(map[string]any{
		"path":      path,
		"entries":   listed,
		"count":     len(listed),
		"truncated": truncated,
	})
}
