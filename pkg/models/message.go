package models

import (
	"encoding/json"
	"time"
)

// Role indicates the message author type.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry in a conversation transcript. Messages are append-only:
// once added to a ConversationContext they are never edited in place.
type Message struct {
	ID         string     `json:"id"`
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	Timestamp  time.Time  `json:"timestamp"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall represents a model's request to execute a tool. Parameters is an
// opaque JSON blob; the runtime scans it as text but never interprets it.
type ToolCall struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Parameters json.RawMessage `json:"parameters"`
}

// ToolResult records the outcome of a single tool execution attempt. Exactly
// one of Output or Error carries the payload, depending on Success. ToolCallID
// always matches the originating ToolCall so transcripts can be replayed.
type ToolResult struct {
	ToolCallID string        `json:"tool_call_id"`
	Success    bool          `json:"success"`
	Output     string        `json:"output,omitempty"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// ConversationContext holds the mutable state of one conversation. The caller
// owns it; the runtime's only side effect is appending messages. Two
// concurrent ProcessMessage calls must not share one context.
type ConversationContext struct {
	SessionID        string    `json:"session_id"`
	WorkingDirectory string    `json:"working_directory,omitempty"`
	Messages         []Message `json:"messages"`
	Model            string    `json:"model,omitempty"`
	System           string    `json:"system,omitempty"`
	MaxTokens        int       `json:"max_tokens,omitempty"`
}

// Append adds a message to the conversation in causal order.
func (c *ConversationContext) Append(msg Message) {
	c.Messages = append(c.Messages, msg)
}
