package models

import "time"

// ToolManifest describes one registered tool for external consumers.
// Schema is the parsed form of the tool's JSON parameter schema, or nil when
// the tool declares none.
type ToolManifest struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	RiskLevel   RiskLevel      `json:"risk_level"`
	Schema      map[string]any `json:"schema,omitempty"`
}

// Manifest is a point-in-time snapshot of every registered tool, suitable for
// driving a tool palette or an introspection endpoint.
type Manifest struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Tools       []ToolManifest `json:"tools"`
}
