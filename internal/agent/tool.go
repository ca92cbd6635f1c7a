package agent

import (
	"context"
	"encoding/json"

	"github.com/haasonsaas/warden/pkg/models"
)

// Tool is a capability the model can invoke. Implementations live in
// internal/tools; the runtime only sees this interface.
//
// Execute errors are reported back to the model as failed results, never
// propagated up the conversation loop, so a tool is free to fail loudly.
type Tool interface {
	// Name is the registry key and the name the model emits in tool calls.
	// It must match [a-zA-Z0-9_-].
	Name() string

	// Description tells the model what the tool does and when to use it.
	Description() string

	// Schema returns the JSON Schema for the tool's parameters, or nil when
	// the tool accepts arbitrary input.
	Schema() json.RawMessage

	// RiskLevel is the tier the tool declares for itself. The classifier may
	// raise the effective tier per call, never lower it.
	RiskLevel() models.RiskLevel

	// Execute runs the tool and returns its output.
	Execute(ctx context.Context, params json.RawMessage) (string, error)

	// Validate checks params beyond what the schema can express. Tools with
	// nothing to add return nil.
	Validate(ctx context.Context, params json.RawMessage) error
}

// ValidationResult reports the outcome of validating a tool registration or a
// set of call parameters.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

func (r *ValidationResult) addError(message string) {
	r.Valid = false
	r.Errors = append(r.Errors, message)
}
