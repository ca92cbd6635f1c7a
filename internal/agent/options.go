package agent

import (
	"time"

	"github.com/haasonsaas/warden/internal/observability"
	"github.com/haasonsaas/warden/internal/permissions"
	"github.com/haasonsaas/warden/internal/security"
)

// RuntimeOptions configures loop limits, tool execution, and the runtime's
// collaborators.
type RuntimeOptions struct {
	// MaxIterations limits provider rounds per ProcessMessage call.
	MaxIterations int

	// ToolTimeout applies a deadline to each tool execution.
	ToolTimeout time.Duration

	// Prompt resolves ask decisions with a human. Defaults to NullPrompt,
	// which auto-allows; headless deployments that want the opposite pass
	// DenyPrompt.
	Prompt permissions.Prompt

	// Classifier derives the effective risk tier per call. Defaults to a
	// classifier wired to Logger and Telemetry.
	Classifier *security.Classifier

	// Logger receives runtime diagnostics.
	Logger *observability.Logger

	// Telemetry receives tool, permission, and provider counters.
	Telemetry observability.Telemetry

	// Tracer wraps loop phases in spans.
	Tracer *observability.Tracer
}

// DefaultRuntimeOptions returns the baseline runtime options.
func DefaultRuntimeOptions() RuntimeOptions {
	return RuntimeOptions{
		MaxIterations: 10,
		ToolTimeout:   30 * time.Second,
		Prompt:        permissions.NewNullPrompt(),
		Logger:        observability.NewLogger(observability.LogConfig{}),
		Telemetry:     observability.NewNullTelemetry(),
	}
}

func mergeRuntimeOptions(base RuntimeOptions, override RuntimeOptions) RuntimeOptions {
	merged := base
	if override.MaxIterations > 0 {
		merged.MaxIterations = override.MaxIterations
	}
	if override.ToolTimeout > 0 {
		merged.ToolTimeout = override.ToolTimeout
	}
	if override.Prompt != nil {
		merged.Prompt = override.Prompt
	}
	if override.Classifier != nil {
		merged.Classifier = override.Classifier
	}
	if override.Logger != nil {
		merged.Logger = override.Logger
	}
	if override.Telemetry != nil {
		merged.Telemetry = override.Telemetry
	}
	if override.Tracer != nil {
		merged.Tracer = override.Tracer
	}
	return merged
}
