package security

import (
	"context"
	"strings"

	"github.com/haasonsaas/warden/internal/observability"
	"github.com/haasonsaas/warden/pkg/models"
)

// Elevation reasons reported to telemetry.
const (
	reasonDangerousCommand = "dangerous_command"
	reasonSystemPath       = "system_path"
	reasonPrivilege        = "privilege"
)

// Classifier derives the effective risk tier of a tool invocation.
//
// Classification starts from the tool's declared tier and applies three
// checks against the parameter text: dangerous command substrings, system
// path access by a file-like tool, and privileged-operation keywords. Each
// positive check elevates the tier by one. The checks apply sequentially,
// so an invocation matching several categories climbs several tiers in one
// pass. Critical is the ceiling; the result is never below the declared
// tier.
type Classifier struct {
	logger    *observability.Logger
	telemetry observability.Telemetry
}

// NewClassifier creates a risk classifier. Nil logger and telemetry fall
// back to quiet defaults.
func NewClassifier(logger *observability.Logger, telemetry observability.Telemetry) *Classifier {
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{Level: "error"})
	}
	if telemetry == nil {
		telemetry = observability.NewNullTelemetry()
	}
	return &Classifier{logger: logger, telemetry: telemetry}
}

// Classify returns the effective risk tier for the invocation, starting at
// the tool's declared tier.
func (c *Classifier) Classify(ctx context.Context, call models.ToolCall, declared models.RiskLevel) models.RiskLevel {
	text := strings.ToLower(string(call.Parameters))
	level := declared

	if match, ok := containsAny(text, DangerousCommands); ok {
		level = c.elevate(ctx, call.Name, level, reasonDangerousCommand, match)
	}

	if IsFileTool(call.Name) {
		if match, ok := containsAny(text, SystemPaths); ok {
			level = c.elevate(ctx, call.Name, level, reasonSystemPath, match)
		}
	}

	if match, ok := containsAny(text, PrivilegeKeywords); ok {
		level = c.elevate(ctx, call.Name, level, reasonPrivilege, match)
	}

	return level
}

func (c *Classifier) elevate(ctx context.Context, toolName string, level models.RiskLevel, reason, match string) models.RiskLevel {
	elevated := level.Elevate()
	if elevated != level {
		c.logger.Debug(ctx, "risk level elevated",
			"tool", toolName,
			"from", level.String(),
			"to", elevated.String(),
			"reason", reason,
			"match", match,
		)
	}
	c.telemetry.RecordRiskElevation(toolName, reason)
	return elevated
}
