// Package permissions decides whether tool invocations may proceed. The judge
// applies the configured policy mode to a permission request, the store keeps
// remembered per-session decisions, and the system ties store, inspector and
// judge together behind a single entry point for the agent loop.
package permissions

import (
	"github.com/haasonsaas/warden/pkg/models"
)

// JudgeConfig controls how the judge resolves borderline requests.
type JudgeConfig struct {
	// Mode is the policy mode applied to every request.
	Mode models.PermissionMode

	// AutoApproveReadWrite lets smart mode approve safe read_write calls
	// without a human. Read-only safe calls are always auto-approved in
	// smart mode.
	AutoApproveReadWrite bool
}

// Judge maps a permission request to allow, deny or ask. Evaluate has no side
// effects and no state beyond its config, so a single instance is safe for
// concurrent use.
type Judge struct {
	config JudgeConfig
}

// NewJudge creates a judge for the given policy config.
func NewJudge(config JudgeConfig) *Judge {
	return &Judge{config: config}
}

// Evaluate resolves one permission request against the configured mode.
//
// Critical threats escalate to a human in every mode except deny, and high
// threats escalate in every mode except deny and auto. Below those thresholds
// the mode alone decides: auto allows, deny denies, ask asks, and smart allows
// only safe low-risk calls. Unknown modes resolve to ask.
func (j *Judge) Evaluate(req *models.PermissionRequest) models.PermissionDecision {
	threat := models.ThreatLevelNone
	safe := true
	if req.Inspection != nil {
		threat = req.Inspection.MaxThreatLevel
		safe = req.Inspection.IsSafe
	}

	mode := j.config.Mode
	if threat >= models.ThreatLevelCritical && mode != models.ModeDeny {
		return models.DecisionAsk
	}
	if threat >= models.ThreatLevelHigh && mode != models.ModeDeny && mode != models.ModeAuto {
		return models.DecisionAsk
	}

	switch mode {
	case models.ModeAuto:
		return models.DecisionAllow
	case models.ModeDeny:
		return models.DecisionDeny
	case models.ModeAsk:
		return models.DecisionAsk
	case models.ModeSmart:
		if req.RiskLevel == models.RiskReadOnly && safe {
			return models.DecisionAllow
		}
		if req.RiskLevel == models.RiskReadWrite && safe && j.config.AutoApproveReadWrite {
			return models.DecisionAllow
		}
		return models.DecisionAsk
	default:
		// Fail safe on modes this build does not know about.
		return models.DecisionAsk
	}
}
