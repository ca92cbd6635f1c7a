package models

// PermissionDecision is the outcome of a permission check.
type PermissionDecision string

const (
	DecisionAllow PermissionDecision = "allow"
	DecisionDeny  PermissionDecision = "deny"
	DecisionAsk   PermissionDecision = "ask"
)

// PermissionMode is the configured policy controlling default behavior.
type PermissionMode string

const (
	// ModeAuto allows every tool call unless a critical threat forces
	// human review.
	ModeAuto PermissionMode = "auto"
	// ModeDeny refuses every tool call.
	ModeDeny PermissionMode = "deny"
	// ModeAsk defers every tool call to a human.
	ModeAsk PermissionMode = "ask"
	// ModeSmart allows low-risk safe calls and asks for everything else.
	ModeSmart PermissionMode = "smart"
)

// ValidPermissionMode reports whether the mode is one of the known values.
// The judge treats unknown modes as ask; config validation rejects them.
func ValidPermissionMode(mode PermissionMode) bool {
	switch mode {
	case ModeAuto, ModeDeny, ModeAsk, ModeSmart:
		return true
	}
	return false
}

// PermissionRequest bundles everything the judge needs for one decision.
type PermissionRequest struct {
	ToolCall   ToolCall          `json:"tool_call"`
	RiskLevel  RiskLevel         `json:"risk_level"`
	Inspection *InspectionResult `json:"inspection"`
	SessionID  string            `json:"session_id"`
}

// PermissionResponse is the coordinator's answer for one tool call.
// RememberDecision is always false from the coordinator; persisting a
// remembered decision happens in the orchestrator after a human resolves an
// ask. Inspection and RiskLevel are carried so the caller can present them to
// a human prompt without re-running the inspector.
type PermissionResponse struct {
	Decision         PermissionDecision `json:"decision"`
	RememberDecision bool               `json:"remember_decision"`
	RiskLevel        RiskLevel          `json:"risk_level"`
	Inspection       *InspectionResult  `json:"inspection,omitempty"`
}
