package permissions

import (
	"context"
	"fmt"

	"github.com/haasonsaas/warden/internal/observability"
	"github.com/haasonsaas/warden/pkg/models"
)

// Inspector scans a tool call for security threats. Implemented by
// security.Inspector; declared here so the system can be tested with a
// counting fake.
type Inspector interface {
	Inspect(ctx context.Context, call models.ToolCall) *models.InspectionResult
}

// SystemConfig configures the permission system.
type SystemConfig struct {
	// Judge holds the policy mode and smart-approve settings.
	Judge JudgeConfig

	// Logger for permission decisions. Defaults to a stderr logger.
	Logger *observability.Logger

	// Telemetry receives decision and threat counters. Defaults to
	// NullTelemetry.
	Telemetry observability.Telemetry

	// Tracer wraps each permission check in a span. Defaults to a no-op
	// tracer.
	Tracer *observability.Tracer
}

// System is the single permission entry point for the agent loop. It resolves
// each tool call by checking the store for a remembered decision, inspecting
// the call for threats, and judging the result against the configured mode.
//
// The system never prompts a human. When it answers ask, the caller runs the
// prompt and, if the human chose to be remembered, persists the outcome via
// Remember.
type System struct {
	store     Store
	inspector Inspector
	judge     *Judge
	mode      models.PermissionMode
	logger    *observability.Logger
	telemetry observability.Telemetry
	tracer    *observability.Tracer
}

// NewSystem creates a permission system over the given store and inspector.
func NewSystem(store Store, inspector Inspector, config SystemConfig) *System {
	logger := config.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{})
	}
	telemetry := config.Telemetry
	if telemetry == nil {
		telemetry = observability.NewNullTelemetry()
	}
	tracer := config.Tracer
	if tracer == nil {
		tracer, _ = observability.NewTracer(observability.TraceConfig{})
	}

	return &System{
		store:     store,
		inspector: inspector,
		judge:     NewJudge(config.Judge),
		mode:      config.Judge.Mode,
		logger:    logger,
		telemetry: telemetry,
		tracer:    tracer,
	}
}

// Mode returns the configured policy mode.
func (s *System) Mode() models.PermissionMode {
	return s.mode
}

// RequestPermission resolves one tool call to allow, deny or ask.
//
// A decision remembered for (sessionID, call.Name) is returned immediately
// without running the inspector. Otherwise the call is inspected and judged.
// RememberDecision is always false here; persisting a remembered decision is
// the caller's job after a human resolves an ask.
//
// A store failure is returned as an error so the caller can fail that tool
// call closed.
func (s *System) RequestPermission(ctx context.Context, call models.ToolCall, riskLevel models.RiskLevel, sessionID string) (*models.PermissionResponse, error) {
	ctx, span := s.tracer.TracePermissionCheck(ctx, call.Name, string(s.mode))
	defer span.End()

	remembered, found, err := s.store.Get(ctx, sessionID, call.Name)
	if err != nil {
		s.tracer.RecordError(span, err)
		return nil, fmt.Errorf("permission store lookup for %q: %w", call.Name, err)
	}
	if found {
		s.tracer.SetAttributes(span, "decision", string(remembered), "remembered", true)
		s.telemetry.RecordPermissionDecision(string(s.mode), string(remembered))
		s.logger.Debug(ctx, "using remembered permission decision",
			"tool", call.Name,
			"session_id", sessionID,
			"decision", string(remembered),
		)
		return &models.PermissionResponse{
			Decision:         remembered,
			RememberDecision: false,
			RiskLevel:        riskLevel,
		}, nil
	}

	inspection := s.inspector.Inspect(ctx, call)
	for _, threat := range inspection.Threats {
		s.telemetry.RecordThreat(string(threat.Type), threat.Level.String())
	}

	req := &models.PermissionRequest{
		ToolCall:   call,
		RiskLevel:  riskLevel,
		Inspection: inspection,
		SessionID:  sessionID,
	}
	decision := s.judge.Evaluate(req)

	s.tracer.SetAttributes(span, "decision", string(decision), "remembered", false)
	s.telemetry.RecordPermissionDecision(string(s.mode), string(decision))
	s.logger.Info(ctx, "permission decision",
		"tool", call.Name,
		"session_id", sessionID,
		"risk_level", riskLevel.String(),
		"max_threat_level", inspection.MaxThreatLevel.String(),
		"decision", string(decision),
	)

	return &models.PermissionResponse{
		Decision:         decision,
		RememberDecision: false,
		RiskLevel:        riskLevel,
		Inspection:       inspection,
	}, nil
}

// IsApproved reports whether a remembered decision allows the tool without
// further review.
func (s *System) IsApproved(ctx context.Context, sessionID, toolName string) (bool, error) {
	decision, found, err := s.store.Get(ctx, sessionID, toolName)
	if err != nil {
		return false, fmt.Errorf("permission store lookup for %q: %w", toolName, err)
	}
	return found && decision == models.DecisionAllow, nil
}

// Remember persists a human-resolved decision for future calls in the session.
func (s *System) Remember(ctx context.Context, sessionID, toolName string, decision models.PermissionDecision) error {
	if err := s.store.Save(ctx, sessionID, toolName, decision); err != nil {
		return fmt.Errorf("failed to remember decision for %q: %w", toolName, err)
	}
	s.logger.Info(ctx, "remembered permission decision",
		"tool", toolName,
		"session_id", sessionID,
		"decision", string(decision),
	)
	return nil
}
