// Package agent provides the conversation runtime for LLM-powered tool use.
//
// The runtime carries a transcript through provider rounds, resolves the tool
// calls each round requests, and gates every execution through the permission
// system before anything runs:
//
//	┌─────────────────────────────────────────┐
//	│               Runtime                   │  conversation loop
//	├──────────────┬──────────────────────────┤
//	│   Registry   │   permissions.System     │  tools and policy
//	├──────────────┴──────────────────────────┤
//	│              LLMProvider                │  model backend
//	└─────────────────────────────────────────┘
//
// # Basic Usage
//
//	registry := agent.NewRegistry(agent.RegistryConfig{})
//	registry.Register(tools.NewShellTool(tools.Config{Workspace: "."}))
//
//	perms := permissions.NewSystem(store, inspector, permissions.SystemConfig{
//	    Judge: permissions.JudgeConfig{Mode: models.ModeSmart},
//	})
//
//	runtime := agent.NewRuntime(provider, registry, perms, nil)
//	resp, err := runtime.ProcessMessage(ctx, convo, "delete the temp files")
//
// Tool failures, unknown tools, and permission denials become failed
// ToolResults the model can read and react to; only provider errors and
// cancellation abort a turn.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/warden/internal/observability"
	"github.com/haasonsaas/warden/internal/permissions"
	"github.com/haasonsaas/warden/internal/security"
	"github.com/haasonsaas/warden/pkg/models"
)

// Runtime drives conversations: it calls the provider, executes permitted
// tool calls in provider order, and loops until the model answers without
// requesting tools.
//
// A Runtime is safe for concurrent use across conversations; a single
// ConversationContext must not be processed by two calls at once.
type Runtime struct {
	provider    LLMProvider
	registry    *Registry
	permissions *permissions.System
	classifier  *security.Classifier
	prompt      permissions.Prompt
	options     RuntimeOptions
	logger      *observability.Logger
	telemetry   observability.Telemetry
	tracer      *observability.Tracer
}

// NewRuntime creates a runtime over the given provider, registry, and
// permission system. A nil registry gets an empty one; nil opts means
// DefaultRuntimeOptions.
func NewRuntime(provider LLMProvider, registry *Registry, perms *permissions.System, opts *RuntimeOptions) *Runtime {
	options := DefaultRuntimeOptions()
	if opts != nil {
		options = mergeRuntimeOptions(options, *opts)
	}
	if registry == nil {
		registry = NewRegistry(RegistryConfig{Logger: options.Logger})
	}
	if options.Tracer == nil {
		options.Tracer, _ = observability.NewTracer(observability.TraceConfig{})
	}
	if options.Classifier == nil {
		options.Classifier = security.NewClassifier(options.Logger, options.Telemetry)
	}

	return &Runtime{
		provider:    provider,
		registry:    registry,
		permissions: perms,
		classifier:  options.Classifier,
		prompt:      options.Prompt,
		options:     options,
		logger:      options.Logger,
		telemetry:   options.Telemetry,
		tracer:      options.Tracer,
	}
}

// Registry returns the runtime's tool registry.
func (r *Runtime) Registry() *Registry {
	return r.registry
}

// Response aggregates one completed conversation turn.
type Response struct {
	// Content is the assistant text of the final round.
	Content string

	// ToolResults flattens every tool outcome across all rounds, in
	// execution order.
	ToolResults []models.ToolResult

	// Usage totals token consumption across all rounds.
	Usage Usage

	// Iterations counts provider rounds taken.
	Iterations int
}

// ProcessMessage appends text as a user message and runs the conversation
// until the model stops requesting tools or MaxIterations is reached.
//
// Provider errors and cancellation propagate; everything that goes wrong with
// an individual tool call is returned to the model as a failed ToolResult.
func (r *Runtime) ProcessMessage(ctx context.Context, convo *models.ConversationContext, text string) (*Response, error) {
	if r.provider == nil {
		return nil, ErrNoProvider
	}
	if convo == nil {
		return nil, errors.New("conversation context is nil")
	}

	ctx = observability.AddSessionID(ctx, convo.SessionID)
	ctx, span := r.tracer.TraceMessageProcessing(ctx, convo.SessionID)
	defer span.End()

	convo.Append(userMessage(text))

	resp := &Response{}
	for resp.Iterations < r.options.MaxIterations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		completion, err := r.complete(ctx, convo)
		if err != nil {
			r.tracer.RecordError(span, err)
			return nil, err
		}
		resp.Iterations++
		resp.Usage.Add(completion.Usage)

		// The assistant message is appended even when its content is empty:
		// the transcript must show the tool calls the model made.
		convo.Append(assistantMessage(completion))

		if len(completion.ToolCalls) == 0 {
			resp.Content = completion.Content
			r.tracer.SetAttributes(span,
				"iterations", resp.Iterations,
				"tool_results", len(resp.ToolResults),
			)
			return resp, nil
		}

		for _, call := range completion.ToolCalls {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			result := r.runToolCall(ctx, convo.SessionID, call)
			resp.ToolResults = append(resp.ToolResults, result)
			convo.Append(toolMessage(result))
		}
	}

	err := fmt.Errorf("%w: %d", ErrMaxIterations, r.options.MaxIterations)
	r.tracer.RecordError(span, err)
	return nil, err
}

// complete performs one blocking provider round.
func (r *Runtime) complete(ctx context.Context, convo *models.ConversationContext) (*Completion, error) {
	req := r.completionRequest(convo)
	ctx, span := r.tracer.TraceLLMRequest(ctx, r.provider.Name(), req.Model)
	defer span.End()

	start := time.Now()
	completion, err := r.provider.Generate(ctx, req)
	duration := time.Since(start)
	if err != nil {
		r.tracer.RecordError(span, err)
		r.telemetry.RecordProviderUsage(r.provider.Name(), req.Model, false, duration, 0, 0)
		return nil, fmt.Errorf("provider %s: %w", r.provider.Name(), err)
	}

	r.telemetry.RecordProviderUsage(r.provider.Name(), req.Model, true, duration,
		completion.Usage.InputTokens, completion.Usage.OutputTokens)
	r.tracer.SetAttributes(span,
		"stop_reason", string(completion.StopReason),
		"tool_calls", len(completion.ToolCalls),
	)
	return completion, nil
}

func (r *Runtime) completionRequest(convo *models.ConversationContext) *CompletionRequest {
	return &CompletionRequest{
		Model:     convo.Model,
		System:    convo.System,
		Messages:  convo.Messages,
		Tools:     r.registry.CreateManifest().Tools,
		MaxTokens: convo.MaxTokens,
	}
}

// runToolCall resolves one tool call end to end: registry lookup, risk
// classification, permission check, optional human prompt, then execution.
// Every failure mode comes back as a failed ToolResult.
func (r *Runtime) runToolCall(ctx context.Context, sessionID string, call models.ToolCall) models.ToolResult {
	ctx = observability.AddTool(ctx, call.Name)

	tool, ok := r.registry.Get(call.Name)
	if !ok {
		r.logger.Warn(ctx, "model requested unknown tool", "tool", call.Name)
		return failureResult(call, fmt.Errorf("%w: %s", ErrToolNotFound, call.Name))
	}

	risk := r.classifier.Classify(ctx, call, tool.RiskLevel())

	perm, err := r.permissions.RequestPermission(ctx, call, risk, sessionID)
	if err != nil {
		// The permission system failing is fatal for this call only.
		r.logger.Error(ctx, "permission check failed",
			"tool", call.Name,
			"error", err,
		)
		return failureResult(call, fmt.Errorf("permission check failed: %v", err))
	}

	decision := perm.Decision
	if decision == models.DecisionAsk {
		decision = r.askHuman(ctx, sessionID, call, risk, perm)
	}

	if decision != models.DecisionAllow {
		return failureResult(call, fmt.Errorf("permission denied for tool %s", call.Name))
	}

	return r.executeToolCall(ctx, tool, call)
}

// askHuman resolves an ask decision through the prompt. A cancelled or failed
// prompt denies; the loop honors the cancellation at its next checkpoint.
func (r *Runtime) askHuman(ctx context.Context, sessionID string, call models.ToolCall, risk models.RiskLevel, perm *models.PermissionResponse) models.PermissionDecision {
	answer, err := r.prompt.Ask(ctx, &models.PermissionRequest{
		ToolCall:   call,
		RiskLevel:  risk,
		Inspection: perm.Inspection,
		SessionID:  sessionID,
	})
	if err != nil {
		r.logger.Warn(ctx, "permission prompt failed, denying",
			"tool", call.Name,
			"error", err,
		)
		return models.DecisionDeny
	}

	if answer.Remember && answer.Decision != models.DecisionAsk {
		if err := r.permissions.Remember(ctx, sessionID, call.Name, answer.Decision); err != nil {
			r.logger.Error(ctx, "failed to remember decision",
				"tool", call.Name,
				"error", err,
			)
		}
	}
	return answer.Decision
}

func userMessage(text string) models.Message {
	return models.Message{
		ID:        uuid.NewString(),
		Role:      models.RoleUser,
		Content:   text,
		Timestamp: time.Now().UTC(),
	}
}

func assistantMessage(completion *Completion) models.Message {
	return models.Message{
		ID:        uuid.NewString(),
		Role:      models.RoleAssistant,
		Content:   completion.Content,
		Timestamp: time.Now().UTC(),
		ToolCalls: completion.ToolCalls,
	}
}

func toolMessage(result models.ToolResult) models.Message {
	content := result.Output
	if !result.Success {
		content = result.Error
	}
	return models.Message{
		ID:         uuid.NewString(),
		Role:       models.RoleTool,
		Content:    content,
		Timestamp:  time.Now().UTC(),
		ToolCallID: result.ToolCallID,
	}
}
