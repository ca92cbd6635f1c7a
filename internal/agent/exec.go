package agent

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/haasonsaas/warden/pkg/models"
)

type execOutcome struct {
	output string
	err    error
}

// executeToolCall runs one tool under the per-call timeout, capturing panics
// and converting every failure mode into result data. The returned result
// always carries the call ID and a measured duration.
func (r *Runtime) executeToolCall(ctx context.Context, tool Tool, call models.ToolCall) models.ToolResult {
	ctx, span := r.tracer.TraceToolExecution(ctx, call.Name)
	defer span.End()

	start := time.Now()
	execCtx, cancel := context.WithTimeout(ctx, r.options.ToolTimeout)
	defer cancel()

	outcomes := make(chan execOutcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error(ctx, "tool panicked",
					"tool", call.Name,
					"tool_call_id", call.ID,
					"panic", fmt.Sprintf("%v", rec),
					"stack", string(debug.Stack()),
				)
				select {
				case outcomes <- execOutcome{err: fmt.Errorf("%w: %v", ErrToolPanic, rec)}:
				default:
				}
			}
		}()

		output, err := tool.Execute(execCtx, call.Parameters)
		// Non-blocking send: if the deadline already fired nobody is
		// listening, and this goroutine must not hang on to the channel.
		select {
		case outcomes <- execOutcome{output: output, err: err}:
		default:
			r.logger.Warn(ctx, "tool finished after deadline, result discarded",
				"tool", call.Name,
				"tool_call_id", call.ID,
			)
		}
	}()

	var result models.ToolResult
	select {
	case <-execCtx.Done():
		if err := ctx.Err(); err != nil {
			// Parent cancellation, not the per-call deadline.
			result = failureResult(call, err)
		} else {
			result = failureResult(call, fmt.Errorf("%w after %v", ErrToolTimeout, r.options.ToolTimeout))
		}
	case outcome := <-outcomes:
		if outcome.err != nil {
			result = failureResult(call, outcome.err)
		} else {
			result = models.ToolResult{
				ToolCallID: call.ID,
				Success:    true,
				Output:     outcome.output,
			}
		}
	}
	result.Duration = time.Since(start)

	r.telemetry.RecordToolExecution(call.Name, result.Success, result.Duration)
	r.tracer.SetAttributes(span,
		"success", result.Success,
		"duration_ms", result.Duration.Milliseconds(),
	)
	if !result.Success {
		r.logger.Warn(ctx, "tool execution failed",
			"tool", call.Name,
			"tool_call_id", call.ID,
			"error", result.Error,
			"duration_ms", result.Duration.Milliseconds(),
		)
	} else {
		r.logger.Debug(ctx, "tool executed",
			"tool", call.Name,
			"tool_call_id", call.ID,
			"duration_ms", result.Duration.Milliseconds(),
		)
	}

	return result
}

// failureResult converts an error into a failed ToolResult for the model to
// read. The conversation loop never propagates tool failures as errors.
func failureResult(call models.ToolCall, err error) models.ToolResult {
	return models.ToolResult{
		ToolCallID: call.ID,
		Success:    false,
		Error:      err.Error(),
	}
}
