package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/warden/internal/observability"
	"github.com/haasonsaas/warden/pkg/models"
)

const streamBufferSize = 10

// StreamEvent is one unit of a streamed conversation turn. Exactly one field
// is set: Text carries a content delta, ToolResult a finished tool call,
// Final the aggregate response, Err a terminal failure. The channel closes
// after Final or Err.
type StreamEvent struct {
	Text       string
	ToolResult *models.ToolResult
	Final      *Response
	Err        error
}

// ProcessMessageStream is ProcessMessage with incremental delivery: content
// deltas are forwarded as the provider emits them, each tool call is executed
// as soon as it is recognized and its result sent as a distinct event, and
// the last event before close is always Final or Err.
//
// The caller must drain the channel. Cancellation surfaces as an Err event
// carrying ctx.Err().
func (r *Runtime) ProcessMessageStream(ctx context.Context, convo *models.ConversationContext, text string) (<-chan *StreamEvent, error) {
	if r.provider == nil {
		return nil, ErrNoProvider
	}
	if convo == nil {
		return nil, errors.New("conversation context is nil")
	}

	events := make(chan *StreamEvent, streamBufferSize)
	go func() {
		defer close(events)
		r.streamTurn(ctx, convo, text, events)
	}()
	return events, nil
}

func (r *Runtime) streamTurn(ctx context.Context, convo *models.ConversationContext, text string, events chan<- *StreamEvent) {
	ctx = observability.AddSessionID(ctx, convo.SessionID)
	ctx, span := r.tracer.TraceMessageProcessing(ctx, convo.SessionID)
	defer span.End()

	convo.Append(userMessage(text))

	resp := &Response{}
	for resp.Iterations < r.options.MaxIterations {
		if err := ctx.Err(); err != nil {
			events <- &StreamEvent{Err: err}
			return
		}

		completion, results, err := r.streamRound(ctx, convo, events)
		if err != nil {
			r.tracer.RecordError(span, err)
			events <- &StreamEvent{Err: err}
			return
		}
		resp.Iterations++
		resp.Usage.Add(completion.Usage)
		resp.ToolResults = append(resp.ToolResults, results...)

		// Transcript order: the assistant message first, then one tool
		// message per result, in the order the provider emitted the calls.
		convo.Append(assistantMessage(completion))
		for _, result := range results {
			convo.Append(toolMessage(result))
		}

		if len(completion.ToolCalls) == 0 {
			resp.Content = completion.Content
			r.tracer.SetAttributes(span,
				"iterations", resp.Iterations,
				"tool_results", len(resp.ToolResults),
			)
			events <- &StreamEvent{Final: resp}
			return
		}
	}

	err := fmt.Errorf("%w: %d", ErrMaxIterations, r.options.MaxIterations)
	r.tracer.RecordError(span, err)
	events <- &StreamEvent{Err: err}
}

// streamRound runs one provider round over the streaming API. Text deltas
// are forwarded immediately; each tool call goes through the permission
// pipeline the moment it is recognized and its result is sent before the
// stream resumes.
func (r *Runtime) streamRound(ctx context.Context, convo *models.ConversationContext, events chan<- *StreamEvent) (*Completion, []models.ToolResult, error) {
	req := r.completionRequest(convo)
	ctx, span := r.tracer.TraceLLMRequest(ctx, r.provider.Name(), req.Model)
	defer span.End()

	start := time.Now()
	chunks, err := r.provider.Stream(ctx, req)
	if err != nil {
		r.tracer.RecordError(span, err)
		r.telemetry.RecordProviderUsage(r.provider.Name(), req.Model, false, time.Since(start), 0, 0)
		return nil, nil, fmt.Errorf("provider %s: %w", r.provider.Name(), err)
	}

	completion := &Completion{}
	var (
		content strings.Builder
		results []models.ToolResult
	)

collect:
	for {
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case chunk, ok := <-chunks:
			if !ok {
				break collect
			}
			if chunk.Error != nil {
				r.tracer.RecordError(span, chunk.Error)
				r.telemetry.RecordProviderUsage(r.provider.Name(), req.Model, false, time.Since(start), 0, 0)
				return nil, nil, fmt.Errorf("provider %s: %w", r.provider.Name(), chunk.Error)
			}
			if chunk.Text != "" {
				content.WriteString(chunk.Text)
				events <- &StreamEvent{Text: chunk.Text}
			}
			if chunk.ToolCall != nil {
				call := *chunk.ToolCall
				completion.ToolCalls = append(completion.ToolCalls, call)

				if err := ctx.Err(); err != nil {
					return nil, nil, err
				}
				result := r.runToolCall(ctx, convo.SessionID, call)
				results = append(results, result)
				events <- &StreamEvent{ToolResult: &result}
			}
			if chunk.Done {
				completion.Usage = Usage{
					InputTokens:  chunk.InputTokens,
					OutputTokens: chunk.OutputTokens,
				}
			}
		}
	}

	completion.Content = content.String()
	completion.StopReason = inferStopReason(completion)

	r.telemetry.RecordProviderUsage(r.provider.Name(), req.Model, true, time.Since(start),
		completion.Usage.InputTokens, completion.Usage.OutputTokens)
	r.tracer.SetAttributes(span,
		"stop_reason", string(completion.StopReason),
		"tool_calls", len(completion.ToolCalls),
	)
	return completion, results, nil
}
