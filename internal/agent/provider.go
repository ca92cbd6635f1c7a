package agent

import (
	"context"
	"strings"

	"github.com/haasonsaas/warden/pkg/models"
)

// LLMProvider is the seam between the runtime and a model backend.
//
// Generate performs one blocking completion; Stream delivers the same
// completion incrementally. Both must honor context cancellation. Providers
// own their retry and backoff policy; the runtime treats any error they
// return as terminal for the turn.
type LLMProvider interface {
	// Name identifies the provider in logs, traces, and metrics.
	Name() string

	// Generate runs one completion and returns the full result.
	Generate(ctx context.Context, req *CompletionRequest) (*Completion, error)

	// Stream runs one completion, delivering chunks as they arrive. The
	// returned channel is closed after the final chunk.
	Stream(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)
}

// CompletionRequest describes one provider round-trip. Messages is the full
// transcript in causal order; the provider sees exactly what the runtime has
// appended so far.
type CompletionRequest struct {
	// Model names the model to use. Empty lets the provider pick its default.
	Model string

	// System is the system prompt, sent out of band from the transcript.
	System string

	// Messages is the conversation history, oldest first.
	Messages []models.Message

	// Tools advertises the registered tools the model may call.
	Tools []models.ToolManifest

	// MaxTokens caps the response length. Zero lets the provider decide.
	MaxTokens int
}

// StopReason explains why the provider stopped generating.
type StopReason string

const (
	// StopEndTurn means the model finished its answer.
	StopEndTurn StopReason = "end_turn"

	// StopToolUse means the model wants tool results before continuing.
	StopToolUse StopReason = "tool_use"

	// StopMaxTokens means the response hit the token cap.
	StopMaxTokens StopReason = "max_tokens"
)

// Usage counts the tokens consumed by one or more provider rounds.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add accumulates another round's usage.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// Completion is a provider's full answer for one round.
type Completion struct {
	// Content is the assistant text, possibly empty when the model only
	// requested tools.
	Content string

	// ToolCalls lists requested tool invocations in the order the model
	// emitted them. The runtime processes them in exactly this order.
	ToolCalls []models.ToolCall

	// StopReason reports why generation ended.
	StopReason StopReason

	// Usage counts tokens for this round.
	Usage Usage
}

// CompletionChunk is one unit of a streamed completion. Intermediate chunks
// carry Text or a ToolCall; a chunk with Error set terminates the stream; the
// last successful chunk has Done set and may carry token counts.
type CompletionChunk struct {
	Text         string
	ToolCall     *models.ToolCall
	Done         bool
	Error        error
	InputTokens  int
	OutputTokens int
}

// CollectStream drains a chunk stream into a single Completion. Providers
// that only implement streaming build Generate on top of this; it is also
// what makes the blocking and streaming paths observably equivalent.
func CollectStream(ctx context.Context, chunks <-chan *CompletionChunk) (*Completion, error) {
	completion := &Completion{}
	var text strings.Builder

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case chunk, ok := <-chunks:
			if !ok {
				completion.Content = text.String()
				if completion.StopReason == "" {
					completion.StopReason = inferStopReason(completion)
				}
				return completion, nil
			}
			if chunk.Error != nil {
				return nil, chunk.Error
			}
			if chunk.Text != "" {
				text.WriteString(chunk.Text)
			}
			if chunk.ToolCall != nil {
				completion.ToolCalls = append(completion.ToolCalls, *chunk.ToolCall)
			}
			if chunk.Done {
				completion.Usage = Usage{
					InputTokens:  chunk.InputTokens,
					OutputTokens: chunk.OutputTokens,
				}
			}
		}
	}
}

func inferStopReason(completion *Completion) StopReason {
	if len(completion.ToolCalls) > 0 {
		return StopToolUse
	}
	return StopEndTurn
}
