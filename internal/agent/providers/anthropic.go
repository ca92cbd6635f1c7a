// Package providers contains LLMProvider adapters for hosted model APIs.
//
// Each adapter translates the runtime transcript into the vendor wire format,
// streams the response back as CompletionChunks, and normalizes vendor
// failures into ProviderError values so callers can classify and retry
// without knowing which backend produced them.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/haasonsaas/warden/internal/agent"
	"github.com/haasonsaas/warden/pkg/models"
)

const (
	defaultAnthropicModel = "claude-sonnet-4-20250514"

	// defaultMaxTokens caps the response size when the request does not set
	// its own limit.
	defaultMaxTokens = 4096
)

// maxEmptyStreamEvents is the number of consecutive events that may produce
// no output before the stream is treated as malformed. Protects against
// streams that flood with empty events. Based on the stream_reader guard in
// sashabaranov/go-openai.
const maxEmptyStreamEvents = 300

// AnthropicProvider implements agent.LLMProvider on top of the official
// Anthropic SDK. Completions always run over the streaming API; Generate is
// a drained stream.
type AnthropicProvider struct {
	client       anthropic.Client
	defaultModel string
	retry        retryPolicy
}

// AnthropicConfig configures an AnthropicProvider.
type AnthropicConfig struct {
	// APIKey is the Anthropic API authentication key (required).
	APIKey string

	// BaseURL overrides the default API endpoint. Empty uses the SDK
	// default.
	BaseURL string

	// MaxRetries bounds how many times a request is attempted on
	// transient failures. Default: 3.
	MaxRetries int

	// RetryDelay is the base delay between attempts; actual delays back
	// off exponentially. Default: 1s.
	RetryDelay time.Duration

	// DefaultModel is used when a request does not name a model.
	// Default: claude-sonnet-4-20250514.
	DefaultModel string
}

// NewAnthropicProvider validates the configuration, applies defaults, and
// returns a provider ready for use.
func NewAnthropicProvider(config AnthropicConfig) (*AnthropicProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if strings.TrimSpace(config.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	model := config.DefaultModel
	if model == "" {
		model = defaultAnthropicModel
	}

	return &AnthropicProvider{
		client:       anthropic.NewClient(opts...),
		defaultModel: model,
		retry:        newRetryPolicy(config.MaxRetries, config.RetryDelay),
	}, nil
}

// Name returns the stable provider identifier used in logs and config.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Generate runs one completion and blocks until the full result is
// available.
func (p *AnthropicProvider) Generate(ctx context.Context, req *agent.CompletionRequest) (*agent.Completion, error) {
	chunks, err := p.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	return agent.CollectStream(ctx, chunks)
}

// Stream runs one completion and delivers chunks as they arrive. Conversion
// failures are reported synchronously; transport and API failures arrive on
// the channel as chunk errors. The channel is closed after the final chunk.
func (p *AnthropicProvider) Stream(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	if req == nil {
		return nil, errors.New("anthropic: nil completion request")
	}

	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}
	model := p.model(req.Model)

	chunks := make(chan *agent.CompletionChunk)
	go func() {
		defer close(chunks)

		// The SDK surfaces request-level failures through stream.Err()
		// before the first event, so stream creation itself can retry.
		var stream *ssestream.Stream[anthropic.MessageStreamEventUnion]
		err := p.retry.do(ctx, IsRetryable, func() error {
			s := p.client.Messages.NewStreaming(ctx, params)
			if err := s.Err(); err != nil {
				return p.wrapError(err, model)
			}
			stream = s
			return nil
		})
		if err != nil {
			chunks <- &agent.CompletionChunk{Error: err}
			return
		}
		defer stream.Close()

		p.processStream(stream, chunks, model)
	}()

	return chunks, nil
}

// processStream consumes the SDK event stream and converts it into
// CompletionChunks.
//
// Tool calls arrive across multiple events: content_block_start carries the
// ID and name, input_json_delta events stream the argument JSON, and
// content_block_stop finalizes the call. Text deltas are forwarded as they
// arrive. Extended-thinking blocks are consumed but not surfaced; the
// runtime only sees user-visible output.
func (p *AnthropicProvider) processStream(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], chunks chan<- *agent.CompletionChunk, model string) {
	var currentToolCall *models.ToolCall
	var currentToolInput strings.Builder
	emptyEventCount := 0

	var inputTokens int
	var outputTokens int

	for stream.Next() {
		event := stream.Current()
		eventProcessed := false

		switch event.Type {
		case "message_start":
			messageStart := event.AsMessageStart()
			if messageStart.Message.Usage.InputTokens > 0 {
				inputTokens = int(messageStart.Message.Usage.InputTokens)
			}
			eventProcessed = true

		case "content_block_start":
			contentBlockStart := event.AsContentBlockStart()
			contentBlock := contentBlockStart.ContentBlock

			switch contentBlock.Type {
			case "tool_use":
				toolUse := contentBlock.AsToolUse()
				currentToolCall = &models.ToolCall{
					ID:   toolUse.ID,
					Name: toolUse.Name,
				}
				currentToolInput.Reset()
				eventProcessed = true
			case "thinking":
				eventProcessed = true
			}

		case "content_block_delta":
			contentBlockDelta := event.AsContentBlockDelta()
			delta := contentBlockDelta.Delta

			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					chunks <- &agent.CompletionChunk{Text: delta.Text}
					eventProcessed = true
				}
			case "input_json_delta":
				if delta.PartialJSON != "" {
					currentToolInput.WriteString(delta.PartialJSON)
					eventProcessed = true
				}
			case "thinking_delta", "signature_delta":
				// Not surfaced, but still live stream traffic.
				eventProcessed = true
			}

		case "content_block_stop":
			if currentToolCall != nil {
				input := currentToolInput.String()
				if input == "" {
					// Tools without arguments never produce an
					// input_json_delta event.
					input = "{}"
				}
				currentToolCall.Parameters = json.RawMessage(input)
				chunks <- &agent.CompletionChunk{ToolCall: currentToolCall}
				currentToolCall = nil
				eventProcessed = true
			}

		case "message_delta":
			messageDelta := event.AsMessageDelta()
			if messageDelta.Usage.OutputTokens > 0 {
				outputTokens = int(messageDelta.Usage.OutputTokens)
			}
			eventProcessed = true

		case "message_stop":
			chunks <- &agent.CompletionChunk{
				Done:         true,
				InputTokens:  inputTokens,
				OutputTokens: outputTokens,
			}
			return

		case "error":
			chunks <- &agent.CompletionChunk{
				Error: p.wrapError(errors.New("anthropic: stream error"), model),
			}
			return
		}

		if eventProcessed {
			emptyEventCount = 0
		} else {
			emptyEventCount++
			if emptyEventCount >= maxEmptyStreamEvents {
				chunks <- &agent.CompletionChunk{
					Error: p.wrapError(
						fmt.Errorf("stream appears malformed: %d consecutive empty events", emptyEventCount),
						model,
					),
				}
				return
			}
		}
	}

	if err := stream.Err(); err != nil {
		chunks <- &agent.CompletionChunk{Error: p.wrapError(err, model)}
	}
}

// buildParams converts a completion request into Anthropic API parameters.
func (p *AnthropicProvider) buildParams(req *agent.CompletionRequest) (anthropic.MessageNewParams, error) {
	messages, err := convertAnthropicMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, fmt.Errorf("anthropic: convert messages: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model(req.Model)),
		Messages:  messages,
		MaxTokens: int64(p.maxTokens(req.MaxTokens)),
	}

	// The system prompt travels out of band, never in the transcript.
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{
			{Type: "text", Text: req.System},
		}
	}

	if len(req.Tools) > 0 {
		tools, err := convertAnthropicTools(req.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, fmt.Errorf("anthropic: convert tools: %w", err)
		}
		params.Tools = tools
	}

	return params, nil
}

// convertAnthropicMessages maps the transcript into Anthropic message
// params. Tool-role messages become user messages carrying a tool_result
// block, which is how the Messages API expects execution results back.
func convertAnthropicMessages(messages []models.Message) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam

	for _, msg := range messages {
		switch msg.Role {
		case models.RoleSystem:
			continue

		case models.RoleTool:
			result = append(result, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false),
			))

		case models.RoleAssistant:
			var content []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				content = append(content, anthropic.NewTextBlock(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				input := map[string]any{}
				if len(call.Parameters) > 0 {
					if err := json.Unmarshal(call.Parameters, &input); err != nil {
						return nil, fmt.Errorf("tool call %s has invalid parameters: %w", call.ID, err)
					}
				}
				content = append(content, anthropic.NewToolUseBlock(call.ID, input, call.Name))
			}
			if len(content) == 0 {
				// The API rejects empty content arrays.
				continue
			}
			result = append(result, anthropic.NewAssistantMessage(content...))

		default:
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	return result, nil
}

// convertAnthropicTools maps tool manifests into Anthropic tool params.
func convertAnthropicTools(tools []models.ToolManifest) ([]anthropic.ToolUnionParam, error) {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))

	for _, tool := range tools {
		var schema anthropic.ToolInputSchemaParam
		if tool.Schema != nil {
			raw, err := json.Marshal(tool.Schema)
			if err != nil {
				return nil, fmt.Errorf("tool %s has unencodable schema: %w", tool.Name, err)
			}
			if err := json.Unmarshal(raw, &schema); err != nil {
				return nil, fmt.Errorf("tool %s has invalid schema: %w", tool.Name, err)
			}
		}

		param := anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if param.OfTool == nil {
			return nil, fmt.Errorf("tool %s: missing tool definition", tool.Name)
		}
		if tool.Description != "" {
			param.OfTool.Description = anthropic.String(tool.Description)
		}

		result = append(result, param)
	}

	return result, nil
}

func (p *AnthropicProvider) model(requested string) string {
	if requested != "" {
		return requested
	}
	return p.defaultModel
}

func (p *AnthropicProvider) maxTokens(requested int) int {
	if requested > 0 {
		return requested
	}
	return defaultMaxTokens
}

// anthropicErrorPayload mirrors the JSON error body the API returns.
type anthropicErrorPayload struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

// wrapError normalizes SDK and transport failures into ProviderError. API
// errors contribute their HTTP status, error type, and request ID to the
// classification.
func (p *AnthropicProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	if _, ok := AsProviderError(err); ok {
		return err
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		providerErr := &ProviderError{
			Reason:   ReasonUnknown,
			Provider: "anthropic",
			Model:    model,
			Cause:    err,
		}
		providerErr = providerErr.WithStatus(apiErr.StatusCode)

		message := ""
		code := ""
		requestID := apiErr.RequestID
		if raw := apiErr.RawJSON(); raw != "" {
			var payload anthropicErrorPayload
			if json.Unmarshal([]byte(raw), &payload) == nil {
				message = payload.Error.Message
				code = payload.Error.Type
				if payload.RequestID != "" {
					requestID = payload.RequestID
				}
			}
		}

		if message != "" {
			providerErr = providerErr.WithMessage(message)
		} else if providerErr.Message == "" {
			providerErr.Message = "anthropic request failed"
		}
		if code != "" {
			providerErr = providerErr.WithCode(code)
		}
		if requestID != "" {
			providerErr = providerErr.WithRequestID(requestID)
		}
		return providerErr
	}

	return NewProviderError("anthropic", model, err)
}
