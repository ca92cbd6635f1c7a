package providers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/haasonsaas/warden/internal/agent"
	"github.com/haasonsaas/warden/pkg/models"
	openai "github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = "gpt-4o"

// OpenAIProvider implements agent.LLMProvider using the OpenAI chat
// completions API. Setting BaseURL makes it work against any
// OpenAI-compatible endpoint.
type OpenAIProvider struct {
	client       *openai.Client
	defaultModel string
	retry        retryPolicy
}

// OpenAIConfig configures an OpenAIProvider.
type OpenAIConfig struct {
	// APIKey authenticates against the API (required).
	APIKey string

	// BaseURL overrides the default endpoint, for proxies and
	// OpenAI-compatible servers.
	BaseURL string

	// MaxRetries bounds how many times a request is attempted on
	// transient failures. Default: 3.
	MaxRetries int

	// RetryDelay is the base delay between attempts. Default: 1s.
	RetryDelay time.Duration

	// DefaultModel is used when a request does not name a model.
	// Default: gpt-4o.
	DefaultModel string
}

// NewOpenAIProvider validates the configuration, applies defaults, and
// returns a provider ready for use.
func NewOpenAIProvider(config OpenAIConfig) (*OpenAIProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if strings.TrimSpace(config.BaseURL) != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	model := config.DefaultModel
	if model == "" {
		model = defaultOpenAIModel
	}

	return &OpenAIProvider{
		client:       openai.NewClientWithConfig(clientConfig),
		defaultModel: model,
		retry:        newRetryPolicy(config.MaxRetries, config.RetryDelay),
	}, nil
}

// Name returns the stable provider identifier used in logs and config.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Generate runs one completion and blocks until the full result is
// available.
func (p *OpenAIProvider) Generate(ctx context.Context, req *agent.CompletionRequest) (*agent.Completion, error) {
	chunks, err := p.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	return agent.CollectStream(ctx, chunks)
}

// Stream runs one completion and delivers chunks as they arrive.
func (p *OpenAIProvider) Stream(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	if req == nil {
		return nil, errors.New("openai: nil completion request")
	}

	model := p.model(req.Model)
	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: convertOpenAIMessages(req.Messages, req.System),
		Stream:   true,
		// Ask for a trailing usage frame so token counts survive
		// streaming.
		StreamOptions: &openai.StreamOptions{IncludeUsage: true},
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertOpenAITools(req.Tools)
	}

	chunks := make(chan *agent.CompletionChunk)
	go func() {
		defer close(chunks)

		var stream *openai.ChatCompletionStream
		err := p.retry.do(ctx, IsRetryable, func() error {
			s, err := p.client.CreateChatCompletionStream(ctx, chatReq)
			if err != nil {
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

		p.processStream(ctx, stream, chunks, model)
	}()

	return chunks, nil
}

// pendingOpenAIToolCall accumulates one tool call whose fields and argument
// JSON arrive spread across stream deltas.
type pendingOpenAIToolCall struct {
	call models.ToolCall
	args strings.Builder
}

// processStream consumes the chat completion stream and converts it into
// CompletionChunks.
//
// Text deltas are forwarded immediately. Tool calls stream incrementally,
// keyed by index so parallel calls interleave: the first delta carries the
// ID and function name, later deltas append argument JSON fragments, and a
// tool_calls finish reason (or end of stream) flushes them in index order.
func (p *OpenAIProvider) processStream(ctx context.Context, stream *openai.ChatCompletionStream, chunks chan<- *agent.CompletionChunk, model string) {
	pending := make(map[int]*pendingOpenAIToolCall)

	var inputTokens int
	var outputTokens int

	flush := func() {
		indexes := make([]int, 0, len(pending))
		for index := range pending {
			indexes = append(indexes, index)
		}
		sort.Ints(indexes)

		for _, index := range indexes {
			tc := pending[index]
			if tc.call.ID == "" || tc.call.Name == "" {
				continue
			}
			args := tc.args.String()
			if args == "" {
				args = "{}"
			}
			tc.call.Parameters = json.RawMessage(args)
			call := tc.call
			chunks <- &agent.CompletionChunk{ToolCall: &call}
		}
		pending = make(map[int]*pendingOpenAIToolCall)
	}

	for {
		select {
		case <-ctx.Done():
			chunks <- &agent.CompletionChunk{Error: ctx.Err()}
			return
		default:
		}

		response, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				flush()
				chunks <- &agent.CompletionChunk{
					Done:         true,
					InputTokens:  inputTokens,
					OutputTokens: outputTokens,
				}
				return
			}
			chunks <- &agent.CompletionChunk{Error: p.wrapError(err, model)}
			return
		}

		// The usage frame arrives with no choices, after the last
		// content delta.
		if response.Usage != nil {
			inputTokens = response.Usage.PromptTokens
			outputTokens = response.Usage.CompletionTokens
		}
		if len(response.Choices) == 0 {
			continue
		}
		choice := response.Choices[0]

		if choice.Delta.Content != "" {
			chunks <- &agent.CompletionChunk{Text: choice.Delta.Content}
		}

		for _, tc := range choice.Delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			if pending[index] == nil {
				pending[index] = &pendingOpenAIToolCall{}
			}
			if tc.ID != "" {
				pending[index].call.ID = tc.ID
			}
			if tc.Function.Name != "" {
				pending[index].call.Name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				pending[index].args.WriteString(tc.Function.Arguments)
			}
		}

		if choice.FinishReason == openai.FinishReasonToolCalls {
			flush()
		}
	}
}

// convertOpenAIMessages maps the transcript into chat completion messages.
// The system prompt is injected as the first message; tool-role messages
// carry their results inline with the linking tool call ID.
func convertOpenAIMessages(messages []models.Message, system string) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)

	if system != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	for _, msg := range messages {
		switch msg.Role {
		case models.RoleTool:
			result = append(result, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    msg.Content,
				ToolCallID: msg.ToolCallID,
			})

		case models.RoleAssistant:
			converted := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.Content,
			}
			if len(msg.ToolCalls) > 0 {
				converted.ToolCalls = make([]openai.ToolCall, len(msg.ToolCalls))
				for i, tc := range msg.ToolCalls {
					converted.ToolCalls[i] = openai.ToolCall{
						ID:   tc.ID,
						Type: openai.ToolTypeFunction,
						Function: openai.FunctionCall{
							Name:      tc.Name,
							Arguments: string(tc.Parameters),
						},
					}
				}
			}
			result = append(result, converted)

		default:
			result = append(result, openai.ChatCompletionMessage{
				Role:    string(msg.Role),
				Content: msg.Content,
			})
		}
	}

	return result
}

// convertOpenAITools maps tool manifests into function definitions. A nil
// schema degrades to an empty object schema rather than failing the whole
// request.
func convertOpenAITools(tools []models.ToolManifest) []openai.Tool {
	result := make([]openai.Tool, len(tools))

	for i, tool := range tools {
		schema := tool.Schema
		if schema == nil {
			schema = map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			}
		}

		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  schema,
			},
		}
	}

	return result
}

func (p *OpenAIProvider) model(requested string) string {
	if requested != "" {
		return requested
	}
	return p.defaultModel
}

// wrapError normalizes SDK failures into ProviderError. API errors carry an
// HTTP status and sometimes a machine-readable code; both refine the
// classification.
func (p *OpenAIProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	if _, ok := AsProviderError(err); ok {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		providerErr := &ProviderError{
			Reason:   ReasonUnknown,
			Provider: "openai",
			Model:    model,
			Cause:    err,
		}
		providerErr = providerErr.WithStatus(apiErr.HTTPStatusCode)

		if apiErr.Message != "" {
			providerErr = providerErr.WithMessage(apiErr.Message)
		} else if providerErr.Message == "" {
			providerErr.Message = "openai request failed"
		}
		if code, ok := apiErr.Code.(string); ok && code != "" {
			providerErr = providerErr.WithCode(code)
		} else if apiErr.Type != "" {
			providerErr = providerErr.WithCode(apiErr.Type)
		}
		return providerErr
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return NewProviderError("openai", model, err).WithStatus(reqErr.HTTPStatusCode)
	}

	return NewProviderError("openai", model, err)
}
