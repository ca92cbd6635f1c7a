package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/haasonsaas/warden/internal/agent"
	"github.com/haasonsaas/warden/pkg/models"
	"google.golang.org/genai"
)

const defaultGoogleModel = "gemini-2.0-flash"

// GoogleProvider implements agent.LLMProvider using the Google Gen AI SDK
// against the Gemini API.
type GoogleProvider struct {
	client       *genai.Client
	defaultModel string
	retry        retryPolicy
}

// GoogleConfig configures a GoogleProvider.
type GoogleConfig struct {
	// APIKey authenticates against the Gemini API (required).
	APIKey string

	// MaxRetries bounds how many times a request is attempted on
	// transient failures. Default: 3.
	MaxRetries int

	// RetryDelay is the base delay between attempts. Default: 1s.
	RetryDelay time.Duration

	// DefaultModel is used when a request does not name a model.
	// Default: gemini-2.0-flash.
	DefaultModel string
}

// NewGoogleProvider validates the configuration, applies defaults, and
// initializes the SDK client.
func NewGoogleProvider(config GoogleConfig) (*GoogleProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("google: API key is required")
	}

	model := config.DefaultModel
	if model == "" {
		model = defaultGoogleModel
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("google: failed to create client: %w", err)
	}

	return &GoogleProvider{
		client:       client,
		defaultModel: model,
		retry:        newRetryPolicy(config.MaxRetries, config.RetryDelay),
	}, nil
}

// Name returns the stable provider identifier used in logs and config.
func (p *GoogleProvider) Name() string {
	return "google"
}

// Generate runs one completion and blocks until the full result is
// available.
func (p *GoogleProvider) Generate(ctx context.Context, req *agent.CompletionRequest) (*agent.Completion, error) {
	chunks, err := p.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	return agent.CollectStream(ctx, chunks)
}

// Stream runs one completion and delivers chunks as they arrive.
func (p *GoogleProvider) Stream(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	if req == nil {
		return nil, errors.New("google: nil completion request")
	}

	model := p.model(req.Model)
	contents, err := convertGoogleMessages(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("google: convert messages: %w", err)
	}
	config := buildGoogleConfig(req)

	chunks := make(chan *agent.CompletionChunk)
	go func() {
		defer close(chunks)

		var inputTokens, outputTokens int
		var emitted bool

		// The iterator issues the request on first pull, so the retry
		// wraps the whole stream. A stream that already produced
		// output must not be replayed.
		err := p.retry.do(ctx, func(err error) bool {
			return !emitted && IsRetryable(err)
		}, func() error {
			stream := p.client.Models.GenerateContentStream(ctx, model, contents, config)
			in, out, sawOutput, err := p.processStream(ctx, stream, chunks)
			if sawOutput {
				emitted = true
			}
			if err != nil {
				return p.wrapError(err, model)
			}
			inputTokens = in
			outputTokens = out
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				chunks <- &agent.CompletionChunk{Error: ctx.Err()}
				return
			}
			chunks <- &agent.CompletionChunk{Error: err}
			return
		}

		chunks <- &agent.CompletionChunk{
			Done:         true,
			InputTokens:  inputTokens,
			OutputTokens: outputTokens,
		}
	}()

	return chunks, nil
}

// processStream drains the response iterator, forwarding text and function
// call parts as chunks. Gemini does not assign tool call IDs, so each
// function call gets a synthetic ID that convertGoogleMessages can later
// resolve back to the function name.
func (p *GoogleProvider) processStream(ctx context.Context, stream iter.Seq2[*genai.GenerateContentResponse, error], chunks chan<- *agent.CompletionChunk) (inputTokens, outputTokens int, emitted bool, streamErr error) {
	for resp, err := range stream {
		select {
		case <-ctx.Done():
			return inputTokens, outputTokens, emitted, ctx.Err()
		default:
		}

		if err != nil {
			return inputTokens, outputTokens, emitted, err
		}
		if resp == nil {
			continue
		}

		if resp.UsageMetadata != nil {
			if resp.UsageMetadata.PromptTokenCount > 0 {
				inputTokens = int(resp.UsageMetadata.PromptTokenCount)
			}
			if resp.UsageMetadata.CandidatesTokenCount > 0 {
				outputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
			}
		}

		for _, candidate := range resp.Candidates {
			if candidate == nil || candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part == nil {
					continue
				}

				if part.Text != "" {
					emitted = true
					chunks <- &agent.CompletionChunk{Text: part.Text}
				}

				if part.FunctionCall != nil {
					args, err := json.Marshal(part.FunctionCall.Args)
					if err != nil {
						args = []byte("{}")
					}
					emitted = true
					chunks <- &agent.CompletionChunk{
						ToolCall: &models.ToolCall{
							ID:         newGoogleToolCallID(part.FunctionCall.Name),
							Name:       part.FunctionCall.Name,
							Parameters: args,
						},
					}
				}
			}
		}
	}

	return inputTokens, outputTokens, emitted, nil
}

// convertGoogleMessages maps the transcript into Gemini content. Assistant
// turns use the model role; tool results become function response parts on
// the user side, with the function name recovered from the originating tool
// call.
func convertGoogleMessages(messages []models.Message) ([]*genai.Content, error) {
	var result []*genai.Content

	for _, msg := range messages {
		// System prompts are handled via SystemInstruction in config.
		if msg.Role == models.RoleSystem {
			continue
		}

		content := &genai.Content{Role: genai.RoleUser}
		if msg.Role == models.RoleAssistant {
			content.Role = genai.RoleModel
		}

		switch msg.Role {
		case models.RoleTool:
			var response map[string]any
			if err := json.Unmarshal([]byte(msg.Content), &response); err != nil {
				response = map[string]any{"result": msg.Content}
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					Name:     toolNameForCallID(msg.ToolCallID, messages),
					Response: response,
				},
			})

		default:
			if msg.Content != "" {
				content.Parts = append(content.Parts, &genai.Part{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				args := map[string]any{}
				if len(tc.Parameters) > 0 {
					if err := json.Unmarshal(tc.Parameters, &args); err != nil {
						return nil, fmt.Errorf("tool call %s has invalid parameters: %w", tc.ID, err)
					}
				}
				content.Parts = append(content.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{
						Name: tc.Name,
						Args: args,
					},
				})
			}
		}

		if len(content.Parts) > 0 {
			result = append(result, content)
		}
	}

	return result, nil
}

// buildGoogleConfig builds generation settings from a completion request.
func buildGoogleConfig(req *agent.CompletionRequest) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}

	if req.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}

	if req.MaxTokens > 0 {
		maxTokens := min(req.MaxTokens, math.MaxInt32)
		// #nosec G115 -- bounded by min above
		config.MaxOutputTokens = int32(maxTokens)
	}

	if len(req.Tools) > 0 {
		config.Tools = convertGoogleTools(req.Tools)
	}

	return config
}

// convertGoogleTools maps tool manifests into Gemini function declarations.
// Manifests without a schema are declared with no parameters.
func convertGoogleTools(tools []models.ToolManifest) []*genai.Tool {
	declarations := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, tool := range tools {
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  toGeminiSchema(tool.Schema),
		})
	}
	if len(declarations) == 0 {
		return nil
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

// toGeminiSchema converts a JSON Schema map into Gemini's typed Schema,
// recursing through properties and array items.
func toGeminiSchema(schemaMap map[string]any) *genai.Schema {
	if schemaMap == nil {
		return nil
	}

	schema := &genai.Schema{}

	if t, ok := schemaMap["type"].(string); ok {
		schema.Type = genai.Type(strings.ToUpper(t))
	}
	if desc, ok := schemaMap["description"].(string); ok {
		schema.Description = desc
	}
	if enum, ok := schemaMap["enum"].([]any); ok {
		for _, e := range enum {
			if s, ok := e.(string); ok {
				schema.Enum = append(schema.Enum, s)
			}
		}
	}
	if props, ok := schemaMap["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema)
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				schema.Properties[name] = toGeminiSchema(propMap)
			}
		}
	}
	if required, ok := schemaMap["required"].([]any); ok {
		for _, r := range required {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	if items, ok := schemaMap["items"].(map[string]any); ok {
		schema.Items = toGeminiSchema(items)
	}

	return schema
}

func (p *GoogleProvider) model(requested string) string {
	if requested != "" {
		return requested
	}
	return p.defaultModel
}

// newGoogleToolCallID builds a synthetic tool call ID that encodes the
// function name, since the Gemini API returns calls without IDs.
func newGoogleToolCallID(name string) string {
	return fmt.Sprintf("call_%s_%d", name, time.Now().UnixNano())
}

// toolNameForCallID recovers the function name for a tool result, first by
// matching the originating tool call in the transcript, then by parsing the
// synthetic ID format call_<name>_<timestamp>.
func toolNameForCallID(toolCallID string, messages []models.Message) string {
	for _, msg := range messages {
		for _, tc := range msg.ToolCalls {
			if tc.ID == toolCallID {
				return tc.Name
			}
		}
	}
	parts := strings.Split(toolCallID, "_")
	if len(parts) >= 2 {
		return parts[1]
	}
	return ""
}

// wrapError normalizes SDK failures into ProviderError. The Gen AI SDK
// reports most failures as formatted strings, so classification falls back
// to scanning the message for status markers.
func (p *GoogleProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	if _, ok := AsProviderError(err); ok {
		return err
	}

	providerErr := NewProviderError("google", model, err)

	errMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errMsg, "401"), strings.Contains(errMsg, "unauthenticated"):
		providerErr = providerErr.WithStatus(http.StatusUnauthorized)
	case strings.Contains(errMsg, "403"), strings.Contains(errMsg, "permission denied"):
		providerErr = providerErr.WithStatus(http.StatusForbidden)
	case strings.Contains(errMsg, "404"), strings.Contains(errMsg, "not found"):
		providerErr = providerErr.WithStatus(http.StatusNotFound)
	case strings.Contains(errMsg, "429"), strings.Contains(errMsg, "resource exhausted"):
		providerErr = providerErr.WithStatus(http.StatusTooManyRequests)
	case strings.Contains(errMsg, "500"):
		providerErr = providerErr.WithStatus(http.StatusInternalServerError)
	case strings.Contains(errMsg, "503"):
		providerErr = providerErr.WithStatus(http.StatusServiceUnavailable)
	}

	return providerErr
}
