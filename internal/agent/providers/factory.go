package providers

import (
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/warden/internal/agent"
)

// Config carries the settings shared by every provider constructor. The
// zero value of each optional field selects that provider's default.
type Config struct {
	// APIKey authenticates against the provider (required).
	APIKey string

	// BaseURL overrides the provider endpoint where supported.
	BaseURL string

	// MaxRetries bounds attempts on transient failures.
	MaxRetries int

	// RetryDelay is the base backoff delay between attempts.
	RetryDelay time.Duration

	// DefaultModel is used when a request does not name a model.
	DefaultModel string
}

// New builds the named provider. An empty name selects Anthropic; "gemini"
// is accepted as an alias for Google.
func New(name string, config Config) (agent.LLMProvider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "anthropic":
		return NewAnthropicProvider(AnthropicConfig{
			APIKey:       config.APIKey,
			BaseURL:      config.BaseURL,
			MaxRetries:   config.MaxRetries,
			RetryDelay:   config.RetryDelay,
			DefaultModel: config.DefaultModel,
		})
	case "openai":
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:       config.APIKey,
			BaseURL:      config.BaseURL,
			MaxRetries:   config.MaxRetries,
			RetryDelay:   config.RetryDelay,
			DefaultModel: config.DefaultModel,
		})
	case "google", "gemini":
		return NewGoogleProvider(GoogleConfig{
			APIKey:       config.APIKey,
			MaxRetries:   config.MaxRetries,
			RetryDelay:   config.RetryDelay,
			DefaultModel: config.DefaultModel,
		})
	default:
		return nil, fmt.Errorf("unsupported provider %q", name)
	}
}
