package providers

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorReasonRetryable(t *testing.T) {
	tests := []struct {
		reason    ErrorReason
		retryable bool
	}{
		{ReasonRateLimit, true},
		{ReasonTimeout, true},
		{ReasonServer, true},
		{ReasonBilling, false},
		{ReasonAuth, false},
		{ReasonInvalidRequest, false},
		{ReasonModelUnavailable, false},
		{ReasonContentFilter, false},
		{ReasonUnknown, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.reason), func(t *testing.T) {
			if got := tt.reason.Retryable(); got != tt.retryable {
				t.Errorf("Retryable() = %v, want %v", got, tt.retryable)
			}
		})
	}
}

func TestNewProviderErrorClassifiesMessage(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    ErrorReason
	}{
		{"timeout", "request timeout after 30s", ReasonTimeout},
		{"deadline", "context deadline exceeded", ReasonTimeout},
		{"rate limit text", "rate limit exceeded, slow down", ReasonRateLimit},
		{"rate limit status", "unexpected status 429", ReasonRateLimit},
		{"auth", "invalid api key provided", ReasonAuth},
		{"billing", "monthly quota exhausted", ReasonBilling},
		{"content filter", "blocked by content policy", ReasonContentFilter},
		{"model", "model not found: gpt-9", ReasonModelUnavailable},
		{"server", "502 bad gateway", ReasonServer},
		{"unclassified", "something odd happened", ReasonUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewProviderError("anthropic", "claude-sonnet-4", errors.New(tt.message))
			if err.Reason != tt.want {
				t.Errorf("Reason = %v, want %v", err.Reason, tt.want)
			}
			if err.Provider != "anthropic" {
				t.Errorf("Provider = %q, want %q", err.Provider, "anthropic")
			}
			if err.Model != "claude-sonnet-4" {
				t.Errorf("Model = %q, want %q", err.Model, "claude-sonnet-4")
			}
		})
	}
}

func TestWithStatusReclassifies(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorReason
	}{
		{401, ReasonAuth},
		{402, ReasonBilling},
		{403, ReasonAuth},
		{400, ReasonInvalidRequest},
		{404, ReasonModelUnavailable},
		{429, ReasonRateLimit},
		{500, ReasonServer},
		{503, ReasonServer},
		{200, ReasonUnknown},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			err := NewProviderError("openai", "gpt-4o", errors.New("something odd")).WithStatus(tt.status)
			if err.Reason != tt.want {
				t.Errorf("Reason = %v, want %v", err.Reason, tt.want)
			}
			if err.Status != tt.status {
				t.Errorf("Status = %d, want %d", err.Status, tt.status)
			}
		})
	}
}

func TestWithCodeReclassifiesKnownCodes(t *testing.T) {
	err := NewProviderError("anthropic", "claude-sonnet-4", errors.New("request failed")).
		WithCode("overloaded_error")
	if err.Reason != ReasonServer {
		t.Errorf("Reason = %v, want %v", err.Reason, ReasonServer)
	}
	if err.Code != "overloaded_error" {
		t.Errorf("Code = %q, want %q", err.Code, "overloaded_error")
	}
}

func TestWithCodeKeepsReasonForUnknownCodes(t *testing.T) {
	err := NewProviderError("anthropic", "claude-sonnet-4", errors.New("429 too many requests")).
		WithCode("mystery_code")
	if err.Reason != ReasonRateLimit {
		t.Errorf("Reason = %v, want %v", err.Reason, ReasonRateLimit)
	}
	if err.Code != "mystery_code" {
		t.Errorf("Code = %q, want %q", err.Code, "mystery_code")
	}
}

func TestProviderErrorMessage(t *testing.T) {
	err := &ProviderError{
		Reason:   ReasonRateLimit,
		Provider: "anthropic",
		Model:    "claude-sonnet-4",
		Status:   429,
		Code:     "rate_limit_error",
		Message:  "Too many requests",
	}

	got := err.Error()
	for _, want := range []string{"[rate_limit]", "anthropic", "model=claude-sonnet-4", "status=429", "code=rate_limit_error", "Too many requests"} {
		if !strings.Contains(got, want) {
			t.Errorf("Error() = %q, missing %q", got, want)
		}
	}
}

func TestProviderErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewProviderError("google", "gemini-2.0-flash", cause)
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause through Unwrap")
	}
}

func TestAsProviderError(t *testing.T) {
	inner := NewProviderError("openai", "gpt-4o", errors.New("server error"))
	wrapped := fmt.Errorf("completion failed: %w", inner)

	got, ok := AsProviderError(wrapped)
	if !ok {
		t.Fatal("AsProviderError should find the error through wrapping")
	}
	if got != inner {
		t.Error("AsProviderError returned a different error value")
	}

	if _, ok := AsProviderError(errors.New("plain")); ok {
		t.Error("AsProviderError should not match plain errors")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"retryable provider error", NewProviderError("openai", "gpt-4o", errors.New("503 service unavailable")), true},
		{"non-retryable provider error", NewProviderError("openai", "gpt-4o", errors.New("invalid api key")), false},
		{"wrapped provider error", fmt.Errorf("call failed: %w", NewProviderError("anthropic", "", errors.New("timeout"))), true},
		{"raw retryable message", errors.New("rate limit exceeded"), true},
		{"raw plain message", errors.New("no such file"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}
