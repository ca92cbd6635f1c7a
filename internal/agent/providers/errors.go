package providers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorReason categorizes a provider failure for retry decisions and metrics.
type ErrorReason string

const (
	// ReasonBilling covers payment and quota exhaustion (HTTP 402)
	ReasonBilling ErrorReason = "billing"

	// ReasonRateLimit covers throttling (HTTP 429)
	ReasonRateLimit ErrorReason = "rate_limit"

	// ReasonAuth covers authentication and authorization failures (HTTP 401, 403)
	ReasonAuth ErrorReason = "auth"

	// ReasonTimeout covers request timeouts and exceeded deadlines
	ReasonTimeout ErrorReason = "timeout"

	// ReasonServer covers provider-side failures (HTTP 5xx)
	ReasonServer ErrorReason = "server_error"

	// ReasonInvalidRequest covers malformed requests (HTTP 400)
	ReasonInvalidRequest ErrorReason = "invalid_request"

	// ReasonModelUnavailable covers unknown or retired models
	ReasonModelUnavailable ErrorReason = "model_unavailable"

	// ReasonContentFilter covers responses blocked by safety filters
	ReasonContentFilter ErrorReason = "content_filter"

	// ReasonUnknown covers everything not otherwise classified
	ReasonUnknown ErrorReason = "unknown"
)

// Retryable reports whether a failure with this reason may succeed on retry.
func (r ErrorReason) Retryable() bool {
	switch r {
	case ReasonRateLimit, ReasonTimeout, ReasonServer:
		return true
	default:
		return false
	}
}

// ProviderError is a structured failure from an LLM backend. It keeps enough
// context for retry decisions, logs, and support tickets without forcing
// callers to parse provider-specific error strings.
type ProviderError struct {
	// Reason categorizes the failure.
	Reason ErrorReason

	// Provider names the backend, e.g. "anthropic" or "openai".
	Provider string

	// Model is the model that was requested.
	Model string

	// Status is the HTTP status code when one was observed.
	Status int

	// Code is the provider's own error code.
	Code string

	// Message is the human-readable description.
	Message string

	// RequestID is the provider's request ID for support escalation.
	RequestID string

	// Cause is the underlying error.
	Cause error
}

func (e *ProviderError) Error() string {
	parts := []string{fmt.Sprintf("[%s]", e.Reason)}
	if e.Provider != "" {
		parts = append(parts, e.Provider)
	}
	if e.Model != "" {
		parts = append(parts, fmt.Sprintf("model=%s", e.Model))
	}
	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.Status))
	}
	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("code=%s", e.Code))
	}
	switch {
	case e.Message != "":
		parts = append(parts, e.Message)
	case e.Cause != nil:
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " ")
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError wraps cause with provider context, classifying the reason
// from the cause's message. Callers refine the classification with WithStatus
// and WithCode as more detail becomes available.
func NewProviderError(provider, model string, cause error) *ProviderError {
	err := &ProviderError{
		Provider: provider,
		Model:    model,
		Cause:    cause,
		Reason:   ReasonUnknown,
	}
	if cause != nil {
		err.Message = cause.Error()
		err.Reason = classifyMessage(cause.Error())
	}
	return err
}

// WithStatus records the HTTP status and reclassifies from it. Status codes
// are more reliable than message text, so this overrides the message-based
// classification.
func (e *ProviderError) WithStatus(status int) *ProviderError {
	e.Status = status
	e.Reason = classifyStatus(status)
	return e
}

// WithCode records the provider's error code and reclassifies when the code
// is recognized.
func (e *ProviderError) WithCode(code string) *ProviderError {
	e.Code = code
	if reason := classifyCode(code); reason != ReasonUnknown {
		e.Reason = reason
	}
	return e
}

// WithRequestID records the provider's request ID.
func (e *ProviderError) WithRequestID(id string) *ProviderError {
	e.RequestID = id
	return e
}

// WithMessage replaces the human-readable description.
func (e *ProviderError) WithMessage(msg string) *ProviderError {
	e.Message = msg
	return e
}

func classifyMessage(message string) ErrorReason {
	msg := strings.ToLower(message)

	switch {
	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "deadline exceeded"):
		return ReasonTimeout
	case strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "rate_limit"),
		strings.Contains(msg, "too many requests"),
		strings.Contains(msg, "429"):
		return ReasonRateLimit
	case strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "invalid api key"),
		strings.Contains(msg, "invalid_api_key"),
		strings.Contains(msg, "authentication"),
		strings.Contains(msg, "401"),
		strings.Contains(msg, "403"):
		return ReasonAuth
	case strings.Contains(msg, "billing"),
		strings.Contains(msg, "payment"),
		strings.Contains(msg, "quota"),
		strings.Contains(msg, "402"):
		return ReasonBilling
	case strings.Contains(msg, "content_filter"),
		strings.Contains(msg, "content policy"),
		strings.Contains(msg, "safety"):
		return ReasonContentFilter
	case strings.Contains(msg, "model not found"),
		strings.Contains(msg, "model_not_found"),
		strings.Contains(msg, "does not exist"):
		return ReasonModelUnavailable
	case strings.Contains(msg, "internal server"),
		strings.Contains(msg, "server error"),
		strings.Contains(msg, "bad gateway"),
		strings.Contains(msg, "service unavailable"),
		strings.Contains(msg, "500"),
		strings.Contains(msg, "502"),
		strings.Contains(msg, "503"),
		strings.Contains(msg, "504"):
		return ReasonServer
	default:
		return ReasonUnknown
	}
}

func classifyStatus(status int) ErrorReason {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ReasonAuth
	case status == http.StatusPaymentRequired:
		return ReasonBilling
	case status == http.StatusTooManyRequests:
		return ReasonRateLimit
	case status == http.StatusBadRequest:
		return ReasonInvalidRequest
	case status == http.StatusNotFound:
		return ReasonModelUnavailable
	case status >= 500:
		return ReasonServer
	default:
		return ReasonUnknown
	}
}

func classifyCode(code string) ErrorReason {
	switch strings.ToLower(code) {
	case "rate_limit_error", "rate_limit_exceeded":
		return ReasonRateLimit
	case "authentication_error", "invalid_api_key", "permission_error":
		return ReasonAuth
	case "billing_error", "insufficient_quota":
		return ReasonBilling
	case "model_not_found", "not_found_error":
		return ReasonModelUnavailable
	case "content_policy_violation", "content_filter":
		return ReasonContentFilter
	case "api_error", "internal_error", "overloaded_error", "server_error":
		return ReasonServer
	case "invalid_request_error":
		return ReasonInvalidRequest
	default:
		return ReasonUnknown
	}
}

// AsProviderError extracts a ProviderError from an error chain.
func AsProviderError(err error) (*ProviderError, bool) {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr, true
	}
	return nil, false
}

// IsRetryable reports whether an error is worth retrying. Structured provider
// errors use their classified reason; raw errors are classified from their
// message.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if providerErr, ok := AsProviderError(err); ok {
		return providerErr.Reason.Retryable()
	}
	return classifyMessage(err.Error()).Retryable()
}
