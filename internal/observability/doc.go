// Package observability provides monitoring and debugging capabilities
// for Warden through metrics, structured logging, and distributed tracing.
//
// # Overview
//
// The observability package implements the three pillars of observability:
//
//  1. Metrics - Quantitative measurements using Prometheus
//  2. Logging - Structured logs with sensitive data redaction
//  3. Tracing - Distributed request tracing with OpenTelemetry
//
// Components report through the narrow Telemetry interface so the agent
// runtime never depends on a concrete backend; NullTelemetry is the
// default sink and the one used in tests.
//
// # Metrics
//
// Metrics are implemented using Prometheus client libraries and track:
//   - LLM API request latency and token usage
//   - Tool execution performance
//   - Permission decisions by mode and outcome
//   - Security threats detected during inspection
//   - Error rates by component and type
//
// Example usage:
//
//	metrics := observability.NewMetrics()
//
//	// Track LLM requests
//	start := time.Now()
//	// ... make LLM request ...
//	metrics.RecordLLMRequest("anthropic", "claude-sonnet-4-5", "success",
//	    time.Since(start).Seconds(), promptTokens, completionTokens)
//
//	// Track permission outcomes
//	metrics.RecordPermissionDecision("smart", "allow")
//
// # Logging
//
// Logging is built on Go's slog package with enhancements for:
//   - Automatic request and session ID correlation from context
//   - Sensitive data redaction (API keys, passwords, tokens)
//   - JSON output for production, text for development
//   - Configurable log levels
//
// Example usage:
//
//	logger := observability.NewLogger(observability.LogConfig{
//	    Level:  "info",
//	    Format: "json",
//	})
//
//	ctx := observability.AddSessionID(ctx, sessionID)
//	logger.Info(ctx, "Processing message",
//	    "content_length", len(content),
//	)
//
//	// Error logging with automatic redaction
//	logger.Error(ctx, "LLM request failed",
//	    "error", err,
//	    "api_key", apiKey, // Automatically redacted
//	)
//
// # Tracing
//
// Distributed tracing uses OpenTelemetry to track a message as it flows
// through the loop: provider round-trips, permission checks, tool runs.
//
// Example usage:
//
//	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
//	    ServiceName:    "warden",
//	    ServiceVersion: "1.0.0",
//	    Endpoint:       "localhost:4317", // OTLP collector
//	    SamplingRate:   0.1,              // Sample 10% of traces
//	})
//	defer shutdown(context.Background())
//
//	ctx, span := tracer.TraceMessageProcessing(ctx, sessionID)
//	defer span.End()
//
//	ctx, toolSpan := tracer.TraceToolExecution(ctx, "shell")
//	defer toolSpan.End()
//	if err != nil {
//	    tracer.RecordError(toolSpan, err)
//	}
//
// # Security Considerations
//
// The logging component automatically redacts:
//   - API keys (Anthropic, OpenAI, generic)
//   - Passwords and secrets
//   - JWT tokens
//   - Bearer tokens
//   - Custom patterns via configuration
//
// Sensitive fields in maps are also redacted by key name: password,
// secret, api_key, token, auth, authorization, private_key.
//
// # Testing
//
// All components provide testable seams:
//   - Metrics can be verified using prometheus/testutil
//   - Logging can write to bytes.Buffer for assertions
//   - Tracing works with no-op exporters in tests
//   - Telemetry has a null implementation for unit tests
package observability
