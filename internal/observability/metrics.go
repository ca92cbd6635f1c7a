package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting application metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - LLM request performance and token consumption
//   - Tool execution patterns and latencies
//   - Permission decisions by mode and outcome
//   - Security threats detected during inspection
//   - Error rates categorized by type and component
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	metrics.RecordPermissionDecision("smart", "allow")
//	defer metrics.LLMRequestDuration("anthropic", "claude-sonnet-4-5").Observe(time.Since(start).Seconds())
type Metrics struct {
	// LLMRequestDuration measures LLM API call latency in seconds.
	// Labels: provider (anthropic|openai|google), model
	// Buckets: 0.1s, 0.5s, 1s, 2s, 5s, 10s, 30s, 60s
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts LLM requests by provider and model.
	// Labels: provider, model, status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// LLMTokensUsed tracks token consumption.
	// Labels: provider, model, type (prompt|completion)
	LLMTokensUsed *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	// Buckets: 0.01s, 0.05s, 0.1s, 0.5s, 1s, 5s, 10s, 30s, 60s
	ToolExecutionDuration *prometheus.HistogramVec

	// PermissionDecisionCounter counts permission outcomes.
	// Labels: mode (auto|deny|ask|smart), decision (allow|deny|ask)
	PermissionDecisionCounter *prometheus.CounterVec

	// ThreatCounter counts security threats detected during inspection.
	// Labels: threat_type, level (low|medium|high|critical)
	ThreatCounter *prometheus.CounterVec

	// RiskElevationCounter counts risk classifier elevations.
	// Labels: tool_name, reason (dangerous_command|system_path|privilege)
	RiskElevationCounter *prometheus.CounterVec

	// ConversationRounds measures provider round-trips per processed message.
	// Buckets: 1, 2, 3, 5, 8, 10
	ConversationRounds prometheus.Histogram

	// ErrorCounter tracks errors by type and component.
	// Labels: component (agent|provider|tool|permissions), error_type
	ErrorCounter *prometheus.CounterVec

	// ActiveConversations is a gauge tracking in-flight message loops.
	ActiveConversations prometheus.Gauge

	// DatabaseQueryDuration measures database query latency.
	// Labels: operation (select|insert|update|delete), table
	// Buckets: 0.001s, 0.005s, 0.01s, 0.05s, 0.1s, 0.5s, 1s, 5s
	DatabaseQueryDuration *prometheus.HistogramVec

	// DatabaseQueryCounter counts database queries.
	// Labels: operation, table, status (success|error)
	DatabaseQueryCounter *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
// This should be called once at application startup.
//
// All metrics are automatically registered with Prometheus's default registry
// and will be available at the /metrics endpoint when using prometheus HTTP handler.
func NewMetrics() *Metrics {
	return &Metrics{
		LLMRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "warden_llm_request_duration_seconds",
				Help:    "Duration of LLM API requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),

		LLMRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_llm_requests_total",
				Help: "Total number of LLM requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		LLMTokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_llm_tokens_total",
				Help: "Total number of tokens used by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),

		ToolExecutionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_tool_executions_total",
				Help: "Total number of tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "warden_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),

		PermissionDecisionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_permission_decisions_total",
				Help: "Total number of permission decisions by mode and outcome",
			},
			[]string{"mode", "decision"},
		),

		ThreatCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_threats_detected_total",
				Help: "Total number of security threats detected by type and level",
			},
			[]string{"threat_type", "level"},
		),

		RiskElevationCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_risk_elevations_total",
				Help: "Total number of risk level elevations by tool and reason",
			},
			[]string{"tool_name", "reason"},
		),

		ConversationRounds: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "warden_conversation_rounds",
				Help:    "Provider round-trips needed to resolve a message",
				Buckets: []float64{1, 2, 3, 5, 8, 10},
			},
		),

		ErrorCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_errors_total",
				Help: "Total number of errors by component and error type",
			},
			[]string{"component", "error_type"},
		),

		ActiveConversations: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "warden_active_conversations",
				Help: "Current number of in-flight message loops",
			},
		),

		DatabaseQueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "warden_database_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"operation", "table"},
		),

		DatabaseQueryCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_database_queries_total",
				Help: "Total number of database queries",
			},
			[]string{"operation", "table", "status"},
		),
	}
}

// RecordLLMRequest records metrics for an LLM API request.
//
// Example:
//
//	start := time.Now()
//	// ... make LLM request ...
//	metrics.RecordLLMRequest("anthropic", "claude-sonnet-4-5", "success", time.Since(start).Seconds(), 100, 500)
func (m *Metrics) RecordLLMRequest(provider, model, status string, durationSeconds float64, promptTokens, completionTokens int) {
	m.LLMRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	if promptTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}

// RecordToolExecution records metrics for a tool execution.
//
// Example:
//
//	start := time.Now()
//	// ... execute tool ...
//	metrics.RecordToolExecution("shell", "success", time.Since(start).Seconds())
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordPermissionDecision records a permission outcome for a given mode.
//
// Example:
//
//	metrics.RecordPermissionDecision("smart", "allow")
func (m *Metrics) RecordPermissionDecision(mode, decision string) {
	m.PermissionDecisionCounter.WithLabelValues(mode, decision).Inc()
}

// RecordThreat records a security threat detected during inspection.
//
// Example:
//
//	metrics.RecordThreat("malicious_command", "critical")
func (m *Metrics) RecordThreat(threatType, level string) {
	m.ThreatCounter.WithLabelValues(threatType, level).Inc()
}

// RecordRiskElevation records a risk classifier elevation.
//
// Example:
//
//	metrics.RecordRiskElevation("shell", "dangerous_command")
func (m *Metrics) RecordRiskElevation(toolName, reason string) {
	m.RiskElevationCounter.WithLabelValues(toolName, reason).Inc()
}

// RecordError increments the error counter for a given component and error type.
//
// Example:
//
//	metrics.RecordError("provider", "api_timeout")
//	metrics.RecordError("tool", "execution_failed")
func (m *Metrics) RecordError(component, errorType string) {
	m.ErrorCounter.WithLabelValues(component, errorType).Inc()
}

// ConversationStarted increments the active conversations gauge.
func (m *Metrics) ConversationStarted() {
	m.ActiveConversations.Inc()
}

// ConversationEnded decrements the active conversations gauge and records
// how many provider rounds the loop took.
func (m *Metrics) ConversationEnded(rounds int) {
	m.ActiveConversations.Dec()
	m.ConversationRounds.Observe(float64(rounds))
}

// RecordDatabaseQuery records metrics for a database query.
//
// Example:
//
//	start := time.Now()
//	// ... execute database query ...
//	metrics.RecordDatabaseQuery("select", "permissions", "success", time.Since(start).Seconds())
func (m *Metrics) RecordDatabaseQuery(operation, table, status string, durationSeconds float64) {
	m.DatabaseQueryCounter.WithLabelValues(operation, table, status).Inc()
	m.DatabaseQueryDuration.WithLabelValues(operation, table).Observe(durationSeconds)
}
