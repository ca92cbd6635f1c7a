package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Telemetry is the narrow sink the agent runtime reports through.
//
// Implementations must be safe for concurrent use. Callers treat every
// method as fire-and-forget; recording must never block the message loop.
type Telemetry interface {
	// RecordToolExecution reports one tool invocation and its outcome.
	RecordToolExecution(toolName string, success bool, duration time.Duration)

	// RecordPermissionDecision reports the outcome of a permission check.
	RecordPermissionDecision(mode, decision string)

	// RecordThreat reports a threat found during inspection.
	RecordThreat(threatType, level string)

	// RecordRiskElevation reports one classifier elevation.
	RecordRiskElevation(toolName, reason string)

	// RecordProviderUsage reports one LLM round-trip.
	RecordProviderUsage(provider, model string, success bool, duration time.Duration, promptTokens, completionTokens int)
}

// NullTelemetry discards everything. It is the default sink when no
// metrics backend is configured and the sink of choice in tests.
type NullTelemetry struct{}

// NewNullTelemetry returns a Telemetry that drops all records.
func NewNullTelemetry() *NullTelemetry { return &NullTelemetry{} }

func (*NullTelemetry) RecordToolExecution(string, bool, time.Duration) {}

func (*NullTelemetry) RecordPermissionDecision(string, string) {}

func (*NullTelemetry) RecordThreat(string, string) {}

func (*NullTelemetry) RecordRiskElevation(string, string) {}

func (*NullTelemetry) RecordProviderUsage(string, string, bool, time.Duration, int, int) {}

// PrometheusTelemetry forwards records to the registered Prometheus metrics.
type PrometheusTelemetry struct {
	metrics *Metrics
}

// NewPrometheusTelemetry wraps a Metrics set in the Telemetry interface.
func NewPrometheusTelemetry(metrics *Metrics) *PrometheusTelemetry {
	return &PrometheusTelemetry{metrics: metrics}
}

func (t *PrometheusTelemetry) RecordToolExecution(toolName string, success bool, duration time.Duration) {
	t.metrics.RecordToolExecution(toolName, statusLabel(success), duration.Seconds())
}

func (t *PrometheusTelemetry) RecordPermissionDecision(mode, decision string) {
	t.metrics.RecordPermissionDecision(mode, decision)
}

func (t *PrometheusTelemetry) RecordThreat(threatType, level string) {
	t.metrics.RecordThreat(threatType, level)
}

func (t *PrometheusTelemetry) RecordRiskElevation(toolName, reason string) {
	t.metrics.RecordRiskElevation(toolName, reason)
}

func (t *PrometheusTelemetry) RecordProviderUsage(provider, model string, success bool, duration time.Duration, promptTokens, completionTokens int) {
	t.metrics.RecordLLMRequest(provider, model, statusLabel(success), duration.Seconds(), promptTokens, completionTokens)
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// StartMetricsServer exposes the default Prometheus registry at /metrics on
// the given address. The server runs until the context is cancelled.
//
// Example:
//
//	go observability.StartMetricsServer(ctx, ":9090", logger)
func StartMetricsServer(ctx context.Context, addr string, logger *Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	if logger != nil {
		logger.Info(ctx, "metrics server started", "addr", addr)
	}

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}
