package observability

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"
	otelnoop "go.opentelemetry.io/otel/trace/noop"
)

// =============================================================================
// No-op Manager
// =============================================================================

// NoopManager returns a no-operation Manager that does nothing.
// Use this when observability is completely disabled.
func NoopManager() *Manager {
	return &Manager{}
}

func noopSpan() trace.Span {
	_, span := otelnoop.NewTracerProvider().Tracer("").Start(context.Background(), "")
	return span
}

// =============================================================================
// Recorder Interface
// =============================================================================

// Recorder defines the interface for recording metrics, allowing a no-op
// stand-in when metrics collection is disabled.
type Recorder interface {
	RecordAgentRun(agentKind string, duration time.Duration)
	RecordAgentError(agentKind, errorType string)

	RecordOracleCall(model string, duration time.Duration)
	RecordOracleTokens(model string, inputTokens, outputTokens int)
	RecordOracleError(model, errorType string)

	RecordToolCall(toolName string, duration time.Duration)
	RecordToolError(toolName, errorType string)

	RecordHTTPRequest(method, path string, statusCode int, duration time.Duration, reqSize, respSize int64)

	SetCircuitState(agentKind string, state int)
	RecordCheckpoint(reason string)
	SetDLQDepth(count int)
	RecordExecutorLevel(levelSize int, efficiency float64)
}

// NoopMetrics is a Recorder implementation that does nothing.
type NoopMetrics struct{}

func (NoopMetrics) RecordAgentRun(_ string, _ time.Duration) {}
func (NoopMetrics) RecordAgentError(_, _ string)             {}

func (NoopMetrics) RecordOracleCall(_ string, _ time.Duration) {}
func (NoopMetrics) RecordOracleTokens(_ string, _, _ int)      {}
func (NoopMetrics) RecordOracleError(_, _ string)              {}

func (NoopMetrics) RecordToolCall(_ string, _ time.Duration) {}
func (NoopMetrics) RecordToolError(_, _ string)              {}

func (NoopMetrics) RecordHTTPRequest(_, _ string, _ int, _ time.Duration, _, _ int64) {}

func (NoopMetrics) SetCircuitState(_ string, _ int)      {}
func (NoopMetrics) RecordCheckpoint(_ string)            {}
func (NoopMetrics) SetDLQDepth(_ int)                    {}
func (NoopMetrics) RecordExecutorLevel(_ int, _ float64) {}

// Handler returns a handler that reports metrics as unavailable.
func (NoopMetrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("metrics not enabled"))
	})
}

var (
	_ Recorder = (*Metrics)(nil)
	_ Recorder = NoopMetrics{}
)
