package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics collection for the orchestration
// runtime.
type Metrics struct {
	config   *MetricsConfig
	registry *prometheus.Registry

	agentRuns        *prometheus.CounterVec
	agentRunDuration *prometheus.HistogramVec
	agentErrors      *prometheus.CounterVec

	oracleCalls        *prometheus.CounterVec
	oracleCallDuration *prometheus.HistogramVec
	oracleTokensInput  *prometheus.CounterVec
	oracleTokensOutput *prometheus.CounterVec
	oracleErrors       *prometheus.CounterVec

	toolCalls        *prometheus.CounterVec
	toolCallDuration *prometheus.HistogramVec
	toolErrors       *prometheus.CounterVec

	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	httpRequestSize  *prometheus.HistogramVec
	httpResponseSize *prometheus.HistogramVec

	// Circuit breaker (C6) state per agent kind: 0=closed, 1=half-open, 2=open.
	circuitState *prometheus.GaugeVec

	// Checkpoints (C7) written, labeled by trigger reason.
	checkpointsTotal *prometheus.CounterVec

	// Dead-letter queue (C8) depth.
	dlqDepth prometheus.Gauge

	// Parallel executor (C9) level size and measured concurrency efficiency.
	executorLevelSize  prometheus.Histogram
	executorEfficiency prometheus.Histogram
}

// NewMetrics creates a new Metrics instance from configuration.
func NewMetrics(cfg *MetricsConfig) (*Metrics, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	cfg.SetDefaults()

	m := &Metrics{
		config:   cfg,
		registry: prometheus.NewRegistry(),
	}

	m.initAgentMetrics()
	m.initOracleMetrics()
	m.initToolMetrics()
	m.initHTTPMetrics()
	m.initRuntimeMetrics()

	return m, nil
}

func (m *Metrics) initAgentMetrics() {
	m.agentRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.config.Namespace,
		Subsystem: "agent",
		Name:      "runs_total",
		Help:      "Total number of agent loop invocations",
	}, []string{"agent_kind"})

	m.agentRunDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.config.Namespace,
		Subsystem: "agent",
		Name:      "run_duration_seconds",
		Help:      "Agent loop duration in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 15),
	}, []string{"agent_kind"})

	m.agentErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.config.Namespace,
		Subsystem: "agent",
		Name:      "errors_total",
		Help:      "Total number of agent loop errors",
	}, []string{"agent_kind", "error_type"})

	m.registry.MustRegister(m.agentRuns, m.agentRunDuration, m.agentErrors)
}

func (m *Metrics) initOracleMetrics() {
	m.oracleCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.config.Namespace,
		Subsystem: "oracle",
		Name:      "calls_total",
		Help:      "Total number of decision oracle calls",
	}, []string{"model"})

	m.oracleCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.config.Namespace,
		Subsystem: "oracle",
		Name:      "call_duration_seconds",
		Help:      "Decision oracle call duration in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"model"})

	m.oracleTokensInput = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.config.Namespace,
		Subsystem: "oracle",
		Name:      "tokens_input_total",
		Help:      "Total number of input tokens consumed",
	}, []string{"model"})

	m.oracleTokensOutput = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.config.Namespace,
		Subsystem: "oracle",
		Name:      "tokens_output_total",
		Help:      "Total number of output tokens generated",
	}, []string{"model"})

	m.oracleErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.config.Namespace,
		Subsystem: "oracle",
		Name:      "errors_total",
		Help:      "Total number of decision oracle errors",
	}, []string{"model", "error_type"})

	m.registry.MustRegister(m.oracleCalls, m.oracleCallDuration, m.oracleTokensInput, m.oracleTokensOutput, m.oracleErrors)
}

func (m *Metrics) initToolMetrics() {
	m.toolCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.config.Namespace,
		Subsystem: "tool",
		Name:      "calls_total",
		Help:      "Total number of tool invocations",
	}, []string{"tool_name"})

	m.toolCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.config.Namespace,
		Subsystem: "tool",
		Name:      "call_duration_seconds",
		Help:      "Tool execution duration in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
	}, []string{"tool_name"})

	m.toolErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.config.Namespace,
		Subsystem: "tool",
		Name:      "errors_total",
		Help:      "Total number of tool errors",
	}, []string{"tool_name", "error_type"})

	m.registry.MustRegister(m.toolCalls, m.toolCallDuration, m.toolErrors)
}

func (m *Metrics) initHTTPMetrics() {
	m.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.config.Namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	m.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.config.Namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	m.httpRequestSize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.config.Namespace,
		Subsystem: "http",
		Name:      "request_size_bytes",
		Help:      "HTTP request size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 7),
	}, []string{"method", "path"})

	m.httpResponseSize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.config.Namespace,
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 7),
	}, []string{"method", "path"})

	m.registry.MustRegister(m.httpRequests, m.httpDuration, m.httpRequestSize, m.httpResponseSize)
}

func (m *Metrics) initRuntimeMetrics() {
	m.circuitState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.config.Namespace,
		Subsystem: "circuit",
		Name:      "state",
		Help:      "Circuit breaker state per agent kind (0=closed, 1=half-open, 2=open)",
	}, []string{"agent_kind"})

	m.checkpointsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.config.Namespace,
		Subsystem: "checkpoint",
		Name:      "writes_total",
		Help:      "Total number of checkpoints written, by trigger reason",
	}, []string{"reason"})

	m.dlqDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: m.config.Namespace,
		Subsystem: "dlq",
		Name:      "depth",
		Help:      "Current number of entries in the dead-letter queue",
	})

	m.executorLevelSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.config.Namespace,
		Subsystem: "executor",
		Name:      "level_size",
		Help:      "Number of sub-tasks run concurrently per DAG level",
		Buckets:   prometheus.LinearBuckets(1, 2, 10),
	})

	m.executorEfficiency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.config.Namespace,
		Subsystem: "executor",
		Name:      "parallel_efficiency",
		Help:      "Fraction of ideal parallel speedup achieved per decomposition",
		Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
	})

	m.registry.MustRegister(m.circuitState, m.checkpointsTotal, m.dlqDepth, m.executorLevelSize, m.executorEfficiency)
}

// RecordAgentRun records one agent loop invocation.
func (m *Metrics) RecordAgentRun(agentKind string, duration time.Duration) {
	if m == nil {
		return
	}
	m.agentRuns.WithLabelValues(agentKind).Inc()
	m.agentRunDuration.WithLabelValues(agentKind).Observe(duration.Seconds())
}

// RecordAgentError records an agent loop error.
func (m *Metrics) RecordAgentError(agentKind, errorType string) {
	if m == nil {
		return
	}
	m.agentErrors.WithLabelValues(agentKind, errorType).Inc()
}

// RecordOracleCall records a decision oracle call.
func (m *Metrics) RecordOracleCall(model string, duration time.Duration) {
	if m == nil {
		return
	}
	m.oracleCalls.WithLabelValues(model).Inc()
	m.oracleCallDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// RecordOracleTokens records oracle token usage.
func (m *Metrics) RecordOracleTokens(model string, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	m.oracleTokensInput.WithLabelValues(model).Add(float64(inputTokens))
	m.oracleTokensOutput.WithLabelValues(model).Add(float64(outputTokens))
}

// RecordOracleError records an oracle call error.
func (m *Metrics) RecordOracleError(model, errorType string) {
	if m == nil {
		return
	}
	m.oracleErrors.WithLabelValues(model, errorType).Inc()
}

// RecordToolCall records a tool invocation.
func (m *Metrics) RecordToolCall(toolName string, duration time.Duration) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(toolName).Inc()
	m.toolCallDuration.WithLabelValues(toolName).Observe(duration.Seconds())
}

// RecordToolError records a tool error.
func (m *Metrics) RecordToolError(toolName, errorType string) {
	if m == nil {
		return
	}
	m.toolErrors.WithLabelValues(toolName, errorType).Inc()
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration, reqSize, respSize int64) {
	if m == nil {
		return
	}
	status := statusCodeLabel(statusCode)
	m.httpRequests.WithLabelValues(method, path, status).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	if reqSize > 0 {
		m.httpRequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	}
	if respSize > 0 {
		m.httpResponseSize.WithLabelValues(method, path).Observe(float64(respSize))
	}
}

func statusCodeLabel(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

// SetCircuitState reports the current circuit.Breaker state for one agent
// kind (0=closed, 1=half-open, 2=open; circuit.State is a string, so the
// caller does this mapping).
func (m *Metrics) SetCircuitState(agentKind string, state int) {
	if m == nil {
		return
	}
	m.circuitState.WithLabelValues(agentKind).Set(float64(state))
}

// RecordCheckpoint counts one checkpoint write, labeled by trigger reason.
func (m *Metrics) RecordCheckpoint(reason string) {
	if m == nil {
		return
	}
	m.checkpointsTotal.WithLabelValues(reason).Inc()
}

// SetDLQDepth reports the dead-letter queue's current size.
func (m *Metrics) SetDLQDepth(count int) {
	if m == nil {
		return
	}
	m.dlqDepth.Set(float64(count))
}

// RecordExecutorLevel records one DAG level's size and the decomposition's
// measured parallel efficiency.
func (m *Metrics) RecordExecutorLevel(levelSize int, efficiency float64) {
	if m == nil {
		return
	}
	m.executorLevelSize.Observe(float64(levelSize))
	m.executorEfficiency.Observe(efficiency)
}

// Handler returns an HTTP handler for the Prometheus metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}
