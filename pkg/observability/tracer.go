package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps an OpenTelemetry tracer with the spans and attributes this
// runtime's components need, plus an optional in-memory debug exporter.
type Tracer struct {
	tracer          trace.Tracer
	provider        *sdktrace.TracerProvider
	debugExporter   *DebugExporter
	capturePayloads bool
}

// TracerOption configures a Tracer at construction time.
type TracerOption func(*Tracer)

// WithDebugExporter attaches an in-memory span exporter alongside the OTLP
// exporter, for inspection by pkg/server's debug endpoints.
func WithDebugExporter(d *DebugExporter) TracerOption {
	return func(t *Tracer) { t.debugExporter = d }
}

// WithCapturePayloads enables recording full prompt/response text on spans.
// Off by default: spans can otherwise grow large.
func WithCapturePayloads(enabled bool) TracerOption {
	return func(t *Tracer) { t.capturePayloads = enabled }
}

// NewTracer builds a Tracer from a TracingConfig, wiring an OTLP exporter
// and, when requested, an in-memory DebugExporter via sdktrace.WithBatcher.
func NewTracer(ctx context.Context, cfg *TracingConfig, opts ...TracerOption) (*Tracer, error) {
	grpcOpts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithTimeout(cfg.Timeout),
	}
	if cfg.IsInsecure() {
		grpcOpts = append(grpcOpts, otlptracegrpc.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		grpcOpts = append(grpcOpts, otlptracegrpc.WithHeaders(cfg.Headers))
	}

	exporter, err := otlptracegrpc.New(ctx, grpcOpts...)
	if err != nil {
		return nil, fmt.Errorf("observability: creating OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("observability: building resource: %w", err)
	}

	t := &Tracer{}
	for _, opt := range opts {
		opt(t)
	}

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SamplingRate)),
		sdktrace.WithResource(res),
	}
	if t.debugExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(t.debugExporter))
	}

	tp := sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tp)

	t.provider = tp
	t.tracer = tp.Tracer(DefaultServiceName)
	return t, nil
}

// Start begins a span with the given name and options.
func (t *Tracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if t == nil || t.tracer == nil {
		return ctx, noopSpan()
	}
	return t.tracer.Start(ctx, name, opts...)
}

// StartTaskRun begins the top-level span for one orchestrator.Execute call.
func (t *Tracer) StartTaskRun(ctx context.Context, taskID, prompt string) (context.Context, trace.Span) {
	ctx, span := t.Start(ctx, SpanTaskRun, trace.WithAttributes(attribute.String(AttrTaskID, taskID)))
	if t.capturePayloads {
		span.SetAttributes(attribute.String("task.prompt", prompt))
	}
	return ctx, span
}

// StartAgentRun begins a span for one agent.Loop invocation.
func (t *Tracer) StartAgentRun(ctx context.Context, taskID, agentKind string) (context.Context, trace.Span) {
	return t.Start(ctx, SpanAgentRun, trace.WithAttributes(
		attribute.String(AttrTaskID, taskID),
		attribute.String(AttrAgentKind, agentKind),
	))
}

// StartOracleDecide begins a span for one decision-oracle call.
func (t *Tracer) StartOracleDecide(ctx context.Context, model string) (context.Context, trace.Span) {
	return t.Start(ctx, SpanOracleDecide, trace.WithAttributes(attribute.String(AttrOracleModel, model)))
}

// StartToolExecution begins a span for one tool call.
func (t *Tracer) StartToolExecution(ctx context.Context, toolName string) (context.Context, trace.Span) {
	return t.Start(ctx, SpanToolExecution, trace.WithAttributes(attribute.String(AttrToolName, toolName)))
}

// StartDelegation begins a span bracketing a delegate-to-agent dispatch.
func (t *Tracer) StartDelegation(ctx context.Context, taskID, agentKind string) (context.Context, trace.Span) {
	return t.Start(ctx, SpanDelegation, trace.WithAttributes(
		attribute.String(AttrTaskID, taskID),
		attribute.String(AttrAgentKind, agentKind),
	))
}

// AddOracleUsage records token usage on a span started by StartOracleDecide.
func (t *Tracer) AddOracleUsage(span trace.Span, inputTokens, outputTokens int) {
	if span == nil {
		return
	}
	span.SetAttributes(
		attribute.Int(AttrTokensInput, inputTokens),
		attribute.Int(AttrTokensOutput, outputTokens),
	)
}

// AddPayload attaches truncated prompt/response text to a span, when payload
// capture is enabled.
func (t *Tracer) AddPayload(span trace.Span, key, value string) {
	if t == nil || !t.capturePayloads || span == nil {
		return
	}
	span.SetAttributes(attribute.String(key, truncateString(value, 4096)))
}

// RecordError marks a span as failed and attaches the error.
func (t *Tracer) RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetAttributes(attribute.String(AttrErrorType, fmt.Sprintf("%T", err)))
}

// DebugExporter returns the in-memory span exporter, or nil if none is
// attached.
func (t *Tracer) DebugExporter() *DebugExporter {
	if t == nil {
		return nil
	}
	return t.debugExporter
}

// Shutdown flushes and stops the underlying tracer provider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

func truncateString(s string, maxLen int) string {
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}
