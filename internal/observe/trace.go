package observe

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for the linguaplay tracer.
const tracerName = "github.com/MrWong99/linguaplay"

// Provider kinds used as the "kind" attribute on provider metrics.
const (
	KindLLM = "llm"
	KindSTT = "stt"
)

// Tracer returns the package-level [trace.Tracer] for linguaplay. It uses the
// globally registered [trace.TracerProvider].
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a new span and returns the updated context and span. The
// caller must call span.End() when done.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// CorrelationID extracts the trace ID from the OTel span context in ctx.
// Returns the empty string when no active span with a valid trace ID exists.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns an [slog.Logger] enriched with trace_id and span_id from
// the OTel span context in ctx. When no active span is present, the returned
// logger is the default slog logger without extra attributes.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}

// TrackProvider runs fn inside a span named "<kind>.<provider>" and records
// the outcome on m: the request counter with status "ok" or "error", the
// error counter on failure, and the latency histogram matching kind. The
// error returned by fn is passed through unchanged.
func TrackProvider(ctx context.Context, m *Metrics, provider, kind string, fn func(context.Context) error) error {
	ctx, span := StartSpan(ctx, kind+"."+provider,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start).Seconds()

	attrs := metric.WithAttributes(attribute.String("provider", provider))
	switch kind {
	case KindLLM:
		m.LLMDuration.Record(ctx, elapsed, attrs)
	case KindSTT:
		m.STTDuration.Record(ctx, elapsed, attrs)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.RecordProviderRequest(ctx, provider, kind, "error")
		m.RecordProviderError(ctx, provider, kind)
		return err
	}
	m.RecordProviderRequest(ctx, provider, kind, "ok")
	return nil
}
