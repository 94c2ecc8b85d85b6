package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/tytsxai/proxycast/api"

// RequestTracer pairs an OTel tracer and a dispatch-duration histogram,
// mirroring the teacher's (github.com/BaSui01/agentflow) llm/observability.Metrics
// shape: one span per request plus a histogram recorded when it ends.
// This runs alongside, not instead of, the Prometheus Collector — the two
// stacks answer different questions (trace-level latency breakdown here,
// scrape-friendly counters there).
type RequestTracer struct {
	tracer   trace.Tracer
	duration metric.Float64Histogram
}

// NewRequestTracer builds a RequestTracer from the global TracerProvider and
// MeterProvider that Init installs (no-op providers when telemetry is
// disabled, so this is always safe to call).
func NewRequestTracer() (*RequestTracer, error) {
	tracer := otel.Tracer(instrumentationName)
	meter := otel.Meter(instrumentationName)

	duration, err := meter.Float64Histogram("proxycast.dispatch.duration",
		metric.WithDescription("End-to-end upstream dispatch latency"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &RequestTracer{tracer: tracer, duration: duration}, nil
}

// StartSpan opens a span named name tagged with the provider/model, and
// returns the span-scoped context plus a finish func that records the span
// end and the duration histogram. Call finish with the dispatch's error
// (nil on success).
func (rt *RequestTracer) StartSpan(ctx context.Context, name, provider, model string) (context.Context, func(err error)) {
	spanCtx, span := rt.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("proxycast.provider", provider),
		attribute.String("proxycast.model", model),
	))
	start := time.Now()

	return spanCtx, func(err error) {
		if err != nil {
			span.RecordError(err)
		}
		rt.duration.Record(spanCtx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("proxycast.provider", provider)))
		span.End()
	}
}
