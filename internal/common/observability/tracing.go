package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

type tracing struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// newTracing installs a sampling tracer provider. No exporter is attached;
// spans feed any processor registered later and carry trace ids into logs.
func newTracing(serviceName string, sampleRate float64) *tracing {
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRate))),
	)
	otel.SetTracerProvider(provider)
	return &tracing{provider: provider, tracer: provider.Tracer(serviceName)}
}

func (t *tracing) shutdown(ctx context.Context) error {
	return t.provider.Shutdown(ctx)
}

// RegisterSpanProcessor attaches a processor, e.g. an exporter pipeline or
// an in-memory recorder in tests.
func (o *Observability) RegisterSpanProcessor(p sdktrace.SpanProcessor) {
	if o == nil || o.tracing == nil {
		return
	}
	o.tracing.provider.RegisterSpanProcessor(p)
}

// StartSpan opens a span named name. On a nil receiver it returns ctx and
// the span already in ctx (a no-op span when there is none).
func (o *Observability) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if o == nil || o.tracing == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return o.tracing.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// TraceID returns the active trace id for log correlation, or "".
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
