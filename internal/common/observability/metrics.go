package observability

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// Observability records dispatch cycles through an OpenTelemetry meter
// exported in Prometheus format, and opens trace spans around pipeline
// steps. A nil *Observability is valid and records nothing.
type Observability struct {
	meterProvider  *metric.MeterProvider
	tracing        *tracing
	meter          otelmetric.Meter
	cycleCounter   otelmetric.Int64Counter
	cycleDuration  otelmetric.Float64Histogram
	deliveredCount otelmetric.Int64Counter
}

type Config struct {
	ServiceName     string
	TraceSampleRate float64
	// Registerer receives the exporter's collector. Defaults to the
	// process-wide Prometheus registry served on /metrics.
	Registerer prometheus.Registerer
}

func New(cfg Config) (*Observability, error) {
	opts := []otelprom.Option{}
	if cfg.Registerer != nil {
		opts = append(opts, otelprom.WithRegisterer(cfg.Registerer))
	}

	exporter, err := otelprom.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(cfg.ServiceName)

	cycleCounter, err := meter.Int64Counter(
		"dispatch.cycles",
		otelmetric.WithDescription("Number of dispatch cycles processed"),
	)
	if err != nil {
		return nil, err
	}

	cycleDuration, err := meter.Float64Histogram(
		"dispatch.cycle.duration",
		otelmetric.WithDescription("Dispatch cycle duration"),
		otelmetric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	delivered, err := meter.Int64Counter(
		"dispatch.notifications.delivered",
		otelmetric.WithDescription("Notifications finalized per pipeline"),
	)
	if err != nil {
		return nil, err
	}

	return &Observability{
		meterProvider:  provider,
		tracing:        newTracing(cfg.ServiceName, cfg.TraceSampleRate),
		meter:          meter,
		cycleCounter:   cycleCounter,
		cycleDuration:  cycleDuration,
		deliveredCount: delivered,
	}, nil
}

func (o *Observability) RecordCycle(ctx context.Context, pipeline, status string, duration time.Duration) {
	if o == nil {
		return
	}
	attrs := otelmetric.WithAttributes(
		attribute.String("pipeline", pipeline),
		attribute.String("status", status),
	)
	o.cycleCounter.Add(ctx, 1, attrs)
	o.cycleDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
}

func (o *Observability) RecordDelivered(ctx context.Context, pipeline string, n int) {
	if o == nil || n == 0 {
		return
	}
	o.deliveredCount.Add(ctx, int64(n), otelmetric.WithAttributes(attribute.String("pipeline", pipeline)))
}

func (o *Observability) Shutdown(ctx context.Context) error {
	if o == nil {
		return nil
	}
	var firstErr error
	if o.tracing != nil {
		firstErr = o.tracing.shutdown(ctx)
	}
	if o.meterProvider != nil {
		if err := o.meterProvider.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
