package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"
)

// Observability records per-resolve telemetry through OpenTelemetry. A zero
// value is usable and records nothing.
type Observability struct {
	meterProvider *metric.MeterProvider
	tracer        trace.Tracer
	runCounter    otelmetric.Int64Counter
	runDuration   otelmetric.Float64Histogram
	degradedStage otelmetric.Int64Counter
}

func New(serviceName string) (*Observability, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, err
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	meter := provider.Meter(serviceName)

	runCounter, err := meter.Int64Counter(
		"resolve.runs",
		otelmetric.WithDescription("Number of resolve pipeline runs"),
	)
	if err != nil {
		return nil, err
	}

	runDuration, err := meter.Float64Histogram(
		"resolve.duration",
		otelmetric.WithDescription("Resolve pipeline duration"),
		otelmetric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	degradedStage, err := meter.Int64Counter(
		"resolve.degraded_stages",
		otelmetric.WithDescription("Stages that fell back to a degraded result"),
	)
	if err != nil {
		return nil, err
	}

	return &Observability{
		meterProvider: provider,
		tracer:        otel.Tracer(serviceName),
		runCounter:    runCounter,
		runDuration:   runDuration,
		degradedStage: degradedStage,
	}, nil
}

// StartStage opens a span for one pipeline stage. The global tracer provider
// decides whether it is exported.
func (o *Observability) StartStage(ctx context.Context, stage string) (context.Context, trace.Span) {
	tracer := otel.Tracer("resolve-query")
	if o != nil && o.tracer != nil {
		tracer = o.tracer
	}
	return tracer.Start(ctx, stage, trace.WithAttributes(attribute.String("pipeline.stage", stage)))
}

func (o *Observability) RecordRun(ctx context.Context, duration time.Duration, outcome string) {
	if o == nil || o.runCounter == nil {
		return
	}
	attrs := otelmetric.WithAttributes(attribute.String("outcome", outcome))
	o.runCounter.Add(ctx, 1, attrs)
	o.runDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
}

func (o *Observability) RecordDegraded(ctx context.Context, stage string) {
	if o == nil || o.degradedStage == nil {
		return
	}
	o.degradedStage.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("stage", stage)))
}

func (o *Observability) Shutdown(ctx context.Context) error {
	if o == nil || o.meterProvider == nil {
		return nil
	}
	return o.meterProvider.Shutdown(ctx)
}
