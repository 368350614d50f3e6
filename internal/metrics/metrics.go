// Package metrics records run telemetry through OpenTelemetry.
//
// By default the global no-op providers are used, so nothing is exported
// unless Setup installs OTLP exporters.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/dwsmith1983/nfeflow/pkg/types"
)

const instrumentationName = "github.com/dwsmith1983/nfeflow"

// Recorder holds the tracer and instruments used by the orchestrator.
type Recorder struct {
	tracer   trace.Tracer
	outcomes metric.Int64Counter
	runs     metric.Int64Counter
	duration metric.Float64Histogram
}

// NewRecorder builds a Recorder on the given providers.
func NewRecorder(tp trace.TracerProvider, mp metric.MeterProvider) (*Recorder, error) {
	meter := mp.Meter(instrumentationName)

	outcomes, err := meter.Int64Counter("nfeflow.stage.outcomes",
		metric.WithDescription("Per-document stage outcomes"))
	if err != nil {
		return nil, fmt.Errorf("creating outcome counter: %w", err)
	}
	runs, err := meter.Int64Counter("nfeflow.runs",
		metric.WithDescription("Completed runs by status"))
	if err != nil {
		return nil, fmt.Errorf("creating run counter: %w", err)
	}
	duration, err := meter.Float64Histogram("nfeflow.run.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Wall time of a run"))
	if err != nil {
		return nil, fmt.Errorf("creating duration histogram: %w", err)
	}

	return &Recorder{
		tracer:   tp.Tracer(instrumentationName),
		outcomes: outcomes,
		runs:     runs,
		duration: duration,
	}, nil
}

// Global returns a Recorder backed by the globally registered providers.
func Global() *Recorder {
	r, err := NewRecorder(otel.GetTracerProvider(), otel.GetMeterProvider())
	if err != nil {
		// Instrument creation only fails on invalid names.
		panic(err)
	}
	return r
}

// Tracer returns the tracer for run and stage spans.
func (r *Recorder) Tracer() trace.Tracer { return r.tracer }

// RecordOutcome counts one document outcome for a stage.
func (r *Recorder) RecordOutcome(ctx context.Context, stage types.Stage, outcome types.Outcome) {
	r.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", string(stage)),
		attribute.String("outcome", string(outcome)),
	))
}

// RecordRun records the duration and final status of a run.
func (r *Recorder) RecordRun(ctx context.Context, elapsed time.Duration, status string) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	r.runs.Add(ctx, 1, attrs)
	r.duration.Record(ctx, elapsed.Seconds(), attrs)
}

// Setup installs OTLP/gRPC trace and metric exporters as the global
// providers. Exporter endpoints and headers come from the standard
// OTEL_EXPORTER_OTLP_* variables. The returned function flushes and stops
// both providers.
func Setup(ctx context.Context, serviceName string) (func(context.Context) error, error) {
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))

	traceExp, err := otlptracegrpc.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}
	metricExp, err := otlpmetricgrpc.New(ctx)
	if err != nil {
		_ = traceExp.Shutdown(ctx)
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}
