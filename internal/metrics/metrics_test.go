package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/dwsmith1983/nfeflow/pkg/types"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func TestRecorder_RecordOutcome(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	rec, err := NewRecorder(sdktrace.NewTracerProvider(), mp)
	require.NoError(t, err)

	ctx := context.Background()
	rec.RecordOutcome(ctx, types.StageImport, types.OutcomeOK)
	rec.RecordOutcome(ctx, types.StageImport, types.OutcomeOK)
	rec.RecordOutcome(ctx, types.StageLink, types.OutcomeError)

	data := collect(t, reader)
	sum, ok := data["nfeflow.stage.outcomes"].(metricdata.Sum[int64])
	require.True(t, ok)

	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(3), total)
	assert.Len(t, sum.DataPoints, 2)
}

func TestRecorder_RecordRun(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	rec, err := NewRecorder(sdktrace.NewTracerProvider(), mp)
	require.NoError(t, err)

	rec.RecordRun(context.Background(), 1500*time.Millisecond, "completed")

	data := collect(t, reader)
	hist, ok := data["nfeflow.run.duration"].(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
	assert.InDelta(t, 1.5, hist.DataPoints[0].Sum, 0.001)
}

func TestRecorder_Tracer(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	rec, err := NewRecorder(tp, sdkmetric.NewMeterProvider())
	require.NoError(t, err)

	_, span := rec.Tracer().Start(context.Background(), "run")
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "run", spans[0].Name())
}

func TestGlobal(t *testing.T) {
	rec := Global()
	assert.NotPanics(t, func() {
		rec.RecordOutcome(context.Background(), types.StageEntry, types.OutcomeAlreadyDone)
	})
}
