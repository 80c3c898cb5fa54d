package tracetools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	got := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			got[m.Name] = m
		}
	}
	return got
}

func sumInt64(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()

	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "expected %s to be an int64 sum", m.Name)

	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestSpanMetricsProcessor(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	smp, err := NewSpanMetricsProcessor(mp, nil)
	require.NoError(t, err)

	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(smp))
	tracer := tp.Tracer("test")

	_, okSpan := tracer.Start(context.Background(), "install-packages")
	okSpan.End()

	_, badSpan := tracer.Start(context.Background(), "wait-ready")
	badSpan.SetStatus(codes.Error, "node never became ready")
	badSpan.End()

	got := collectMetrics(t, reader)
	assert.Equal(t, int64(2), sumInt64(t, got["span.count"]))
	assert.Equal(t, int64(1), sumInt64(t, got["span.errors"]))

	_, ok := got["span.duration"].Data.(metricdata.Histogram[float64])
	assert.True(t, ok, "expected span.duration to be a float64 histogram")
}

func TestSpanMetricsProcessor_WrapsNext(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	recorder := tracetest.NewSpanRecorder()
	smp, err := NewSpanMetricsProcessor(mp, recorder)
	require.NoError(t, err)

	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(smp))
	tracer := tp.Tracer("test")

	_, span := tracer.Start(context.Background(), "enable-services")
	span.End()

	require.Len(t, recorder.Ended(), 1)
	assert.Equal(t, "enable-services", recorder.Ended()[0].Name())

	require.NoError(t, smp.ForceFlush(context.Background()))
	require.NoError(t, smp.Shutdown(context.Background()))
}
