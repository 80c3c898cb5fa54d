package tracetools

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// SpanMetricsProcessor is a trace SpanProcessor that derives duration and
// count metrics from the spans passing through it, then hands them on to the
// wrapped processor.
type SpanMetricsProcessor struct {
	durationHist metric.Float64Histogram
	spanCounter  metric.Int64Counter
	errorCounter metric.Int64Counter
	next         sdktrace.SpanProcessor
}

// NewSpanMetricsProcessor creates a SpanMetricsProcessor recording through
// mp, wrapping next. next may be nil.
func NewSpanMetricsProcessor(mp metric.MeterProvider, next sdktrace.SpanProcessor) (*SpanMetricsProcessor, error) {
	meter := mp.Meter("span-metrics")

	durationHist, err := meter.Float64Histogram(
		"span.duration",
		metric.WithDescription("The duration of spans"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	spanCounter, err := meter.Int64Counter(
		"span.count",
		metric.WithDescription("The number of spans processed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create span counter: %w", err)
	}

	errorCounter, err := meter.Int64Counter(
		"span.errors",
		metric.WithDescription("The number of errored spans"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}

	return &SpanMetricsProcessor{
		durationHist: durationHist,
		spanCounter:  spanCounter,
		errorCounter: errorCounter,
		next:         next,
	}, nil
}

// OnStart implements the SpanProcessor interface.
func (smp *SpanMetricsProcessor) OnStart(parent context.Context, s sdktrace.ReadWriteSpan) {
	if smp.next != nil {
		smp.next.OnStart(parent, s)
	}
}

// OnEnd implements the SpanProcessor interface.
func (smp *SpanMetricsProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	attrs := metric.WithAttributes(
		attribute.String("span.name", s.Name()),
		attribute.String("span.kind", s.SpanKind().String()),
	)

	durationMs := float64(s.EndTime().Sub(s.StartTime())) / float64(time.Millisecond)
	smp.durationHist.Record(context.Background(), durationMs, attrs)
	smp.spanCounter.Add(context.Background(), 1, attrs)

	if s.Status().Code == codes.Error {
		smp.errorCounter.Add(context.Background(), 1, attrs)
	}

	if smp.next != nil {
		smp.next.OnEnd(s)
	}
}

// Shutdown implements the SpanProcessor interface.
func (smp *SpanMetricsProcessor) Shutdown(ctx context.Context) error {
	if smp.next != nil {
		return smp.next.Shutdown(ctx)
	}
	return nil
}

// ForceFlush implements the SpanProcessor interface.
func (smp *SpanMetricsProcessor) ForceFlush(ctx context.Context) error {
	if smp.next != nil {
		return smp.next.ForceFlush(ctx)
	}
	return nil
}
