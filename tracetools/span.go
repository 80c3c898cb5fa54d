package tracetools

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	ddext "gopkg.in/DataDog/dd-trace-go.v1/ddtrace/ext"
)

const (
	BackendDatadog       = "datadog"
	BackendOpenTelemetry = "opentelemetry"
	BackendNone          = ""
)

// ValidTracingBackends is a set of the backend names accepted by the
// --tracing-backend flag.
var ValidTracingBackends = map[string]struct{}{
	BackendDatadog:       {},
	BackendOpenTelemetry: {},
	BackendNone:          {},
}

// Span abstracts over the tracing libraries so that phase code doesn't need
// to know which backend (if any) is in use.
type Span interface {
	AddAttributes(map[string]string)
	FinishWithError(error)
	RecordError(error)
}

// StartSpanFromContext will start a span appropriate to the given tracing
// backend from the given context with the given operation name. It will also
// do some common/repeated setup on the span to keep code a little more DRY.
func StartSpanFromContext(ctx context.Context, operation string, backend string) (Span, context.Context) {
	switch backend {
	case BackendDatadog:
		span, newCtx := opentracing.StartSpanFromContext(ctx, operation)
		span.SetTag(ddext.AnalyticsEvent, true) // Make the span available for analytics in Datadog App
		return NewOpenTracingSpan(span), newCtx

	case BackendOpenTelemetry:
		newCtx, span := otel.Tracer("kubegate").Start(ctx, operation)
		span.SetAttributes(attribute.String("analytics.event", "true"))
		return NewOpenTelemetrySpan(span), newCtx

	case BackendNone:
		fallthrough

	default:
		return &NoopSpan{}, ctx
	}
}

// OpenTracingSpan wraps an OpenTracing span, satisfying the Span interface.
type OpenTracingSpan struct {
	Span opentracing.Span
}

func NewOpenTracingSpan(base opentracing.Span) *OpenTracingSpan {
	return &OpenTracingSpan{Span: base}
}

// AddAttributes adds the given map of attributes to the span as OpenTracing tags.
func (s *OpenTracingSpan) AddAttributes(attributes map[string]string) {
	for k, v := range attributes {
		s.Span.SetTag(k, v)
	}
}

// FinishWithError adds error information to the span if err isn't nil, and
// records the span as having finished.
func (s *OpenTracingSpan) FinishWithError(err error) {
	s.RecordError(err)
	s.Span.Finish()
}

// RecordError records an error on the given span.
func (s *OpenTracingSpan) RecordError(err error) {
	if err == nil {
		return
	}
	ext.LogError(s.Span, err)
}

// OpenTelemetrySpan wraps an OpenTelemetry span, satisfying the Span interface.
type OpenTelemetrySpan struct {
	span trace.Span
}

func NewOpenTelemetrySpan(base trace.Span) *OpenTelemetrySpan {
	return &OpenTelemetrySpan{span: base}
}

// AddAttributes adds the given attributes to the span.
func (s *OpenTelemetrySpan) AddAttributes(attributes map[string]string) {
	for k, v := range attributes {
		s.span.SetAttributes(attribute.String(k, v))
	}
}

// FinishWithError adds error information to the span if err isn't nil, and
// records the span as having finished.
func (s *OpenTelemetrySpan) FinishWithError(err error) {
	s.RecordError(err)
	s.span.End()
}

// RecordError records an error on the span. No-op when error is nil.
func (s *OpenTelemetrySpan) RecordError(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, "failed")
}

// NoopSpan is a span that does nothing.
type NoopSpan struct{}

func (s *NoopSpan) AddAttributes(map[string]string) {}

func (s *NoopSpan) FinishWithError(error) {}

func (s *NoopSpan) RecordError(error) {}
