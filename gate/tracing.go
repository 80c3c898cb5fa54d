package gate

import (
	"context"
	"fmt"
	"maps"
	"os"
	"strings"

	"github.com/kubegate/kubegate/tracetools"
	"github.com/kubegate/kubegate/version"
	"github.com/opentracing/opentracing-go"
	"go.opentelemetry.io/contrib/propagators/aws/xray"
	"go.opentelemetry.io/contrib/propagators/b3"
	"go.opentelemetry.io/contrib/propagators/jaeger"
	"go.opentelemetry.io/contrib/propagators/ot"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	ddext "gopkg.in/DataDog/dd-trace-go.v1/ddtrace/ext"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/opentracer"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

// A stopper flushes and shuts down a tracing backend. Opentracing has no
// Stop on its Tracer interface, so each backend supplies its own.
type stopper func()

func noopStopper() {}

// startTracing sets up the configured tracing backend and opens the root
// span for this gate run.
func (g *Gate) startTracing(ctx context.Context) (tracetools.Span, context.Context, stopper) {
	switch g.TracingBackend {
	case tracetools.BackendDatadog:
		// The dd tracer logs startup diagnostics into the gate output.
		// Quiet it unless the operator asked for it.
		if _, has := os.LookupEnv("DD_TRACE_STARTUP_LOGS"); !has {
			os.Setenv("DD_TRACE_STARTUP_LOGS", "false")
		}

		return g.startTracingDatadog(ctx)

	case tracetools.BackendOpenTelemetry:
		return g.startTracingOpenTelemetry(ctx)

	case tracetools.BackendNone:
		return &tracetools.NoopSpan{}, ctx, noopStopper

	default:
		g.shell.Commentf("An invalid tracing backend was provided: %q. Tracing will not occur.", g.TracingBackend)
		g.TracingBackend = tracetools.BackendNone
		return &tracetools.NoopSpan{}, ctx, noopStopper
	}
}

// startTracingDatadog speaks to the datadog agent through the opentracing
// shim, which keeps the span plumbing in the phases backend-neutral.
func (g *Gate) startTracingDatadog(ctx context.Context) (tracetools.Span, context.Context, stopper) {
	opts := []tracer.StartOption{
		tracer.WithService(g.TracingServiceName),
		tracer.WithSampler(tracer.NewAllSampler()),
		tracer.WithAnalytics(true),
	}
	for k, v := range mergeTags(g.genericTracingExtras(), ddTracingExtras()) {
		opts = append(opts, tracer.WithGlobalTag(k, v))
	}

	opentracing.SetGlobalTracer(opentracer.New(opts...))

	span := opentracing.StartSpan("gate.run",
		opentracing.ChildOf(g.extractDDTraceCtx()),
		opentracing.Tag{Key: ddext.ResourceName, Value: "gate/" + g.GateID},
	)
	ctx = opentracing.ContextWithSpan(ctx, span)

	return tracetools.NewOpenTracingSpan(span), ctx, tracer.Stop
}

// extractDDTraceCtx recovers the trace context a calling CI step encoded
// into our environment, the counterpart of the shell's injectTraceCtx. A
// nil return starts a fresh trace.
func (g *Gate) extractDDTraceCtx() opentracing.SpanContext {
	sctx, err := tracetools.DecodeTraceContext(g.shell.Env.Dump(), g.TraceContextCodec)
	if err != nil {
		return nil
	}
	return sctx
}

// otlpExporter picks the exporter transport from the standard OTel env var.
// gRPC is the default, matching the OTel SDK.
func otlpExporter(ctx context.Context) (sdktrace.SpanExporter, error) {
	protocol := os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL")
	switch protocol {
	case "grpc", "":
		return otlptracegrpc.New(ctx)
	case "http/protobuf", "http":
		return otlptracehttp.New(ctx)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

func (g *Gate) startTracingOpenTelemetry(ctx context.Context) (tracetools.Span, context.Context, stopper) {
	exporter, err := otlpExporter(ctx)
	if err != nil {
		g.shell.Errorf("Error setting up OTLP trace exporter: %v. Disabling tracing.", err)
		return &tracetools.NoopSpan{}, ctx, noopStopper
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(g.TracingServiceName),
		semconv.ServiceVersionKey.String(version.Version()),
		semconv.DeploymentEnvironmentKey.String("ci"),
	}
	extras, unknown := toOpenTelemetryAttributes(g.genericTracingExtras())
	attrs = append(attrs, extras...)
	for k, v := range unknown {
		g.shell.Warningf("Dropping tracing attribute %s=%v: unhandled type %T. Report this at https://github.com/kubegate/kubegate/issues", k, v, v)
	}

	var processor sdktrace.SpanProcessor = sdktrace.NewBatchSpanProcessor(exporter)
	if smp, err := tracetools.NewSpanMetricsProcessor(otel.GetMeterProvider(), processor); err != nil {
		g.shell.Warningf("Error creating span metrics processor: %v", err)
	} else {
		processor = smp
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(processor),
		sdktrace.WithResource(resource.NewWithAttributes(semconv.SchemaURL, attrs...)),
	)

	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
		b3.New(),
		&jaeger.Jaeger{},
		&ot.OT{},
		&xray.Propagator{},
	))

	tr := tracerProvider.Tracer(
		"kubegate",
		trace.WithInstrumentationVersion(version.Version()),
		trace.WithSchemaURL(semconv.SchemaURL),
	)

	ctx, span := tr.Start(ctx, "gate/"+g.GateID,
		trace.WithAttributes(
			attribute.String("analytics.event", "true"),
		),
	)

	stop := func() {
		ctx := context.Background()
		_ = tracerProvider.ForceFlush(ctx)
		_ = tracerProvider.Shutdown(ctx)
	}

	return tracetools.NewOpenTelemetrySpan(span), ctx, stop
}

// genericTracingExtras are the tags every backend gets, describing this
// gate run.
func (g *Gate) genericTracingExtras() map[string]any {
	hostname, _ := os.Hostname()

	phases := "all"
	if len(g.Phases) > 0 {
		phases = strings.Join(g.Phases, ",")
	}

	return map[string]any{
		"kubegate.gate_id":  g.GateID,
		"kubegate.version":  version.Version(),
		"kubegate.hostname": hostname,
		"kubegate.phases":   phases,
		"kubegate.dry_run":  g.DryRun,
		"kubegate.playbook": g.Manifest.Cluster.Playbook,
		"kubegate.probe":    g.Manifest.Readiness.Probe,
	}
}

func ddTracingExtras() map[string]any {
	return map[string]any{
		ddext.AnalyticsEvent:   true,
		ddext.SamplingPriority: ddext.PriorityUserKeep,
	}
}

func mergeTags(ms ...map[string]any) map[string]any {
	merged := make(map[string]any)
	for _, m := range ms {
		maps.Copy(merged, m)
	}
	return merged
}

// toOpenTelemetryAttributes converts the generic tag map into typed OTel
// attributes, returning whatever it could not type separately.
func toOpenTelemetryAttributes(extras map[string]any) ([]attribute.KeyValue, map[string]any) {
	attrs := make([]attribute.KeyValue, 0, len(extras))
	unknown := make(map[string]any)

	for k, v := range extras {
		switch v := v.(type) {
		case string:
			attrs = append(attrs, attribute.String(k, v))
		case int:
			attrs = append(attrs, attribute.Int(k, v))
		case bool:
			attrs = append(attrs, attribute.Bool(k, v))
		default:
			unknown[k] = v
		}
	}

	return attrs, unknown
}
