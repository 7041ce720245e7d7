package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of lucid's spans.
const TracerName = "lucid"

// Tracer returns lucid's tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// SetupTracing installs a global tracer provider exporting to an OTLP gRPC
// endpoint. With an empty endpoint nothing is installed and the returned
// shutdown is a no-op.
func SetupTracing(ctx context.Context, endpoint, serviceName string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// Observer times pipeline phases into metrics and spans.
type Observer struct {
	Metrics *Metrics
	Tracer  trace.Tracer
}

// PhaseEnd finishes a phase started with StartPhase and returns its
// duration.
type PhaseEnd func(err error, attrs ...attribute.KeyValue) time.Duration

// StartPhase opens a span named "lucid.<phase>".
func (o *Observer) StartPhase(ctx context.Context, phase string) (context.Context, PhaseEnd) {
	tracer := o.Tracer
	if tracer == nil {
		tracer = Tracer()
	}
	start := time.Now()
	ctx, span := tracer.Start(ctx, "lucid."+phase)
	return ctx, func(err error, attrs ...attribute.KeyValue) time.Duration {
		d := time.Since(start)
		span.SetAttributes(attrs...)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		o.Metrics.ObservePhase(phase, d)
		return d
	}
}
