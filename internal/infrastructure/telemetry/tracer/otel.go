package tracer

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

type otelTracer struct {
	provider *sdktrace.TracerProvider
	tracer   oteltrace.Tracer
}

type otelSpan struct {
	span oteltrace.Span
}

var _ Tracer = (*otelTracer)(nil)
var _ Span = (*otelSpan)(nil)

// NewOTel builds a Tracer exporting spans over OTLP/gRPC to addr, sampling
// at sampleRate (0..1).
func NewOTel(serviceName, env, addr string, sampleRate float64) (Tracer, error) {
	ctx := context.Background()
	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(addr), otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			attribute.String("deployment.environment", env),
		),
	)
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRate))),
	)
	otel.SetTracerProvider(provider)

	return &otelTracer{
		provider: provider,
		tracer:   provider.Tracer(serviceName),
	}, nil
}

func (t *otelTracer) StartSpan(ctx context.Context, name string) (Span, context.Context) {
	newCtx, span := t.tracer.Start(ctx, name)
	return &otelSpan{span: span}, newCtx
}

func (t *otelTracer) ExtractTraceInfo(ctx context.Context) (string, string, bool) {
	sc := oteltrace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return "", "", false
	}
	return sc.TraceID().String(), sc.SpanID().String(), true
}

func (t *otelTracer) Close() error {
	return t.provider.Shutdown(context.Background())
}

func (s *otelSpan) SetOperationName(name string) {
	s.span.SetName(name)
}

func (s *otelSpan) SetTag(key string, value any) {
	switch v := value.(type) {
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	case int64:
		s.span.SetAttributes(attribute.Int64(key, v))
	case float64:
		s.span.SetAttributes(attribute.Float64(key, v))
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	default:
		s.span.SetAttributes(attribute.String(key, strconv.Quote(formatAny(v))))
	}
}

func (s *otelSpan) Finish() {
	s.span.End()
}

func formatAny(v any) string {
	if v == nil {
		return ""
	}
	if str, ok := v.(interface{ String() string }); ok {
		return str.String()
	}
	return ""
}
