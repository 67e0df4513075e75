package tracer

import (
	"context"
	"strconv"

	ddtracer "gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

type datadogTracer struct {
	service string
}

type datadogSpan struct {
	span ddtracer.Span
}

var _ Tracer = (*datadogTracer)(nil)
var _ Span = (*datadogSpan)(nil)

// NewDatadog starts the Datadog tracer process and returns a Tracer bound
// to it. addr is the agent's host:port.
func NewDatadog(serviceName, env, addr string, sampleRate float64) Tracer {
	ddtracer.Start(
		ddtracer.WithService(serviceName),
		ddtracer.WithEnv(env),
		ddtracer.WithAgentAddr(addr),
		ddtracer.WithSampler(ddtracer.NewRateSampler(sampleRate)),
	)
	return &datadogTracer{service: serviceName}
}

func (t *datadogTracer) StartSpan(ctx context.Context, name string) (Span, context.Context) {
	span, newCtx := ddtracer.StartSpanFromContext(ctx, name, ddtracer.ServiceName(t.service))
	return &datadogSpan{span: span}, newCtx
}

func (t *datadogTracer) ExtractTraceInfo(ctx context.Context) (string, string, bool) {
	span, ok := ddtracer.SpanFromContext(ctx)
	if !ok {
		return "", "", false
	}
	spanCtx := span.Context()
	return strconv.FormatUint(spanCtx.TraceID(), 10), strconv.FormatUint(spanCtx.SpanID(), 10), true
}

func (t *datadogTracer) Close() error {
	ddtracer.Stop()
	return nil
}

func (s *datadogSpan) SetOperationName(name string) {
	s.span.SetOperationName(name)
}

func (s *datadogSpan) SetTag(key string, value any) {
	s.span.SetTag(key, value)
}

func (s *datadogSpan) Finish() {
	s.span.Finish()
}
