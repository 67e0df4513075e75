// Package tracer abstracts distributed tracing behind a small interface so
// the proxy can run with OpenTelemetry, Datadog, or nothing at all.
package tracer

import (
	"context"

	"frlproxy/core/internal/infrastructure/config"
)

// Tracer manages span lifecycles and exposes trace/span ids for log
// correlation.
type Tracer interface {
	// StartSpan begins a new span and returns a context carrying it.
	StartSpan(ctx context.Context, name string) (Span, context.Context)
	// ExtractTraceInfo retrieves the active trace/span id pair, if any.
	ExtractTraceInfo(ctx context.Context) (traceID, spanID string, ok bool)
	// Close flushes pending spans and releases resources.
	Close() error
}

// Span is a single unit of traced work.
type Span interface {
	SetOperationName(name string)
	SetTag(key string, value any)
	Finish()
}

// New builds a Tracer from cfg.Telemetry. Telemetry disabled, or an
// unrecognized Type, yields a no-op tracer.
func New(cfg *config.TelemetryConfig, env string) (Tracer, error) {
	if !cfg.Enabled {
		return NewNoOp(), nil
	}
	switch cfg.Type {
	case "datadog":
		return NewDatadog(cfg.Namespace, env, cfg.TracerAddress, cfg.SampleRate), nil
	case "otel":
		return NewOTel(cfg.Namespace, env, cfg.TracerAddress, cfg.SampleRate)
	default:
		return NewNoOp(), nil
	}
}
