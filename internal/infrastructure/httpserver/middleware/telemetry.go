package middleware

import (
	"fmt"
	"time"

	"frlproxy/core/internal/infrastructure/logger"
	"frlproxy/core/internal/infrastructure/telemetry/metrics"
	"frlproxy/core/internal/infrastructure/telemetry/tracer"
	"frlproxy/core/internal/pkg/apperror"

	"github.com/gofiber/fiber/v2"
)

// Telemetry wires tracing, metrics, and access logging around every request.
// Unlike a typical JSON API, this proxy never parses request/response bodies
// for logging — they are opaque license/log payloads — so only sizes and
// metadata are recorded.
type Telemetry struct {
	log logger.Logger
	trc tracer.Tracer
	met metrics.Metrics
}

func NewTelemetry(log logger.Logger, trc tracer.Tracer, met metrics.Metrics) *Telemetry {
	return &Telemetry{log: log, trc: trc, met: met}
}

// Trace starts a span for the inbound request. Must run before handlers
// that want to attach child spans.
func (t *Telemetry) Trace() fiber.Handler {
	return func(c *fiber.Ctx) error {
		span, ctx := t.trc.StartSpan(c.UserContext(), fmt.Sprintf("HTTP %s %s", c.Method(), c.Path()))
		defer span.Finish()

		traceID, _, ok := t.trc.ExtractTraceInfo(ctx)
		if ok {
			c.Locals("trace_id", traceID)
			c.Set("X-Trace-Id", traceID)
		}
		c.SetUserContext(ctx)

		err := c.Next()

		status := c.Response().StatusCode()
		if appErr, ok := err.(*apperror.AppError); ok {
			status = appErr.GetHTTPStatus()
		}
		span.SetTag("http.method", c.Method())
		span.SetTag("http.path", c.Path())
		span.SetTag("http.status_code", status)
		if err != nil || status >= 400 {
			span.SetTag("error", true)
		}
		return err
	}
}

// Metrics records request throughput and latency.
func (t *Telemetry) Metrics() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if appErr, ok := err.(*apperror.AppError); ok {
			status = appErr.GetHTTPStatus()
		}
		t.met.RecordHTTP(c.Method(), c.Path(), status, time.Since(start))
		return err
	}
}

// AccessLog emits one structured log line per request. The error handler
// runs only after the whole chain returns, so for a returned *AppError the
// logged status is taken from the error rather than from the response.
func (t *Telemetry) AccessLog() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		ctx := c.UserContext()

		err := c.Next()

		latencyMs := float64(time.Since(start).Microseconds()) / 1000.0
		status := c.Response().StatusCode()
		if appErr, ok := err.(*apperror.AppError); ok {
			status = appErr.GetHTTPStatus()
		}

		entry := t.log.WithContext(ctx).WithFields(map[string]any{
			"component":      "httpserver",
			"method":         c.Method(),
			"path":           c.Path(),
			"status":         status,
			"latency_ms":     latencyMs,
			"ip":             c.IP(),
			"request_bytes":  len(c.Body()),
			"response_bytes": len(c.Response().Body()),
		})

		switch {
		case err != nil || status >= 500:
			msg := ""
			if err != nil {
				msg = err.Error()
			}
			entry.WithField("error", msg).Error("request completed with error")
		case status >= 400:
			entry.Warn("request completed with client error")
		default:
			entry.Info("request completed")
		}

		return err
	}
}
