// Package metrics abstracts counters/histograms behind a small interface so
// the proxy can emit to OpenTelemetry, Datadog, or nowhere.
package metrics

import (
	"time"

	"frlproxy/core/internal/infrastructure/config"
)

// Metrics is the metrics-emission contract used throughout the proxy.
type Metrics interface {
	Incr(name string, tags map[string]string)
	Distribution(name string, value float64, tags map[string]string)
	Timing(name string, d time.Duration, tags map[string]string)
	RecordHTTP(method, path string, status int, d time.Duration)
	Close() error
}

// New builds a Metrics implementation from cfg.Telemetry, mirroring the
// tracer.New switch.
func New(cfg *config.TelemetryConfig) (Metrics, error) {
	if !cfg.Enabled {
		return NewNoOp(), nil
	}
	switch cfg.Type {
	case "datadog":
		return NewDatadog(cfg.MetricsAddress, cfg.Namespace)
	case "otel":
		return NewOTel(cfg.MetricsAddress, cfg.Namespace)
	default:
		return NewNoOp(), nil
	}
}
