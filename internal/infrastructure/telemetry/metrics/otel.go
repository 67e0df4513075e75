package metrics

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

type otelMetrics struct {
	provider   *sdkmetric.MeterProvider
	meter      metric.Meter
	namespace  string
	mu         sync.Mutex
	counters   map[string]metric.Float64Counter
	histograms map[string]metric.Float64Histogram
}

var _ Metrics = (*otelMetrics)(nil)

// NewOTel builds a Metrics implementation exporting over OTLP/gRPC to addr.
func NewOTel(addr, namespace string) (Metrics, error) {
	ctx := context.Background()
	exporter, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithEndpoint(addr), otlpmetricgrpc.WithInsecure())
	if err != nil {
		return nil, err
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))),
	)

	return &otelMetrics{
		provider:   provider,
		meter:      provider.Meter(namespace),
		namespace:  namespace,
		counters:   make(map[string]metric.Float64Counter),
		histograms: make(map[string]metric.Float64Histogram),
	}, nil
}

func sanitizeName(name string) string {
	return strings.ReplaceAll(name, ".", "_")
}

func (m *otelMetrics) counter(name string) metric.Float64Counter {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.counters[name]; ok {
		return c
	}
	c, err := m.meter.Float64Counter(sanitizeName(name))
	if err != nil {
		return nil
	}
	m.counters[name] = c
	return c
}

func (m *otelMetrics) histogram(name string) metric.Float64Histogram {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.histograms[name]; ok {
		return h
	}
	h, err := m.meter.Float64Histogram(sanitizeName(name))
	if err != nil {
		return nil
	}
	m.histograms[name] = h
	return h
}

func attrsFromTags(tags map[string]string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(tags))
	for k, v := range tags {
		attrs = append(attrs, attribute.String(k, v))
	}
	return attrs
}

func (m *otelMetrics) Incr(name string, tags map[string]string) {
	if c := m.counter(name); c != nil {
		c.Add(context.Background(), 1, metric.WithAttributes(attrsFromTags(tags)...))
	}
}

func (m *otelMetrics) Distribution(name string, value float64, tags map[string]string) {
	if h := m.histogram(name); h != nil {
		h.Record(context.Background(), value, metric.WithAttributes(attrsFromTags(tags)...))
	}
}

func (m *otelMetrics) Timing(name string, d time.Duration, tags map[string]string) {
	m.Distribution(name, float64(d.Milliseconds()), tags)
}

func (m *otelMetrics) RecordHTTP(method, path string, status int, d time.Duration) {
	tags := map[string]string{
		"method": method,
		"path":   path,
		"status": httpStatusBucket(status),
	}
	m.Incr("http.requests", tags)
	m.Timing("http.request_duration", d, tags)
}

func (m *otelMetrics) Close() error {
	return m.provider.Shutdown(context.Background())
}

func httpStatusBucket(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
