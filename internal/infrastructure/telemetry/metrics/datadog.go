package metrics

import (
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
)

type datadogMetrics struct {
	client    *statsd.Client
	namespace string
}

var _ Metrics = (*datadogMetrics)(nil)

// NewDatadog builds a Metrics implementation emitting DogStatsD packets to
// addr (host:port of the Datadog agent).
func NewDatadog(addr, namespace string) (Metrics, error) {
	client, err := statsd.New(addr, statsd.WithNamespace(namespace+"."))
	if err != nil {
		return nil, err
	}
	return &datadogMetrics{client: client, namespace: namespace}, nil
}

func tagsToSlice(tags map[string]string) []string {
	out := make([]string, 0, len(tags))
	for k, v := range tags {
		out = append(out, k+":"+v)
	}
	return out
}

func (m *datadogMetrics) Incr(name string, tags map[string]string) {
	_ = m.client.Incr(name, tagsToSlice(tags), 1)
}

func (m *datadogMetrics) Distribution(name string, value float64, tags map[string]string) {
	_ = m.client.Distribution(name, value, tagsToSlice(tags), 1)
}

func (m *datadogMetrics) Timing(name string, d time.Duration, tags map[string]string) {
	_ = m.client.Timing(name, d, tagsToSlice(tags), 1)
}

func (m *datadogMetrics) RecordHTTP(method, path string, status int, d time.Duration) {
	tags := map[string]string{
		"method": method,
		"path":   path,
		"status": httpStatusBucket(status),
	}
	m.Incr("http.requests", tags)
	m.Timing("http.request_duration", d, tags)
}

func (m *datadogMetrics) Close() error {
	return m.client.Close()
}
