package metrics

import "time"

type noopMetrics struct{}

var _ Metrics = (*noopMetrics)(nil)

// NewNoOp returns a Metrics that discards everything.
func NewNoOp() Metrics { return &noopMetrics{} }

func (m *noopMetrics) Incr(name string, tags map[string]string)                        {}
func (m *noopMetrics) Distribution(name string, value float64, tags map[string]string) {}
func (m *noopMetrics) Timing(name string, d time.Duration, tags map[string]string)      {}
func (m *noopMetrics) RecordHTTP(method, path string, status int, d time.Duration)      {}
func (m *noopMetrics) Close() error                                                     { return nil }
