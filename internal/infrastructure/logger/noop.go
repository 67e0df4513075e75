package logger

import "context"

// noopLogger discards everything. Used as the zero-value fallback in unit
// tests that wire components without caring about log output.
type noopLogger struct{}

var _ Logger = (*noopLogger)(nil)

// NewNoop returns a Logger that discards all output.
func NewNoop() Logger { return &noopLogger{} }

func (l *noopLogger) WithContext(ctx context.Context) Logger  { return l }
func (l *noopLogger) WithField(key string, value any) Logger  { return l }
func (l *noopLogger) WithFields(fields map[string]any) Logger { return l }
func (l *noopLogger) Debug(string)                            {}
func (l *noopLogger) Info(string)                             {}
func (l *noopLogger) Warn(string)                              {}
func (l *noopLogger) Error(string)                             {}
