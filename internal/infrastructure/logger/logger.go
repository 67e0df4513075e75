// Package logger provides a unified structured-logging interface with
// pluggable drivers, a logrus/slog split selected
// by logging.destination rather than deploy environment.
package logger

import (
	"context"

	"frlproxy/core/internal/infrastructure/config"
)

// Logger is the structured logging contract used throughout the proxy.
type Logger interface {
	WithContext(ctx context.Context) Logger
	WithField(key string, value any) Logger
	WithFields(fields map[string]any) Logger

	Debug(message string)
	Info(message string)
	Warn(message string)
	Error(message string)
}

// New builds a Logger per cfg.Logging.Destination: "file" uses logrus with
// JSON output through a rotating writer, anything else (including the
// zero value) uses a tinted slog writer to stdout.
func New(cfg *config.Config) Logger {
	switch cfg.Logging.Destination {
	case "file":
		return NewLogrus(&cfg.Logging)
	default:
		return NewStdout(&cfg.Logging)
	}
}
