package logger

import (
	"context"
	"log/slog"
	"os"
	"time"

	"frlproxy/core/internal/infrastructure/config"
	"frlproxy/core/internal/infrastructure/ctxkey"
	"frlproxy/core/internal/pkg/utils"

	"github.com/lmittmann/tint"
)

type stdoutLogger struct {
	logger *slog.Logger
}

var _ Logger = (*stdoutLogger)(nil)

// NewStdout builds a tinted, human-readable slog logger for interactive
// use (the proxy's default when no file destination is configured).
func NewStdout(cfg *config.LoggingConfig) Logger {
	handler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slogLevel(cfg.Level),
		TimeFormat: time.RFC1123,
	})
	return &stdoutLogger{logger: slog.New(&maskingHandler{next: handler})}
}

func slogLevel(level string) slog.Level {
	switch level {
	case "trace":
		return slog.LevelDebug - 4
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *stdoutLogger) WithContext(ctx context.Context) Logger {
	if ctx == nil {
		return l
	}
	if reqID := ctxkey.GetRequestID(ctx); reqID != "" {
		return &stdoutLogger{logger: l.logger.With(slog.String("request_id", reqID))}
	}
	return l
}

func (l *stdoutLogger) WithField(key string, value any) Logger {
	return &stdoutLogger{logger: l.logger.With(slog.Any(key, value))}
}

func (l *stdoutLogger) WithFields(fields map[string]any) Logger {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return &stdoutLogger{logger: l.logger.With(args...)}
}

func (l *stdoutLogger) Debug(msg string) { l.logger.Debug(msg) }
func (l *stdoutLogger) Info(msg string)  { l.logger.Info(msg) }
func (l *stdoutLogger) Warn(msg string)  { l.logger.Warn(msg) }
func (l *stdoutLogger) Error(msg string) { l.logger.Error(msg) }

// maskingHandler wraps a slog.Handler to redact sensitive attribute values.
type maskingHandler struct {
	next slog.Handler
}

func (h *maskingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *maskingHandler) Handle(ctx context.Context, r slog.Record) error {
	newRecord := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		newRecord.AddAttrs(h.maskAttr(a))
		return true
	})
	return h.next.Handle(ctx, newRecord)
}

func (h *maskingHandler) maskAttr(a slog.Attr) slog.Attr {
	if utils.IsSensitiveKey(a.Key) {
		return slog.String(a.Key, "******** [REDACTED]")
	}
	if a.Value.Kind() == slog.KindString {
		return slog.String(a.Key, utils.MaskValue(a.Key, a.Value.String()))
	}
	return a
}

func (h *maskingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	masked := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		masked[i] = h.maskAttr(a)
	}
	return &maskingHandler{next: h.next.WithAttrs(masked)}
}

func (h *maskingHandler) WithGroup(name string) slog.Handler {
	return &maskingHandler{next: h.next.WithGroup(name)}
}
