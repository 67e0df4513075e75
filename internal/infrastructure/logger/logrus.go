package logger

import (
	"context"

	"frlproxy/core/internal/infrastructure/config"
	"frlproxy/core/internal/infrastructure/ctxkey"
	"frlproxy/core/internal/pkg/utils"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type logrusLogger struct {
	entry *logrus.Entry
}

var _ Logger = (*logrusLogger)(nil)

// NewLogrus builds a JSON logrus logger writing through lumberjack for
// size/count-based rotation, configured via logging.rotate_size_kb and
// logging.rotate_count.
func NewLogrus(cfg *config.LoggingConfig) Logger {
	base := logrus.New()
	base.SetFormatter(&logrus.JSONFormatter{})
	base.SetLevel(parseLevel(cfg.Level))

	maxSizeMB := (cfg.RotateSizeKB + 1023) / 1024
	if maxSizeMB < 1 {
		maxSizeMB = 1
	}
	base.SetOutput(&lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    maxSizeMB,
		MaxBackups: cfg.RotateCount,
		Compress:   true,
	})
	base.AddHook(&maskingHook{})

	return &logrusLogger{entry: logrus.NewEntry(base)}
}

func parseLevel(level string) logrus.Level {
	switch level {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

func (l *logrusLogger) WithContext(ctx context.Context) Logger {
	if ctx == nil {
		return l
	}
	reqID := ctxkey.GetRequestID(ctx)
	if reqID == "" {
		return l
	}
	return &logrusLogger{entry: l.entry.WithField("request_id", reqID)}
}

func (l *logrusLogger) WithField(key string, value any) Logger {
	return &logrusLogger{entry: l.entry.WithField(key, value)}
}

func (l *logrusLogger) WithFields(fields map[string]any) Logger {
	return &logrusLogger{entry: l.entry.WithFields(fields)}
}

func (l *logrusLogger) Debug(msg string) { l.entry.Debug(msg) }
func (l *logrusLogger) Info(msg string)  { l.entry.Info(msg) }
func (l *logrusLogger) Warn(msg string)  { l.entry.Warn(msg) }
func (l *logrusLogger) Error(msg string) { l.entry.Error(msg) }

// maskingHook redacts sensitive field values before they are written out —
// the proxy carries license/session headers through its logs and must
// never persist them unmasked.
type maskingHook struct{}

func (h *maskingHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *maskingHook) Fire(entry *logrus.Entry) error {
	for k, v := range entry.Data {
		if utils.IsSensitiveKey(k) {
			entry.Data[k] = "******** [REDACTED]"
			continue
		}
		if s, ok := v.(string); ok {
			entry.Data[k] = utils.MaskValue(k, s)
		}
	}
	return nil
}
