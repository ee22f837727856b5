package telemetry

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

var (
	logger     *logrus.Logger
	loggerOnce sync.Once
)

func newJSONFormatter() *logrus.JSONFormatter {
	return &logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "@timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	}
}

// InitLogger initializes the process logger with the given configuration
func InitLogger(cfg *Config) {
	loggerOnce.Do(func() {
		logger = logrus.New()
		logger.SetOutput(os.Stderr)

		level, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			level = logrus.InfoLevel
		}
		logger.SetLevel(level)
		logger.SetFormatter(newJSONFormatter())
		logger.AddHook(serviceFields{
			"service.name":    cfg.ServiceName,
			"service.version": cfg.ServiceVersion,
			"environment":     cfg.Environment,
		})
	})
}

// NewClientLogger returns the logger an sdk client writes to. A disabled
// logger discards everything; an enabled one logs JSON at debug level to w.
func NewClientLogger(enabled bool, w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(newJSONFormatter())
	if !enabled {
		l.SetOutput(io.Discard)
		l.SetLevel(logrus.PanicLevel)
		return l
	}
	if w == nil {
		w = os.Stderr
	}
	l.SetOutput(w)
	l.SetLevel(logrus.DebugLevel)
	l.AddHook(serviceFields{"component": "nestlink.client"})
	return l
}

// serviceFields stamps constant fields on every entry
type serviceFields logrus.Fields

func (s serviceFields) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (s serviceFields) Fire(entry *logrus.Entry) error {
	for k, v := range s {
		if _, ok := entry.Data[k]; !ok {
			entry.Data[k] = v
		}
	}
	return nil
}

// L returns the global logger instance
func L() *logrus.Logger {
	if logger == nil {
		return logrus.StandardLogger()
	}
	return logger
}

// WithContext adds trace information to the logger
func WithContext(ctx context.Context) *logrus.Entry {
	return TraceFields(ctx, L().WithContext(ctx))
}

// TraceFields adds the active span's trace and span IDs to entry
func TraceFields(ctx context.Context, entry *logrus.Entry) *logrus.Entry {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		entry = entry.WithFields(logrus.Fields{
			"trace.id": span.SpanContext().TraceID().String(),
			"span.id":  span.SpanContext().SpanID().String(),
		})
	}
	return entry
}

// WithFields adds fields to the logger
func WithFields(fields logrus.Fields) *logrus.Entry {
	return L().WithFields(fields)
}

// WithError adds an error to the logger
func WithError(err error) *logrus.Entry {
	return L().WithError(err)
}
