package logger

import (
	"context"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is the logging contract shared by all components.
type Logger = logrus.FieldLogger

type ctxKey struct{}

// DefaultLogger is used when the context carries no logger.
var DefaultLogger Logger = newLogrus("info", "text")

// Configure replaces DefaultLogger according to level and format
// ("text" or "json").
func Configure(level, format string) Logger {
	DefaultLogger = newLogrus(level, format)
	return DefaultLogger
}

func newLogrus(level, format string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	if strings.EqualFold(format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return l
}

// WithLogger returns a copy of ctx carrying lg.
func WithLogger(ctx context.Context, lg Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, lg)
}

// FromContext returns the logger stored in ctx or DefaultLogger.
func FromContext(ctx context.Context) Logger {
	if ctx == nil {
		return DefaultLogger
	}
	if lg, ok := ctx.Value(ctxKey{}).(Logger); ok && lg != nil {
		return lg
	}

	return DefaultLogger
}
