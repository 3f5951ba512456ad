package common

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// Fields represents structured logging fields.
type Fields map[string]any

// SetupLogger configures the global logger. When logFile is non-empty, records
// are also written to it as JSON. The returned cleanup closes the file.
func SetupLogger(level slog.Level, format, logFile string) (func() error, error) {
	opts := &slog.HandlerOptions{Level: level}
	handler := newHandler(os.Stderr, format, opts)

	if logFile == "" {
		slog.SetDefault(slog.New(handler))
		return func() error { return nil }, nil
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		slog.SetDefault(slog.New(handler))
		return func() error { return nil }, fmt.Errorf("failed to open log file %s: %w", logFile, err)
	}

	slog.SetDefault(slog.New(slogmulti.Fanout(handler, slog.NewJSONHandler(file, opts))))
	return file.Close, nil
}

// NewLogger builds a logger over the given writers, used in tests.
func NewLogger(w io.Writer, format string, extra ...io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelDebug}
	handlers := []slog.Handler{newHandler(w, format, opts)}
	for _, e := range extra {
		handlers = append(handlers, slog.NewJSONHandler(e, opts))
	}
	return slog.New(slogmulti.Fanout(handlers...))
}

func newHandler(w io.Writer, format string, opts *slog.HandlerOptions) slog.Handler {
	switch format {
	case "json":
		return slog.NewJSONHandler(w, opts)
	default:
		return slog.NewTextHandler(w, opts)
	}
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(name string) slog.Level {
	switch name {
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

// LogError logs an error with additional context.
func LogError(err error, msg string, fields Fields) {
	attrs := make([]slog.Attr, 0, len(fields)+1)
	attrs = append(attrs, slog.String("error", err.Error()))

	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}

	slog.LogAttrs(context.Background(), slog.LevelError, msg, attrs...)
}

// LogInfo logs an info message with fields.
func LogInfo(msg string, fields Fields) {
	attrs := make([]slog.Attr, 0, len(fields))
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}

	slog.LogAttrs(context.Background(), slog.LevelInfo, msg, attrs...)
}
