package storagehttp

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogFormat selects the diagnostic log encoding
type LogFormat string

// Output formats
const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// ParseLogLevel parses "debug", "info", "warn" or "error".
// Unknown values select info.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLogFormat parses "text" or "json". Unknown values select text.
func ParseLogFormat(s string) LogFormat {
	if strings.EqualFold(s, string(LogFormatJSON)) {
		return LogFormatJSON
	}
	return LogFormatText
}

// NewLogger returns a Logger writing to w through a slog text or JSON handler
func NewLogger(w io.Writer, level slog.Level, format LogFormat) Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch format {
	case LogFormatJSON:
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	return NewSlogLogger(slog.New(handler))
}

// NewSlogLogger adapts an existing *slog.Logger
func NewSlogLogger(l *slog.Logger) Logger {
	return &slogLogger{l: l}
}

// NopLogger returns a Logger that discards everything
func NopLogger() Logger {
	return NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

type slogLogger struct {
	l *slog.Logger
}

func (s *slogLogger) Debug(msg string, fields ...Field) {
	s.l.Debug(msg, attrs(fields)...)
}

func (s *slogLogger) Info(msg string, fields ...Field) {
	s.l.Info(msg, attrs(fields)...)
}

func (s *slogLogger) Error(msg string, fields ...Field) {
	s.l.Error(msg, attrs(fields)...)
}

func attrs(fields []Field) []any {
	out := make([]any, 0, len(fields))
	for _, f := range fields {
		out = append(out, slog.Any(f.Key, f.Value))
	}
	return out
}

func defaultLogger() Logger {
	return NewLogger(os.Stderr, slog.LevelInfo, LogFormatText)
}
