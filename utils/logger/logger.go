// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

var (
	// DefaultLogger is the default logger used by the application
	DefaultLogger = &Logger{
		Logger: slog.Default(),
	}
)

// Logger is simply a wrapper around slog.Logger that implements
// the io.Writer interface, so it can back libraries expecting a writer
// (gin's default writers for instance) while keeping slog attributes.
type Logger struct {
	*slog.Logger
	LogLevel slog.Level
	sink     EventSink // nil unless explicitly set via WithSink
}

// ParseLevel maps a configuration string onto a slog level. Unknown values
// fall back to info.
func ParseLevel(logLevel string) slog.Level {
	switch strings.ToLower(logLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// NewLogger creates a new Logger writing JSON to stdout.
func NewLogger(logLevel string) *Logger {
	return NewLoggerWithWriter(os.Stdout, logLevel)
}

// NewLoggerWithWriter creates a new Logger writing JSON to w.
func NewLoggerWithWriter(w io.Writer, logLevel string) *Logger {
	slogLevel := ParseLevel(logLevel)
	return &Logger{
		LogLevel: slogLevel,
		Logger: slog.New(
			slog.NewJSONHandler(w, &slog.HandlerOptions{
				Level: slogLevel,
			}),
		),
	}
}

func (l *Logger) With(attrs ...slog.Attr) *Logger {
	return &Logger{
		LogLevel: l.LogLevel,
		Logger:   slog.New(l.Logger.Handler().WithAttrs(attrs)),
		sink:     l.sink,
	}
}

// WithSink returns a copy of the logger whose records are also emitted, as
// log events, to the given sink. Records keep going to the original handler.
func (l *Logger) WithSink(s EventSink) *Logger {
	return &Logger{
		LogLevel: l.LogLevel,
		Logger: slog.New(&teeHandler{
			primary:   l.Logger.Handler(),
			secondary: NewEventHandler(s, l.LogLevel),
		}),
		sink: s,
	}
}

// Sink returns the sink attached with WithSink, or nil.
func (l *Logger) Sink() EventSink {
	return l.sink
}

// Write implements the io.Writer interface.
// It writes the data to the slog.Logger with appropriate log level.
// GIN debug messages (starting with "[GIN-debug]") are logged at Debug level,
// while other messages are logged at Info level.
// It also removes the trailing newline character from the input data.
func (l *Logger) Write(p []byte) (n int, err error) {
	length := len(p)
	message := strings.TrimSuffix(string(p), "\n")

	logLevel := slog.LevelInfo
	if strings.HasPrefix(message, "[GIN-debug]") {
		logLevel = slog.LevelDebug
	}

	l.Logger.Log(
		context.Background(),
		logLevel,
		message,
	)
	return length, nil
}

// teeHandler forwards every record to two handlers.
type teeHandler struct {
	primary   slog.Handler
	secondary slog.Handler
}

func (h *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.primary.Enabled(ctx, level) || h.secondary.Enabled(ctx, level)
}

func (h *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var err error
	if h.primary.Enabled(ctx, r.Level) {
		err = h.primary.Handle(ctx, r.Clone())
	}
	if h.secondary.Enabled(ctx, r.Level) {
		if sErr := h.secondary.Handle(ctx, r); sErr != nil && err == nil {
			err = sErr
		}
	}
	return err
}

func (h *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &teeHandler{primary: h.primary.WithAttrs(attrs), secondary: h.secondary.WithAttrs(attrs)}
}

func (h *teeHandler) WithGroup(name string) slog.Handler {
	return &teeHandler{primary: h.primary.WithGroup(name), secondary: h.secondary.WithGroup(name)}
}
