// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package logging provides the structured logger used across flowtrack.
//
// Loggers take a message followed by alternating key/value pairs:
//
//	logger.Info("inserted flow", "flow", key, "bucket", idx)
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	charmlog "github.com/charmbracelet/log"

	"grimm.is/flowtrack/internal/errors"
)

// Level is a logging severity.
type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

const timeFormat = "2006-01-02 15:04:05.000"

// Config controls how a Logger renders records.
type Config struct {
	Level  Level
	Output io.Writer
	// JSON selects one JSON object per line instead of the console format.
	JSON bool
	// Caller adds the source file and line to console output.
	Caller bool
}

// DefaultConfig returns console logging at info level on stderr.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Output: os.Stderr,
	}
}

// Logger is a thin wrapper around slog.Logger.
type Logger struct {
	sl *slog.Logger
}

// New builds a Logger from cfg.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	var h slog.Handler
	if cfg.JSON {
		h = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: cfg.Level})
	} else {
		h = charmlog.NewWithOptions(out, charmlog.Options{
			Level:           charmlog.Level(cfg.Level),
			ReportTimestamp: true,
			ReportCaller:    cfg.Caller,
			TimeFormat:      timeFormat,
		})
	}
	return &Logger{sl: slog.New(h)}
}

// Discard returns a Logger that drops everything.
func Discard() *Logger {
	return &Logger{sl: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: LevelError + 1}))}
}

var defaultLogger atomic.Pointer[Logger]

// Default returns the process-wide logger.
func Default() *Logger {
	if l := defaultLogger.Load(); l != nil {
		return l
	}
	l := New(DefaultConfig())
	if defaultLogger.CompareAndSwap(nil, l) {
		return l
	}
	return defaultLogger.Load()
}

// SetDefault replaces the process-wide logger.
func SetDefault(l *Logger) {
	if l != nil {
		defaultLogger.Store(l)
	}
}

// WithComponent returns the default logger tagged with a component name.
func WithComponent(name string) *Logger {
	return Default().WithComponent(name)
}

// ParseLevel parses "debug", "info", "warn" or "error" (case-insensitive).
func ParseLevel(s string) (Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return LevelInfo, errors.Wrapf(err, errors.KindValidation, "invalid log level %q", s)
	}
	return l, nil
}

func (l *Logger) WithComponent(name string) *Logger {
	return l.With("component", name)
}

func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	args := []any{"error", err.Error()}
	if kind := errors.GetKind(err); kind != errors.KindUnknown {
		args = append(args, "kind", kind.String())
	}
	for k, v := range errors.GetAttributes(err) {
		args = append(args, k, v)
	}
	return l.With(args...)
}

func (l *Logger) With(args ...any) *Logger {
	return &Logger{sl: l.sl.With(args...)}
}

// Enabled reports whether records at level would be emitted.
func (l *Logger) Enabled(level Level) bool {
	return l.sl.Enabled(context.Background(), level)
}

func (l *Logger) Debug(msg string, args ...any) { l.sl.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.sl.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.sl.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.sl.Error(msg, args...) }

// Slog exposes the underlying slog.Logger.
func (l *Logger) Slog() *slog.Logger {
	return l.sl
}
