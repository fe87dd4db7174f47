// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package logging provides the structured logger used throughout the
// stitching orchestrator: a thin wrapper over log/slog that lets each
// subsystem narrow itself to a named component without threading a logger
// instance through every constructor signature by hand.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// Level mirrors slog's levels under stitcher-local names so callers never
// need to import log/slog directly.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config controls how a Logger is constructed.
type Config struct {
	Level  Level
	Output io.Writer // defaults to os.Stderr
	JSON   bool       // structured JSON output instead of text
}

// Logger is a component-scoped structured logger.
type Logger struct {
	base *slog.Logger
}

// New builds a root Logger from Config.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: cfg.Level.slogLevel()}
	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return &Logger{base: slog.New(handler)}
}

// Discard returns a Logger that drops everything; useful in tests that don't
// care about log output but need a non-nil Logger.
func Discard() *Logger {
	return &Logger{base: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// WithComponent narrows the logger to a named subsystem (e.g. "scs",
// "launcher", "reservation") so every line it emits carries component=name.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{base: l.base.With("component", name)}
}

// With attaches arbitrary key/value pairs to every subsequent log line.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{base: l.base.With(args...)}
}

func (l *Logger) Debug(msg string, args ...any) { l.base.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.base.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.base.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.base.Error(msg, args...) }

// Slog exposes the underlying *slog.Logger for callers that need to pass it
// to a third-party library expecting one directly.
func (l *Logger) Slog() *slog.Logger { return l.base }
