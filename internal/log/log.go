// Package log is the structured logger used across the server. Loggers
// travel in context.Context and are backed by log/slog.
package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

type Logger interface {
	With(kv ...any) Logger

	Debug(ctx context.Context, msg string, kv ...any)
	Info(ctx context.Context, msg string, kv ...any)
	Warn(ctx context.Context, msg string, kv ...any)
	Error(ctx context.Context, err error, msg string, kv ...any)

	Sync() error
}

// Options configures New. Empty App, Component, Version and Commit are left
// out of the base attributes.
type Options struct {
	App               string
	Component         string
	Version           string
	Commit            string
	Level             slog.Level
	StacktraceLevel   slog.Level
	JSON              bool
	MaxErrorLinks     int
	IncludeErrorLinks bool
	Writer            io.Writer
}

// New builds an slog backed Logger writing to opts.Writer or stdout.
func New(opts Options) (Logger, error) { return newSlog(opts) }

var levelNames = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// ParseLevel maps a case-insensitive level name to its slog level.
func ParseLevel(s string) (slog.Level, error) {
	if lvl, ok := levelNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return lvl, nil
	}
	return 0, fmt.Errorf("log: unknown level %q, want debug|info|warn|error", s)
}
