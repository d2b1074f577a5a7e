// Package logging builds the process logger. Local runs get colored console
// output, production gets JSON lines.
package logging

import (
	"io"
	"log/slog"
	"strings"

	"github.com/MatusOllah/slogcolor"
)

// New returns a logger writing to w.
func New(w io.Writer, appEnv, level string) *slog.Logger {
	lvl := ParseLevel(level)
	if appEnv == "production" {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
	}
	opts := *slogcolor.DefaultOptions
	opts.Level = lvl
	return slog.New(slogcolor.NewHandler(w, &opts))
}

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Discard is a logger that drops everything, handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
