// Package logging wires the process-wide slog handler from configuration.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Setup installs a slog handler selected by level/format and returns the
// root logger. Call once from main before any component starts.
func Setup(level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	if strings.ToLower(format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// For returns a child logger tagged with the owning component, matching the
// component-scoped logging style used throughout the runtime.
func For(component string) *slog.Logger {
	return slog.Default().With("component", component)
}
