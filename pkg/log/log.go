// Package log configures the process-wide slog logger shared by the onramp
// binaries.
package log

import (
	"log/slog"
	"os"
	"strings"
)

// Setup installs the default slog logger, writing text records to stderr at
// the given level. Unknown level names fall back to info.
func Setup(logLevel string) {
	var level slog.Level

	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

// WithModule returns the default logger scoped to one module name.
func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}
