// Package log configures the slog logger shared by the payflow binaries.
package log

import (
	"log/slog"
	"os"
)

// Setup installs a text logger writing to stderr at logLevel as the slog default and
// returns it.
func Setup(logLevel string) *slog.Logger {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: ParseLevel(logLevel),
	}))
	slog.SetDefault(logger)

	return logger
}

// ParseLevel maps a LOG_LEVEL value such as "debug" or "WARN" to a slog level. Values slog
// does not understand, including the empty string, mean info.
func ParseLevel(logLevel string) slog.Level {
	var level slog.Level

	err := level.UnmarshalText([]byte(logLevel))
	if err != nil {
		return slog.LevelInfo
	}

	return level
}

// WithModule returns the default logger tagged with a component name such as "engine".
func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}
