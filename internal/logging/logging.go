package logging

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// Init installs the default slog logger. fallback is used when LOG_LEVEL
// is unset or unrecognised: the relay runs at info, the call commands only
// show errors so they don't fight with the terminal UI.
func Init(fallback slog.Level) {
	slog.SetDefault(slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      ParseLevel(os.Getenv("LOG_LEVEL"), fallback),
			TimeFormat: time.TimeOnly,
		}),
	))
}

// ParseLevel maps a LOG_LEVEL value to a slog level.
func ParseLevel(l string, fallback slog.Level) slog.Level {
	switch l {
	case "dev", "development", "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "production", "prod":
		return slog.LevelError
	}
	return fallback
}
