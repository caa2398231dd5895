// Package logging builds the process-wide slog handler.
package logging

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"

	"github.com/jmorrell2146/applyflow/internal/config"
)

// New constructs a logger from config. Format "console" uses a tinted
// handler for interactive terminals; "text" and "json" are the plain
// slog handlers. debug forces the level down regardless of config.
func New(cfg config.LogConfig, debug bool) *slog.Logger {
	level := parseLevel(cfg.Level)
	if debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	}
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
