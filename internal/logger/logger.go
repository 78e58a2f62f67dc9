// Package logger provides structured logging setup for meshtask.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/FishWoWater/meshtask/internal/config"
)

// New creates a *slog.Logger from the given Logging config.
// Output is JSON to stderr with a "service" attribute on every record.
func New(cfg config.Logging) *slog.Logger {
	return NewWithWriter(cfg, os.Stderr)
}

// NewWithWriter is New with an explicit output writer.
func NewWithWriter(cfg config.Logging, w io.Writer) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	})

	return slog.New(handler).With("service", cfg.Service)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
