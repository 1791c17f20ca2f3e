package logger

import (
	"log/slog"
	"os"
	"strings"
)

// New builds a logger writing to stdout. Production environments get JSON,
// everything else a text handler.
func New(level, env string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: getSlogLevel(level)}
	var h slog.Handler
	if strings.ToLower(env) == "production" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(h)
}

// ---- Helpers ----
func getSlogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
