package logger

import (
	"io"
	"log/slog"
)

// NewTestHandler returns a handler for tests: output goes nowhere, but the
// level is honoured so level-gated paths still run.
func NewTestHandler(level slog.Level) slog.Handler {
	return slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: level})
}
