package internal

import (
	"io"
	"log/slog"
	"strings"
)

// NewLogger builds the service-wide slog.Logger. Development gets a
// human-readable text handler; everything else emits JSON for log
// aggregation. Unknown levels fall back to info.
func NewLogger(w io.Writer, env string, level string) *slog.Logger {
	logLevel := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler
	if env == "development" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler).With("service", "voxwatch")
}
