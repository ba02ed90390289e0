package observability

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is the global logger instance
var Logger *slog.Logger

// InitLogger initializes the global logger writing to stderr, so that command
// output on stdout stays clean. format is "json" or "text".
func InitLogger(format, level string) *slog.Logger {
	return InitLoggerTo(os.Stderr, format, level)
}

// InitLoggerTo initializes the global logger with an explicit writer
func InitLoggerTo(w io.Writer, format, level string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	Logger = slog.New(handler)
	slog.SetDefault(Logger)
	return Logger
}

// ParseLevel maps a level name to a slog.Level, defaulting to info
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// Fatal logs an error message and exits
func Fatal(msg string, args ...any) {
	if Logger == nil {
		InitLogger("text", "info")
	}
	Logger.Error(msg, args...)
	os.Exit(1)
}
