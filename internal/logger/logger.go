package logger

import (
	"log/slog"
	"os"
	"strings"

	"github.com/personal-finance-ledger/internal/config"
)

// NewLogger creates a JSON slog.Logger at the configured level, tagged with the
// service name and environment
func NewLogger(cfg *config.Config) *slog.Logger {
	level := ParseLevel(cfg.Logging.Level)

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	handler := slog.NewJSONHandler(os.Stdout, opts)
	logger := slog.New(handler)
	if cfg.Application.Name != "" {
		logger = logger.With("service", cfg.Application.Name, "env", cfg.Application.Env)
	}

	logger.Info("logger initialized", "level", level)

	return logger
}

// ParseLevel maps a config level name onto a slog level, defaulting to info
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
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

// WithCorrelationID returns l annotated with the request correlation id, or l itself
// when the id is empty
func WithCorrelationID(l *slog.Logger, correlationID string) *slog.Logger {
	if correlationID == "" {
		return l
	}
	return l.With("correlation_id", correlationID)
}

// SecurityEvent records a cross-owner access attempt. These are always logged at
// warn so they survive production log levels.
func SecurityEvent(l *slog.Logger, msg string, args ...any) {
	l.Warn(msg, append([]any{"security_event", true}, args...)...)
}
