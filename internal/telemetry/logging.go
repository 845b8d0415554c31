// Package telemetry builds the process logger. All components log through
// slog with a JSON handler; secret-bearing attributes are redacted before
// they reach disk.
package telemetry

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const redactedPlaceholder = "[REDACTED]"

// NewLogger opens <homeDir>/logs/bot.jsonl and returns a JSON slog logger
// writing there (and to stdout unless quiet). The caller owns the returned
// closer.
func NewLogger(homeDir, level string, quiet bool) (*slog.Logger, io.Closer, error) {
	logDir := filepath.Join(homeDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, nil, err
	}

	logFilePath := filepath.Join(logDir, "bot.jsonl")
	file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}

	lvl := parseLevel(level)
	var w io.Writer
	if quiet {
		w = file
	} else {
		w = io.MultiWriter(os.Stdout, file)
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Key = "timestamp"
			}
			if shouldRedactKey(a.Key) {
				return slog.String(a.Key, redactedPlaceholder)
			}
			if a.Value.Kind() == slog.KindString && shouldRedactValue(a.Value.String()) {
				return slog.String(a.Key, redactedPlaceholder)
			}
			return a
		},
	})
	logger := slog.New(handler).With("component", "bot")
	return logger, file, nil
}

func shouldRedactKey(key string) bool {
	lower := strings.ToLower(strings.TrimSpace(key))
	if lower == "" {
		return false
	}
	sensitiveTokens := []string{"token", "secret", "password", "authorization", "api_key", "apikey", "bearer"}
	for _, token := range sensitiveTokens {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}

func shouldRedactValue(v string) bool {
	lower := strings.ToLower(v)
	return strings.Contains(lower, "bearer ") ||
		strings.Contains(lower, "api_key") ||
		strings.Contains(lower, "authorization:")
}

func parseLevel(level string) slog.Level {
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
