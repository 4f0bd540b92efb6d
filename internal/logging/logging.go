package logging

import (
	"log/slog"
	"os"
	"strings"
)

// EnvLevel overrides the configured level when set.
const EnvLevel = "DOCQA_LOG_LEVEL"

var logLevel = new(slog.LevelVar)

// Configure installs a text handler on stderr as the default slog logger. The
// level comes from DOCQA_LOG_LEVEL if set, otherwise from level.
func Configure(level string) {
	logLevel.Set(ParseLevel(level))
	if env := os.Getenv(EnvLevel); env != "" {
		logLevel.Set(ParseLevel(env))
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// SetLevel changes the level of the logger installed by Configure.
func SetLevel(level slog.Level) {
	logLevel.Set(level)
}

// ParseLevel maps debug, info, warn and error (any case) to a slog level.
// Anything else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
