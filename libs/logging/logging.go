package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger writes JSON records to stdout.
func NewLogger(level, service, env string) *slog.Logger {
	return NewLoggerTo(os.Stdout, level, service, env)
}

// NewLoggerTo tags every record with service and env. Debug level also
// records the call site.
func NewLoggerTo(w io.Writer, level, service, env string) *slog.Logger {
	lvl := parseLevel(level)
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl <= slog.LevelDebug,
	}
	return slog.New(slog.NewJSONHandler(w, opts)).With("service", service, "env", env)
}

func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// parseLevel accepts slog level names ("info", "WARN", "debug-4") and the
// "warning" alias. Anything else is info.
func parseLevel(level string) slog.Level {
	level = strings.TrimSpace(level)
	if strings.EqualFold(level, "warning") {
		return slog.LevelWarn
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
