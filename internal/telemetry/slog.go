package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// logLevel backs every handler installed here, so SetLogLevel takes effect on
// the live logger after a config reload.
var logLevel = new(slog.LevelVar)

// SetupLogger installs the process-wide slog logger on stdout. format "json"
// selects the JSON handler; anything else is text. Debug level adds source
// locations.
func SetupLogger(format, level string) {
	lvl := ParseLevel(level)
	logLevel.Set(lvl)
	slog.SetDefault(slog.New(newHandler(os.Stdout, format, lvl == slog.LevelDebug)))
	slog.Info("logger initialised", "format", format, "level", lvl.String())
}

func newHandler(w io.Writer, format string, addSource bool) slog.Handler {
	opts := &slog.HandlerOptions{Level: logLevel, AddSource: addSource}
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SetLogLevel changes the level of the logger installed by SetupLogger.
func SetLogLevel(level string) {
	lvl := ParseLevel(level)
	if logLevel.Level() == lvl {
		return
	}
	logLevel.Set(lvl)
	slog.Info("log level changed", "level", lvl.String())
}

// ParseLevel maps a configuration string to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// LevelEnabled reports whether the default logger emits records at level.
func LevelEnabled(level slog.Level) bool {
	return slog.Default().Enabled(context.Background(), level)
}
