package telemetry

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// parseLevel maps a logging.level config string to a slog.Level. Unknown
// values fall back to Info.
func parseLevel(level string) slog.Level {
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

// newLogHandler builds the handler SetupLogger installs. Split out so tests
// can point it at a buffer instead of stdout.
func newLogHandler(w io.Writer, format, level string) slog.Handler {
	lvl := parseLevel(level)
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug, // file:line only when debugging
	}
	if strings.ToLower(format) == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SetupLogger installs the process-wide slog default from the logging config:
// "json" for production, anything else renders text for local runs.
//
// Log records reference secrets by id and owners by id. Secret content and
// passwords never reach a log call, so no handler-level redaction exists;
// keep it that way when adding log sites.
func SetupLogger(format, level string) {
	slog.SetDefault(slog.New(newLogHandler(os.Stdout, format, level)))
	slog.Info("logging configured", "format", format, "level", parseLevel(level).String())
}
