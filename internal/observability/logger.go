package observability

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ParseLevel maps a configured level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger builds a structured logger writing to w.
// Logs go to stderr in the CLI so stdout stays reserved for reports.
func NewLogger(w io.Writer, level string, pretty bool) zerolog.Logger {
	if pretty {
		// Pretty console output for development
		w = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
		}
	}
	return zerolog.New(w).Level(ParseLevel(level)).With().Timestamp().Logger()
}

// InitLogger builds the process logger on stderr and installs it as the
// zerolog global logger.
func InitLogger(level string, pretty bool) zerolog.Logger {
	logger := NewLogger(os.Stderr, level, pretty)
	log.Logger = logger
	return logger
}
