package observability

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger creates the logger used by every component. Level comes from
// LEVERPOOL_LOG_LEVEL (default info); LEVERPOOL_LOG_FORMAT=console switches
// from JSON to the human-readable console writer for local runs.
func NewLogger(component string) zerolog.Logger {
	return NewLoggerWithLevel(component, levelFromEnv())
}

// NewLoggerWithLevel creates a logger with an explicit level.
func NewLoggerWithLevel(component string, level zerolog.Level) zerolog.Logger {
	return zerolog.New(logSink()).
		Level(level).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}

func levelFromEnv() zerolog.Level {
	raw := strings.ToLower(os.Getenv("LEVERPOOL_LOG_LEVEL"))
	level, err := zerolog.ParseLevel(raw)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

func logSink() io.Writer {
	if os.Getenv("LEVERPOOL_LOG_FORMAT") == "console" {
		return zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}
	return os.Stdout
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}
