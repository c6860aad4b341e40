// Package logging builds the per-process zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New returns a logger tagged with service. level is a zerolog level name; unknown
// values mean info. LOG_FORMAT=console switches to human-readable output.
func New(service, level string) zerolog.Logger {
	return newWithWriter(os.Stderr, service, level, strings.EqualFold(os.Getenv("LOG_FORMAT"), "console"))
}

func newWithWriter(w io.Writer, service, level string, console bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Str("service", service).Logger()
}
