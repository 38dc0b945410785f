package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New builds the process logger. Level strings follow zerolog naming
// (debug, info, warn, error); unknown levels fall back to info. Console
// output is for local development; the default is JSON to stdout.
func New(level string, console bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var out io.Writer = os.Stdout
	if console {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

// Nop returns a disabled logger for tests and optional dependencies
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
