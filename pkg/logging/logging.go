package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New returns the application logger. Console output is used unless json is
// set; verbose lowers the level to debug.
func New(verbose, json bool) zerolog.Logger {
	return NewWithWriter(os.Stderr, verbose, json)
}

// NewWithWriter is New with an explicit destination
func NewWithWriter(w io.Writer, verbose, json bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	out := w
	if !json {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
