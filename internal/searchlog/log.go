// Package searchlog centralises the zerolog setup used across the
// engine: a console writer with a component field, and a global level
// knob the CLI's -verbose flag toggles.
package searchlog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds a zerolog.Logger writing human-readable console output to
// w (os.Stdout in production, a buffer in tests), tagged with the given
// component name.
func New(w io.Writer, component string) zerolog.Logger {
	console := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	return zerolog.New(console).With().Timestamp().Str("component", component).Logger()
}

// Default returns the package-wide logger used by components that don't
// thread one through explicitly (cmd/searchdemo's flag-selected verbosity
// applies to this one).
func Default() zerolog.Logger {
	return New(os.Stdout, "boardmcts")
}

// SetGlobalLevel adjusts zerolog's global level, used by cmd/searchdemo's
// -verbose flag.
func SetGlobalLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}
