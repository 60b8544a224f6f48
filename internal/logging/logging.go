// Package logging builds the process-wide zerolog root logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options control how the root logger writes.
type Options struct {
	// Level is one of trace, debug, info, warn, error. Unknown values
	// fall back to info.
	Level string
	// Pretty switches from JSON lines to the human console writer.
	Pretty bool
}

// New returns the root logger. Components derive their own with
// log.With().Str("component", ...).Logger().
func New(opts Options) zerolog.Logger {
	var w io.Writer = os.Stderr
	if opts.Pretty {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}
