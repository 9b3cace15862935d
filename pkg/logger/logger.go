package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options controls the process-wide zerolog setup.
type Options struct {
	Level   string
	Console bool        // human readable output instead of JSON
	Extra   []io.Writer // additional sinks, e.g. the Logdy UI
}

// Setup configures the global zerolog logger and returns the effective level.
func Setup(opts Options) zerolog.Level {
	zerolog.TimeFieldFormat = time.RFC3339

	var out io.Writer = os.Stderr
	if opts.Console {
		out = zerolog.ConsoleWriter{Out: os.Stderr}
	}
	if len(opts.Extra) > 0 {
		out = zerolog.MultiLevelWriter(append([]io.Writer{out}, opts.Extra...)...)
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()

	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		log.Warn().Str("level", opts.Level).Msg("Invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	return level
}

// Nop returns a logger that discards everything, for tests.
func Nop() zerolog.Logger {
	return zerolog.New(io.Discard).Level(zerolog.Disabled)
}
