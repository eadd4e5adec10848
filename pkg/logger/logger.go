// Package logger configures the root zerolog logger for SwingScan. Every
// service and job receives a child of this logger tagged via
// .With().Str("service"|"component"|"job", ...), so the root carries only
// what is common to all of them: the app tag, timestamps, and the level.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logger configuration.
type Config struct {
	Level  string    // debug, info, warn, error
	Pretty bool      // human-readable console output, used in dev mode
	Output io.Writer // destination, defaults to os.Stdout
}

// New creates the root logger. The level is applied globally so child
// loggers inherit it; an unknown level falls back to info rather than
// failing startup over a typo in LOG_LEVEL.
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "15:04:05",
		}
	}

	return zerolog.New(out).
		With().
		Timestamp().
		Str("app", "swingscan").
		Logger()
}
