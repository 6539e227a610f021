// Package logging provides zerolog-based component loggers.
package logging

import (
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Config holds logger configuration
type Config struct {
	Level      string // debug, info, warn, error
	JSONFormat bool   // JSON output vs console writer
}

var (
	base zerolog.Logger
	once sync.Once
)

// Setup configures the process-wide base logger. Safe to call once at startup;
// later calls are ignored.
func Setup(cfg Config) {
	once.Do(func() {
		zerolog.SetGlobalLevel(parseLevel(cfg.Level))
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

		if cfg.JSONFormat {
			base = zerolog.New(os.Stdout).With().Timestamp().Logger()
		} else {
			base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
		}
	})
}

// New returns a logger tagged with the given component name.
func New(component string) zerolog.Logger {
	return base.With().Str("component", component).Logger()
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
