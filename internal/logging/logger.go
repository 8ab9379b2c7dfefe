// Package logging builds the process-wide zerolog logger.
package logging

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, pretty
}

// New builds a zerolog.Logger per Config, matching the level/format
// conventions used throughout the realtime core.
func New(cfg Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var w zerolog.ConsoleWriter
	var logger zerolog.Logger
	switch strings.ToLower(cfg.Format) {
	case "pretty":
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
		logger = zerolog.New(w)
	default:
		logger = zerolog.New(os.Stdout)
	}
	logger = logger.With().Timestamp().Logger()

	switch strings.ToLower(cfg.Level) {
	case "debug":
		logger = logger.Level(zerolog.DebugLevel)
	case "warn":
		logger = logger.Level(zerolog.WarnLevel)
	case "error":
		logger = logger.Level(zerolog.ErrorLevel)
	default:
		logger = logger.Level(zerolog.InfoLevel)
	}

	return logger
}
