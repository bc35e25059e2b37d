package logging

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/truthmarkets/integrity-engine/internal/config"
)

// New builds the root zerolog logger from the logging config. Components
// derive their own loggers via logger.With().Str("component", ...).
func New(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if strings.EqualFold(cfg.Format, "json") {
		logger = zerolog.New(os.Stdout)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	return logger.Level(level).With().Timestamp().Logger()
}
