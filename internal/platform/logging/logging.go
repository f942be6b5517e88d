// Package logging configures the process-wide zerolog logger.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the application logger.
var Logger zerolog.Logger

func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	Logger = zerolog.New(output).With().Timestamp().Caller().Logger()
}

// New creates a new logger scoped to the given component name.
func New(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// SetLevel adjusts the global log level (e.g. from configuration).
func SetLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
