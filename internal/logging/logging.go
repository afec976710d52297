// Package logging initializes the process-wide zerolog logger.
package logging

import (
	"os"

	"github.com/rs/zerolog"
)

// Init returns a zerolog logger: pretty console output on a terminal,
// structured JSON otherwise; only the JSON output is tagged with this
// service's name.
func Init() *zerolog.Logger {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var logger zerolog.Logger
	if isTerminal() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().
			Timestamp().
			Caller().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Str("service", "versioned-tx-pipeline").
			Logger()
	}

	return &logger
}

// SetLevel parses level (falling back to info on an unrecognized string)
// and applies it globally.
func SetLevel(logger *zerolog.Logger, level string) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		parsed = zerolog.InfoLevel
		if level != "" {
			logger.Warn().Str("configured_level", level).Msg("unknown log level, defaulting to info")
		}
	}
	zerolog.SetGlobalLevel(parsed)
}

func isTerminal() bool {
	fileInfo, _ := os.Stdout.Stat()
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}
