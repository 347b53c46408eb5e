// Package logging builds the process logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logger settings.
type Config struct {
	Level  string    // debug, info, warn, error
	Format string    // console or json
	File   string    // optional rotating log file, written as JSON
	Output io.Writer // defaults to os.Stderr
}

// New creates a logger and a function that releases its file, if any.
//
// When File is set, entries go both to Output and to the rotating file.
func New(cfg Config) (zerolog.Logger, func() error) {
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	var console io.Writer = output
	if cfg.Format != "json" {
		console = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	closer := func() error { return nil }
	w := console
	if cfg.File != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
		w = zerolog.MultiLevelWriter(console, file)
		closer = file.Close
	}

	logger := zerolog.New(w).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Str("service", "leadsync").
		Logger()
	return logger, closer
}

// ParseLevel converts a level name to a zerolog level. Unknown names mean info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "trace":
		return zerolog.TraceLevel
	}
	return zerolog.InfoLevel
}
