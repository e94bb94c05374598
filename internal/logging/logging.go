package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options controls how Init configures the global logger.
type Options struct {
	// Level overrides LOG_LEVEL when set.
	Level string

	// DefaultLevel applies when neither Level nor LOG_LEVEL is set.
	DefaultLevel zerolog.Level

	// Pretty selects the human readable console writer instead of JSON.
	Pretty bool

	// Output defaults to os.Stderr.
	Output io.Writer
}

// Init configures the global zerolog logger and returns it.
func Init(opts Options) zerolog.Logger {
	level := opts.DefaultLevel
	name := opts.Level
	if name == "" {
		name = os.Getenv("LOG_LEVEL")
	}
	if name != "" {
		level = ParseLevel(name, level)
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	if opts.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	zerolog.SetGlobalLevel(level)
	logger := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = logger
	return logger
}

// ParseLevel maps the LOG_LEVEL vocabulary onto zerolog levels.
func ParseLevel(name string, fallback zerolog.Level) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "dev", "development", "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error", "production", "prod":
		return zerolog.ErrorLevel
	case "off", "disabled":
		return zerolog.Disabled
	}
	return fallback
}
