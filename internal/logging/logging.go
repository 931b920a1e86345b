// Package logging wraps zerolog with the child-logger conventions used
// throughout this module.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Level is a logging verbosity level.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config controls how New builds a logger.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// New builds a logger from cfg. Console output is used unless
// JSONOutput is set.
func New(cfg Config) zerolog.Logger {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	base := zerolog.New(output).With().Timestamp()
	if cfg.JSONOutput {
		return base.Logger().Level(level)
	}
	return zerolog.New(zerolog.ConsoleWriter{
		Out:        output,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Logger().Level(level)
}

// WithComponent returns a child logger tagged with the given component.
func WithComponent(l zerolog.Logger, component string) zerolog.Logger {
	return l.With().Str("component", component).Logger()
}

// WithRoot returns a child logger tagged with the storage root ident.
func WithRoot(l zerolog.Logger, rootID string) zerolog.Logger {
	return l.With().Str("root_id", rootID).Logger()
}

// WithCaller returns a child logger tagged with a reference-manager
// caller flag, per domain.CallerFlag.
func WithCaller(l zerolog.Logger, caller string) zerolog.Logger {
	return l.With().Str("caller", caller).Logger()
}
