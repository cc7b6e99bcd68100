// Package logger provides structured logging using zerolog
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var globalLogger zerolog.Logger

// Config selects the level and output format
type Config struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"` // json or console
	// Output is "stdout" or "stderr"; defaults to stderr so command output
	// on stdout stays machine-readable
	Output string `json:"output" yaml:"output"`
}

func init() {
	globalLogger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	zerolog.TimeFieldFormat = time.RFC3339
}

// New builds a logger from config without touching the global one
func New(config Config) (zerolog.Logger, error) {
	return newLogger(config, outputFor(config.Output))
}

// Init builds a logger from config and installs it as the global logger.
// The level is applied process-wide so SetLevel can change it later.
func Init(config Config) (zerolog.Logger, error) {
	l, err := New(config)
	if err != nil {
		return zerolog.Nop(), err
	}
	zerolog.SetGlobalLevel(l.GetLevel())
	l = l.Level(zerolog.TraceLevel)

	globalLogger = l
	log.Logger = l
	return l, nil
}

// SetLevel changes the process-wide level of loggers built by Init
func SetLevel(level string) error {
	parsed, err := parseLevel(level)
	if err != nil {
		return err
	}
	if parsed != zerolog.GlobalLevel() {
		zerolog.SetGlobalLevel(parsed)
		globalLogger.Info().Str("level", parsed.String()).Msg("Log level changed")
	}
	return nil
}

func parseLevel(level string) (zerolog.Level, error) {
	if level == "" {
		return zerolog.InfoLevel, nil
	}
	parsed, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return parsed, nil
}

func newLogger(config Config, output io.Writer) (zerolog.Logger, error) {
	level, err := parseLevel(config.Level)
	if err != nil {
		return zerolog.Nop(), err
	}

	switch config.Format {
	case "", "json":
	case "console":
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log format %q", config.Format)
	}

	return zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger(), nil
}

func outputFor(name string) io.Writer {
	if name == "stdout" {
		return os.Stdout
	}
	return os.Stderr
}

// GetLogger returns the global logger
func GetLogger() zerolog.Logger {
	return globalLogger
}

// Component returns a child of the global logger tagged with component
func Component(name string) zerolog.Logger {
	return globalLogger.With().Str("component", name).Logger()
}
