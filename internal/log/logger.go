// Package log configures the process-wide zerolog logger.
package log

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var Logger zerolog.Logger

func init() {
	Setup(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}, zerolog.InfoLevel)
}

// Setup replaces the global logger.
func Setup(out io.Writer, level zerolog.Level) {
	Logger = zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Logger()
	log.Logger = Logger
}

// SetLevel parses a level name such as "debug" or "warn". Unknown names
// leave the level unchanged and report false.
func SetLevel(name string) bool {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil || name == "" {
		return false
	}
	Logger = Logger.Level(level)
	log.Logger = Logger
	return true
}

// Component returns the global logger tagged with the subsystem name.
func Component(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}

func Info() *zerolog.Event {
	return Logger.Info()
}

func Error() *zerolog.Event {
	return Logger.Error()
}

func Warn() *zerolog.Event {
	return Logger.Warn()
}

func Debug() *zerolog.Event {
	return Logger.Debug()
}

// Fatal logs and exits the process.
func Fatal() *zerolog.Event {
	return Logger.Fatal()
}
