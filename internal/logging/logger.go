// Package logging wraps zerolog with the defaults used across the mapper:
// JSON to stderr, an optional console writer for interactive use, and
// size-based rotation for file output.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Level = zerolog.Level

const (
	TraceLevel = zerolog.TraceLevel
	DebugLevel = zerolog.DebugLevel
	InfoLevel  = zerolog.InfoLevel
	WarnLevel  = zerolog.WarnLevel
	ErrorLevel = zerolog.ErrorLevel
	Disabled   = zerolog.Disabled
)

// Logger is a leveled structured logger.
type Logger struct {
	l zerolog.Logger
}

// NewLogger creates a JSON logger writing to stderr at info level, then
// applies ops in order.
func NewLogger(ops ...Option) *Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.LevelFieldName = "level"
	zerolog.MessageFieldName = "message"
	zerolog.TimestampFieldName = "time"

	l := zerolog.New(os.Stderr).Level(InfoLevel).With().Timestamp().Logger()
	for _, o := range ops {
		l = o(l)
	}
	return &Logger{l: l}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{l: zerolog.Nop()}
}

// ConsoleWriter renders human readable lines, used by the CLI.
func ConsoleWriter(out io.Writer) io.Writer {
	console := zerolog.ConsoleWriter{Out: out, TimeFormat: time.DateTime}
	console.FormatLevel = func(i any) string {
		return strings.ToUpper(fmt.Sprintf("| %-5s|", i))
	}
	return console
}

// ParseLevel converts a level name, defaulting to info for an empty string.
func ParseLevel(s string) (Level, error) {
	if s == "" {
		return InfoLevel, nil
	}
	return zerolog.ParseLevel(strings.ToLower(s))
}

// SetLevel changes the minimum level.
func (my *Logger) SetLevel(level Level) {
	my.l = my.l.Level(level)
}

// With returns a context for building a child logger.
func (my *Logger) With() zerolog.Context {
	return my.l.With()
}

// Component returns a child logger tagged with component=name.
func (my *Logger) Component(name string) *Logger {
	return &Logger{l: my.l.With().Str("component", name).Logger()}
}

// Zerolog exposes the underlying logger.
func (my *Logger) Zerolog() zerolog.Logger {
	return my.l
}

func (my *Logger) Trace() *zerolog.Event { return my.l.Trace() }
func (my *Logger) Debug() *zerolog.Event { return my.l.Debug() }
func (my *Logger) Info() *zerolog.Event  { return my.l.Info() }
func (my *Logger) Warn() *zerolog.Event  { return my.l.Warn() }
func (my *Logger) Error() *zerolog.Event { return my.l.Error() }

var std = NewLogger()

// Default returns the process-wide logger.
func Default() *Logger { return std }

// SetDefault replaces the process-wide logger.
func SetDefault(l *Logger) { std = l }

// Component is Default().Component(name).
func Component(name string) *Logger { return std.Component(name) }

// OrDefault returns l, or a component of the default logger when l is nil.
func OrDefault(l *Logger, component string) *Logger {
	if l != nil {
		return l.Component(component)
	}
	return std.Component(component)
}
