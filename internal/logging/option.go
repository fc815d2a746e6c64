package logging

import (
	"io"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Option customizes a zerolog logger.
type Option func(zerolog.Logger) zerolog.Logger

// WithOutput sets the destination writer.
func WithOutput(out io.Writer) Option {
	return func(l zerolog.Logger) zerolog.Logger {
		return l.Output(out)
	}
}

// WithLevel sets the minimum level.
func WithLevel(level Level) Option {
	return func(l zerolog.Logger) zerolog.Logger {
		return l.Level(level)
	}
}

// Rotate configures size based rotation of a log file.
type Rotate struct {
	Filename   string
	MaxSize    int
	MaxAge     int
	MaxBackups int
	Compress   bool
}

// WithRotate writes to a lumberjack-managed file.
func WithRotate(r Rotate) Option {
	return WithOutput(&lumberjack.Logger{
		Filename:   r.Filename,
		MaxSize:    r.MaxSize,
		MaxAge:     r.MaxAge,
		MaxBackups: r.MaxBackups,
		Compress:   r.Compress,
		LocalTime:  true,
	})
}

// Config is the logging section of the mapper configuration.
type Config struct {
	Level      string `yaml:"level" json:"level"`
	Format     string `yaml:"format" json:"format"`
	File       string `yaml:"file" json:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxAgeDays int    `yaml:"max_age_days" json:"max_age_days"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

// FromConfig builds a logger from cfg. A file takes precedence over the
// console format.
func FromConfig(cfg Config, console io.Writer) (*Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	ops := []Option{WithLevel(level)}
	switch {
	case cfg.File != "":
		r := Rotate{Filename: cfg.File, MaxSize: 100, MaxAge: 7, MaxBackups: 3, Compress: cfg.Compress}
		if cfg.MaxSizeMB > 0 {
			r.MaxSize = cfg.MaxSizeMB
		}
		if cfg.MaxAgeDays > 0 {
			r.MaxAge = cfg.MaxAgeDays
		}
		if cfg.MaxBackups > 0 {
			r.MaxBackups = cfg.MaxBackups
		}
		ops = append(ops, WithRotate(r))
	case cfg.Format == "console" && console != nil:
		ops = append(ops, WithOutput(ConsoleWriter(console)))
	case console != nil:
		ops = append(ops, WithOutput(console))
	}
	return NewLogger(ops...), nil
}
