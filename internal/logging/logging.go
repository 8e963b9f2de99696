// Package logging wraps logrus so every component logs through one
// configured instance instead of the stdlib log package.
package logging

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is a thin wrapper around *logrus.Logger.
type Logger struct {
	*logrus.Logger
}

// Config controls level/format/output, populated from internal/config.
type Config struct {
	Level  string
	Format string
}

// New builds a Logger from cfg, defaulting to info/text on stdout.
func New(cfg Config) *Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	l.SetOutput(os.Stdout)
	return &Logger{Logger: l}
}

// NewDefault returns a Logger with sane defaults, for tests and the
// handful of call sites that run before configuration is loaded.
func NewDefault() *Logger {
	return New(Config{Level: "info", Format: "text"})
}

func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.Logger.WithField(key, value)
}

func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	return l.Logger.WithFields(fields)
}
