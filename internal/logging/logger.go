package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Options selects the level, output format and destination of a logger.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // text or json
	Output io.Writer
}

// New builds a logrus logger.
// JSON output is used when Format is "json" or when ENVIRONMENT=production,
// otherwise the human-readable text formatter.
func New(opts Options) *logrus.Logger {
	logger := logrus.New()

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	logger.SetOutput(out)

	format := strings.ToLower(opts.Format)
	if format == "" && strings.ToLower(os.Getenv("ENVIRONMENT")) == "production" {
		format = "json"
	}
	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}

// WithComponent returns a logger scoped to a named component.
func WithComponent(logger logrus.FieldLogger, component string) logrus.FieldLogger {
	if logger == nil {
		logger = Discard()
	}
	return logger.WithField("component", component)
}

// WithProfile returns a logger scoped to a Chrome profile directory.
func WithProfile(logger logrus.FieldLogger, profileDir string) logrus.FieldLogger {
	return logger.WithField("profile", profileDir)
}

// Discard returns a logger that drops everything. Used as the default when a
// component is constructed without one.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
