// Package logging builds the structured logger shared by the service.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is the structured logger handed to components.
type Logger = logrus.FieldLogger

// Fields represents structured logging fields.
type Fields = logrus.Fields

// New returns a JSON logger tagged with the service name. Unknown or empty
// levels default to info.
func New(service, level string) Logger {
	return NewWithOutput(service, level, os.Stderr)
}

// NewWithOutput is New writing to out. stdio transports reserve stdout for
// protocol traffic, so callers pass stderr or a file there.
func NewWithOutput(service, level string, out io.Writer) Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(out)
	logger.SetLevel(ParseLevel(level))
	return logger.WithField("service", service)
}

// ParseLevel maps a level name onto a logrus level.
func ParseLevel(level string) logrus.Level {
	parsed, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return logrus.InfoLevel
	}
	return parsed
}

// Discard returns a logger that drops every entry.
func Discard() Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
