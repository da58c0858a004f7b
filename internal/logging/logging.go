// Package logging wraps logrus behind a narrow interface so components
// depend on a small contract rather than the full logrus API surface.
package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Logger is the logging contract threaded through every component
// constructor. It is satisfied by *logrus.Logger and by the result of
// WithField/WithFields.
type Logger interface {
	logrus.FieldLogger
	// Writer returns a pipe that forwards written lines to this logger at
	// Info level, for adapting subprocess stdout into structured log lines.
	Writer() *io.PipeWriter
}

// New constructs a text-formatted, timestamped root logger.
func New() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}
