// Package log provides a logger adapter interface so the rest of the
// module does not depend on a logging library directly.
package log

import "github.com/sirupsen/logrus"

// Logger is the logging surface every service and handler depends on.
type Logger interface {
	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})

	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})

	// WithField returns a Logger that always includes the given field,
	// e.g. request id or short code.
	WithField(key string, value interface{}) Logger
}

// logrusLogger adapts logrus.FieldLogger to Logger.
type logrusLogger struct {
	entry logrus.FieldLogger
}

// NewLogrus wraps a logrus logger (or entry) as a Logger.
func NewLogrus(entry logrus.FieldLogger) Logger {
	return &logrusLogger{entry: entry}
}

func (l *logrusLogger) Debug(args ...interface{}) { l.entry.Debug(args...) }
func (l *logrusLogger) Info(args ...interface{})  { l.entry.Info(args...) }
func (l *logrusLogger) Warn(args ...interface{})  { l.entry.Warn(args...) }
func (l *logrusLogger) Error(args ...interface{}) { l.entry.Error(args...) }

func (l *logrusLogger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *logrusLogger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *logrusLogger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *logrusLogger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

func (l *logrusLogger) WithField(key string, value interface{}) Logger {
	return &logrusLogger{entry: l.entry.WithField(key, value)}
}
