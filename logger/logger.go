// Package logger provides the leveled, subsystem-tagged logging used across
// lanbridge, built on logrus.
package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

var base = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	l.SetLevel(logrus.InfoLevel)
	return l
}()

// SetLevelFromString parses s ("debug", "info", "warn", "error") and applies
// it to the package-wide base logger.
func SetLevelFromString(s string) error {
	lvl, err := logrus.ParseLevel(s)
	if err != nil {
		return err
	}
	base.SetLevel(lvl)
	return nil
}

// Logger is a component-scoped entry point: every call is tagged with the
// "component" field it was constructed with.
type Logger struct {
	entry *logrus.Entry
}

// New returns a Logger tagged with component, e.g. "room", "scaffold.server",
// "overlay".
func New(component string) *Logger {
	return &Logger{entry: base.WithField("component", component)}
}

// With returns a derived Logger carrying an additional structured field,
// e.g. lg.With("machine_id", id).
func (l *Logger) With(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

func (l *Logger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

// Default returns the root logger with no component tag, for one-off use
// (e.g. cmd/lanbridged's own start-up/shutdown lines).
func Default() *Logger {
	return &Logger{entry: logrus.NewEntry(base)}
}
