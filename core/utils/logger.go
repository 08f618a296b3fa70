package utils

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is a thin facade over logrus keeping the Printf-style surface the
// rest of the codebase expects.
type Logger struct {
	l *logrus.Logger
}

func NewLogger() *Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	return &Logger{l: l}
}

// NewSilentLogger discards all output. Used by tests.
func NewSilentLogger() *Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &Logger{l: l}
}

func (lg *Logger) Printf(format string, args ...any) {
	if lg == nil || lg.l == nil {
		return
	}
	lg.l.Infof(format, args...)
}

func (lg *Logger) Warnf(format string, args ...any) {
	if lg == nil || lg.l == nil {
		return
	}
	lg.l.Warnf(format, args...)
}

func (lg *Logger) Errorf(format string, args ...any) {
	if lg == nil || lg.l == nil {
		return
	}
	lg.l.Errorf(format, args...)
}

// WithField returns a logrus entry for call sites that want structured
// fields instead of the Printf surface.
func (lg *Logger) WithField(key string, value any) *logrus.Entry {
	if lg == nil || lg.l == nil {
		return logrus.NewEntry(logrus.StandardLogger())
	}
	return lg.l.WithField(key, value)
}
