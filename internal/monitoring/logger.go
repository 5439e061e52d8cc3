// Package monitoring holds the process logger and the operator-facing
// diagnostic outputs of the device.
package monitoring

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu     sync.RWMutex
	logger = newLogger(os.Stdout)
)

func newLogger(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetOutput(w)
	return l
}

// Logger returns the package-level logger.
func Logger() *logrus.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// SetLogger replaces the package logger. Passing nil installs a logger that
// discards everything, which tests use to stay quiet.
func SetLogger(l *logrus.Logger) {
	if l == nil {
		l = newLogger(io.Discard)
	}
	mu.Lock()
	logger = l
	mu.Unlock()
}

// SetLevel parses a level name such as "debug" or "warn".
func SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	Logger().SetLevel(lvl)
	return nil
}

// AddOutput tees log output to w in addition to the current output.
func AddOutput(w io.Writer) {
	l := Logger()
	l.SetOutput(io.MultiWriter(l.Out, w))
}
