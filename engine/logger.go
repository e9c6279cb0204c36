package engine

import (
	"sync"

	"go.uber.org/zap"
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once
)

// Logger returns the engine package's logger. It is a no-op logger until
// SetLogger is called by the embedding host.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
	})
	return logger
}

// SetLogger installs the logger used by the engine package.
func SetLogger(l *zap.Logger) {
	loggerOnce.Do(func() {})
	logger = l
}
