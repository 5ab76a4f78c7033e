package logging

import (
	"log/slog"
	"os"
	"sync"
)

// Global logger instance and synchronization
var (
	logger   *slog.Logger
	loggerMu sync.RWMutex
	initOnce sync.Once
)

func initDefault() {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}
}

// GetLogger returns the current logger instance in a thread-safe manner,
// lazily initializing a stdout text logger on first use.
func GetLogger() *slog.Logger {
	loggerMu.RLock()
	l := logger
	loggerMu.RUnlock()
	if l != nil {
		return l
	}

	initOnce.Do(initDefault)

	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}

// Debug logs a debug message in a thread-safe manner
func Debug(msg string, args ...any) {
	GetLogger().Debug(msg, args...)
}

// Info logs an info message in a thread-safe manner
func Info(msg string, args ...any) {
	GetLogger().Info(msg, args...)
}

// Warn logs a warning message in a thread-safe manner
func Warn(msg string, args ...any) {
	GetLogger().Warn(msg, args...)
}

// Error logs an error message in a thread-safe manner
func Error(msg string, args ...any) {
	GetLogger().Error(msg, args...)
}
