package logging

import (
	"log/slog"
)

// WithThread creates a logger with thread-id context.
// Use this to automatically include the registered thread id in all logs
// emitted while handling a particular acquisition attempt.
//
// Example:
//
//	log := logging.WithThread(tid)
//	log.Debug("parked on contended lock")
func WithThread(tid int32) *slog.Logger {
	return GetLogger().With("tid", tid)
}

// WithLock creates a logger with lock-identity context.
// Useful for mutex and detector operations, where resource is a stable
// string derived from the lock's address.
//
// Example:
//
//	log := logging.WithLock(tid, resource)
//	log.Info("lock acquired")
func WithLock(tid int32, resource string) *slog.Logger {
	return GetLogger().With("tid", tid, "resource", resource)
}

// WithComponent creates a logger with component/subsystem context.
//
// Example:
//
//	log := logging.WithComponent("detector")
//	log.Info("sweep starting")
func WithComponent(component string) *slog.Logger {
	return GetLogger().With("component", component)
}

// WithError creates a logger with error context.
// Use this when logging errors to include the error in structured format.
//
// Example:
//
//	log := logging.WithError(err)
//	log.Error("sweep failed")
func WithError(err error) *slog.Logger {
	return GetLogger().With("error", err.Error())
}
