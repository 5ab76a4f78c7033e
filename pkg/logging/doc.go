// Package logging provides a process-wide structured logger for the
// synchronization-primitives module.
//
// The package wraps [log/slog] and exposes a single global logger instance
// that is initialized once and then retrieved via GetLogger. All subsystems
// should obtain a logger through this package rather than constructing their
// own slog.Logger values, so that log level and output destination are
// controlled from a single place.
//
// # Retrieving the logger
//
//	logger := logging.GetLogger()
//	logger.Info("detector sweep complete", "broken", n)
//
// The first call to GetLogger lazily creates an INFO-level stdout text
// logger (via sync.Once), so packages that log during init are safe. There
// is no separate initialization step and no configuration surface: this
// module has no files or sockets to source a log level or output path
// from.
//
// # Context helpers
//
// Several helpers return child loggers pre-populated with structured fields,
// reducing repetition in hot paths:
//
//	log := logging.WithThread(tid)       // adds tid field
//	log := logging.WithLock(tid, addr)   // adds tid and resource fields
//	log := logging.WithComponent(name)   // adds component field
package logging
