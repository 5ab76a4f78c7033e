//go:build !nomutexdebug

package mutex

// DebugChecks reports whether unlocking a lock that is not locked panics
// instead of silently corrupting the lock word. Built in by default; compile with the nomutexdebug tag to strip
// these checks from a release binary, mirroring how the pack's own
// debug-gated lock wrappers (sasha-s/go-deadlock and its adopters) are
// normally only linked into non-production builds.
const DebugChecks = true
