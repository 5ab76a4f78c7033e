//go:build nomutexdebug

package mutex

// DebugChecks is false in a binary built with the nomutexdebug tag: misuse
// is undefined behavior with no assertion overhead, matching the release
// posture of the original design's assert-in-debug-only contract.
const DebugChecks = false
