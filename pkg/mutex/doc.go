// Package mutex implements two process-local mutual-exclusion primitives,
// each available in a plain variant and a deadlock-detecting variant.
//
// # Overview
//
//   - [Mutex] / [DeadlockMutex] — a compact, contention-sensitive lock. A
//     single CAS acquires it when uncontended; a contended acquirer parks
//     on the [parkinglot.Lot] keyed by the lock's own address and, on wake,
//     retries rather than assuming ownership ("wake one, try again" — no
//     FIFO guarantee).
//   - [FairMutex] / [FairDeadlockMutex] — a strictly FIFO lock. A release
//     with waiters present transfers ownership directly to the
//     longest-waiting announced waiter via a single CAS, rather than
//     reopening the race.
//
// The "DeadlockMutex" and "FairDeadlockMutex" variants additionally track,
// per registered [threadid.ID], which lock (if any) the thread currently
// blocks on. [DeadlockMutex.Lock] detects cycles inline from its own timed
// park; [DetectDeadlocks] sweeps the fair variant's wait-for graph on
// demand (e.g. from a periodic background goroutine) and breaks exactly
// one waiter per cycle found.
//
// # Components
//
// A [Domain] bundles the three collaborators every lock in this package
// needs: a [threadid.Registry] for dense thread identity, a
// [parkinglot.Lot] for address-keyed wait queues, and — for the
// deadlock-safe variants — the process-wide per-thread wait-info table the
// detector scans. [Default] is a ready-to-use Domain shared by the
// package-level constructors ([NewMutex], [NewDeadlockMutex], [NewFairMutex],
// [NewFairDeadlockMutex]); tests and callers that want isolation from other
// locks in the process construct their own with [NewDomain].
//
// # Deadlock detection
//
// Detection never runs on a hot, uncontended path: it only examines
// threads that have already announced a wait and, for the fair variant,
// already parked. A sweep snapshots "who waits for what" and "who holds
// what" from that state, walks the implied wait-for graph looking for a
// cycle, re-reads every participant's wait-info to confirm nothing moved
// between the scan and the decision, and only then picks a victim — the
// cycle member that started waiting most recently. See [DetectDeadlocks]
// for the full contract.
//
// # Misuse
//
// Unlocking a lock the caller does not hold is undefined behavior in a
// release build. Debug builds (the default — see [DebugChecks]) panic when
// Unlock finds the lock not locked at all; unlocking a lock held by another
// thread is not detected. Registering more threads than a Domain's
// capacity is reported by [threadid.Registry.Register] as
// [threadid.ErrRegistryExhausted], in every build.
package mutex
