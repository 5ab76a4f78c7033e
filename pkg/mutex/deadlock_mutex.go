package mutex

import (
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/harikrishnan94/synchronization-primitives/pkg/logging"
	"github.com/harikrishnan94/synchronization-primitives/pkg/parkinglot"
	"github.com/harikrishnan94/synchronization-primitives/pkg/threadid"
)

// defaultDetectTimeout is the nominal one-second bound §5 and §9 describe
// for the plain deadlock-safe variant's own timed park; after it elapses
// with nobody unparking the waiter, the waiter runs its own cycle search.
const defaultDetectTimeout = time.Second

// packedUnlocked is the all-ones-except-flag sentinel §3 specifies: every
// tid bit set (a value no real [threadid.ID] can take, since registries are
// bounded well below 1<<31) with the contention flag bit cleared.
const packedUnlocked uint32 = ^uint32(0) &^ 1

func packWord(tid threadid.ID, contended bool) uint32 {
	w := uint32(tid) << 1
	if contended {
		w |= 1
	}
	return w
}

func holderOf(w uint32) threadid.ID { return threadid.ID(w >> 1) }
func contendedOf(w uint32) bool     { return w&1 != 0 }

// DeadlockMutex is [Mutex] augmented with inline deadlock detection: when a
// contender's own timed park elapses without being woken, it searches the
// wait-for graph seeded at itself and, if a cycle confirms, returns
// [Deadlocked] instead of continuing to wait. See §4.4's "Plain Mutex
// variant" for the algorithm this implements.
type DeadlockMutex struct {
	word    atomic.Uint32
	dom     *Domain
	timeout time.Duration
}

// NewDeadlockMutex creates a DeadlockMutex backed by [Default] with the
// nominal one-second detection timeout.
func NewDeadlockMutex() *DeadlockMutex {
	m := &DeadlockMutex{dom: Default, timeout: defaultDetectTimeout}
	m.word.Store(packedUnlocked)
	return m
}

// NewDeadlockMutexIn creates a DeadlockMutex backed by domain, using
// timeout as the bound on its own timed park before running inline cycle
// detection. A non-positive timeout uses [defaultDetectTimeout].
func NewDeadlockMutexIn(domain *Domain, timeout time.Duration) *DeadlockMutex {
	if timeout <= 0 {
		timeout = defaultDetectTimeout
	}
	m := &DeadlockMutex{dom: domain, timeout: timeout}
	m.word.Store(packedUnlocked)
	return m
}

func (m *DeadlockMutex) domain() *Domain {
	if m.dom != nil {
		return m.dom
	}
	return Default
}

func (m *DeadlockMutex) key() parkinglot.Key {
	return parkinglot.KeyOf(unsafe.Pointer(m))
}

func (m *DeadlockMutex) lot() *parkinglot.Lot[struct{}] {
	return m.domain().plainLot
}

// TryLock attempts to acquire the lock without blocking on behalf of tid.
func (m *DeadlockMutex) TryLock(tid threadid.ID) bool {
	return m.word.CompareAndSwap(packedUnlocked, packWord(tid, false))
}

// Lock blocks until tid acquires the lock or this waiter's own inline
// detection diagnoses a cycle.
func (m *DeadlockMutex) Lock(tid threadid.ID) Outcome {
	dom := m.domain()
	for {
		if m.TryLock(tid) {
			return Locked
		}
		if m.uncontendedPathAvailable() {
			continue
		}

		dom.plainWaitOn[tid].Store(m)
		res := m.lot().ParkFor(m.key(), struct{}{}, func() bool {
			return contendedOf(m.word.Load())
		}, m.timeout)

		if res == parkinglot.TimedOut && m.detectCycle(tid) {
			logging.WithThread(int32(tid)).Debug("inline detection found a cycle, returning deadlocked")
			return Deadlocked
		}
		dom.plainWaitOn[tid].Store(nil)
	}
}

func (m *DeadlockMutex) uncontendedPathAvailable() bool {
	for {
		w := m.word.Load()
		switch {
		case w == packedUnlocked:
			return true
		case contendedOf(w):
			return false
		default:
			if m.word.CompareAndSwap(w, w|1) {
				return false
			}
		}
	}
}

// Unlock releases the lock. The caller must hold it; see [DebugChecks].
func (m *DeadlockMutex) Unlock() {
	prev := m.word.Swap(packedUnlocked)
	if DebugChecks && prev == packedUnlocked {
		panic("mutex: Unlock of unlocked DeadlockMutex")
	}
	if contendedOf(prev) {
		m.lot().Unpark(m.key(), func(struct{}) parkinglot.UnparkControl {
			return parkinglot.RemoveAndBreak
		})
	}
}

// IsLocked is a best-effort observation with no ordering guarantee for a
// caller that does not hold the lock.
func (m *DeadlockMutex) IsLocked() bool {
	return m.word.Load() != packedUnlocked
}

type plainPathEntry struct {
	tid  threadid.ID
	lock *DeadlockMutex
}

// detectCycle implements §4.4's plain-variant algorithm: walk holders[L] →
// waiters[H] alternately, seeded at tid's own announced wait, until either
// a lock that is unlocked, or whose holder has no announced wait, ends the
// search (no cycle) or a thread
// reappears (a cycle closes). A reappearance is only trusted after every
// participant's wait-info is re-read under the domain's single
// verification mutex and found unchanged from the scan.
func (m *DeadlockMutex) detectCycle(tid threadid.ID) bool {
	dom := m.domain()
	path := []plainPathEntry{{tid: tid, lock: m}}
	seen := map[threadid.ID]bool{tid: true}
	cur := m

	for {
		w := cur.word.Load()
		if w == packedUnlocked {
			return false
		}
		holder := holderOf(w)
		waitingOn := dom.plainWaitOn[holder].Load()
		if waitingOn == nil {
			return false
		}
		if seen[holder] {
			return verifyPlainCycle(dom, tid, path)
		}
		seen[holder] = true
		path = append(path, plainPathEntry{tid: holder, lock: waitingOn})
		cur = waitingOn
	}
}

// verifyPlainCycle re-reads every path participant's wait-info under the
// domain's single verification mutex and confirms it is unchanged from the
// scan. On success it also denounces tid's own wait (mirroring the
// original's denounce_wait() call from inside verify_deadlock()) before the
// mutex is released, so a concurrent verifier on the other side of the same
// cycle can never observe tid's now-stale entry and independently confirm
// the same cycle — only the thread that wins the race under plainVerifyMu
// clears its slot and returns Deadlocked.
func verifyPlainCycle(dom *Domain, tid threadid.ID, path []plainPathEntry) bool {
	dom.plainVerifyMu.Lock()
	defer dom.plainVerifyMu.Unlock()

	for _, e := range path {
		if dom.plainWaitOn[e.tid].Load() != e.lock {
			return false
		}
	}
	dom.plainWaitOn[tid].Store(nil)
	return true
}
