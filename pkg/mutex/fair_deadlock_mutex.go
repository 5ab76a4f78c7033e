package mutex

import (
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/harikrishnan94/synchronization-primitives/pkg/parkinglot"
	"github.com/harikrishnan94/synchronization-primitives/pkg/threadid"
)

// FairDeadlockMutex is [FairMutex] with its waits tracked in the domain's
// per-thread wait-info table, so [DetectDeadlocks] can find and break
// cycles among them. See §4.3 and §4.4.
type FairDeadlockMutex struct {
	word atomic.Uint64
	dom  *Domain
}

// NewFairDeadlockMutex creates a FairDeadlockMutex backed by [Default].
func NewFairDeadlockMutex() *FairDeadlockMutex {
	m := &FairDeadlockMutex{dom: Default}
	m.word.Store(packFair(threadid.Invalid, 0))
	return m
}

// NewFairDeadlockMutexIn creates a FairDeadlockMutex backed by domain.
func NewFairDeadlockMutexIn(domain *Domain) *FairDeadlockMutex {
	m := &FairDeadlockMutex{dom: domain}
	m.word.Store(packFair(threadid.Invalid, 0))
	return m
}

func (m *FairDeadlockMutex) domain() *Domain {
	if m.dom != nil {
		return m.dom
	}
	return Default
}

func (m *FairDeadlockMutex) key() parkinglot.Key {
	return parkinglot.KeyOf(unsafe.Pointer(m))
}

func (m *FairDeadlockMutex) lot() *parkinglot.Lot[fairWaitNode] {
	return m.domain().fairLot
}

// TryLock attempts to acquire the lock on behalf of tid without blocking.
func (m *FairDeadlockMutex) TryLock(tid threadid.ID) bool {
	return m.word.CompareAndSwap(packFair(threadid.Invalid, 0), packFair(tid, 0))
}

// Lock blocks until tid is granted ownership or [DetectDeadlocks] selects
// tid as a cycle's victim.
func (m *FairDeadlockMutex) Lock(tid threadid.ID) Outcome {
	dom := m.domain()
	for {
		if m.TryLock(tid) {
			return Locked
		}
		if !m.announceWaiter() {
			continue
		}

		var deadlocked bool
		token := dom.fairWaitInfo[tid].announce(m, time.Now().UnixNano())
		node := fairWaitNode{tid: tid, waitToken: token, deadlocked: &deadlocked}

		m.lot().Park(m.key(), node, func() bool { return true })
		dom.fairWaitInfo[tid].denounce()

		if deadlocked {
			m.decrementWaiters()
			return Deadlocked
		}
		if holder, _ := unpackFair(m.word.Load()); holder == tid {
			return Locked
		}
		// Spurious wake without transfer or deadlock: re-announce.
	}
}

func (m *FairDeadlockMutex) announceWaiter() bool {
	for {
		w := m.word.Load()
		holder, n := unpackFair(w)
		if holder == threadid.Invalid {
			return false
		}
		if m.word.CompareAndSwap(w, packFair(holder, n+1)) {
			return true
		}
	}
}

func (m *FairDeadlockMutex) decrementWaiters() {
	for {
		w := m.word.Load()
		holder, n := unpackFair(w)
		if n == 0 {
			return
		}
		if m.word.CompareAndSwap(w, packFair(holder, n-1)) {
			return
		}
	}
}

// Unlock releases the lock, transferring it directly to the
// longest-waiting announced waiter that the detector has not already
// flagged as a victim.
func (m *FairDeadlockMutex) Unlock() {
	for {
		w := m.word.Load()
		holder, n := unpackFair(w)
		if DebugChecks && holder == threadid.Invalid {
			panic("mutex: Unlock of unlocked FairDeadlockMutex")
		}
		if n == 0 {
			if m.word.CompareAndSwap(w, packFair(threadid.Invalid, 0)) {
				return
			}
			continue
		}

		transferred := false
		m.lot().Unpark(m.key(), func(waiter fairWaitNode) parkinglot.UnparkControl {
			if waiter.deadlocked != nil && *waiter.deadlocked {
				// Already claimed by the detector; leave it for that
				// Unpark call to remove and wake.
				return parkinglot.RetainAndContinue
			}
			if !m.transferTo(waiter.tid) {
				return parkinglot.RetainAndContinue
			}
			transferred = true
			return parkinglot.RemoveAndBreak
		})
		if transferred {
			return
		}
	}
}

func (m *FairDeadlockMutex) transferTo(waiter threadid.ID) bool {
	for {
		w := m.word.Load()
		_, n := unpackFair(w)
		if n == 0 {
			return false
		}
		if m.word.CompareAndSwap(w, packFair(waiter, n-1)) {
			return true
		}
	}
}

// IsLocked is a best-effort observation with no ordering guarantee for a
// caller that does not hold the lock.
func (m *FairDeadlockMutex) IsLocked() bool {
	holder, _ := unpackFair(m.word.Load())
	return holder != threadid.Invalid
}
