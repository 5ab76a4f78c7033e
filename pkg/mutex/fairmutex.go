package mutex

import (
	"sync/atomic"
	"unsafe"

	"github.com/harikrishnan94/synchronization-primitives/pkg/parkinglot"
	"github.com/harikrishnan94/synchronization-primitives/pkg/threadid"
)

// packFair combines a holder id and waiter count into the single word
// §3's fair lock word is updated as, so both fields move together under
// one CAS.
func packFair(holder threadid.ID, numWaiters uint32) uint64 {
	return uint64(uint32(holder))<<32 | uint64(numWaiters)
}

func unpackFair(w uint64) (holder threadid.ID, numWaiters uint32) {
	return threadid.ID(int32(w >> 32)), uint32(w)
}

// FairMutex is a strictly FIFO mutex: a release with waiters present
// transfers ownership directly to the longest-waiting announced waiter via
// a single CAS, rather than reopening the race the way [Mutex] does. See
// §4.3.
type FairMutex struct {
	word atomic.Uint64
	dom  *Domain
}

// NewFairMutex creates a FairMutex backed by [Default].
func NewFairMutex() *FairMutex {
	m := &FairMutex{dom: Default}
	m.word.Store(packFair(threadid.Invalid, 0))
	return m
}

// NewFairMutexIn creates a FairMutex backed by domain.
func NewFairMutexIn(domain *Domain) *FairMutex {
	m := &FairMutex{dom: domain}
	m.word.Store(packFair(threadid.Invalid, 0))
	return m
}

func (m *FairMutex) domain() *Domain {
	if m.dom != nil {
		return m.dom
	}
	return Default
}

func (m *FairMutex) key() parkinglot.Key {
	return parkinglot.KeyOf(unsafe.Pointer(m))
}

func (m *FairMutex) lot() *parkinglot.Lot[fairWaitNode] {
	return m.domain().fairLot
}

// TryLock attempts to acquire the lock on behalf of tid without blocking.
func (m *FairMutex) TryLock(tid threadid.ID) bool {
	return m.word.CompareAndSwap(packFair(threadid.Invalid, 0), packFair(tid, 0))
}

// Lock blocks until tid is granted ownership. The plain variant always
// returns [Locked].
func (m *FairMutex) Lock(tid threadid.ID) Outcome {
	for {
		if m.TryLock(tid) {
			return Locked
		}
		if !m.announceWaiter() {
			// Lock went unlocked between our failed TryLock and the
			// announce CAS; retry the fast path instead of parking.
			continue
		}

		node := fairWaitNode{tid: tid}
		m.lot().Park(m.key(), node, func() bool { return true })

		if holder, _ := unpackFair(m.word.Load()); holder == tid {
			return Locked
		}
		// Spurious wake without transfer: re-announce and park again.
	}
}

// announceWaiter CAS-increments num_waiters, but only while the lock is
// still held; it reports false if it instead observed the lock unlocked.
func (m *FairMutex) announceWaiter() bool {
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

// Unlock releases the lock, transferring it directly to the
// longest-waiting announced waiter if any are present.
func (m *FairMutex) Unlock() {
	for {
		w := m.word.Load()
		holder, n := unpackFair(w)
		if DebugChecks && holder == threadid.Invalid {
			panic("mutex: Unlock of unlocked FairMutex")
		}
		if n == 0 {
			if m.word.CompareAndSwap(w, packFair(threadid.Invalid, 0)) {
				return
			}
			continue
		}

		transferred := false
		m.lot().Unpark(m.key(), func(waiter fairWaitNode) parkinglot.UnparkControl {
			if !m.transferTo(waiter.tid) {
				return parkinglot.RetainAndContinue
			}
			transferred = true
			return parkinglot.RemoveAndBreak
		})
		if transferred {
			return
		}
		// Nobody eligible was actually queued yet (race between the
		// announce CAS and the park call); retry the whole release.
	}
}

// transferTo attempts the single-CAS ownership transfer described in
// §4.3's unlock algorithm: (self, n) → (waiter, n-1).
func (m *FairMutex) transferTo(waiter threadid.ID) bool {
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
func (m *FairMutex) IsLocked() bool {
	holder, _ := unpackFair(m.word.Load())
	return holder != threadid.Invalid
}
