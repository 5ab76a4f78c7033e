package mutex

import (
	"sync/atomic"
	"unsafe"

	"github.com/harikrishnan94/synchronization-primitives/pkg/parkinglot"
)

const (
	wordUnlocked int32 = iota
	wordLocked
	wordContended
)

// Mutex is the plain, contention-sensitive lock described in §4.1–4.2: a
// single CAS acquires it when uncontended, and a contended acquirer parks
// rather than queueing in FIFO order. Use [FairMutex] when acquisition
// order across waiters matters.
//
// The zero value is an unlocked Mutex ready to use; it parks on
// [Default]'s parking-lot. Construct with [NewMutexIn] to use an
// isolated [Domain].
type Mutex struct {
	word   atomic.Int32
	domain *Domain
}

// NewMutex creates a Mutex backed by [Default].
func NewMutex() *Mutex {
	return &Mutex{domain: Default}
}

// NewMutexIn creates a Mutex backed by domain, so its contention parks on
// domain's own parking-lot rather than the shared default one.
func NewMutexIn(domain *Domain) *Mutex {
	return &Mutex{domain: domain}
}

func (m *Mutex) key() parkinglot.Key {
	return parkinglot.KeyOf(unsafe.Pointer(m))
}

func (m *Mutex) lot() *parkinglot.Lot[struct{}] {
	if m.domain != nil {
		return m.domain.plainLot
	}
	return Default.plainLot
}

// TryLock attempts to acquire the lock without blocking, reporting whether
// it succeeded.
func (m *Mutex) TryLock() bool {
	return m.word.CompareAndSwap(wordUnlocked, wordLocked)
}

// Lock blocks until the lock is acquired. The plain variant always returns
// [Locked]; it never diagnoses deadlock.
func (m *Mutex) Lock() Outcome {
	// Once this caller has parked, other waiters may still be parked
	// behind it, so it acquires straight into the contended state; its
	// own Unlock then wakes the next waiter.
	acquireAs := wordLocked
	for {
		if m.word.CompareAndSwap(wordUnlocked, acquireAs) {
			return Locked
		}
		if m.uncontendedPathAvailable() {
			continue
		}
		key := m.key()
		m.lot().Park(key, struct{}{}, func() bool {
			return m.word.Load() == wordContended
		})
		acquireAs = wordContended
	}
}

// uncontendedPathAvailable spins until it either observes the lock word has
// gone back to unlocked (the caller should retry TryLock) or it has flagged
// the word contended (the caller should park), per §4.1's L→C transition.
func (m *Mutex) uncontendedPathAvailable() bool {
	for {
		switch m.word.Load() {
		case wordUnlocked:
			return true
		case wordContended:
			return false
		default:
			if m.word.CompareAndSwap(wordLocked, wordContended) {
				return false
			}
		}
	}
}

// Unlock releases the lock. The caller must hold it; see [DebugChecks].
func (m *Mutex) Unlock() {
	prev := m.word.Swap(wordUnlocked)
	if DebugChecks && prev == wordUnlocked {
		panic("mutex: Unlock of unlocked Mutex")
	}
	if prev == wordContended {
		m.lot().Unpark(m.key(), func(struct{}) parkinglot.UnparkControl {
			return parkinglot.RemoveAndBreak
		})
	}
}

// IsLocked is a best-effort observation with no ordering guarantee for a
// caller that does not hold the lock.
func (m *Mutex) IsLocked() bool {
	return m.word.Load() != wordUnlocked
}
