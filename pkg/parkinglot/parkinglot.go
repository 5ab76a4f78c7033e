// Package parkinglot implements an address-keyed wait-queue facility: the
// external "parking lot" collaborator that the mutexes in
// [github.com/harikrishnan94/synchronization-primitives/pkg/mutex] use to
// suspend a contending goroutine and to wake exactly the right waiter(s) on
// release.
//
// Every parked goroutine is enqueued under a [Key] — the address of the
// lock it is contending for — carrying an arbitrary payload. Unpark walks
// the queue for a key in FIFO order and lets a caller-supplied visitor
// decide, node by node, whether to wake it and whether to keep scanning.
// This mirrors folly::ParkingLot (the collaborator named by the original
// design) without requiring every lock to own its own condition variable.
package parkinglot

import (
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/cpu"
)

// Key identifies a wait queue. Callers derive it from the address of the
// lock word they are contending for via [KeyOf], so two distinct locks
// never collide and a single lock always maps to the same queue.
type Key uintptr

// KeyOf returns the Key for the object at p. p must remain alive for as
// long as the Key is in use, which holds trivially here since the lock
// embedding the lock word outlives every goroutine that can contend on it.
func KeyOf(p unsafe.Pointer) Key {
	return Key(uintptr(p))
}

// ParkResult reports why Park or ParkFor returned.
type ParkResult int

const (
	// Unparked means another goroutine removed this node via Unpark.
	Unparked ParkResult = iota
	// Skipped means pre_check observed the wait condition had already
	// become false; the goroutine never slept.
	Skipped
	// TimedOut means the deadline passed with nobody unparking this node
	// (ParkFor only).
	TimedOut
)

// UnparkControl tells [Lot.Unpark] what to do with the node it just visited.
type UnparkControl int

const (
	// RemoveAndBreak wakes the visited node and stops scanning the queue.
	RemoveAndBreak UnparkControl = iota
	// RemoveAndContinue wakes the visited node and keeps scanning.
	RemoveAndContinue
	// RetainAndBreak leaves the node parked and stops scanning.
	RetainAndBreak
	// RetainAndContinue leaves the node parked and keeps scanning.
	RetainAndContinue
)

type node[P any] struct {
	key     Key
	payload P
	wake    chan struct{}
}

type bucket[P any] struct {
	mu    sync.Mutex
	nodes map[Key][]*node[P]
	_     cpu.CacheLinePad // keep neighboring shards' mutexes on separate lines
}

// Lot is a sharded collection of FIFO wait queues keyed by [Key], generic
// over the payload each parked waiter carries.
//
// The zero value is not usable; construct one with [New].
type Lot[P any] struct {
	shards []bucket[P]
}

// defaultShards bounds lock-striping contention without growing the table
// unreasonably for a process-local library; override with [NewShards] if a
// workload parks on many distinct addresses concurrently.
const defaultShards = 64

// New creates a Lot with a default number of shards.
func New[P any]() *Lot[P] {
	return NewShards[P](defaultShards)
}

// NewShards creates a Lot with the given number of shards. shards must be a
// positive power of two.
func NewShards[P any](shards int) *Lot[P] {
	if shards <= 0 || shards&(shards-1) != 0 {
		panic("parkinglot: shards must be a positive power of two")
	}
	l := &Lot[P]{shards: make([]bucket[P], shards)}
	for i := range l.shards {
		l.shards[i].nodes = make(map[Key][]*node[P])
	}
	return l
}

// fibonacciHash spreads a pointer-derived key across shards; raw addresses
// are usually aligned, so low bits alone would cluster onto few shards.
func fibonacciHash(k Key) uintptr {
	const multiplier = 0x9E3779B97F4A7C15
	return uintptr(k) * multiplier
}

func (l *Lot[P]) shardFor(key Key) *bucket[P] {
	idx := fibonacciHash(key) & uintptr(len(l.shards)-1)
	return &l.shards[idx]
}

// Park enqueues the calling goroutine under key with payload, then invokes
// preCheck while still holding the shard lock (so it cannot race an
// in-flight Unpark). If preCheck returns false, Park returns Skipped
// immediately without sleeping. Otherwise it sleeps until a visitor passed
// to Unpark removes this node.
func (l *Lot[P]) Park(key Key, payload P, preCheck func() bool) ParkResult {
	res, _ := l.park(key, payload, preCheck, nil, false, 0)
	return res
}

// ParkFor is Park with a deadline: if nobody unparks this node within
// timeout, Park returns TimedOut and the node is removed.
func (l *Lot[P]) ParkFor(key Key, payload P, preCheck func() bool, timeout time.Duration) ParkResult {
	res, _ := l.park(key, payload, preCheck, nil, true, timeout)
	return res
}

// ParkWithPreSleep is Park, additionally invoking preSleep — still under
// the shard lock, after preCheck passes but before actually sleeping. This
// matches the external parking-lot contract's pre_sleep hook, used by
// collaborators that must publish wait state atomically with enqueueing.
func (l *Lot[P]) ParkWithPreSleep(key Key, payload P, preCheck func() bool, preSleep func()) ParkResult {
	res, _ := l.park(key, payload, preCheck, preSleep, false, 0)
	return res
}

func (l *Lot[P]) park(key Key, payload P, preCheck func() bool, preSleep func(), timed bool, timeout time.Duration) (ParkResult, *node[P]) {
	b := l.shardFor(key)
	n := &node[P]{key: key, payload: payload, wake: make(chan struct{})}

	b.mu.Lock()
	b.nodes[key] = append(b.nodes[key], n)

	if !preCheck() {
		b.removeLocked(n)
		b.mu.Unlock()
		return Skipped, n
	}

	if preSleep != nil {
		preSleep()
	}
	b.mu.Unlock()

	if !timed {
		<-n.wake
		return Unparked, n
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-n.wake:
		return Unparked, n
	case <-timer.C:
		b.mu.Lock()
		// n may have been unparked in the race between the timer firing
		// and us acquiring the shard lock; prefer that outcome.
		if b.removeLocked(n) {
			b.mu.Unlock()
			return TimedOut, n
		}
		b.mu.Unlock()
		<-n.wake
		return Unparked, n
	}
}

// removeLocked removes n from its bucket's queue, reporting whether it was
// still present (it may already have been removed by a concurrent Unpark).
func (b *bucket[P]) removeLocked(n *node[P]) bool {
	queue := b.nodes[n.key]
	for i, candidate := range queue {
		if candidate == n {
			queue = append(queue[:i], queue[i+1:]...)
			if len(queue) == 0 {
				delete(b.nodes, n.key)
			} else {
				b.nodes[n.key] = queue
			}
			return true
		}
	}
	return false
}

// Unpark visits the nodes parked under key in FIFO order, invoking visitor
// on each payload and acting on its returned [UnparkControl]. Visitor runs
// while the shard's lock is held, so it must not call back into anything
// that could Park or Unpark on the same shard.
func (l *Lot[P]) Unpark(key Key, visitor func(payload P) UnparkControl) {
	b := l.shardFor(key)

	b.mu.Lock()
	defer b.mu.Unlock()

	queue := b.nodes[key]
	remaining := make([]*node[P], 0, len(queue))

	for i, n := range queue {
		ctrl := visitor(n.payload)

		switch ctrl {
		case RemoveAndContinue:
			close(n.wake)
			continue
		case RetainAndContinue:
			remaining = append(remaining, n)
			continue
		case RemoveAndBreak:
			close(n.wake)
			remaining = append(remaining, queue[i+1:]...)
		case RetainAndBreak:
			remaining = append(remaining, queue[i:]...)
		}
		break
	}

	if len(remaining) == 0 {
		delete(b.nodes, key)
	} else {
		b.nodes[key] = remaining
	}
}

// Waiting returns the number of goroutines currently parked under key. It
// is intended for tests and diagnostics, not for the hot acquisition path.
func (l *Lot[P]) Waiting(key Key) int {
	b := l.shardFor(key)
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.nodes[key])
}

// Contains reports whether any node currently parked under key has a
// payload matching match. Used by the deadlock detector to confirm a
// thread that announced a wait has actually parked, rather than still
// being in flight between announce and enqueue.
func (l *Lot[P]) Contains(key Key, match func(payload P) bool) bool {
	b := l.shardFor(key)
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, n := range b.nodes[key] {
		if match(n.payload) {
			return true
		}
	}
	return false
}
