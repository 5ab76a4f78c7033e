// Package threadid assigns every live goroutine that participates in a
// [github.com/harikrishnan94/synchronization-primitives/pkg/mutex] lock a
// small dense integer identity.
//
// The lock word of a deadlock-safe mutex packs a holder identity into a
// handful of bits alongside its state flag, and the deadlock detector
// indexes per-thread wait-info by this identity as a plain array. Both
// depend on ids being dense (so the array stays small) and non-reused
// while the owning goroutine is alive (so a stale id can never be mistaken
// for a different, currently-waiting goroutine).
package threadid

import (
	"sync"

	"github.com/harikrishnan94/synchronization-primitives/pkg/lockerr"
)

// ID is a dense identifier in [0, Registry.MaxThreads). Invalid lies
// outside that range and never denotes a live registration.
type ID int32

// Invalid is the sentinel ID returned where no thread is registered.
const Invalid ID = -1

// DefaultMaxThreads bounds the number of simultaneously registered threads
// for [Default]. Chosen generously for a process-local lock library; call
// NewRegistry directly for a tighter bound.
const DefaultMaxThreads = 4096

// Registry hands out dense [ID] values for the lifetime of a thread
// (goroutine, worker, whatever the caller considers a "thread" for the
// purposes of mutual exclusion) and reclaims them on Unregister.
//
// A Registry is safe for concurrent use. The zero value is not usable;
// construct one with [NewRegistry].
type Registry struct {
	mu         sync.Mutex
	maxThreads int32
	freeList   []ID
	nextFresh  int32
}

// NewRegistry creates a Registry that can hold at most maxThreads
// concurrently-registered threads.
func NewRegistry(maxThreads int32) *Registry {
	if maxThreads <= 0 {
		panic("threadid: maxThreads must be positive")
	}
	return &Registry{maxThreads: maxThreads}
}

// MaxThreads returns the exclusive upper bound on ids this registry can
// hand out.
func (r *Registry) MaxThreads() int32 {
	return r.maxThreads
}

// ErrRegistryExhausted is returned by Register when every slot up to
// MaxThreads is currently occupied.
var ErrRegistryExhausted = lockerr.New(lockerr.CategoryConcurrency, "THREADID_EXHAUSTED", "threadid",
	"registry exhausted: no free thread id below MaxThreads")

// Register assigns the calling thread an id that no current registration
// holds. Ids released through Unregister are handed out again, the most
// recently released first; otherwise ids are assigned in increasing
// order from 0. The caller owns the id until it passes it to Unregister; the id must not
// be registered again while still held, and must not be used after being
// unregistered.
func (r *Registry) Register() (ID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n := len(r.freeList); n > 0 {
		id := r.freeList[n-1]
		r.freeList = r.freeList[:n-1]
		return id, nil
	}

	if r.nextFresh >= r.maxThreads {
		return Invalid, ErrRegistryExhausted
	}

	id := ID(r.nextFresh)
	r.nextFresh++
	return id, nil
}

// Unregister releases id back to the registry. It is undefined behavior to
// unregister an id that was not currently held, or to use it afterward.
func (r *Registry) Unregister(id ID) {
	if id < 0 || int32(id) >= r.maxThreads {
		panic("threadid: unregister of out-of-range id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.freeList = append(r.freeList, id)
}

// Default is a process-wide registry bounded by [DefaultMaxThreads]. Package
// mutex does not use it: each mutex.Domain, including mutex.Default,
// creates its own Registry.
var Default = NewRegistry(DefaultMaxThreads)
