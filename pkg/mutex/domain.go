package mutex

import (
	"sync"
	"sync/atomic"

	"github.com/harikrishnan94/synchronization-primitives/pkg/parkinglot"
	"github.com/harikrishnan94/synchronization-primitives/pkg/threadid"
	"golang.org/x/sys/cpu"
)

// fairWaitNode is the payload a FairMutex / FairDeadlockMutex waiter parks
// with. deadlocked is non-nil only for the deadlock-safe variant: it is a
// pointer into the waiter's own stack frame that the detector, running on
// another goroutine, sets to true right before unparking the victim.
type fairWaitNode struct {
	tid        threadid.ID
	waitToken  uint64
	deadlocked *bool
}

// fairThreadWaitInfo is one deadlock-safe FairMutex waiter's published
// state: which lock it is blocked on (nil if none), when it started
// waiting, and a monotonically increasing episode counter. Padded to a
// cache line because the detector's snapshot pass reads every slot while
// the owning thread may concurrently write its own.
type fairThreadWaitInfo struct {
	waitingOn  atomic.Pointer[FairDeadlockMutex]
	waitStart  atomic.Int64 // time.Now().UnixNano() when waitingOn was last set
	waitToken  atomic.Uint64
	_          cpu.CacheLinePad
}

func (w *fairThreadWaitInfo) announce(lock *FairDeadlockMutex, nowNano int64) uint64 {
	w.waitStart.Store(nowNano)
	w.waitingOn.Store(lock)
	return w.waitToken.Add(1)
}

func (w *fairThreadWaitInfo) denounce() {
	w.waitingOn.Store(nil)
}

// Domain bundles the collaborators every lock in this package needs: dense
// thread identity, address-keyed wait queues, and — for the deadlock-safe
// variants — the process-wide per-thread wait-info the detector scans.
//
// Two locks only contend with each other for deadlock-detection purposes
// if they share a Domain (in particular, only if they share a
// [threadid.Registry], since wait-info is indexed by [threadid.ID]).
// [Default] is shared by the package-level constructors; construct an
// isolated Domain with [NewDomain] for tests or independent lock subsystems.
type Domain struct {
	Registry *threadid.Registry

	plainLot *parkinglot.Lot[struct{}]
	fairLot  *parkinglot.Lot[fairWaitNode]

	// plainVerifyMu serializes the re-read step of DeadlockMutex's inline
	// detection across threads, per §5's single process-wide verification
	// mutex.
	plainVerifyMu sync.Mutex
	plainWaitOn   []atomic.Pointer[DeadlockMutex]

	fairWaitInfo []fairThreadWaitInfo
}

// NewDomain creates a Domain whose deadlock-safe variants can track at
// most maxThreads concurrently registered threads.
func NewDomain(maxThreads int32) *Domain {
	return &Domain{
		Registry:     threadid.NewRegistry(maxThreads),
		plainLot:     parkinglot.New[struct{}](),
		fairLot:      parkinglot.New[fairWaitNode](),
		plainWaitOn:  make([]atomic.Pointer[DeadlockMutex], maxThreads),
		fairWaitInfo: make([]fairThreadWaitInfo, maxThreads),
	}
}

// Default is the Domain used by the package-level constructors ([NewMutex],
// [NewDeadlockMutex], [NewFairMutex], [NewFairDeadlockMutex]) when the
// caller does not need isolation from the rest of the process.
var Default = NewDomain(threadid.DefaultMaxThreads)
