package mutex

import (
	"unsafe"

	"github.com/harikrishnan94/synchronization-primitives/pkg/logging"
	"github.com/harikrishnan94/synchronization-primitives/pkg/parkinglot"
	"github.com/harikrishnan94/synchronization-primitives/pkg/threadid"
)

// fairWaiterSnapshot is one entry of the snapshot phase's waiters map: the
// lock a thread was observed waiting on, and the episode token recorded at
// that instant.
type fairWaiterSnapshot struct {
	lock  *FairDeadlockMutex
	token uint64
}

// DetectDeadlocks sweeps domain's [FairDeadlockMutex] wait-for graph,
// breaking one cycle per iteration until none remain, and returns the
// number of cycles broken. It never runs implicitly — callers invoke it
// on demand or from a periodic background goroutine. See §4.4.
func (d *Domain) DetectDeadlocks() int {
	broken := 0
	for d.sweepOnce() {
		broken++
	}
	if broken > 0 {
		logging.WithComponent("detector").Info("broke deadlock cycles", "count", broken)
	}
	return broken
}

// DetectDeadlocks sweeps [Default]. See [Domain.DetectDeadlocks].
func DetectDeadlocks() int {
	return Default.DetectDeadlocks()
}

// sweepOnce performs one scan → find-cycle → verify-and-break pass,
// reporting whether it broke a cycle.
func (d *Domain) sweepOnce() bool {
	waiters, holders := d.snapshotWaitForGraph()

	for seed := range waiters {
		cycle := findCycle(seed, waiters, holders)
		if cycle == nil {
			continue
		}
		victim, ok := selectVictim(d, cycle, waiters)
		if !ok {
			continue
		}
		if d.breakWaiter(victim, waiters[victim]) {
			return true
		}
	}
	return false
}

// snapshotWaitForGraph implements §4.4's snapshot phase: for every
// announced wait that has actually parked and whose lock is actually
// held, record it in the two process-wide maps the cycle search
// alternates between.
func (d *Domain) snapshotWaitForGraph() (waiters map[threadid.ID]fairWaiterSnapshot, holders map[*FairDeadlockMutex]threadid.ID) {
	waiters = make(map[threadid.ID]fairWaiterSnapshot)
	holders = make(map[*FairDeadlockMutex]threadid.ID)

	for i := range d.fairWaitInfo {
		tid := threadid.ID(i)
		slot := &d.fairWaitInfo[i]

		lock := slot.waitingOn.Load()
		if lock == nil {
			continue
		}
		token := slot.waitToken.Load()

		holder, _ := unpackFair(lock.word.Load())
		if holder == threadid.Invalid {
			continue
		}
		if !d.fairLot.Contains(lock.key(), func(n fairWaitNode) bool {
			return n.tid == tid && n.waitToken == token
		}) {
			continue
		}

		waiters[tid] = fairWaiterSnapshot{lock: lock, token: token}
		holders[lock] = holder
	}
	return waiters, holders
}

// findCycle walks holders[L] → waiters[H] starting from seed's own wait,
// per §4.4's cycle-search rule, returning the cyclic subpath (as thread
// ids) if one closes, or nil if the chain runs off the graph first.
func findCycle(seed threadid.ID, waiters map[threadid.ID]fairWaiterSnapshot, holders map[*FairDeadlockMutex]threadid.ID) []threadid.ID {
	lock := waiters[seed].lock
	path := make([]threadid.ID, 0, len(waiters))
	index := make(map[threadid.ID]int, len(waiters))

	for {
		holder, ok := holders[lock]
		if !ok {
			return nil
		}
		if idx, seen := index[holder]; seen {
			return path[idx:]
		}
		index[holder] = len(path)
		path = append(path, holder)

		info, ok := waiters[holder]
		if !ok {
			return nil
		}
		lock = info.lock
	}
}

// selectVictim implements §4.4's verification-then-selection step as two
// clearly separate passes (per §9's open question): first confirm every
// cycle member's wait-info is unchanged from the scan, and only once the
// whole cycle verifies do we pick the member with the largest
// wait_start_time, ties resolving to the first seen.
func selectVictim(d *Domain, cycle []threadid.ID, waiters map[threadid.ID]fairWaiterSnapshot) (threadid.ID, bool) {
	for _, tid := range cycle {
		if d.fairWaitInfo[tid].waitingOn.Load() != waiters[tid].lock {
			return threadid.Invalid, false
		}
	}

	victim := cycle[0]
	latest := d.fairWaitInfo[victim].waitStart.Load()
	for _, tid := range cycle[1:] {
		if start := d.fairWaitInfo[tid].waitStart.Load(); start > latest {
			latest = start
			victim = tid
		}
	}
	return victim, true
}

// breakWaiter implements §4.4's break step: find the parking-lot node
// matching both tid and the recorded token (ABA-safe against a later,
// unrelated wait episode), flag it deadlocked, and unpark it. A missing
// node is a no-op, not an error.
func (d *Domain) breakWaiter(tid threadid.ID, snap fairWaiterSnapshot) bool {
	broke := false
	d.fairLot.Unpark(snap.lock.key(), func(n fairWaitNode) parkinglot.UnparkControl {
		if n.tid != tid || n.waitToken != snap.token {
			return parkinglot.RetainAndContinue
		}
		*n.deadlocked = true
		broke = true
		return parkinglot.RemoveAndBreak
	})
	if broke {
		logging.WithThread(int32(tid)).Debug("selected as deadlock victim",
			"resource", uintptr(unsafe.Pointer(snap.lock)))
	}
	return broke
}
