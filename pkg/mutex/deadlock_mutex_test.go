package mutex

import (
	"testing"
	"time"

	"github.com/harikrishnan94/synchronization-primitives/pkg/parkinglot"
	"github.com/harikrishnan94/synchronization-primitives/pkg/threadid"
)

// waitForPlainWaiter blocks until some thread has actually parked on key in
// dom's plain wait-queue, so a cycle test can be sure both sides have
// announced their wait before either side's detection timeout can fire.
func waitForPlainWaiter(t *testing.T, dom *Domain, key parkinglot.Key) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if dom.plainLot.Contains(key, func(struct{}) bool { return true }) {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for waiter to park")
}

func TestDeadlockMutexUncontended(t *testing.T) {
	dom := NewDomain(16)
	m := NewDeadlockMutexIn(dom, 0)
	a := mustRegister(t, dom)

	if got := m.Lock(a); got != Locked {
		t.Fatalf("Lock() = %v, want Locked", got)
	}
	m.Unlock()
}

func TestDeadlockMutexUnlockOfUnlockedPanics(t *testing.T) {
	if !DebugChecks {
		t.Skip("DebugChecks disabled in this build")
	}
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic unlocking an unlocked DeadlockMutex")
		}
	}()
	NewDeadlockMutex().Unlock()
}

// TestDeadlockMutexSlowHolderNoFalsePositive exercises scenario 6: a slow
// holder that outlives several detection timeouts must not cause the
// waiter to be falsely diagnosed as deadlocked.
func TestDeadlockMutexSlowHolderNoFalsePositive(t *testing.T) {
	dom := NewDomain(16)
	m := NewDeadlockMutexIn(dom, 10*time.Millisecond)
	a := mustRegister(t, dom)
	b := mustRegister(t, dom)

	m.Lock(a)

	done := make(chan Outcome, 1)
	go func() { done <- m.Lock(b) }()

	time.Sleep(10 * 10 * time.Millisecond)
	m.Unlock()

	select {
	case got := <-done:
		if got != Locked {
			t.Fatalf("Lock(b) = %v, want Locked", got)
		}
	case <-time.After(time.Second):
		t.Fatal("b never returned from Lock")
	}
}

// TestDeadlockMutexTwoThreadCycle exercises scenario 4 for the plain
// deadlock-safe variant: A holds L1 and blocks on L2; B holds L2 and blocks
// on L1. Each side's own timed park elapses and runs inline detection;
// exactly one of A, B must return Deadlocked while the other goes on to
// hold both locks, mirroring TestFairDeadlockMutexTwoThreadCycle.
func TestDeadlockMutexTwoThreadCycle(t *testing.T) {
	dom := NewDomain(16)
	l1 := NewDeadlockMutexIn(dom, 20*time.Millisecond)
	l2 := NewDeadlockMutexIn(dom, 20*time.Millisecond)
	a := mustRegister(t, dom)
	b := mustRegister(t, dom)

	l1.Lock(a)
	l2.Lock(b)

	aResult := make(chan Outcome, 1)
	bResult := make(chan Outcome, 1)
	// The caller that receives Deadlocked does not hold the lock it just
	// tried for, and per §7 must recover by releasing what it does hold so
	// the other participant in the cycle can make progress.
	go func() {
		r := l2.Lock(a)
		if r == Deadlocked {
			l1.Unlock()
		}
		aResult <- r
	}()
	go func() {
		r := l1.Lock(b)
		if r == Deadlocked {
			l2.Unlock()
		}
		bResult <- r
	}()

	waitForPlainWaiter(t, dom, l2.key())
	waitForPlainWaiter(t, dom, l1.key())

	outcomes := [2]Outcome{<-aResult, <-bResult}
	deadlocked, locked := 0, 0
	for _, o := range outcomes {
		switch o {
		case Deadlocked:
			deadlocked++
		case Locked:
			locked++
		}
	}
	if deadlocked != 1 || locked != 1 {
		t.Fatalf("expected exactly one Deadlocked and one Locked, got %v", outcomes)
	}
}

func TestDeadlockMutexWakeOneOfMany(t *testing.T) {
	dom := NewDomain(16)
	m := NewDeadlockMutexIn(dom, time.Second)
	a := mustRegister(t, dom)
	b := mustRegister(t, dom)
	c := mustRegister(t, dom)

	m.Lock(a)

	acquired := make(chan threadid.ID, 2)
	go func() { m.Lock(b); acquired <- b }()
	go func() { m.Lock(c); acquired <- c }()

	time.Sleep(20 * time.Millisecond)
	m.Unlock()

	first := <-acquired
	select {
	case second := <-acquired:
		t.Fatalf("expected only one waiter to acquire, got %v and %v", first, second)
	case <-time.After(20 * time.Millisecond):
	}

	// Release whichever contender actually holds the lock now.
	m.Unlock()
	<-acquired
}
