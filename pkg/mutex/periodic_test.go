package mutex

import (
	"context"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

func TestRunDetectionLoopBreaksCycle(t *testing.T) {
	dom := NewDomain(16)
	l1 := NewFairDeadlockMutexIn(dom)
	l2 := NewFairDeadlockMutexIn(dom)
	a := mustRegister(t, dom)
	b := mustRegister(t, dom)

	l1.Lock(a)
	l2.Lock(b)

	aResult := make(chan Outcome, 1)
	bResult := make(chan Outcome, 1)
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

	waitForFairWaiter(t, dom, l2.key(), a)
	waitForFairWaiter(t, dom, l1.key(), b)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	RunDetectionLoop(gctx, g, dom, 5*time.Millisecond)

	outcomes := [2]Outcome{<-aResult, <-bResult}
	cancel()
	_ = g.Wait()

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
