package mutex

import (
	"sync"
	"testing"
	"time"

	"github.com/harikrishnan94/synchronization-primitives/pkg/parkinglot"
	"github.com/harikrishnan94/synchronization-primitives/pkg/threadid"
)

func mustRegister(t *testing.T, dom *Domain) threadid.ID {
	t.Helper()
	tid, err := dom.Registry.Register()
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	t.Cleanup(func() { dom.Registry.Unregister(tid) })
	return tid
}

func TestFairMutexUncontended(t *testing.T) {
	dom := NewDomain(16)
	m := NewFairMutexIn(dom)
	a := mustRegister(t, dom)

	if got := m.Lock(a); got != Locked {
		t.Fatalf("Lock() = %v, want Locked", got)
	}
	if !m.IsLocked() {
		t.Fatal("expected IsLocked true while held")
	}
	m.Unlock()
	if m.IsLocked() {
		t.Fatal("expected IsLocked false after unlock")
	}
}

func waitForFairWaiter(t *testing.T, dom *Domain, key parkinglot.Key, tid threadid.ID) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if dom.fairLot.Contains(key, func(n fairWaitNode) bool { return n.tid == tid }) {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for tid %d to park", tid)
}

// TestFairMutexFIFO exercises scenario 3 and the FIFO law of §8: B
// announces before C, so B acquires before C regardless of wake order.
func TestFairMutexFIFO(t *testing.T) {
	dom := NewDomain(16)
	m := NewFairMutexIn(dom)
	a := mustRegister(t, dom)
	b := mustRegister(t, dom)
	c := mustRegister(t, dom)

	m.Lock(a)

	var order []threadid.ID
	var mu sync.Mutex
	bDone := make(chan struct{})
	cStarted := make(chan struct{})

	go func() {
		m.Lock(b)
		mu.Lock()
		order = append(order, b)
		mu.Unlock()
		close(bDone)
		m.Unlock()
	}()
	waitForFairWaiter(t, dom, m.key(), b)

	cDone := make(chan struct{})
	go func() {
		close(cStarted)
		m.Lock(c)
		mu.Lock()
		order = append(order, c)
		mu.Unlock()
		close(cDone)
		m.Unlock()
	}()
	<-cStarted
	waitForFairWaiter(t, dom, m.key(), c)

	m.Unlock() // A releases; B must be granted first.
	<-bDone
	<-cDone

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != b || order[1] != c {
		t.Fatalf("expected FIFO order [b c], got %v", order)
	}
}

func BenchmarkFairMutexUncontended(b *testing.B) {
	dom := NewDomain(16)
	m := NewFairMutexIn(dom)
	tid, err := dom.Registry.Register()
	if err != nil {
		b.Fatalf("Register: %v", err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.Lock(tid)
		m.Unlock()
	}
}
