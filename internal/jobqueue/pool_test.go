package jobqueue

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmitDispatchesInFIFOOrder(t *testing.T) {
	var mu sync.Mutex
	var order []uint64

	p := New(1, 10, func(j Job) {
		mu.Lock()
		order = append(order, j.Seq)
		mu.Unlock()
	})
	defer p.Shutdown()

	for i := uint64(1); i <= 5; i++ {
		if !p.Submit(Job{Seq: i}) {
			t.Fatalf("Submit(%d) rejected unexpectedly", i)
		}
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(order)
		mu.Unlock()
		if n == 5 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 5 {
		t.Fatalf("got %d jobs processed, want 5", len(order))
	}
	for i, seq := range order {
		if seq != uint64(i+1) {
			t.Fatalf("order = %v, want 1..5 in order", order)
		}
	}
}

func TestSubmitRejectsOverMaxJobs(t *testing.T) {
	block := make(chan struct{})
	var started atomic.Bool

	p := New(1, 1, func(j Job) {
		started.Store(true)
		<-block
	})
	defer func() {
		close(block)
		p.Shutdown()
	}()

	if !p.Submit(Job{Seq: 1}) {
		t.Fatalf("first submit should succeed")
	}
	for !started.Load() {
		time.Sleep(time.Millisecond)
	}

	if !p.Submit(Job{Seq: 2}) {
		t.Fatalf("second submit should fit within maxJobs=1 once the first is picked up")
	}
	if p.Submit(Job{Seq: 3}) {
		t.Fatalf("third submit should be rejected: queue already at maxJobs")
	}
}

func TestShutdownReturnsUnprocessedJobs(t *testing.T) {
	block := make(chan struct{})
	p := New(1, 10, func(j Job) {
		<-block
	})

	p.Submit(Job{Seq: 1}) // picked up, blocks the only worker
	time.Sleep(10 * time.Millisecond)
	p.Submit(Job{Seq: 2})
	p.Submit(Job{Seq: 3})

	close(block)
	remaining := p.Shutdown()

	if len(remaining) > 2 {
		t.Fatalf("got %d leftover jobs, want at most 2", len(remaining))
	}
}
