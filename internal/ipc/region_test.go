package ipc

import (
	"testing"

	"golang.org/x/sys/unix"
)

func closeFd(fd int) { unix.Close(fd) }

func TestRegionQueueRoundTrip(t *testing.T) {
	r, fd, err := CreateRegion(2, 4)
	if err != nil {
		t.Fatalf("CreateRegion: %v", err)
	}
	defer r.Close()
	defer closeFd(fd)

	empty := r.EmptySlots(0)
	filled := r.FilledSlots(0)

	if !empty.TryAcquire() {
		t.Fatalf("expected an empty slot on a fresh queue")
	}
	r.PushToken(0, AdmissionToken{Seq: 42})
	filled.Release()

	if !filled.TryAcquire() {
		t.Fatalf("expected a filled slot after push")
	}
	tok := r.PopToken(0)
	empty.Release()

	if tok.Seq != 42 {
		t.Fatalf("got seq %d, want 42", tok.Seq)
	}
	if got := r.QueueDepth(0); got != 0 {
		t.Fatalf("QueueDepth = %d, want 0", got)
	}
}

func TestRegionQueuesAreIndependentPerWorker(t *testing.T) {
	r, fd, err := CreateRegion(3, 2)
	if err != nil {
		t.Fatalf("CreateRegion: %v", err)
	}
	defer r.Close()
	defer closeFd(fd)

	r.EmptySlots(1).TryAcquire()
	r.PushToken(1, AdmissionToken{Seq: 7})
	r.FilledSlots(1).Release()

	if got := r.QueueDepth(0); got != 0 {
		t.Fatalf("worker 0 QueueDepth = %d, want 0 (push went to worker 1)", got)
	}
	if got := r.QueueDepth(1); got != 1 {
		t.Fatalf("worker 1 QueueDepth = %d, want 1", got)
	}
	if got := r.QueueDepth(2); got != 0 {
		t.Fatalf("worker 2 QueueDepth = %d, want 0", got)
	}
}

func TestSemaphoreAcquireRespectsStop(t *testing.T) {
	r, fd, err := CreateRegion(1, 1)
	if err != nil {
		t.Fatalf("CreateRegion: %v", err)
	}
	defer r.Close()
	defer closeFd(fd)

	// FilledSlots starts at zero on a fresh region, so Acquire has no permit
	// to take and can only return via stop
	sem := r.FilledSlots(0)
	stop := make(chan struct{})
	close(stop)

	if sem.Acquire(stop) {
		t.Fatalf("Acquire should have returned false once stop was closed")
	}
}

func TestStatsSnapshotRoundTrip(t *testing.T) {
	r, fd, err := CreateRegion(1, 1)
	if err != nil {
		t.Fatalf("CreateRegion: %v", err)
	}
	defer r.Close()
	defer closeFd(fd)

	r.RecordRequest(2, 200, 1024, 12)
	r.RecordRequest(4, 404, 0, 3)
	r.RecordRequest(5, 500, 0, 50)
	r.AddActiveConnections(3)
	r.SetWorkerCacheUsage(0, 10, 4096)

	snap := r.Snapshot()
	if snap.TotalRequests != 3 {
		t.Errorf("TotalRequests = %d, want 3", snap.TotalRequests)
	}
	if snap.BytesTransferred != 1024 {
		t.Errorf("BytesTransferred = %d, want 1024", snap.BytesTransferred)
	}
	if snap.Status2xx != 1 || snap.Status4xx != 1 || snap.Status5xx != 1 {
		t.Errorf("status class buckets = %+v, want 1/1/1", snap)
	}
	if snap.Status200 != 1 || snap.Status404 != 1 || snap.Status500 != 1 {
		t.Errorf("literal status buckets = %+v, want 1/1/1", snap)
	}
	if got := snap.Status200 + snap.Status404 + snap.Status500; got != snap.TotalRequests {
		t.Errorf("status buckets sum = %d, want TotalRequests = %d", got, snap.TotalRequests)
	}
	if snap.TotalResponseTimeMs != 65 {
		t.Errorf("TotalResponseTimeMs = %d, want 65", snap.TotalResponseTimeMs)
	}
	if snap.ActiveConnections != 3 {
		t.Errorf("ActiveConnections = %d, want 3", snap.ActiveConnections)
	}
	if snap.CacheItems != 10 || snap.CacheBytes != 4096 {
		t.Errorf("cache usage = %+v, want 10/4096", snap)
	}
}
