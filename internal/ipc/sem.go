package ipc

import (
	"sync/atomic"
	"time"
)

// The original design (original_source/src/semaphores.h) names these
// fields sem_t* and opens/waits/posts them with POSIX named semaphores.
// golang.org/x/sys/unix has no sem_open/sem_wait/sem_post wrapper, and a
// named semaphore visible process-wide under /dev/shm is more global state
// than this design wants anyway, so every semaphore here is instead a plain
// int32 counter living in the mmap'd region, manipulated with atomic CAS.
// Acquire on an exhausted counter spins with a capped exponential backoff
// rather than blocking in the kernel; this trades a small amount of CPU
// under contention for not needing sem_wait at all. Documented simplification,
// not a behavioral difference visible to a client of the server.

// Spinlock guards the small non-atomic invariant (front/rear/count moving
// together) of a single worker's admission queue. lock must point into the
// shared region.
func spinLock(lock *int32) {
	backoff := time.Microsecond
	for !atomic.CompareAndSwapInt32(lock, 0, 1) {
		time.Sleep(backoff)
		if backoff < 5*time.Millisecond {
			backoff *= 2
		}
	}
}

func spinUnlock(lock *int32) {
	atomic.StoreInt32(lock, 0)
}

// Semaphore is a counting semaphore backed by an int32 slot in shared
// memory. It is safe to use from any process that has the region mapped.
type Semaphore struct {
	counter *int32
}

// TryAcquire attempts a single non-blocking decrement. It reports whether
// the decrement succeeded.
func (s Semaphore) TryAcquire() bool {
	for {
		v := atomic.LoadInt32(s.counter)
		if v <= 0 {
			return false
		}
		if atomic.CompareAndSwapInt32(s.counter, v, v-1) {
			return true
		}
	}
}

// Acquire blocks until a slot is available, or stop is closed, in which
// case it returns false. The poll backoff doubles from 50µs and stops
// growing once it passes 5ms, so it tops out at 6.4ms; stop is selected
// together with the backoff timer, so a closed stop ends the wait at once.
func (s Semaphore) Acquire(stop <-chan struct{}) bool {
	backoff := 50 * time.Microsecond
	for {
		if s.TryAcquire() {
			return true
		}
		select {
		case <-stop:
			return false
		case <-time.After(backoff):
		}
		if backoff < 5*time.Millisecond {
			backoff *= 2
		}
	}
}

// Release increments the counter, waking any spinning Acquire callers on
// their next poll.
func (s Semaphore) Release() {
	atomic.AddInt32(s.counter, 1)
}

// EmptySlots returns the semaphore counting free queue slots for a worker's
// admission queue (released by that worker after it pops a token; acquired
// by the master before it pushes one).
func (r *Region) EmptySlots(worker int) Semaphore {
	return Semaphore{counter: r.ptr32(r.headerOffset(worker) + hdrEmptySlots)}
}

// FilledSlots returns the semaphore counting queued-but-undelivered tokens
// for a worker's admission queue (producer: master; consumer: that worker).
func (r *Region) FilledSlots(worker int) Semaphore {
	return Semaphore{counter: r.ptr32(r.headerOffset(worker) + hdrFilledSlots)}
}

func (r *Region) queueMutex(worker int) *int32 {
	return r.ptr32(r.headerOffset(worker) + hdrQueueMutex)
}

// LogLock acquires the process-wide access-log spinlock, the shared-memory
// stand-in for original_source/src/logger.c's named POSIX semaphore
// (/ws_log_sem) guarding the log file's write-and-maybe-rotate critical
// section across every worker. Callers must call LogUnlock when done.
func (r *Region) LogLock() {
	spinLock(r.ptr32(offLogMutex))
}

func (r *Region) LogUnlock() {
	spinUnlock(r.ptr32(offLogMutex))
}

// AdmissionToken is the bookkeeping record pushed into a worker's queue
// when the master hands it a connection. It carries no file descriptor —
// the fd itself crosses the process boundary over the worker's control
// channel via SCM_RIGHTS (channel.go); the token exists purely so the
// queue's fill level and a diagnostic sequence number are visible the same
// way original_source/src/shared_mem.h's connection_queue_t.sockets[] is.
type AdmissionToken struct {
	Seq uint64
}

// PushToken appends a token to worker's queue body. Caller must already
// hold the corresponding EmptySlots permit; PushToken itself only takes the
// spinlock for the pointer-juggling, not for flow control.
func (r *Region) PushToken(worker int, tok AdmissionToken) {
	mu := r.queueMutex(worker)
	spinLock(mu)
	defer spinUnlock(mu)

	hdr := r.headerOffset(worker)
	rear := atomic.LoadInt32(r.ptr32(hdr + hdrRear))
	slot := r.queueOffset(worker) + int(rear)*tokenSize
	atomic.StoreUint64(r.ptr64(slot), tok.Seq)

	atomic.StoreInt32(r.ptr32(hdr+hdrRear), (rear+1)%int32(r.capacity))
	atomic.AddInt32(r.ptr32(hdr+hdrCount), 1)
}

// PopToken removes and returns the token at the front of worker's queue.
// Caller must already hold the corresponding FilledSlots permit.
func (r *Region) PopToken(worker int) AdmissionToken {
	mu := r.queueMutex(worker)
	spinLock(mu)
	defer spinUnlock(mu)

	hdr := r.headerOffset(worker)
	front := atomic.LoadInt32(r.ptr32(hdr + hdrFront))
	slot := r.queueOffset(worker) + int(front)*tokenSize
	seq := atomic.LoadUint64(r.ptr64(slot))

	atomic.StoreInt32(r.ptr32(hdr+hdrFront), (front+1)%int32(r.capacity))
	atomic.AddInt32(r.ptr32(hdr+hdrCount), -1)
	return AdmissionToken{Seq: seq}
}

// QueueDepth reports the current number of enqueued-but-undelivered tokens
// for worker. The master's admission-full (503) decision does not use it;
// that decision is EmptySlots(worker).TryAcquire.
func (r *Region) QueueDepth(worker int) int {
	return int(atomic.LoadInt32(r.ptr32(r.headerOffset(worker) + hdrCount)))
}
