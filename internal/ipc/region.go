// Package ipc implements the cross-process shared-memory segment, the
// counting-semaphore and spinlock primitives built on top of it, and the
// per-worker control channel used to hand connection file descriptors from
// the master to a worker.
//
// Go has no fork(): the segment described here is created by the master via
// memfd_create+mmap and handed to each re-exec'd worker as an inherited file
// descriptor, exactly the way the master hands a listening socket's fd to
// itself would if it ever needed to (it doesn't; only the shared-memory fd
// and one channel fd per worker cross the exec boundary).
package ipc

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	statsBlockSize = 88 // 10 uint64/int64 process-wide counters (see stats.go) + 1 global spinlock word, padded to 8-byte alignment
	workerHdrSize  = 48 // 6 int32 queue fields + 2 int64 cache-usage fields, see header layout below
	tokenSize      = 8  // one AdmissionToken slot
)

// Region is the mmap'd shared-memory segment. Layout:
//
//	[ stats block (88B) ] [ worker 0 header (48B) ] ... [ worker N-1 header (48B) ] [ worker 0 queue (cap*8B) ] ... [ worker N-1 queue (cap*8B) ]
//
// Workers headers are kept contiguous up front so the master's periodic
// stats sweep (spec §4.7) can walk them without touching the queue bodies.
// Cache item/byte counts live per-worker here (hdrCacheItems/hdrCacheBytes)
// rather than in the process-wide stats block, since each worker owns an
// independent FileCache; Snapshot sums across every worker's slot rather
// than one worker's write clobbering another's.
type Region struct {
	data       []byte
	numWorkers int
	capacity   int
}

// workerHeader field offsets within a 48-byte header block.
const (
	hdrEmptySlots  = 0  // int32: tokens free to enqueue
	hdrFilledSlots = 4  // int32: tokens ready to dequeue
	hdrQueueMutex  = 8  // int32: spinlock guarding front/rear/count
	hdrFront       = 12 // int32
	hdrRear        = 16 // int32
	hdrCount       = 20 // int32
	// 24-31 reserved/padding, kept for 8-byte alignment of the fields below
	hdrCacheItems = 32 // int64: entries resident in this worker's file cache
	hdrCacheBytes = 40 // int64: bytes resident in this worker's file cache
)

func regionSize(numWorkers, capacity int) int {
	return statsBlockSize + numWorkers*workerHdrSize + numWorkers*capacity*tokenSize
}

// CreateRegion allocates a new anonymous shared-memory segment
// sized for numWorkers admission queues of capacity each, and mmaps it into
// the master's address space. The returned *os.File-like descriptor (as a
// raw fd) is what the master passes to every worker via exec.Cmd.ExtraFiles.
func CreateRegion(numWorkers, capacity int) (*Region, int, error) {
	size := regionSize(numWorkers, capacity)

	fd, err := unix.MemfdCreate("staticd-shm", 0)
	if err != nil {
		return nil, -1, fmt.Errorf("ipc: memfd_create: %w", err)
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		return nil, -1, fmt.Errorf("ipc: ftruncate: %w", err)
	}

	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, -1, fmt.Errorf("ipc: mmap: %w", err)
	}

	r := &Region{data: data, numWorkers: numWorkers, capacity: capacity}
	for w := 0; w < numWorkers; w++ {
		r.putInt32(r.headerOffset(w)+hdrEmptySlots, int32(capacity))
	}
	return r, fd, nil
}

// OpenRegion maps a shared-memory segment inherited from the master (by fd,
// fd 3 as the master sets it up: the first exec.Cmd.ExtraFiles entry) into
// a worker's address space. numWorkers and capacity must match the values
// the master created the region with; they are passed in the worker's
// environment (STATICD_NUM_WORKERS, STATICD_QUEUE_CAPACITY).
func OpenRegion(fd, numWorkers, capacity int) (*Region, error) {
	size := regionSize(numWorkers, capacity)
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("ipc: mmap inherited fd %d: %w", fd, err)
	}
	return &Region{data: data, numWorkers: numWorkers, capacity: capacity}, nil
}

// Close unmaps the segment. It does not close the backing fd; the caller
// owns that.
func (r *Region) Close() error {
	return unix.Munmap(r.data)
}

func (r *Region) headerOffset(worker int) int {
	return statsBlockSize + worker*workerHdrSize
}

func (r *Region) queueOffset(worker int) int {
	queuesStart := statsBlockSize + r.numWorkers*workerHdrSize
	return queuesStart + worker*r.capacity*tokenSize
}

func (r *Region) ptr32(off int) *int32 {
	return (*int32)(unsafe.Pointer(&r.data[off]))
}

func (r *Region) ptr64(off int) *uint64 {
	return (*uint64)(unsafe.Pointer(&r.data[off]))
}

func (r *Region) putInt32(off int, v int32) {
	*r.ptr32(off) = v
}

// NumWorkers reports the worker count this region was sized for.
func (r *Region) NumWorkers() int { return r.numWorkers }

// Capacity reports the per-worker queue capacity this region was sized for.
func (r *Region) Capacity() int { return r.capacity }
