package ipc

import (
	"sync/atomic"
	"unsafe"
)

// Stats block field offsets (spec §4.7 / original_source/src/shared_mem.h
// server_stats_t), all int64/uint64 so they're lock-free on every arch this
// runs on. status_mutex from the original is unnecessary here since every
// field update below is a single atomic op; no cross-field invariant needs
// the combined lock the C version takes.
const (
	offTotalRequests       = 0
	offBytesTransferred    = 8
	offStatus2xx           = 16
	offStatus4xx           = 24
	offStatus5xx           = 32
	offActiveConnections   = 40
	offStatus200           = 48
	offStatus404           = 56
	offStatus500           = 64
	offTotalResponseTimeMs = 72
	offLogMutex            = 80 // int32; see LogLock/LogUnlock in sem.go
)

// StatsSnapshot is a point-in-time copy of the shared statistics block,
// returned by /api/stats and printed periodically by the master (spec §4.7).
// Status200/404/500 are the literal-code counters spec §3/§4.7 name
// directly (used by the conservation invariant: total_requests equals their
// sum when every response is a 200, 404 or 500; other codes land in no
// literal bucket); Status2xx/4xx/5xx are the coarser
// class buckets kept alongside them for the OTel status-class attribute.
type StatsSnapshot struct {
	TotalRequests       uint64
	BytesTransferred    uint64
	Status2xx           uint64
	Status4xx           uint64
	Status5xx           uint64
	ActiveConnections   int64
	CacheItems          int64
	CacheBytes          int64
	Status200           uint64
	Status404           uint64
	Status500           uint64
	TotalResponseTimeMs uint64
}

// RecordRequest folds one completed request into the shared counters.
// statusClass is 2, 4, or 5 (first digit of the HTTP status code); anything
// else is ignored, matching the original's three-bucket tally. status is
// the full HTTP status code, tallied into the literal status_200/404/500
// counters spec §3/§4.7 require alongside the class buckets.
// elapsedMs is the request's end-to-end duration, accumulated so
// /api/stats can report a genuine average response time rather than an
// average byte count.
func (r *Region) RecordRequest(statusClass, status int, bytesSent, elapsedMs uint64) {
	atomic.AddUint64(r.ptr64(offTotalRequests), 1)
	atomic.AddUint64(r.ptr64(offBytesTransferred), bytesSent)
	atomic.AddUint64(r.ptr64(offTotalResponseTimeMs), elapsedMs)
	switch statusClass {
	case 2:
		atomic.AddUint64(r.ptr64(offStatus2xx), 1)
	case 4:
		atomic.AddUint64(r.ptr64(offStatus4xx), 1)
	case 5:
		atomic.AddUint64(r.ptr64(offStatus5xx), 1)
	}
	switch status {
	case 200:
		atomic.AddUint64(r.ptr64(offStatus200), 1)
	case 404:
		atomic.AddUint64(r.ptr64(offStatus404), 1)
	case 500:
		atomic.AddUint64(r.ptr64(offStatus500), 1)
	}
}

func (r *Region) AddActiveConnections(delta int64) {
	atomic.AddInt64((*int64)(unsafe.Pointer(r.ptr64(offActiveConnections))), delta)
}

// SetWorkerCacheUsage records worker's current cache item/byte counts into
// its own header slot. Each worker owns an independent FileCache, so this
// is a plain Store, not an Add — aggregation across workers happens in
// Snapshot, not here.
func (r *Region) SetWorkerCacheUsage(worker int, items, bytes int64) {
	atomic.StoreInt64((*int64)(unsafe.Pointer(r.ptr64(r.headerOffset(worker)+hdrCacheItems))), items)
	atomic.StoreInt64((*int64)(unsafe.Pointer(r.ptr64(r.headerOffset(worker)+hdrCacheBytes))), bytes)
}

// cacheUsageTotals sums every worker's cache usage slot, the shared-region
// equivalent of /api/stats' "cache" object covering the whole server
// rather than whichever worker happened to write last.
func (r *Region) cacheUsageTotals() (items, bytes int64) {
	for w := 0; w < r.numWorkers; w++ {
		items += atomic.LoadInt64((*int64)(unsafe.Pointer(r.ptr64(r.headerOffset(w) + hdrCacheItems))))
		bytes += atomic.LoadInt64((*int64)(unsafe.Pointer(r.ptr64(r.headerOffset(w) + hdrCacheBytes))))
	}
	return items, bytes
}

// Snapshot reads every counter. Individual fields may be torn relative to
// each other under concurrent writers (no combined lock, see above) but
// each field itself is never torn, which is all the periodic printer and
// /api/stats need.
func (r *Region) Snapshot() StatsSnapshot {
	items, bytes := r.cacheUsageTotals()
	return StatsSnapshot{
		TotalRequests:       atomic.LoadUint64(r.ptr64(offTotalRequests)),
		BytesTransferred:    atomic.LoadUint64(r.ptr64(offBytesTransferred)),
		Status2xx:           atomic.LoadUint64(r.ptr64(offStatus2xx)),
		Status4xx:           atomic.LoadUint64(r.ptr64(offStatus4xx)),
		Status5xx:           atomic.LoadUint64(r.ptr64(offStatus5xx)),
		ActiveConnections:   atomic.LoadInt64((*int64)(unsafe.Pointer(r.ptr64(offActiveConnections)))),
		CacheItems:          items,
		CacheBytes:          bytes,
		Status200:           atomic.LoadUint64(r.ptr64(offStatus200)),
		Status404:           atomic.LoadUint64(r.ptr64(offStatus404)),
		Status500:           atomic.LoadUint64(r.ptr64(offStatus500)),
		TotalResponseTimeMs: atomic.LoadUint64(r.ptr64(offTotalResponseTimeMs)),
	}
}
