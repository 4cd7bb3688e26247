// Package stats wraps the shared-memory counters of internal/ipc with an
// OpenTelemetry meter, so the same request/byte/status tally the master
// prints periodically (spec §4.7, original_source/src/stats.c) is also
// recorded on OTel instruments. The /api/stats handler reads the shared
// region through Snapshot, not the instruments, and the admin REPL and
// staticd-top read that endpoint over HTTP.
package stats

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"

	"github.com/searchktools/staticd/internal/ipc"
)

// Recorder folds completed-request and cache-usage events into both the
// cross-process shared region and the in-process OTel instruments.
type Recorder struct {
	region *ipc.Region

	requests    metric.Int64Counter
	bytesSent   metric.Int64Counter
	statusClass metric.Int64Counter
	respTime    metric.Float64Histogram
	cacheItems  metric.Int64UpDownCounter
	cacheBytes  metric.Int64UpDownCounter
	activeConns metric.Int64UpDownCounter
}

// NewRecorder builds a Recorder backed by region and instrumented under
// meter. meter is normally obtained from NewMeter (see master.New and
// worker.Run), whose ManualReader those callers do not keep; /api/stats
// reads the shared region through Snapshot instead.
func NewRecorder(region *ipc.Region, meter metric.Meter) (*Recorder, error) {
	requests, err := meter.Int64Counter("staticd.requests",
		metric.WithDescription("completed HTTP requests"))
	if err != nil {
		return nil, fmt.Errorf("stats: requests counter: %w", err)
	}
	bytesSent, err := meter.Int64Counter("staticd.bytes_sent",
		metric.WithDescription("response bytes written to clients"),
		metric.WithUnit("By"))
	if err != nil {
		return nil, fmt.Errorf("stats: bytes counter: %w", err)
	}
	statusClass, err := meter.Int64Counter("staticd.responses",
		metric.WithDescription("completed responses by status class"))
	if err != nil {
		return nil, fmt.Errorf("stats: status counter: %w", err)
	}
	respTime, err := meter.Float64Histogram("staticd.response_time",
		metric.WithDescription("time from accept to response completion"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("stats: response time histogram: %w", err)
	}
	cacheItems, err := meter.Int64UpDownCounter("staticd.cache.items",
		metric.WithDescription("entries currently resident in the file cache"))
	if err != nil {
		return nil, fmt.Errorf("stats: cache items counter: %w", err)
	}
	cacheBytes, err := meter.Int64UpDownCounter("staticd.cache.bytes",
		metric.WithDescription("bytes currently resident in the file cache"),
		metric.WithUnit("By"))
	if err != nil {
		return nil, fmt.Errorf("stats: cache bytes counter: %w", err)
	}
	activeConns, err := meter.Int64UpDownCounter("staticd.active_connections",
		metric.WithDescription("connections currently being serviced by a worker"))
	if err != nil {
		return nil, fmt.Errorf("stats: active connections counter: %w", err)
	}

	return &Recorder{
		region:      region,
		requests:    requests,
		bytesSent:   bytesSent,
		statusClass: statusClass,
		respTime:    respTime,
		cacheItems:  cacheItems,
		cacheBytes:  cacheBytes,
		activeConns: activeConns,
	}, nil
}

// RecordRequest is called once per completed request (spec §4.5 final
// step, original_source/src/stats.c update_stats). status is the full HTTP
// status code; elapsedMS is wall time from accept to response-complete.
func (rec *Recorder) RecordRequest(ctx context.Context, status int, bytesSent int64, elapsedMS float64) {
	class := status / 100
	elapsedMs := uint64(0)
	if elapsedMS > 0 {
		elapsedMs = uint64(elapsedMS)
	}
	rec.region.RecordRequest(class, status, uint64(bytesSent), elapsedMs)

	rec.requests.Add(ctx, 1)
	rec.bytesSent.Add(ctx, bytesSent)
	rec.statusClass.Add(ctx, 1, metric.WithAttributes(statusClassAttr(class)))
	rec.respTime.Record(ctx, elapsedMS)
}

// ConnectionOpened/ConnectionClosed track the active-connection gauge
// reported by /api/stats. The master's admission-full (503) check does not
// read it.
func (rec *Recorder) ConnectionOpened(ctx context.Context) {
	rec.region.AddActiveConnections(1)
	rec.activeConns.Add(ctx, 1)
}

func (rec *Recorder) ConnectionClosed(ctx context.Context) {
	rec.region.AddActiveConnections(-1)
	rec.activeConns.Add(ctx, -1)
}

// SetCacheUsage reports one worker's file cache size, called after every
// load/evict cycle (spec §4.3). worker is that worker's index into the
// region's per-worker header slots — each worker owns its own FileCache,
// so this stores into that worker's own slot rather than a single shared
// field every worker would otherwise overwrite.
func (rec *Recorder) SetCacheUsage(ctx context.Context, worker int, prevItems, items, prevBytes, bytes int64) {
	rec.region.SetWorkerCacheUsage(worker, items, bytes)
	rec.cacheItems.Add(ctx, items-prevItems)
	rec.cacheBytes.Add(ctx, bytes-prevBytes)
}

// Snapshot returns the current shared counters, the same view /api/stats
// and the periodic master printer use.
func (rec *Recorder) Snapshot() ipc.StatsSnapshot {
	return rec.region.Snapshot()
}
