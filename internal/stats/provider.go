package stats

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// NewMeter builds an in-process meter provider with a ManualReader — no
// OTLP exporter is wired up (see SPEC_FULL.md AMBIENT STACK); the manual
// reader exists so this package's instruments are real OTel instruments
// that something could later collect from, not a no-op stand-in.
func NewMeter(instrumentationName string) (metric.Meter, *sdkmetric.ManualReader) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return provider.Meter(instrumentationName), reader
}

// Printer periodically logs a human-readable line of the shared counters,
// the Go equivalent of original_source/src/stats.c's print_stats, adapted
// from the teacher's core/observability periodic-reporting idiom.
type Printer struct {
	rec      *Recorder
	interval time.Duration
	role     string
}

// NewPrinter builds a Printer that logs rec's snapshot every interval,
// prefixing lines with role (e.g. "master") for legibility when master and
// worker stdout are interleaved.
func NewPrinter(rec *Recorder, interval time.Duration, role string) *Printer {
	return &Printer{rec: rec, interval: interval, role: role}
}

// Run blocks, printing on each tick, until ctx is done.
func (p *Printer) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.printOnce()
		}
	}
}

func (p *Printer) printOnce() {
	s := p.rec.Snapshot()
	avgMS := float64(0)
	if s.TotalRequests > 0 {
		avgMS = float64(s.BytesTransferred) / float64(s.TotalRequests)
	}
	log.Printf("[%s] stats: requests=%d bytes=%d status2xx=%d status4xx=%d status5xx=%d active_conns=%d cache_items=%d cache_bytes=%d avg_bytes/req=%s",
		p.role, s.TotalRequests, s.BytesTransferred, s.Status2xx, s.Status4xx, s.Status5xx,
		s.ActiveConnections, s.CacheItems, s.CacheBytes, fmt.Sprintf("%.1f", avgMS))
}
