// Package worker is a single worker process: the receiver loop of spec
// §4.2 plus the thread pool of §4.4 it feeds. A worker owns one shared
// memory region (inherited by fd from the master), one control channel
// (likewise inherited), its own LRU file cache, and a handle to the
// shared access log.
package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/searchktools/staticd/internal/accesslog"
	"github.com/searchktools/staticd/internal/cache"
	"github.com/searchktools/staticd/internal/handler"
	"github.com/searchktools/staticd/internal/ipc"
	"github.com/searchktools/staticd/internal/jobqueue"
	"github.com/searchktools/staticd/internal/mimetypes"
	"github.com/searchktools/staticd/internal/stats"
)

// Config is everything a worker process needs, passed down through the
// STATICD_* environment variables internal/master sets on the re-exec'd
// child from its own config.Config (cmd/staticd reads them back).
type Config struct {
	ID               int
	NumWorkers       int
	QueueCapacity    int
	ThreadsPerWorker int
	MaxJobs          int
	DocumentRoot     string
	LogPath          string
	CacheBytes       int64
	Timeout          time.Duration
	ShmFD            int
	ChannelFD        int
}

// Run opens the inherited region and channel, builds the per-worker
// collaborators, and blocks servicing connections until SIGTERM/SIGINT.
// A RecvFD error, including one after the master closes its end of the
// channel, is logged and the receiver keeps going; it does not end Run.
// It returns when shutdown is complete.
func Run(cfg Config) error {
	region, err := ipc.OpenRegion(cfg.ShmFD, cfg.NumWorkers, cfg.QueueCapacity)
	if err != nil {
		return fmt.Errorf("worker %d: open region: %w", cfg.ID, err)
	}
	defer region.Close()

	channel, err := ipc.OpenChannel(cfg.ChannelFD)
	if err != nil {
		return fmt.Errorf("worker %d: open channel: %w", cfg.ID, err)
	}
	defer channel.Close()

	meter, _ := stats.NewMeter(fmt.Sprintf("staticd-worker-%d", cfg.ID))
	recorder, err := stats.NewRecorder(region, meter)
	if err != nil {
		return fmt.Errorf("worker %d: stats recorder: %w", cfg.ID, err)
	}

	accessLog, err := accesslog.Open(region, cfg.LogPath)
	if err != nil {
		return fmt.Errorf("worker %d: open access log: %w", cfg.ID, err)
	}
	defer accessLog.Close()

	fileCache := cache.New(cfg.CacheBytes)
	var prevCacheItems, prevCacheBytes int64
	fileCache.SetUsageObserver(func(items, bytes int64) {
		recorder.SetCacheUsage(context.Background(), cfg.ID, prevCacheItems, items, prevCacheBytes, bytes)
		prevCacheItems, prevCacheBytes = items, bytes
	})

	deps := handler.Deps{
		DocumentRoot: cfg.DocumentRoot,
		Cache:        fileCache,
		Mimes:        mimetypes.Default(),
		Recorder:     recorder,
		Log:          accessLog,
		Timeout:      cfg.Timeout,
	}

	pool := jobqueue.New(cfg.ThreadsPerWorker, cfg.MaxJobs, func(j jobqueue.Job) {
		handler.Handle(j.ConnFD, deps)
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stopReceiver := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(stopReceiver)
	}()

	log.Printf("[worker %d] ready, pid=%d", cfg.ID, os.Getpid())
	runReceiver(cfg, region, channel, pool, stopReceiver)

	remaining := pool.Shutdown()
	for _, j := range remaining {
		syscall.Close(j.ConnFD)
	}
	log.Printf("[worker %d] shut down, %d unprocessed jobs dropped", cfg.ID, len(remaining))
	return nil
}

// runReceiver is the loop of spec §4.2: wait for a filled slot, pop the
// bookkeeping token, hand the empty slot back to the master, then take
// delivery of the actual connection fd over the control channel and
// submit it to the thread pool.
func runReceiver(cfg Config, region *ipc.Region, channel *ipc.Channel, pool *jobqueue.Pool, stop <-chan struct{}) {
	filled := region.FilledSlots(cfg.ID)
	empty := region.EmptySlots(cfg.ID)

	for {
		if !filled.Acquire(stop) {
			return
		}
		region.PopToken(cfg.ID)
		empty.Release()

		connFD, seq, err := channel.RecvFD(time.Time{})
		if err != nil {
			log.Printf("[worker %d] RecvFD: %v", cfg.ID, err)
			continue
		}
		if !pool.Submit(jobqueue.Job{ConnFD: connFD, Seq: seq}) {
			syscall.Close(connFD)
		}
	}
}
