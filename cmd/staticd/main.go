// Command staticd is a concurrent static-file HTTP server: one master
// acceptor process dispatching accepted connections to a fixed pool of
// worker processes, each running its own bounded thread pool (spec §4).
//
// Usage:
//
//	staticd [flags] [config-file]
//
// config-file defaults to server.conf in the current directory (spec §6)
// when omitted. A worker re-exec of the same binary is triggered
// internally via the STATICD_WORKER_ID environment variable; operators
// never pass that.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"

	"github.com/searchktools/staticd/config"
	"github.com/searchktools/staticd/internal/master"
	"github.com/searchktools/staticd/internal/worker"
)

var (
	showVersion = flag.BoolP("version", "v", false, "print version and exit")
	showHelp    = flag.BoolP("help", "h", false, "print usage and exit")
	daemon      = flag.Bool("daemon", false, "disable the interactive admin console even on a TTY")
	pidFile     = flag.String("pid-file", "", "write the master process id to this path")
)

const version = "staticd/1.0"

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}
	if *showHelp || (flag.NArg() > 1 && os.Getenv("STATICD_WORKER_ID") == "") {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] [config-file]\n", os.Args[0])
		flag.PrintDefaults()
		if *showHelp {
			return
		}
		os.Exit(2)
	}

	if id, ok := os.LookupEnv("STATICD_WORKER_ID"); ok {
		runWorker(id)
		return
	}

	configPath := "server.conf"
	if flag.NArg() == 1 {
		configPath = flag.Arg(0)
	}
	runMaster(configPath)
}

func runMaster(configPath string) {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("staticd: loading config: %v", err)
	}

	execPath, err := os.Executable()
	if err != nil {
		log.Fatalf("staticd: resolving executable path: %v", err)
	}

	m, err := master.New(cfg, execPath)
	if err != nil {
		log.Fatalf("staticd: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if !*daemon && liner.TerminalSupported() && isTTY(os.Stdin) {
		go runAdminConsole(cancel, m)
	}

	if err := m.Serve(ctx, *pidFile); err != nil {
		log.Fatalf("staticd: %v", err)
	}
}

func runWorker(idStr string) {
	id, err := strconv.Atoi(idStr)
	if err != nil {
		log.Fatalf("staticd: invalid STATICD_WORKER_ID %q: %v", idStr, err)
	}

	cfg := worker.Config{
		ID:               id,
		NumWorkers:       envInt("STATICD_NUM_WORKERS", 1),
		QueueCapacity:    envInt("STATICD_QUEUE_CAPACITY", 100),
		ThreadsPerWorker: envInt("STATICD_THREADS_PER_WORKER", 10),
		MaxJobs:          envInt("STATICD_MAX_JOBS", 100),
		DocumentRoot:     os.Getenv("STATICD_DOCUMENT_ROOT"),
		LogPath:          os.Getenv("STATICD_LOG_FILE"),
		CacheBytes:       int64(envInt("STATICD_CACHE_BYTES", 64<<20)),
		Timeout:          secondsDuration(envInt("STATICD_TIMEOUT_SECONDS", 30)),
		ShmFD:            envInt("STATICD_SHM_FD", 3),
		ChannelFD:        envInt("STATICD_CHANNEL_FD", 4),
	}

	if err := worker.Run(cfg); err != nil {
		log.Fatalf("staticd: worker %d: %v", id, err)
	}
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func isTTY(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
