// Package master implements the acceptor process of spec §4.1: it owns
// the listening socket, epoll-polls it for readiness, and round-robins
// each accepted connection to one of N worker processes it spawned at
// startup by re-executing its own binary (Go has no fork(); see
// internal/ipc's package doc for the inherited-fd scheme this relies
// on).
package master

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	fileatomic "github.com/natefinch/atomic"
	"golang.org/x/sys/unix"

	"github.com/searchktools/staticd/config"
	"github.com/searchktools/staticd/internal/ipc"
	"github.com/searchktools/staticd/internal/poller"
	"github.com/searchktools/staticd/internal/stats"
)

// reexecWorkerEnv is the environment variable cmd/staticd checks to tell
// a re-exec'd child it should run as a worker instead of the master.
const reexecWorkerEnv = "STATICD_WORKER_ID"

type workerProc struct {
	id      int
	cmd     *exec.Cmd
	channel *ipc.Channel
}

// Master owns the shared region, the listening socket, and one control
// channel per worker.
type Master struct {
	cfg     config.Config
	region  *ipc.Region
	shmFD   int
	workers []*workerProc

	listenFD int
	poller   poller.Poller

	recorder *stats.Recorder
	nextSeq  uint64
	rrNext   int64
}

// New builds the shared region, spawns the worker pool, and opens the
// listening socket. The returned Master is ready for Serve; splitting
// construction from Serve lets a caller (the admin console) reach the
// worker PID list and the listening port before the accept loop starts
// running.
func New(cfg config.Config, execPath string) (*Master, error) {
	region, shmFD, err := ipc.CreateRegion(cfg.NumWorkers, cfg.MaxQueueSize)
	if err != nil {
		return nil, fmt.Errorf("master: create region: %w", err)
	}

	meter, _ := stats.NewMeter("staticd-master")
	recorder, err := stats.NewRecorder(region, meter)
	if err != nil {
		region.Close()
		return nil, fmt.Errorf("master: stats recorder: %w", err)
	}

	m := &Master{
		cfg:      cfg,
		region:   region,
		shmFD:    shmFD,
		recorder: recorder,
	}

	if err := m.spawnWorkers(execPath); err != nil {
		m.shutdownWorkers()
		m.region.Close()
		return nil, fmt.Errorf("master: spawn workers: %w", err)
	}

	if err := m.listen(); err != nil {
		m.shutdownWorkers()
		m.region.Close()
		return nil, fmt.Errorf("master: listen: %w", err)
	}

	return m, nil
}

// WorkerPIDs reports the OS process id of every spawned worker, in worker
// index order, for the admin console's "workers" command.
func (m *Master) WorkerPIDs() []int {
	pids := make([]int, len(m.workers))
	for i, w := range m.workers {
		pids[i] = w.cmd.Process.Pid
	}
	return pids
}

// Port reports the TCP port the master is listening on, so the admin
// console can reach /api/stats on localhost without being told the
// config again.
func (m *Master) Port() int { return m.cfg.Port }

// Serve runs the accept loop until ctx is cancelled (normally by
// SIGINT/SIGTERM) and then shuts every worker down. It returns once every
// worker has exited. Must be called exactly once on a Master built by New.
func (m *Master) Serve(ctx context.Context, pidFile string) error {
	defer m.region.Close()
	defer unix.Close(m.listenFD)
	defer m.poller.Close()

	if pidFile != "" {
		if err := writePIDFile(pidFile); err != nil {
			log.Printf("master: pid file: %v", err)
		}
		defer os.Remove(pidFile)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	printer := stats.NewPrinter(m.recorder, 10*time.Second, "master")
	go printer.Run(ctx)

	log.Printf("[master] listening on port %d, %d workers, pid=%d", m.cfg.Port, m.cfg.NumWorkers, os.Getpid())
	m.acceptLoop(ctx)

	m.shutdownWorkers()
	return nil
}

// spawnWorkers re-execs execPath once per worker, inheriting the shared
// region fd and a fresh control channel fd (spec §4.1 step 1). Each
// child receives its identity and sizing via STATICD_WORKER_ID,
// STATICD_NUM_WORKERS, STATICD_QUEUE_CAPACITY and the other STATICD_*
// environment variables below rather than argv, so cmd/staticd's
// normal flag parsing is untouched for the worker path.
func (m *Master) spawnWorkers(execPath string) error {
	for i := 0; i < m.cfg.NumWorkers; i++ {
		masterEnd, workerFile, err := ipc.NewChannelPair()
		if err != nil {
			return err
		}

		shmFile := os.NewFile(uintptr(dupFD(m.shmFD)), "staticd-shm")

		cmd := exec.Command(execPath)
		cmd.ExtraFiles = []*os.File{shmFile, workerFile}
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		cmd.Env = append(os.Environ(),
			fmt.Sprintf("%s=%d", reexecWorkerEnv, i),
			fmt.Sprintf("STATICD_NUM_WORKERS=%d", m.cfg.NumWorkers),
			fmt.Sprintf("STATICD_QUEUE_CAPACITY=%d", m.cfg.MaxQueueSize),
			fmt.Sprintf("STATICD_THREADS_PER_WORKER=%d", m.cfg.ThreadsPerWorker),
			fmt.Sprintf("STATICD_MAX_JOBS=%d", m.cfg.MaxQueueSize),
			fmt.Sprintf("STATICD_DOCUMENT_ROOT=%s", m.cfg.DocumentRoot),
			fmt.Sprintf("STATICD_LOG_FILE=%s", m.cfg.LogFile),
			fmt.Sprintf("STATICD_CACHE_BYTES=%d", m.cfg.CachePerWorkerBytes()),
			fmt.Sprintf("STATICD_TIMEOUT_SECONDS=%d", m.cfg.TimeoutSeconds),
			// shmFD and channelFD land at 3 and 4 — exec always places
			// ExtraFiles contiguously starting at fd 3 in the child.
			"STATICD_SHM_FD=3",
			"STATICD_CHANNEL_FD=4",
		)

		if err := cmd.Start(); err != nil {
			shmFile.Close()
			workerFile.Close()
			masterEnd.Close()
			return fmt.Errorf("starting worker %d: %w", i, err)
		}
		shmFile.Close()
		workerFile.Close()

		m.workers = append(m.workers, &workerProc{id: i, cmd: cmd, channel: masterEnd})
		log.Printf("[master] worker %d started, pid=%d", i, cmd.Process.Pid)
	}
	return nil
}

func dupFD(fd int) int {
	newFD, err := unix.Dup(fd)
	if err != nil {
		return fd
	}
	return newFD
}

// listen opens the TCP listening socket directly with x/sys/unix (rather
// than net.Listen) so its raw fd can be registered with the poller the
// same way the teacher's core/poller/epoll.go expects.
func (m *Master) listen() error {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return fmt.Errorf("socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
	}
	addr := &unix.SockaddrInet4{Port: m.cfg.Port}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return fmt.Errorf("bind :%d: %w", m.cfg.Port, err)
	}
	if err := unix.Listen(fd, 1024); err != nil {
		unix.Close(fd)
		return fmt.Errorf("listen: %w", err)
	}

	p, err := poller.New()
	if err != nil {
		unix.Close(fd)
		return fmt.Errorf("poller: %w", err)
	}
	if err := p.Add(fd); err != nil {
		unix.Close(fd)
		p.Close()
		return fmt.Errorf("poller add: %w", err)
	}

	m.listenFD = fd
	m.poller = p
	return nil
}

// acceptLoop is spec §4.1 steps 2-4: poll for readiness, accept every
// pending connection, and dispatch each to the next worker in round
// robin order, rejecting with a synchronous 503 if that worker's
// admission queue is full.
func (m *Master) acceptLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ready, err := m.poller.Wait(500)
		if err != nil {
			log.Printf("[master] poller wait: %v", err)
			continue
		}
		for _, fd := range ready {
			if fd != m.listenFD {
				continue
			}
			m.drainAccepts()
		}
	}
}

func (m *Master) drainAccepts() {
	for {
		connFD, _, err := unix.Accept4(m.listenFD, unix.SOCK_NONBLOCK)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			if err == unix.EINTR {
				continue
			}
			log.Printf("[master] accept: %v", err)
			return
		}
		m.dispatch(connFD)
	}
}

// dispatch hands connFD to the next worker in round-robin order. If that
// worker's admission queue is already full, it writes a 503 directly
// and closes the connection — spec §4.1 step 3's boundary case. (A worker
// whose thread-pool job queue is full closes a delivered connection
// without writing any response.)
func (m *Master) dispatch(connFD int) {
	worker := int(atomic.AddInt64(&m.rrNext, 1)-1) % m.cfg.NumWorkers
	empty := m.region.EmptySlots(worker)

	if !empty.TryAcquire() {
		writeServiceUnavailable(connFD)
		unix.Close(connFD)
		return
	}

	seq := atomic.AddUint64(&m.nextSeq, 1)
	m.region.PushToken(worker, ipc.AdmissionToken{Seq: seq})
	m.region.FilledSlots(worker).Release()

	if err := m.workers[worker].channel.SendFD(connFD, seq); err != nil {
		log.Printf("[master] SendFD to worker %d: %v", worker, err)
	}
	unix.Close(connFD)
}

func writeServiceUnavailable(connFD int) {
	const body = "<html><body><h1>503 Service Unavailable</h1></body></html>"
	resp := fmt.Sprintf("HTTP/1.1 503 Service Unavailable\r\nContent-Type: text/html\r\nContent-Length: %d\r\nConnection: close\r\n\r\n%s",
		len(body), body)
	unix.Write(connFD, []byte(resp))
}

// shutdownWorkers closes every control channel, sends each worker SIGTERM
// (which stops its receiver loop and starts its graceful shutdown), and
// waits for the child processes to exit.
func (m *Master) shutdownWorkers() {
	for _, w := range m.workers {
		w.channel.Close()
	}
	for _, w := range m.workers {
		w.cmd.Process.Signal(syscall.SIGTERM)
	}
	for _, w := range m.workers {
		w.cmd.Wait()
	}
}

// writePIDFile writes pid atomically via natefinch/atomic's WriteFile,
// so a concurrent reader (an init script, say) never observes a
// half-written PID.
func writePIDFile(path string) error {
	content := fmt.Sprintf("%d\n", os.Getpid())
	return fileatomic.WriteFile(path, strings.NewReader(content))
}
