/*
Package staticd is a concurrent static-file HTTP server built around a
two-tier multi-process architecture: one master acceptor process and a
fixed pool of worker processes, each running its own bounded thread
pool.

# Architecture

The master binds the listening socket and epoll-polls it for readiness
(internal/poller). Every accepted connection is handed to the next
worker in round-robin order over a per-worker control channel
(internal/ipc), with admission bookkeeping kept in a shared-memory
region so the master can reject a connection with 503 before ever
handing it off if that worker's queue is full.

Each worker owns its own file cache (internal/cache), access log
(internal/accesslog), and bounded thread pool (internal/jobqueue). A
thread parses the request (internal/httpwire), serves it from the
cache or as a 4xx/5xx error page (internal/errorpage), and records the
outcome in the shared statistics block (internal/stats) and the access
log before moving on to the next queued connection.

Workers are spawned by re-executing the same binary (Go has no safe
fork() for a running runtime); see internal/master and internal/worker.

# Modules

  - cmd/staticd: the CLI entry point, dispatching to master or worker
    mode.
  - cmd/staticd-bench: a concurrent-connection load generator for
    exercising admission-queue saturation.
  - cmd/staticd-top: a periodic poller of the running server's
    /api/stats endpoint.
  - config: configuration file loading.
  - internal/ipc: the shared-memory region, semaphores, and control
    channel.
  - internal/master, internal/worker: the two process roles.
  - internal/jobqueue: the per-worker thread pool.
  - internal/cache: the per-worker LRU file cache.
  - internal/httpwire: HTTP/1.1 request parsing and response framing.
  - internal/handler: the per-connection request lifecycle.
  - internal/accesslog: the rotating, cross-process-locked access log.
  - internal/stats: shared counters exposed as OpenTelemetry
    instruments.
  - internal/poller: the master's epoll readiness notifier.
  - internal/mimetypes, internal/errorpage, internal/optimize,
    internal/bufpool: small supporting utilities.
*/
package staticd
