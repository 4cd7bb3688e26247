// Package handler implements the per-connection HTTP/1.1 request
// lifecycle of spec §4.5: read request, dispatch on method and path,
// serve a cached file (whole or ranged) or the /api/stats JSON endpoint,
// record one stats update and one access-log line, close. It runs
// synchronously to completion on the goroutine a worker's thread pool
// (internal/jobqueue) hands the connection to — there is no
// epoll-style multiplexing inside a worker (spec §4.4/§4.5 describe one
// thread owning one request start-to-finish), so unlike internal/master
// this package talks to the raw connection fd with plain blocking
// syscalls, the way the teacher's core/http/context_fd.go does for its
// non-epoll-owned FDContext path.
package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/searchktools/staticd/internal/accesslog"
	"github.com/searchktools/staticd/internal/bufpool"
	"github.com/searchktools/staticd/internal/cache"
	"github.com/searchktools/staticd/internal/errorpage"
	"github.com/searchktools/staticd/internal/httpwire"
	"github.com/searchktools/staticd/internal/mimetypes"
	"github.com/searchktools/staticd/internal/optimize"
	"github.com/searchktools/staticd/internal/stats"
)

const statsEndpointPath = "/api/stats"

// Deps bundles the per-worker collaborators a Handle call needs. One Deps
// value is shared (read-only) by every thread in a worker's pool.
type Deps struct {
	DocumentRoot string
	Cache        *cache.FileCache
	Mimes        *mimetypes.Table
	Recorder     *stats.Recorder
	Log          *accesslog.Logger
	Timeout      time.Duration
}

const readBufSize = 8192

// Handle runs the full request lifecycle on connFd and always closes it
// before returning, regardless of outcome — the caller (the worker's job
// dispatcher) must not touch connFd again afterward.
func Handle(connFd int, d Deps) {
	defer unix.Close(connFd)

	start := time.Now()
	d.Recorder.ConnectionOpened(context.Background())
	defer d.Recorder.ConnectionClosed(context.Background())

	// The master accepts with SOCK_NONBLOCK and that flag travels with the
	// fd; clear it so the reads and writes below block (bounded by the
	// timeouts set next).
	unix.SetNonblock(connFd, false)

	if d.Timeout > 0 {
		tv := unix.NsecToTimeval(d.Timeout.Nanoseconds())
		unix.SetsockoptTimeval(connFd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv)
		unix.SetsockoptTimeval(connFd, unix.SOL_SOCKET, unix.SO_SNDTIMEO, &tv)
	}

	req, bufPtr, ok := readRequest(connFd)
	if bufPtr != nil {
		// req (if any) aliases *bufPtr via httpwire's zero-copy parse; it
		// must not be touched after this buffer goes back to the pool, so
		// the Put is deferred to unwind after dispatch/finish below, not
		// inside readRequest.
		defer bufpool.Put(bufPtr)
	}

	if !ok {
		writeError(connFd, 400, true)
		finish(d, connFd, remoteAddr(connFd), "", "", 400, 0, start)
		return
	}

	if req == nil {
		// zero-length read or a hard read error: spec §4.5 step 2 says
		// close and return with no response attempted.
		return
	}

	status, bytesSent := dispatch(connFd, req, d)
	finish(d, connFd, remoteAddr(connFd), req.Method, req.Path, status, bytesSent, start)
}

// remoteAddr best-effort resolves the peer address for the access log;
// an unresolvable address (already-closed socket, non-IP family) logs as
// "-" rather than failing the request.
func remoteAddr(connFd int) string {
	sa, err := unix.Getpeername(connFd)
	if err != nil {
		return "-"
	}
	switch addr := sa.(type) {
	case *unix.SockaddrInet4:
		return fmt.Sprintf("%d.%d.%d.%d", addr.Addr[0], addr.Addr[1], addr.Addr[2], addr.Addr[3])
	case *unix.SockaddrInet6:
		return fmt.Sprintf("%x", addr.Addr)
	default:
		return "-"
	}
}

// readRequest reads until the header-terminating blank line is seen or
// the buffer fills, per spec §4.5 step 2. A nil *Request with ok=true
// signals a read that produced no request (connection closed before any
// bytes); ok=false signals bytes were read but the request didn't parse.
// readRequest reads connFd into a pooled buffer and parses it. The
// returned bufPtr is always non-nil once a buffer was checked out (even
// on a parse failure) so the caller can return it to the pool once it is
// done with req — ParseRequest's Method/Path/Proto fields alias the
// buffer rather than copying it.
func readRequest(connFd int) (req *httpwire.Request, bufPtr *[]byte, ok bool) {
	bufPtr = bufpool.Get()
	buf := *bufPtr

	total := 0
	for total < len(buf) {
		n, err := unix.Read(connFd, buf[total:])
		if n > 0 {
			total += n
			if bytes.Contains(buf[:total], []byte("\r\n\r\n")) {
				break
			}
			continue
		}
		if err == unix.EINTR {
			continue
		}
		if total == 0 {
			return nil, bufPtr, true
		}
		break
	}
	if total == 0 {
		return nil, bufPtr, true
	}

	parsed, err := httpwire.ParseRequest(buf[:total])
	if err != nil {
		return nil, bufPtr, false
	}
	return parsed, bufPtr, true
}

// dispatch performs steps 4-12 of spec §4.5 and returns the final status
// code and body byte count for stats/logging.
func dispatch(connFd int, req *httpwire.Request, d Deps) (status int, bytesSent int64) {
	sendBody := true
	switch req.Method {
	case "GET":
	case "HEAD":
		sendBody = false
	default:
		return writeError(connFd, 405, sendBody)
	}

	if optimize.ComparePathEqual(req.Path, statsEndpointPath) {
		return serveStats(connFd, d, sendBody)
	}

	relPath := req.Path
	if relPath == "/" {
		relPath = "/index.html"
	}
	if strings.Contains(relPath, "..") {
		return writeError(connFd, 403, sendBody)
	}

	absPath := filepath.Join(d.DocumentRoot, relPath)

	handle, hit := d.Cache.Acquire(relPath)
	if !hit {
		if _, err := os.Stat(absPath); err != nil {
			if os.IsNotExist(err) {
				return writeError(connFd, 404, sendBody)
			}
			return writeError(connFd, 500, sendBody)
		}
		var err error
		handle, err = d.Cache.LoadFile(relPath, absPath)
		if err != nil {
			if os.IsPermission(err) {
				return writeError(connFd, 403, sendBody)
			}
			return writeError(connFd, 500, sendBody)
		}
	}
	defer handle.Release()

	contentType := d.Mimes.Lookup(absPath)
	total := int64(len(handle.Data))

	if req.HasRange {
		start, end, ok := req.Range.Resolve(total)
		if !ok {
			return writeError(connFd, 416, sendBody)
		}
		return serveRange(connFd, handle.Data, contentType, start, end, total, sendBody)
	}

	return serveFull(connFd, handle.Data, contentType, sendBody)
}

func serveFull(connFd int, data []byte, contentType string, sendBody bool) (int, int64) {
	header := httpwire.Header{ContentType: contentType, ContentLength: int64(len(data))}
	if err := httpwire.WriteStatusLineAndHeaders(newFDWriter(connFd), 200, header); err != nil {
		return 200, 0
	}
	if err := httpwire.WriteBody(newFDWriter(connFd), data, sendBody); err != nil {
		return 200, 0
	}
	if sendBody {
		return 200, int64(len(data))
	}
	return 200, 0
}

func serveRange(connFd int, data []byte, contentType string, start, end, total int64, sendBody bool) (int, int64) {
	header := httpwire.Header{
		ContentType:   contentType,
		ContentLength: end - start + 1,
		ContentRange:  httpwire.ContentRangeHeader(start, end, total),
	}
	if err := httpwire.WriteStatusLineAndHeaders(newFDWriter(connFd), 206, header); err != nil {
		return 206, 0
	}
	if !sendBody {
		return 206, 0
	}
	if err := httpwire.WriteBody(newFDWriter(connFd), data[start:end+1], true); err != nil {
		return 206, 0
	}
	return 206, end - start + 1
}

func writeError(connFd int, status int, sendBody bool) (int, int64) {
	body := errorpage.Render(status, httpwire.StatusText(status))
	header := httpwire.Header{ContentType: "text/html; charset=utf-8", ContentLength: int64(len(body))}
	if err := httpwire.WriteStatusLineAndHeaders(newFDWriter(connFd), status, header); err != nil {
		return status, 0
	}
	if err := httpwire.WriteBody(newFDWriter(connFd), body, sendBody); err != nil {
		return status, 0
	}
	if sendBody {
		return status, int64(len(body))
	}
	return status, 0
}

// statsResponse mirrors the /api/stats JSON shape of spec §4.5 step 5.
type statsResponse struct {
	TotalRequests     uint64          `json:"total_requests"`
	BytesTransferred  uint64          `json:"bytes_transferred"`
	ActiveConnections int64           `json:"active_connections"`
	AvgResponseTimeMS float64         `json:"avg_response_time_ms"`
	StatusCodes       statusCodes     `json:"status_codes"`
	Cache             cacheStatsJSON  `json:"cache"`
}

type statusCodes struct {
	Status200 uint64 `json:"200"`
	Status404 uint64 `json:"404"`
	Status500 uint64 `json:"500"`
}

type cacheStatsJSON struct {
	Items     int64   `json:"items"`
	BytesUsed int64   `json:"bytes_used"`
	Capacity  int64   `json:"capacity"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`
}

func serveStats(connFd int, d Deps, sendBody bool) (int, int64) {
	snap := d.Recorder.Snapshot()
	cs := d.Cache.Stats()

	hitRate := 0.0
	if total := cs.Hits + cs.Misses; total > 0 {
		hitRate = float64(cs.Hits) / float64(total) * 100
	}
	avg := 0.0
	if snap.TotalRequests > 0 {
		avg = float64(snap.TotalResponseTimeMs) / float64(snap.TotalRequests)
	}

	resp := statsResponse{
		TotalRequests:     snap.TotalRequests,
		BytesTransferred:  snap.BytesTransferred,
		ActiveConnections: snap.ActiveConnections,
		AvgResponseTimeMS: roundTo2(avg),
		StatusCodes: statusCodes{
			Status200: snap.Status200,
			Status404: snap.Status404,
			Status500: snap.Status500,
		},
		Cache: cacheStatsJSON{
			Items:     cs.Items,
			BytesUsed: cs.Bytes,
			Capacity:  cs.Capacity,
			Hits:      cs.Hits,
			Misses:    cs.Misses,
			Evictions: cs.Evictions,
			HitRate:   roundTo2(hitRate),
		},
	}

	body, err := json.Marshal(resp)
	if err != nil {
		return writeError(connFd, 500, sendBody)
	}

	header := httpwire.Header{ContentType: "application/json", ContentLength: int64(len(body))}
	if err := httpwire.WriteStatusLineAndHeaders(newFDWriter(connFd), 200, header); err != nil {
		return 200, 0
	}
	if err := httpwire.WriteBody(newFDWriter(connFd), body, sendBody); err != nil {
		return 200, 0
	}
	if sendBody {
		return 200, int64(len(body))
	}
	return 200, 0
}

func roundTo2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

func finish(d Deps, connFd int, remote, method, path string, status int, bytesSent int64, start time.Time) {
	elapsed := time.Since(start)
	d.Recorder.RecordRequest(context.Background(), status, bytesSent, float64(elapsed.Milliseconds()))
	if d.Log != nil {
		d.Log.Write(remote, method, path, status, bytesSent, elapsed)
	}
}

// fdWriter adapts a raw fd to io.Writer for httpwire's partial-send retry
// loop, without wrapping it in a net.Conn (this worker owns the fd
// directly start to finish; there is nothing else it needs net.Conn for).
type fdWriter int

func newFDWriter(fd int) fdWriter { return fdWriter(fd) }

func (w fdWriter) Write(p []byte) (int, error) {
	n, err := unix.Write(int(w), p)
	for err == unix.EINTR {
		n, err = unix.Write(int(w), p)
	}
	if err != nil {
		return n, fmt.Errorf("handler: write: %w", err)
	}
	return n, nil
}
