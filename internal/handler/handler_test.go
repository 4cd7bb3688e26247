package handler

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/searchktools/staticd/internal/cache"
	"github.com/searchktools/staticd/internal/ipc"
	"github.com/searchktools/staticd/internal/mimetypes"
	"github.com/searchktools/staticd/internal/stats"
)

func newTestDeps(t *testing.T, docRoot string) Deps {
	t.Helper()
	region, fd, err := ipc.CreateRegion(1, 1)
	if err != nil {
		t.Fatalf("CreateRegion: %v", err)
	}
	t.Cleanup(func() { region.Close(); unix.Close(fd) })

	meter, _ := stats.NewMeter("staticd-test")
	rec, err := stats.NewRecorder(region, meter)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	return Deps{
		DocumentRoot: docRoot,
		Cache:        cache.New(1 << 20),
		Mimes:        mimetypes.Default(),
		Recorder:     rec,
		Timeout:      2 * time.Second,
	}
}

// withSocketPair hands the test a connected pair of stream socket fds: one
// plays the client (write request, read response), the other is passed to
// Handle as the server side.
func withSocketPair(t *testing.T) (client, server int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("Socketpair: %v", err)
	}
	t.Cleanup(func() { unix.Close(fds[0]) })
	return fds[0], fds[1]
}

func readAll(t *testing.T, fd int) []byte {
	t.Helper()
	var out []byte
	buf := make([]byte, 4096)
	for {
		n, err := unix.Read(fd, buf)
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		if n <= 0 || err != nil {
			break
		}
	}
	return out
}

func TestHandleServesIndexHTML(t *testing.T) {
	dir := t.TempDir()
	content := []byte("<h1>Index Page</h1>")
	if err := os.WriteFile(filepath.Join(dir, "index.html"), content, 0o644); err != nil {
		t.Fatal(err)
	}
	d := newTestDeps(t, dir)

	client, server := withSocketPair(t)
	unix.Write(client, []byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n"))

	done := make(chan struct{})
	go func() { Handle(server, d); close(done) }()
	<-done

	resp := string(readAll(t, client))
	if !containsAll(resp, "200 OK", "Content-Length: 19", string(content)) {
		t.Fatalf("unexpected response: %q", resp)
	}
}

func TestHandleReturns404ForMissingFile(t *testing.T) {
	dir := t.TempDir()
	d := newTestDeps(t, dir)

	client, server := withSocketPair(t)
	unix.Write(client, []byte("GET /nope.txt HTTP/1.1\r\nHost: x\r\n\r\n"))

	done := make(chan struct{})
	go func() { Handle(server, d); close(done) }()
	<-done

	resp := string(readAll(t, client))
	if !containsAll(resp, "404 Not Found") {
		t.Fatalf("unexpected response: %q", resp)
	}
}

func TestHandleRejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	d := newTestDeps(t, dir)

	client, server := withSocketPair(t)
	unix.Write(client, []byte("GET /../etc/passwd HTTP/1.1\r\nHost: x\r\n\r\n"))

	done := make(chan struct{})
	go func() { Handle(server, d); close(done) }()
	<-done

	resp := string(readAll(t, client))
	if !containsAll(resp, "403 Forbidden") {
		t.Fatalf("unexpected response: %q", resp)
	}
}

func TestHandleServesPartialRange(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "hello.bin"), []byte("0123456789"), 0o644); err != nil {
		t.Fatal(err)
	}
	d := newTestDeps(t, dir)

	client, server := withSocketPair(t)
	unix.Write(client, []byte("GET /hello.bin HTTP/1.1\r\nHost: x\r\nRange: bytes=2-4\r\n\r\n"))

	done := make(chan struct{})
	go func() { Handle(server, d); close(done) }()
	<-done

	resp := string(readAll(t, client))
	if !containsAll(resp, "206 Partial Content", "Content-Range: bytes 2-4/10", "234") {
		t.Fatalf("unexpected response: %q", resp)
	}
}

func TestHandleRejectsMethodNotAllowed(t *testing.T) {
	dir := t.TempDir()
	d := newTestDeps(t, dir)

	client, server := withSocketPair(t)
	unix.Write(client, []byte("POST /index.html HTTP/1.1\r\nHost: x\r\n\r\n"))

	done := make(chan struct{})
	go func() { Handle(server, d); close(done) }()
	<-done

	resp := string(readAll(t, client))
	if !containsAll(resp, "405 Method Not Allowed") {
		t.Fatalf("unexpected response: %q", resp)
	}
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !contains(s, sub) {
			return false
		}
	}
	return true
}

func contains(s, sub string) bool {
	return len(sub) == 0 || (len(s) >= len(sub) && indexOf(s, sub) >= 0)
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
