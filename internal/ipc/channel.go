package ipc

import (
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// Channel is the per-worker control connection the master uses to hand off
// accepted connection file descriptors (spec §4.1 step 4, §4.2). It wraps a
// net.UnixConn over a SOCK_DGRAM socketpair so SendFD/RecvFD get deadline
// and cancellation support from the standard library on top of the raw
// SCM_RIGHTS plumbing, which x/sys/unix still has to build.
type Channel struct {
	conn *net.UnixConn
}

// NewChannelPair creates a connected pair of channel endpoints. The master
// keeps one end and passes the other's fd to a worker via
// exec.Cmd.ExtraFiles; the worker reconstructs its end with OpenChannel.
func NewChannelPair() (master *Channel, workerFile *os.File, err error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_DGRAM, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("ipc: socketpair: %w", err)
	}

	masterFile := os.NewFile(uintptr(fds[0]), "staticd-channel-master")
	workerFile = os.NewFile(uintptr(fds[1]), "staticd-channel-worker")

	masterConn, err := net.FileConn(masterFile)
	masterFile.Close()
	if err != nil {
		workerFile.Close()
		return nil, nil, fmt.Errorf("ipc: FileConn: %w", err)
	}

	uc, ok := masterConn.(*net.UnixConn)
	if !ok {
		masterConn.Close()
		workerFile.Close()
		return nil, nil, fmt.Errorf("ipc: unexpected conn type %T", masterConn)
	}
	return &Channel{conn: uc}, workerFile, nil
}

// OpenChannel wraps an inherited channel fd (passed to a worker via
// ExtraFiles) as a *Channel.
func OpenChannel(fd int) (*Channel, error) {
	f := os.NewFile(uintptr(fd), "staticd-channel-worker")
	conn, err := net.FileConn(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("ipc: FileConn on inherited fd %d: %w", fd, err)
	}
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("ipc: unexpected conn type %T", conn)
	}
	return &Channel{conn: uc}, nil
}

// SendFD hands connFd to the peer over this channel, tagged with seq so the
// receiver's admission token and the delivered descriptor can be matched up
// for diagnostics. It does not close connFd; the caller (master) closes its
// own copy as soon as SendFD returns, while the in-flight message keeps the
// descriptor alive for the worker.
func (c *Channel) SendFD(connFd int, seq uint64) error {
	oob := unix.UnixRights(connFd)
	var seqBuf [8]byte
	putUint64(seqBuf[:], seq)
	_, _, err := c.conn.WriteMsgUnix(seqBuf[:], oob, nil)
	if err != nil {
		return fmt.Errorf("ipc: WriteMsgUnix: %w", err)
	}
	return nil
}

// RecvFD blocks until a descriptor arrives, or deadline elapses if it is
// non-zero. It returns the delivered connection fd and its sequence tag.
func (c *Channel) RecvFD(deadline time.Time) (connFd int, seq uint64, err error) {
	if !deadline.IsZero() {
		if err := c.conn.SetReadDeadline(deadline); err != nil {
			return -1, 0, err
		}
		defer c.conn.SetReadDeadline(time.Time{})
	}

	msgBuf := make([]byte, 8)
	oobBuf := make([]byte, unix.CmsgSpace(4))

	n, oobn, _, _, err := c.conn.ReadMsgUnix(msgBuf, oobBuf)
	if err != nil {
		return -1, 0, fmt.Errorf("ipc: ReadMsgUnix: %w", err)
	}
	if n < 8 {
		return -1, 0, fmt.Errorf("ipc: short message (%d bytes)", n)
	}
	seq = getUint64(msgBuf[:8])

	cmsgs, err := unix.ParseSocketControlMessage(oobBuf[:oobn])
	if err != nil {
		return -1, 0, fmt.Errorf("ipc: ParseSocketControlMessage: %w", err)
	}
	for _, cmsg := range cmsgs {
		fds, err := unix.ParseUnixRights(&cmsg)
		if err != nil {
			continue
		}
		if len(fds) > 0 {
			return fds[0], seq, nil
		}
	}
	return -1, 0, fmt.Errorf("ipc: no file descriptor in control message")
}

// Close closes this endpoint of the channel.
func (c *Channel) Close() error {
	return c.conn.Close()
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func getUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}
