//go:build linux

package poller

import "golang.org/x/sys/unix"

// epollPoller wraps epoll down to the one thing the master actually
// needs: readiness on its single listening socket. The teacher's
// core/poller/epoll.go sizes its event buffer for many concurrent client
// connection fds added and removed as a router's connections churn; this
// master never polls more than one fd (the listener) for the entire
// process lifetime, so a 1-element buffer is the honest capacity here,
// not a borrowed constant. syscall.EpollCreate1/EpollCtl/EpollWait are
// used through golang.org/x/sys/unix, since that's the package the rest
// of this core already depends on for memfd/mmap/socketpair.
type epollPoller struct {
	epfd   int
	events [1]unix.EpollEvent
}

// New creates an epoll-backed Poller.
func New() (Poller, error) {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, err
	}
	return &epollPoller{epfd: epfd}, nil
}

func (p *epollPoller) Add(fd int) error {
	ev := unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLRDHUP,
		Fd:     int32(fd),
	}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (p *epollPoller) Wait(timeoutMS int) ([]int, error) {
	n, err := unix.EpollWait(p.epfd, p.events[:], timeoutMS)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}
	fds := make([]int, 0, n)
	for i := 0; i < n; i++ {
		fds = append(fds, int(p.events[i].Fd))
	}
	return fds, nil
}

func (p *epollPoller) Close() error {
	return unix.Close(p.epfd)
}
