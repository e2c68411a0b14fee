//go:build unix

package server

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"
)

const readyEvents = unix.POLLIN | unix.POLLHUP | unix.POLLERR | unix.POLLNVAL

type pollPoller struct {
	pfds []unix.PollFd
}

func newPoller() poller {
	return &pollPoller{}
}

func (p *pollPoller) wait(fds []int, timeout time.Duration) ([]int, error) {
	p.pfds = p.pfds[:0]
	for _, fd := range fds {
		p.pfds = append(p.pfds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
	}

	ms := int(timeout / time.Millisecond)
	if ms == 0 && timeout > 0 {
		ms = 1
	}

	n, err := unix.Poll(p.pfds, ms)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil, nil
		}
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}

	ready := make([]int, 0, n)
	for i := range p.pfds {
		if p.pfds[i].Revents&readyEvents != 0 {
			ready = append(ready, i)
		}
	}
	return ready, nil
}
