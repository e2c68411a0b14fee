package server

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"time"
)

// DefaultPollInterval bounds how long the loop waits before rechecking its context
const DefaultPollInterval = 100 * time.Millisecond

// ErrAlreadyRegistered is returned when a descriptor is registered twice
var ErrAlreadyRegistered = errors.New("descriptor already registered")

// Handler is invoked by the loop when its descriptor is readable
type Handler func()

// poller reports which descriptors are readable. ready holds indices into fds,
// in the order they were given.
type poller interface {
	wait(fds []int, timeout time.Duration) (ready []int, err error)
}

type entry struct {
	handler Handler
	gen     uint64
}

// Loop is a single-threaded readiness loop. Handlers run on the goroutine
// that called Run, one at a time and to completion.
//
// Register and Unregister are not safe for concurrent use: call them before
// Run or from inside a handler.
type Loop struct {
	interval time.Duration
	poller   poller

	entries map[int]entry
	order   []int
	gen     uint64
}

// NewLoop creates a loop backed by poll(2)
func NewLoop(pollInterval time.Duration) *Loop {
	return newLoop(pollInterval, newPoller())
}

func newLoop(pollInterval time.Duration, p poller) *Loop {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Loop{
		interval: pollInterval,
		poller:   p,
		entries:  make(map[int]entry),
	}
}

// Register adds fd to the dispatch table
func (l *Loop) Register(fd int, h Handler) error {
	if _, ok := l.entries[fd]; ok {
		return fmt.Errorf("%w: %d", ErrAlreadyRegistered, fd)
	}
	l.gen++
	l.entries[fd] = entry{handler: h, gen: l.gen}
	l.order = append(l.order, fd)
	return nil
}

// Unregister removes fd and reports whether it was registered
func (l *Loop) Unregister(fd int) bool {
	if _, ok := l.entries[fd]; !ok {
		return false
	}
	delete(l.entries, fd)
	for i, v := range l.order {
		if v == fd {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	return true
}

// Len returns the number of registered descriptors
func (l *Loop) Len() int {
	return len(l.entries)
}

// Run dispatches readiness events until ctx is cancelled. It returns nil on
// cancellation and the poll error otherwise.
func (l *Loop) Run(ctx context.Context) error {
	var (
		fds  []int
		gens []uint64
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		fds = append(fds[:0], l.order...)
		gens = gens[:0]
		for _, fd := range fds {
			gens = append(gens, l.entries[fd].gen)
		}

		ready, err := l.poller.wait(fds, l.interval)
		if err != nil {
			return fmt.Errorf("event loop: poll: %w", err)
		}

		for _, i := range ready {
			// skip descriptors released (or reused) by an earlier handler
			e, ok := l.entries[fds[i]]
			if !ok || e.gen != gens[i] {
				continue
			}
			e.handler()
		}
	}
}

// socketFD returns the descriptor behind a socket
func socketFD(c syscall.Conn) (int, error) {
	raw, err := c.SyscallConn()
	if err != nil {
		return -1, err
	}
	fd := -1
	if err := raw.Control(func(s uintptr) { fd = int(s) }); err != nil {
		return -1, err
	}
	return fd, nil
}
