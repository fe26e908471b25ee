// Package reactor implements the single-threaded cooperative I/O runtime
// that the rest of shared-state runs on top of: an epoll-backed readiness
// multiplexer (Reactor), a non-blocking file-descriptor handle with a
// FIFO waiter queue (FD), and goroutine-based awaitable syscall wrappers
// (read/write/recv/send/accept/connect/waitpid/timer) that suspend by
// parking on a channel rather than blocking the reactor goroutine.
//
// Go has no user-suspendable coroutines, so a "task" here is simply the
// goroutine that calls an awaitable operation: parking on a channel is
// the idiomatic stand-in for a coroutine's suspension point, and the
// single reactor goroutine dispatching readiness is the stand-in for the
// single OS thread the original design assumed.
package reactor

import (
	"container/list"
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Mode is the interest set a FileDescriptor handle is attached with.
type Mode int

const (
	ModeRead Mode = 1 << iota
	ModeWrite
)

func (m Mode) readable() bool  { return m&ModeRead != 0 }
func (m Mode) writable() bool  { return m&ModeWrite != 0 }

// Reactor owns the epoll instance and the set of attached FDs. There is
// exactly one Reactor per process; Run must be called from the
// goroutine that is to act as the reactor thread and does not return
// under normal operation.
type Reactor struct {
	epfd int
	log  *logrus.Logger

	mu      sync.Mutex
	fds     map[int]*FD
	pending map[int]Mode // staged interest changes, flushed before next wait
}

// New creates a Reactor backed by a fresh epoll instance.
func New(log *logrus.Logger) (*Reactor, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll_create1: %w", err)
	}
	return &Reactor{
		epfd:    epfd,
		log:     log,
		fds:     make(map[int]*FD),
		pending: make(map[int]Mode),
	}, nil
}

func (r *Reactor) epollEvents(m Mode) uint32 {
	var ev uint32 = unix.EPOLLET
	if m.readable() {
		ev |= unix.EPOLLIN
	}
	if m.writable() {
		ev |= unix.EPOLLOUT
	}
	return ev
}

// Attach registers fd with the reactor under the given edge-triggered
// interest mode. It does not happen automatically on FD construction.
func (r *Reactor) Attach(fd *FD, mode Mode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	fd.mode = mode
	r.fds[fd.raw] = fd
	ev := unix.EpollEvent{Events: r.epollEvents(mode), Fd: int32(fd.raw)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd.raw, &ev); err != nil {
		delete(r.fds, fd.raw)
		return fmt.Errorf("reactor: epoll_ctl add: %w", err)
	}
	return nil
}

// Detach removes fd from the epoll set. It does not close the fd.
func (r *Reactor) Detach(fd *FD) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.fds, fd.raw)
	delete(r.pending, fd.raw)
	_ = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd.raw, nil)
}

// watchRead/watchWrite/unwatchRead/unwatchWrite stage an interest-mask
// change; Run flushes the accumulated staged changes once per loop
// iteration, before the next epoll_wait.
func (r *Reactor) watch(fd *FD, add Mode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fd.mode |= add
	r.pending[fd.raw] = fd.mode
}

func (r *Reactor) unwatch(fd *FD, remove Mode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fd.mode &^= remove
	r.pending[fd.raw] = fd.mode
}

func (r *Reactor) WatchRead(fd *FD)    { r.watch(fd, ModeRead) }
func (r *Reactor) WatchWrite(fd *FD)   { r.watch(fd, ModeWrite) }
func (r *Reactor) UnwatchRead(fd *FD)  { r.unwatch(fd, ModeRead) }
func (r *Reactor) UnwatchWrite(fd *FD) { r.unwatch(fd, ModeWrite) }

func (r *Reactor) flushPending() {
	r.mu.Lock()
	if len(r.pending) == 0 {
		r.mu.Unlock()
		return
	}
	changes := r.pending
	r.pending = make(map[int]Mode)
	r.mu.Unlock()

	for rawFD, mode := range changes {
		ev := unix.EpollEvent{Events: r.epollEvents(mode), Fd: int32(rawFD)}
		if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, rawFD, &ev); err != nil {
			r.log.WithError(err).WithField("fd", rawFD).Warn("reactor: epoll_ctl mod failed")
		}
	}
}

// maxEvents bounds one epoll_wait batch.
const maxEvents = 256

// Run is the reactor main loop: wait for readiness, dispatch to FIFO
// waiters (resuming at most the number of waiters observed at dispatch
// time, per the live-lock guard in spec.md §4.1/§9), flush staged
// interest changes, repeat. It returns when ctx is cancelled or when
// epoll_wait fails with an error other than EINTR.
func (r *Reactor) Run(ctx context.Context) error {
	events := make([]unix.EpollEvent, maxEvents)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		r.flushPending()

		n, err := unix.EpollWait(r.epfd, events, 250) // ms; periodic ctx check
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("reactor: epoll_wait: %w", err)
		}

		for i := 0; i < n; i++ {
			ev := events[i]
			r.mu.Lock()
			fd, ok := r.fds[int(ev.Fd)]
			r.mu.Unlock()
			if !ok {
				continue
			}
			if ev.Events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
				fd.resumePending(true)
			}
			if ev.Events&(unix.EPOLLOUT|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
				fd.resumePending(false)
			}
		}
	}
}

// Close releases the epoll instance itself. Call once at shutdown, after
// every attached FD has been closed.
func (r *Reactor) Close() error {
	return unix.Close(r.epfd)
}

// CloseFD is the awaitable, non-blocking close from spec.md §4.1:
// EAGAIN/EWOULDBLOCK/EINPROGRESS from close(2) are treated as success
// (the fd is released kernel-side regardless) and close is never
// retried on error, since retrying a closed fd number risks closing
// whatever the kernel has since reassigned it to (the double-close
// hazard). fd is detached from the epoll set first.
func (r *Reactor) CloseFD(fd *FD) error {
	fd.mu.Lock()
	if fd.closed {
		fd.mu.Unlock()
		return nil
	}
	fd.mu.Unlock()

	r.Detach(fd)
	err := unix.Close(fd.raw)
	fd.markClosed()
	if err != nil && !isTransient(err) {
		return fmt.Errorf("reactor: close: %w", err)
	}
	return nil
}

// waiterList is the FIFO queue backing one direction (read or write) of
// pending operations on an FD, grounded on the proactor pattern's
// per-fd reader/writer lists (see other_examples' gaio watcher.go).
type waiterList struct {
	l *list.List
}

func newWaiterList() waiterList { return waiterList{l: list.New()} }

func (w waiterList) push(ch chan struct{}) *list.Element { return w.l.PushBack(ch) }

func (w waiterList) remove(e *list.Element) { w.l.Remove(e) }

// resumeAtMost wakes at most the queue length observed right now,
// leaving anything pushed during this call for the next readiness event.
func (w waiterList) resumeAtMost() {
	n := w.l.Len()
	for i := 0; i < n; i++ {
		front := w.l.Front()
		if front == nil {
			return
		}
		w.l.Remove(front)
		close(front.Value.(chan struct{}))
	}
}
