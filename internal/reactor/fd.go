package reactor

import (
	"container/list"
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// leakHandler runs when an FD is garbage collected while still open. It
// defaults to a fatal diagnostic (spec.md §4.2: "destruction with FD
// still open is a programmer error"); tests override it to observe the
// leak instead of exiting the process.
var leakHandler = func(rawFD int) {
	logrus.Fatalf("reactor: fd %d was garbage collected while still open; FDs must be closed via Reactor.CloseFD", rawFD)
}

// FD is a non-blocking OS file descriptor plus a FIFO queue of
// suspended waiters, one queue per direction. Construction does not
// register with any Reactor; call Reactor.Attach explicitly.
type FD struct {
	raw  int
	mode Mode

	mu    sync.Mutex
	reads waiterList
	writes waiterList

	closed bool
}

// NewFD wraps rawFD, putting it in non-blocking mode. The caller must
// eventually call Reactor.CloseFD(fd); failing to do so before the
// handle is garbage collected is fatal.
func NewFD(rawFD int) (*FD, error) {
	if err := unix.SetNonblock(rawFD, true); err != nil {
		return nil, err
	}
	fd := &FD{
		raw:    rawFD,
		reads:  newWaiterList(),
		writes: newWaiterList(),
	}
	runtime.SetFinalizer(fd, func(f *FD) {
		f.mu.Lock()
		closed := f.closed
		f.mu.Unlock()
		if !closed {
			leakHandler(f.raw)
		}
	})
	return fd, nil
}

// Raw returns the underlying OS file descriptor number.
func (f *FD) Raw() int { return f.raw }

// addPendingOp enqueues ch as a waiter for readiness in the given
// direction, returning a cancel function to remove it (used when the
// caller's context is cancelled before readiness arrives).
func (f *FD) addPendingOp(ch chan struct{}, read bool) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	var e *elementHandle
	if read {
		el := f.reads.push(ch)
		e = &elementHandle{list: f.reads, el: el}
	} else {
		el := f.writes.push(ch)
		e = &elementHandle{list: f.writes, el: el}
	}
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		e.list.remove(e.el)
	}
}

type elementHandle struct {
	list waiterList
	el   *list.Element
}

// resumePending wakes at most the number of waiters queued in direction
// read/write at the moment of the call; waiters re-queued from within
// those wakeups wait for the next readiness event (spec.md §4.1).
func (f *FD) resumePending(read bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if read {
		f.reads.resumeAtMost()
	} else {
		f.writes.resumeAtMost()
	}
}

// markClosed flags the FD as closed so the leak finalizer stays quiet.
// Called by Reactor.CloseFD after the underlying fd has been released.
func (f *FD) markClosed() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	runtime.SetFinalizer(f, nil)
}
