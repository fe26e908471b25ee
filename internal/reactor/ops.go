package reactor

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// isTransient reports whether err is one of the three errnos that mean
// "not ready yet, suspend" rather than a real failure (spec.md §4.3).
func isTransient(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EINPROGRESS)
}

// MustNoError terminates the process with a diagnostic if err is
// non-nil. It is the translation of "the caller opted out of error
// handling by passing a null error channel" (spec.md §4.3, §7).
func MustNoError(err error) {
	if err != nil {
		logrus.Fatalf("reactor: unrecoverable error: %v", err)
	}
}

// await parks the calling goroutine until fd becomes ready in the given
// direction, or ctx is cancelled. This is the suspension point: the
// calling goroutine plays the role of the coroutine frame that would
// suspend in the original design.
func await(ctx context.Context, fd *FD, read bool) error {
	ch := make(chan struct{})
	cancel := fd.addPendingOp(ch, read)
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

// Read is the single-shot awaitable read: the syscall is retried once
// on each readiness wakeup until it succeeds or fails for a reason other
// than transient unavailability.
func Read(ctx context.Context, fd *FD, buf []byte) (int, error) {
	for {
		n, err := unix.Read(fd.raw, buf)
		if err == nil {
			return n, nil
		}
		if !isTransient(err) {
			return 0, err
		}
		if err := await(ctx, fd, true); err != nil {
			return 0, err
		}
	}
}

// Write is the single-shot awaitable write.
func Write(ctx context.Context, fd *FD, buf []byte) (int, error) {
	for {
		n, err := unix.Write(fd.raw, buf)
		if err == nil {
			return n, nil
		}
		if !isTransient(err) {
			return 0, err
		}
		if err := await(ctx, fd, false); err != nil {
			return 0, err
		}
	}
}

// Recv is the socket analogue of Read, looping internally until len(buf)
// bytes have arrived or the peer closes (n==0, nil).
func Recv(ctx context.Context, fd *FD, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := unix.Read(fd.raw, buf[total:])
		if err != nil {
			if isTransient(err) {
				if err := await(ctx, fd, true); err != nil {
					return total, err
				}
				continue
			}
			return total, err
		}
		if n == 0 {
			return total, nil // peer closed
		}
		total += n
	}
	return total, nil
}

// Send loops internally until all of buf has been written.
func Send(ctx context.Context, fd *FD, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := unix.Write(fd.raw, buf[total:])
		if err != nil {
			if isTransient(err) {
				if err := await(ctx, fd, false); err != nil {
					return total, err
				}
				continue
			}
			return total, err
		}
		total += n
	}
	return total, nil
}

// Accept is the single-shot awaitable accept on a listening FD.
func Accept(ctx context.Context, fd *FD) (int, unix.Sockaddr, error) {
	for {
		nfd, sa, err := unix.Accept4(fd.raw, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err == nil {
			return nfd, sa, nil
		}
		if !isTransient(err) {
			return 0, nil, err
		}
		if err := await(ctx, fd, true); err != nil {
			return 0, nil, err
		}
	}
}

// Connect issues a non-blocking connect and, on EINPROGRESS, awaits
// write-readiness before confirming success (see socket.go: connect's
// syscall is special because EINPROGRESS on the first call is the
// expected path, not an error to retry).
func Connect(ctx context.Context, fd *FD, sa unix.Sockaddr) error {
	err := unix.Connect(fd.raw, sa)
	if err == nil {
		return nil
	}
	if !errors.Is(err, unix.EINPROGRESS) {
		return err
	}
	return await(ctx, fd, false)
}

// WaitChild is the multi-shot waitpid-style awaitable: readiness on a
// pidfd (or a synthetic notification channel for non-pidfd use) can be
// spurious, so the caller re-polls and re-suspends if the child has not
// actually exited yet. Child.WaitForProcessTermination does not use it;
// it polls wait4 directly on a timer.
func WaitChild(ctx context.Context, poll func() (done bool, err error), fd *FD) error {
	for {
		done, err := poll()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if err := await(ctx, fd, true); err != nil {
			return err
		}
	}
}

// ReadTimer is the multi-shot awaitable backing Timer.Wait: a timerfd
// read can also spuriously wake before 8 bytes are available.
func ReadTimer(ctx context.Context, fd *FD) (bool, error) {
	var buf [8]byte
	total := 0
	for total < 8 {
		n, err := unix.Read(fd.raw, buf[total:])
		if err != nil {
			if isTransient(err) {
				if err := await(ctx, fd, true); err != nil {
					return false, err
				}
				continue
			}
			return false, err
		}
		total += n
	}
	return total == 8, nil
}
