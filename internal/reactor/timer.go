package reactor

import (
	"context"
	"fmt"

	"golang.org/x/sys/unix"
)

// Timer is a one-shot monotonic timer backed by a Linux timerfd,
// exposing an awaitable Wait (spec.md §4.6).
type Timer struct {
	fd *FD
	r  *Reactor
}

// NewTimer creates an unarmed timer attached read-only to r.
func NewTimer(r *Reactor) (*Timer, error) {
	tfd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_CLOEXEC|unix.TFD_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("reactor: timerfd_create: %w", err)
	}
	fd, err := NewFD(tfd)
	if err != nil {
		unix.Close(tfd)
		return nil, err
	}
	if err := r.Attach(fd, ModeRead); err != nil {
		unix.Close(tfd)
		return nil, err
	}
	return &Timer{fd: fd, r: r}, nil
}

// Wait validates sec >= 0 and 0 <= nsec <= 999,999,999, arms the timer
// for a one-shot expiration at that offset, and awaits the 8-byte
// expiration count. It returns true iff exactly 8 bytes were read.
func (t *Timer) Wait(ctx context.Context, sec int64, nsec int64) (bool, error) {
	if sec < 0 || nsec < 0 || nsec > 999_999_999 {
		return false, fmt.Errorf("reactor: invalid timer duration %ds %dns", sec, nsec)
	}
	spec := unix.ItimerSpec{
		Value: unix.Timespec{Sec: sec, Nsec: nsec},
	}
	if err := unix.TimerfdSettime(t.fd.raw, 0, &spec, nil); err != nil {
		return false, fmt.Errorf("reactor: timerfd_settime: %w", err)
	}
	return ReadTimer(ctx, t.fd)
}

// Close releases the timer via the reactor's async close.
func (t *Timer) Close() error { return t.r.CloseFD(t.fd) }
