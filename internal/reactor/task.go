package reactor

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Task is the idiomatic Go stand-in for the original stackless
// coroutine handle (spec.md §4.4): a goroutine plus a done channel and
// an error slot. Go cannot start a goroutine suspended, so Spawn begins
// execution immediately rather than requiring an explicit Resume; the
// rest of the contract — awaiting another task's completion, detaching
// a long-lived handler so destroying the *Task value doesn't stop it —
// carries over directly, since a goroutine already outlives any
// particular reference to it.
type Task struct {
	done chan struct{}
	err  error
}

// Spawn starts fn on a new goroutine and returns a handle to it.
func Spawn(ctx context.Context, fn func(ctx context.Context) error) *Task {
	t := &Task{done: make(chan struct{})}
	go func() {
		defer close(t.done)
		t.err = fn(ctx)
	}()
	return t
}

// Detach marks the task as self-owned: long-lived accept loops and
// per-connection handlers call this so nothing needs to Wait on them.
// It is a no-op on the goroutine itself (which was never tied to the
// handle's lifetime); it exists so call sites read the same as the
// original detach-on-spawn idiom.
func (t *Task) Detach() {}

// Wait blocks until the task's goroutine returns, yielding its error.
func (t *Task) Wait() error {
	<-t.done
	return t.err
}

// Done returns a channel closed when the task completes, for use in a
// select alongside other awaitables.
func (t *Task) Done() <-chan struct{} { return t.done }

// SpawnDetached starts fn as a detached, long-lived task and logs any
// error it returns instead of requiring a caller to Wait on it — the
// pattern used by the orchestrator's three top-level loops.
func SpawnDetached(ctx context.Context, log *logrus.Logger, name string, fn func(ctx context.Context) error) *Task {
	t := Spawn(ctx, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && ctx.Err() == nil {
			log.WithError(err).WithField("task", name).Error("reactor: detached task exited with error")
		}
		return err
	})
	t.Detach()
	return t
}
