package reactor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Child is a forked process with its stdin and stdout each wrapped in a
// FileDescriptor handle, so hook and discovery-collaborator I/O goes
// through the same awaitable read/write path as sockets (spec.md §4.5).
type Child struct {
	cmd    *exec.Cmd
	r      *Reactor
	stdin  *FD
	stdout *FD
}

// StartCommand forks and execs command. Tokenisation is deliberately
// naive: only the text before the first space or tab is executed, as
// argv[0] with no further arguments, and the rest of the string is
// dropped — this is the known limitation
// carried over unfixed from the original source (spec.md §4.5, §9),
// not a bug introduced here.
func StartCommand(r *Reactor, command string) (*Child, error) {
	argv0 := command
	if i := strings.IndexAny(command, " \t"); i >= 0 {
		argv0 = command[:i]
	}

	cmd := exec.Command(argv0)
	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("reactor: stdin pipe: %w", err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("reactor: stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("reactor: start %q: %w", command, err)
	}

	stdinFD, err := adoptPipe(r, stdinPipe.(*os.File), ModeWrite)
	if err != nil {
		_ = cmd.Process.Kill()
		return nil, err
	}
	stdoutFD, err := adoptPipe(r, stdoutPipe.(*os.File), ModeRead)
	if err != nil {
		_ = cmd.Process.Kill()
		return nil, err
	}

	return &Child{cmd: cmd, r: r, stdin: stdinFD, stdout: stdoutFD}, nil
}

// adoptPipe detaches f from Go's runtime poller (via Fd) and re-attaches
// the raw descriptor to our own reactor in non-blocking mode.
func adoptPipe(r *Reactor, f *os.File, mode Mode) (*FD, error) {
	raw := int(f.Fd())
	fd, err := NewFD(raw)
	if err != nil {
		return nil, err
	}
	if err := r.Attach(fd, mode); err != nil {
		return nil, err
	}
	return fd, nil
}

// ReadStdOut is the awaitable read with EOF detection: n==0, err==nil
// means the child closed its stdout.
func (c *Child) ReadStdOut(ctx context.Context, buf []byte) (int, error) {
	return Read(ctx, c.stdout, buf)
}

// WriteStdIn is the awaitable write to the child's stdin.
func (c *Child) WriteStdIn(ctx context.Context, buf []byte) (int, error) {
	return Send(ctx, c.stdin, buf)
}

// CloseStdIn asynchronously closes the parent-write end, so that a
// child reading until EOF terminates.
func (c *Child) CloseStdIn() error {
	return c.r.CloseFD(c.stdin)
}

// waitpidRetryBudget is how many further non-blocking WNOHANG polls,
// 50ms apart, WaitForProcessTermination makes after its first one
// before escalating to SIGKILL.
const waitpidRetryBudget = 1

// WaitForProcessTermination polls waitpid(pid, WNOHANG); if the child
// has not exited within the retry budget it sends SIGKILL and performs
// one final blocking wait. A child MUST be waited on before the handle
// is discarded, to avoid zombies (spec.md §4.5).
func (c *Child) WaitForProcessTermination(ctx context.Context) error {
	pid := c.cmd.Process.Pid
	for attempt := 0; attempt <= waitpidRetryBudget; attempt++ {
		var ws unix.WaitStatus
		wpid, err := unix.Wait4(pid, &ws, unix.WNOHANG, nil)
		if err != nil {
			return fmt.Errorf("reactor: wait4: %w", err)
		}
		if wpid == pid {
			return nil
		}
		if attempt == waitpidRetryBudget {
			break
		}
		select {
		case <-time.After(50 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := c.cmd.Process.Signal(syscall.SIGKILL); err != nil {
		return fmt.Errorf("reactor: sigkill: %w", err)
	}
	var ws unix.WaitStatus
	if _, err := unix.Wait4(pid, &ws, 0, nil); err != nil {
		return fmt.Errorf("reactor: wait4 after sigkill: %w", err)
	}
	return nil
}

// Close releases the child's stdin/stdout FDs. It does not wait for the
// process; call WaitForProcessTermination first.
func (c *Child) Close() error {
	err1 := c.r.CloseFD(c.stdin)
	err2 := c.r.CloseFD(c.stdout)
	if err1 != nil {
		return err1
	}
	return err2
}
