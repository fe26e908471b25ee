package cli

import (
	"errors"

	"golang.org/x/sys/unix"
)

// errInvalidJSON is returned when a CLI argument expected to be a JSON
// document fails to parse.
var errInvalidJSON = errors.New("cli: argument is not valid JSON")

// errNoSuchKey is returned by "get" when the key is absent from the
// requested type's state.
var errNoSuchKey = errors.New("cli: no such key")

// ExitError carries the process exit code a usage or protocol error
// should propagate as, per spec.md §6: "Exit code 0 on success,
// negative EINVAL/EADDRNOTAVAIL on usage errors, propagated error
// value otherwise." Go process exit codes are unsigned bytes, so the
// negative-errno convention from the original C source is rendered as
// the positive errno magnitude instead (documented in DESIGN.md).
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }
func (e *ExitError) Unwrap() error { return e.Err }

func usageError(err error) *ExitError {
	return &ExitError{Code: int(unix.EINVAL), Err: err}
}

func addrError(err error) *ExitError {
	return &ExitError{Code: int(unix.EADDRNOTAVAIL), Err: err}
}
