// Package xerrors wraps errors with call-site information so the logger can
// render where an internal failure originated. Client-visible errors live in
// apperr; these are for everything the client never sees.
package xerrors

import (
	"errors"
	"fmt"
	"runtime"
)

const maxStackDepth = 64

// stacked carries the goroutine stack at the point the error was created.
type stacked struct {
	err error
	pcs []uintptr
}

func (s *stacked) Error() string       { return s.err.Error() }
func (s *stacked) Unwrap() error       { return s.err }
func (s *stacked) StackPCs() []uintptr { return s.pcs }

// annotated adds a message and the single call site that added it.
type annotated struct {
	err error
	msg string
	pc  uintptr
}

func (a *annotated) Error() string { return a.msg + ": " + a.err.Error() }
func (a *annotated) Unwrap() error { return a.err }
func (a *annotated) PC() uintptr   { return a.pc }

// callers returns the stack starting skip frames above its caller.
func callers(skip int) []uintptr {
	pcs := make([]uintptr, maxStackDepth)
	// runtime.Callers, callers
	n := runtime.Callers(skip+2, pcs)
	return pcs[:n:n]
}

// caller returns the pc skip frames above its caller, 0 if unknown.
func caller(skip int) uintptr {
	var pcs [1]uintptr
	if runtime.Callers(skip+2, pcs[:]) == 0 {
		return 0
	}
	return pcs[0]
}

// New returns an error with msg and the caller's stack.
func New(msg string) error {
	return &stacked{err: errors.New(msg), pcs: callers(1)}
}

func Newf(format string, args ...any) error {
	return &stacked{err: fmt.Errorf(format, args...), pcs: callers(1)}
}

// WithStack records the caller's stack on err. nil stays nil.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	return &stacked{err: err, pcs: callers(1)}
}

// HasStack reports whether any error in the chain carries a stack.
func HasStack(err error) bool {
	var s interface{ StackPCs() []uintptr }
	return errors.As(err, &s) && len(s.StackPCs()) > 0
}

// EnsureTrace adds the caller's stack unless the chain already has one.
func EnsureTrace(err error) error {
	if err == nil || HasStack(err) {
		return err
	}
	return &stacked{err: err, pcs: callers(1)}
}

// Wrap annotates err with msg and the caller position. nil stays nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &annotated{err: err, msg: msg, pc: caller(1)}
}

func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &annotated{err: err, msg: fmt.Sprintf(format, args...), pc: caller(1)}
}
