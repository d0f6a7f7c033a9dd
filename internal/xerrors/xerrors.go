// Package xerrors wraps errors with the call site so error logs can point
// at file:line. Values stay compatible with errors.Is and errors.As.
package xerrors

import (
	"errors"
	"fmt"
	"runtime"
)

const maxStackDepth = 64

// stacked carries a full stack, captured where the error was created.
type stacked struct {
	err error
	pcs []uintptr
}

func (s *stacked) Error() string       { return s.err.Error() }
func (s *stacked) Unwrap() error       { return s.err }
func (s *stacked) StackPCs() []uintptr { return s.pcs }
func (s *stacked) IsXerrorsWrapper()   {}

// wrapped carries one frame: where the message was added.
type wrapped struct {
	err error
	msg string
	pc  uintptr
}

func (w *wrapped) Error() string {
	if w.msg == "" {
		return w.err.Error()
	}
	return w.msg + ": " + w.err.Error()
}
func (w *wrapped) Unwrap() error     { return w.err }
func (w *wrapped) PC() uintptr       { return w.pc }
func (w *wrapped) IsXerrorsWrapper() {}

// skip counts frames above runtime.Callers: 1 is the helper itself, 2 its
// caller and so on.
func stackAt(skip int) []uintptr {
	pcs := make([]uintptr, maxStackDepth)
	return pcs[:runtime.Callers(skip+1, pcs)]
}

func pcAt(skip int) uintptr {
	var pcs [1]uintptr
	if runtime.Callers(skip+1, pcs[:]) == 0 {
		return 0
	}
	return pcs[0]
}

// New returns an error with msg and the caller's stack.
func New(msg string) error { return &stacked{err: errors.New(msg), pcs: stackAt(2)} }

// Newf is New with fmt formatting. %w is honored.
func Newf(format string, args ...any) error {
	return &stacked{err: fmt.Errorf(format, args...), pcs: stackAt(2)}
}

// WithStack attaches the caller's stack to err. Nil stays nil.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	return &stacked{err: err, pcs: stackAt(2)}
}

// EnsureTrace is WithStack unless err already carries a stack.
func EnsureTrace(err error) error {
	if err == nil {
		return nil
	}
	var hs interface{ StackPCs() []uintptr }
	if errors.As(err, &hs) && len(hs.StackPCs()) > 0 {
		return err
	}
	return &stacked{err: err, pcs: stackAt(2)}
}

// Wrap prefixes err with msg and records the caller. Nil stays nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &wrapped{err: err, msg: msg, pc: pcAt(2)}
}

// Wrapf is Wrap with fmt formatting of the message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &wrapped{err: err, msg: fmt.Sprintf(format, args...), pc: pcAt(2)}
}

// Errorf is fmt.Errorf plus the caller's position. Use it when the wrapped
// error sits in the middle of the message, e.g. "%w: detail".
func Errorf(format string, args ...any) error {
	return &wrapped{err: fmt.Errorf(format, args...), pc: pcAt(2)}
}
