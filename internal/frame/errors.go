package frame

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfMemory is returned by New when the frame needs more entries
	// than the configured limit. The function cannot be compiled.
	ErrOutOfMemory = errors.New("ran out of memory")

	// ErrNoRegisters means every allocatable register was pinned or held
	// as a temporary when one more was needed.
	ErrNoRegisters = errors.New("no allocatable register")

	// ErrInvariant marks a broken frame state invariant
	ErrInvariant = errors.New("frame state invariant violated")

	// ErrMisuse marks a call the frame state cannot honor, such as popping
	// below the stack base
	ErrMisuse = errors.New("invalid frame state operation")
)

// InternalError is the panic value of every internal consistency failure.
// A compiler driver recovers it and gives up on the function.
type InternalError struct {
	Op  string
	Err error
	Msg string
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("frame: %s: %v: %s", e.Op, e.Err, e.Msg)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

func (f *Frame) fail(op string, err error, format string, args ...any) {
	e := &InternalError{Op: op, Err: err, Msg: fmt.Sprintf(format, args...)}
	f.log.Errorf("%s", e)
	panic(e)
}
