package bytecode

import (
	"errors"
	"fmt"
)

var (
	// ErrSyntax marks a script that could not be read
	ErrSyntax = errors.New("syntax error")

	// ErrInvalid marks a well-formed script that breaks a stack machine
	// rule, such as popping an empty stack
	ErrInvalid = errors.New("invalid bytecode")
)

// Pos is a position in a script file. Line and Column start at 1; zero
// means unknown.
type Pos struct {
	Line   int
	Column int
}

// Error is a problem at one position of a script
type Error struct {
	File       string
	Pos        Pos
	Err        error // ErrSyntax or ErrInvalid
	Msg        string
	Suggestion string
}

func (e *Error) Error() string {
	where := e.File
	if where == "" {
		where = "<script>"
	}
	if e.Pos.Line > 0 {
		where = fmt.Sprintf("%s:%d:%d", where, e.Pos.Line, e.Pos.Column)
	}
	s := fmt.Sprintf("%s: %v: %s", where, e.Err, e.Msg)
	if e.Suggestion != "" {
		s += " (" + e.Suggestion + ")"
	}
	return s
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (s *Script) syntaxErr(pos Pos, format string, args ...any) *Error {
	return &Error{File: s.File, Pos: pos, Err: ErrSyntax, Msg: fmt.Sprintf(format, args...)}
}

func (s *Script) invalid(pos Pos, format string, args ...any) *Error {
	return &Error{File: s.File, Pos: pos, Err: ErrInvalid, Msg: fmt.Sprintf(format, args...)}
}
