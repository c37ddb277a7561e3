// Completion: 100% - Error reporting complete, clear and helpful messages
package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xyproto/jitframe/internal/bytecode"
	"github.com/xyproto/jitframe/internal/frame"
	"github.com/xyproto/jitframe/internal/jit"
)

// ErrorLevel indicates the severity of an error
type ErrorLevel int

const (
	LevelWarning ErrorLevel = iota
	LevelError
	LevelFatal
)

func (l ErrorLevel) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	case LevelFatal:
		return "fatal error"
	default:
		return "unknown"
	}
}

// ErrorCategory classifies the type of error
type ErrorCategory int

const (
	CategorySyntax ErrorCategory = iota
	CategoryBytecode
	CategoryCodegen
	CategoryRuntime
	CategoryInternal
)

func (c ErrorCategory) String() string {
	switch c {
	case CategorySyntax:
		return "syntax"
	case CategoryBytecode:
		return "bytecode"
	case CategoryCodegen:
		return "codegen"
	case CategoryRuntime:
		return "runtime"
	case CategoryInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// SourceLocation represents a position in a script file
type SourceLocation struct {
	File   string
	Line   int
	Column int
	Length int // Length of the problematic instruction
}

func (loc SourceLocation) String() string {
	switch {
	case loc.Line == 0:
		return loc.File
	case loc.File == "":
		return fmt.Sprintf("%d:%d", loc.Line, loc.Column)
	}
	return fmt.Sprintf("%s:%d:%d", loc.File, loc.Line, loc.Column)
}

// ErrorContext provides additional context for an error
type ErrorContext struct {
	SourceLine string // The actual line of the script
	Suggestion string // "Did you mean: x?"
	HelpText   string // Explanatory help text
}

// CompilerError represents a single problem with one script
type CompilerError struct {
	Level    ErrorLevel
	Category ErrorCategory
	Message  string
	Location SourceLocation
	Context  ErrorContext
}

// Error implements the error interface
func (e CompilerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Location, e.Message)
}

// Format returns a nicely formatted error message with context
func (e CompilerError) Format(useColor bool) string {
	var sb strings.Builder
	paint := func(code, s string) {
		if useColor {
			sb.WriteString(code)
		}
		sb.WriteString(s)
		if useColor {
			sb.WriteString("\033[0m")
		}
	}

	header := "\033[1;31m" // Bold red
	if e.Level == LevelWarning {
		header = "\033[1;33m"
	}
	paint(header, e.Level.String()+": ")
	sb.WriteString(e.Message)
	sb.WriteString("\n")

	if loc := e.Location.String(); loc != "" {
		paint("\033[1;34m", "  --> "+loc)
		sb.WriteString("\n")
	}

	// Source context
	if e.Context.SourceLine != "" && e.Location.Line > 0 {
		lineNum := fmt.Sprintf("%d", e.Location.Line)
		padding := strings.Repeat(" ", len(lineNum)+1)

		sb.WriteString(padding + "|\n")
		sb.WriteString(lineNum + " | " + e.Context.SourceLine + "\n")
		sb.WriteString(padding + "| ")
		if e.Location.Column > 0 {
			sb.WriteString(strings.Repeat(" ", e.Location.Column-1))
			paint("\033[1;31m", strings.Repeat("^", max(e.Location.Length, 1)))
			sb.WriteString("\n")
		}
	}

	if e.Context.Suggestion != "" {
		paint("\033[1;32m", "   help: ")
		sb.WriteString(e.Context.Suggestion + "\n")
	}
	if e.Context.HelpText != "" {
		paint("\033[1;36m", "   note: ")
		sb.WriteString(e.Context.HelpText + "\n")
	}
	return sb.String()
}

// ErrorCollector accumulates errors while checking many scripts
type ErrorCollector struct {
	errors   []CompilerError
	warnings []CompilerError
	sources  map[string][]string
}

// NewErrorCollector creates a new error collector
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{sources: make(map[string][]string)}
}

// SetSource stores the text of a script for error context
func (ec *ErrorCollector) SetSource(file string, source []byte) {
	ec.sources[file] = strings.Split(string(source), "\n")
}

// Add records err, picking the source line from the stored script text
func (ec *ErrorCollector) Add(err CompilerError) {
	if err.Context.SourceLine == "" {
		err.Context.SourceLine = ec.sourceLine(err.Location)
	}
	if err.Level == LevelWarning {
		ec.warnings = append(ec.warnings, err)
	} else {
		ec.errors = append(ec.errors, err)
	}
}

func (ec *ErrorCollector) sourceLine(loc SourceLocation) string {
	lines := ec.sources[loc.File]
	if loc.Line <= 0 || loc.Line > len(lines) {
		return ""
	}
	return strings.TrimRight(lines[loc.Line-1], "\r")
}

// HasErrors returns true if any errors were collected
func (ec *ErrorCollector) HasErrors() bool {
	return len(ec.errors) > 0
}

// ErrorCount returns the number of errors
func (ec *ErrorCollector) ErrorCount() int {
	return len(ec.errors)
}

// WarningCount returns the number of warnings
func (ec *ErrorCollector) WarningCount() int {
	return len(ec.warnings)
}

// Report formats all errors and warnings for display
func (ec *ErrorCollector) Report(useColor bool) string {
	var sb strings.Builder
	all := append(append([]CompilerError{}, ec.errors...), ec.warnings...)
	for i, err := range all {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(err.Format(useColor))
	}
	if len(all) == 0 {
		return ""
	}

	sb.WriteString("\n")
	var parts []string
	if n := len(ec.errors); n > 0 {
		parts = append(parts, fmt.Sprintf("%d error(s)", n))
	}
	if n := len(ec.warnings); n > 0 {
		parts = append(parts, fmt.Sprintf("%d warning(s)", n))
	}
	sb.WriteString(strings.Join(parts, ", ") + " found\n")
	return sb.String()
}

// ClassifyError turns an error from loading, compiling or running a
// script into a CompilerError. file is used when err carries no position.
func ClassifyError(file string, err error) CompilerError {
	ce := CompilerError{
		Level:    LevelError,
		Category: CategoryInternal,
		Message:  err.Error(),
		Location: SourceLocation{File: file},
	}

	var be *bytecode.Error
	var ie *frame.InternalError
	switch {
	case errors.As(err, &be):
		ce.Message = be.Msg
		ce.Location = SourceLocation{File: be.File, Line: be.Pos.Line, Column: be.Pos.Column}
		ce.Context.Suggestion = be.Suggestion
		ce.Category = CategoryBytecode
		if errors.Is(err, bytecode.ErrSyntax) {
			ce.Category = CategorySyntax
		}
		if ce.Location.File == "" {
			ce.Location.File = file
		}
	case errors.Is(err, jit.ErrNotCompilable):
		ce.Level = LevelWarning
		ce.Category = CategoryCodegen
		ce.Context.HelpText = "the function stays in the interpreter"
		if errors.As(err, &ie) {
			ce.Category = CategoryInternal
		}
	case errors.Is(err, errRunFailed):
		ce.Category = CategoryRuntime
	}
	return ce
}

// errRunFailed wraps failures of compiled code on the simulated machine
var errRunFailed = errors.New("run failed")
