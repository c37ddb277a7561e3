package bytecode

import (
	"errors"
	"strings"
	"testing"

	"github.com/xyproto/jitframe/internal/value"
)

const loopScript = `
name: count
args: 1
locals: 1
closed_locals: [0]
code:
  - int 0
  - setlocal 0
  - pop
  - label top
  - getlocal 0
  - int 1
  - add
  - setlocal 0
  - getarg 0
  - lt
  - ifne top
  - getlocal 0
  - return
run:
  args: [5]
  this: null
  expect: 5
`

func parse(t *testing.T, src string) *Script {
	t.Helper()
	s, err := Parse("test.yaml", []byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return s
}

// parseErr parses src and returns the *Error it must fail with
func parseErr(t *testing.T, src string, target error) *Error {
	t.Helper()
	_, err := Parse("test.yaml", []byte(src))
	if err == nil {
		t.Fatal("expected an error")
	}
	if !errors.Is(err, target) {
		t.Fatalf("error %v is not %v", err, target)
	}
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("error %T is not a *Error", err)
	}
	return e
}

// TestParseScript tests the header, code and run sections
func TestParseScript(t *testing.T) {
	s := parse(t, loopScript)
	if s.Name != "count" || s.NArgs != 1 || s.NLocals != 1 {
		t.Errorf("header = %q args=%d locals=%d", s.Name, s.NArgs, s.NLocals)
	}
	if len(s.ClosedLocals) != 1 || s.ClosedLocals[0] != 0 {
		t.Errorf("closed locals = %v", s.ClosedLocals)
	}
	if len(s.Code) != 13 {
		t.Fatalf("decoded %d instructions, want 13", len(s.Code))
	}
	if in := s.Code[3]; in.Op != OpLabel || in.Label != "top" {
		t.Errorf("Code[3] = %s", in)
	}
	if in := s.Code[0]; in.Pos.Line != 7 || in.Pos.Column != 5 {
		t.Errorf("Code[0] at %d:%d, want 7:5", in.Pos.Line, in.Pos.Column)
	}
	if !s.IsLoopHeader("top") {
		t.Error("top should be a loop header")
	}
	if d := s.LabelDepth("top"); d != 0 {
		t.Errorf("depth at top = %d", d)
	}
	if s.MaxDepth != 2 {
		t.Errorf("MaxDepth = %d, want 2", s.MaxDepth)
	}
	run := s.Run
	if run == nil {
		t.Fatal("run section missing")
	}
	if run.This != value.Null() || run.Arg(0) != value.Int32(5) || run.Arg(1) != value.Undefined() {
		t.Errorf("run inputs = this %s args %v", run.This, run.Args)
	}
	if !run.HasExpect || run.Expect != value.Int32(5) {
		t.Errorf("expect = %s (%v)", run.Expect, run.HasExpect)
	}
	if run.CallResult != value.Undefined() {
		t.Errorf("call_result default = %s", run.CallResult)
	}
}

// TestParseInstr tests operand decoding
func TestParseInstr(t *testing.T) {
	tests := []struct {
		in   string
		want Instr
	}{
		{"int -7", Instr{Op: OpInt, Int: -7}},
		{"int 0x10", Instr{Op: OpInt, Int: 16}},
		{"double 2.5", Instr{Op: OpDouble, Num: 2.5}},
		{"GETLOCAL 3", Instr{Op: OpGetLocal, Int: 3}},
		{"call 2", Instr{Op: OpCall, Int: 2}},
		{"ifeq else_1", Instr{Op: OpIfEq, Label: "else_1"}},
		{"  swap  ", Instr{Op: OpSwap}},
	}
	for _, tt := range tests {
		got, err := ParseInstr(tt.in)
		if err != nil {
			t.Errorf("ParseInstr(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseInstr(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{"", "int", "int x", "int 3000000000", "pop 1", "getlocal -1", "jump 9lives", "push 1"} {
		if _, err := ParseInstr(bad); !errors.Is(err, ErrSyntax) {
			t.Errorf("ParseInstr(%q) = %v, want a syntax error", bad, err)
		}
	}
}

// TestUnknownOpcodeSuggestion tests the edit distance suggestion
func TestUnknownOpcodeSuggestion(t *testing.T) {
	e := parseErr(t, "code:\n  - getlocl 0\n", ErrSyntax)
	if !strings.Contains(e.Suggestion, "getlocal") {
		t.Errorf("suggestion = %q", e.Suggestion)
	}
	if e.Pos.Line != 2 {
		t.Errorf("error at line %d, want 2", e.Pos.Line)
	}
	if !strings.Contains(e.Error(), "test.yaml:2:5") {
		t.Errorf("message %q lacks the position", e.Error())
	}
}

// TestParseLiteral tests run section values
func TestParseLiteral(t *testing.T) {
	tests := []struct {
		in   string
		want value.Value
	}{
		{"undefined", value.Undefined()},
		{"null", value.Null()},
		{"true", value.Bool(true)},
		{"42", value.Int32(42)},
		{"-2147483648", value.Int32(-2147483648)},
		{"4294967296", value.Double(4294967296)},
		{"0.5", value.Double(0.5)},
	}
	for _, tt := range tests {
		got, err := ParseLiteral(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseLiteral(%q) = %s, %v; want %s", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParseLiteral("banana"); !errors.Is(err, ErrSyntax) {
		t.Errorf("ParseLiteral(banana) = %v", err)
	}
}

// TestSyntaxErrors tests malformed files
func TestSyntaxErrors(t *testing.T) {
	for name, src := range map[string]string{
		"empty":         "",
		"no code":       "name: x\n",
		"code not list": "code: add\n",
		"nested":        "code:\n  - [int, 1]\n",
		"unknown key":   "code: []\nlocalz: 2\n",
		"bad literal":   "code: []\nrun:\n  args: [x]\n",
	} {
		_, err := Parse("test.yaml", []byte(src))
		if !errors.Is(err, ErrSyntax) {
			t.Errorf("%s: got %v, want a syntax error", name, err)
		}
	}
}

// TestValidation tests the stack machine rules
func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		src  string
		msg  string
	}{
		{"underflow", "code:\n  - add\n", "needs 2"},
		{"local range", "locals: 1\ncode:\n  - getlocal 1\n", "out of range"},
		{"arg range", "code:\n  - int 1\n  - setarg 0\n", "out of range"},
		{"closed range", "closed_locals: [0]\ncode: []\n", "closed local"},
		{"duplicate label", "code:\n  - label a\n  - label a\n", "defined twice"},
		{"unreachable", "code:\n  - int 1\n  - return\n  - int 2\n", "unreachable"},
		{"backward only", "code:\n  - jump x\n  - label back\n  - label x\n  - jump back\n", "backward jump"},
		{"join depth", "code:\n  - true\n  - ifeq out\n  - int 1\n  - label out\n", "falling into"},
		{"jump depths", "code:\n  - true\n  - ifeq out\n  - int 1\n  - jump out\n  - label out\n", "earlier jumps"},
		{"loop depth", "code:\n  - label top\n  - int 1\n  - true\n  - ifne top\n", "backward jump"},
		{"too many args", "args: 1\ncode: []\nrun:\n  args: [1, 2]\n", "passes 2"},
	}
	for _, tt := range tests {
		e := parseErr(t, tt.src, ErrInvalid)
		if !strings.Contains(e.Msg, tt.msg) {
			t.Errorf("%s: message %q does not mention %q", tt.name, e.Msg, tt.msg)
		}
	}

	e := parseErr(t, "code:\n  - jump dnoe\n  - label done\n", ErrInvalid)
	if !strings.Contains(e.Suggestion, "done") {
		t.Errorf("label suggestion = %q", e.Suggestion)
	}
}

// TestMaxDepth tests the depth bookkeeping of shuffles, calls and blocks
func TestMaxDepth(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{"[int 1, return]", 1},
		{"[]", 1},
		{"[int 1, int 2, swap, add, return]", 4},
		{"[callee, int 1, int 2, call 2, return]", 3},
		{"[enterblock 3, leaveblock 1, dup2, popn 4]", 4},
		{"[int 1, dup, dup2, popn 4]", 4},
		{"[true, ifeq a, int 1, jump b, label a, int 2, label b, return]", 1},
	}
	for _, tt := range tests {
		s := parse(t, "code: "+tt.code+"\n")
		if s.MaxDepth != tt.want {
			t.Errorf("%s: MaxDepth = %d, want %d", tt.code, s.MaxDepth, tt.want)
		}
	}
}

// TestListing tests the listing format
func TestListing(t *testing.T) {
	s := parse(t, loopScript)
	lst := s.Listing()
	for _, want := range []string{"top:\n", "   4  getlocal 0\n", "  10  ifne top\n"} {
		if !strings.Contains(lst, want) {
			t.Errorf("listing lacks %q:\n%s", want, lst)
		}
	}
}
