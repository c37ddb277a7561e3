// Completion: 100% - Script loader complete
package bytecode

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/xyproto/jitframe/internal/engine"
	"github.com/xyproto/jitframe/internal/value"
)

// Instr is one decoded instruction
type Instr struct {
	Op    Opcode
	Int   int32 // int immediate, slot index or count
	Num   float64
	Label string
	Pos   Pos
}

func (in Instr) String() string {
	switch in.Op.Operand() {
	case IntOperand, IndexOperand, CountOperand:
		return fmt.Sprintf("%s %d", in.Op, in.Int)
	case DoubleOperand:
		return fmt.Sprintf("%s %g", in.Op, in.Num)
	case LabelOperand:
		return fmt.Sprintf("%s %s", in.Op, in.Label)
	default:
		return in.Op.String()
	}
}

// Run describes one execution of a script: what the caller passes in and,
// optionally, what the script must return
type Run struct {
	This       value.Value
	Args       []value.Value
	CallResult value.Value // returned by every call the script makes
	Expect     value.Value
	HasExpect  bool
}

// Script is a function body for the stack machine, together with what the
// front end knows about its slots
type Script struct {
	Name string
	File string

	NArgs         int
	NLocals       int
	ClosedLocals  []int
	ClosedArgs    []int
	UsesEval      bool
	UsesArguments bool

	Code []Instr
	Run  *Run

	// Filled in by Validate
	MaxDepth    int
	labels      map[string]int
	labelDepth  map[string]int
	backTargets map[string]bool
}

type scriptFile struct {
	Name          string    `yaml:"name"`
	Args          int       `yaml:"args"`
	Locals        int       `yaml:"locals"`
	ClosedLocals  []int     `yaml:"closed_locals"`
	ClosedArgs    []int     `yaml:"closed_args"`
	UsesEval      bool      `yaml:"uses_eval"`
	UsesArguments bool      `yaml:"uses_arguments"`
	Code          yaml.Node `yaml:"code"`
	Run           *runFile  `yaml:"run"`
}

type runFile struct {
	This       yaml.Node   `yaml:"this"`
	Args       []yaml.Node `yaml:"args"`
	CallResult yaml.Node   `yaml:"call_result"`
	Expect     yaml.Node   `yaml:"expect"`
}

// Load reads and validates a script file
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Parse(path, data)
}

// Parse decodes and validates a script. file is only used in messages.
func Parse(file string, data []byte) (*Script, error) {
	s := &Script{File: file}

	var raw scriptFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, s.syntaxErr(Pos{}, "empty script")
		}
		return nil, s.syntaxErr(Pos{}, "%v", err)
	}

	s.Name = raw.Name
	if s.Name == "" {
		s.Name = file
	}
	s.NArgs = raw.Args
	s.NLocals = raw.Locals
	s.ClosedLocals = raw.ClosedLocals
	s.ClosedArgs = raw.ClosedArgs
	s.UsesEval = raw.UsesEval
	s.UsesArguments = raw.UsesArguments

	if err := s.decodeCode(&raw.Code); err != nil {
		return nil, err
	}
	if raw.Run != nil {
		run, err := s.decodeRun(raw.Run)
		if err != nil {
			return nil, err
		}
		s.Run = run
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func nodePos(n *yaml.Node) Pos {
	return Pos{Line: n.Line, Column: n.Column}
}

func (s *Script) decodeCode(n *yaml.Node) error {
	switch n.Kind {
	case 0:
		return s.syntaxErr(Pos{}, "missing code section")
	case yaml.SequenceNode:
	default:
		return s.syntaxErr(nodePos(n), "code must be a list of instructions")
	}
	s.Code = make([]Instr, 0, len(n.Content))
	for _, item := range n.Content {
		if item.Kind != yaml.ScalarNode {
			return s.syntaxErr(nodePos(item), "instruction must be a single line of text")
		}
		in, err := s.parseInstr(item.Value, nodePos(item))
		if err != nil {
			return err
		}
		s.Code = append(s.Code, in)
	}
	return nil
}

// ParseInstr decodes one instruction such as "getlocal 2" or "ifeq done"
func ParseInstr(text string) (Instr, error) {
	s := &Script{}
	return s.parseInstr(text, Pos{})
}

func (s *Script) parseInstr(text string, pos Pos) (Instr, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return Instr{}, s.syntaxErr(pos, "empty instruction")
	}
	name := strings.ToLower(fields[0])
	op, ok := LookupOpcode(name)
	if !ok {
		e := s.syntaxErr(pos, "unknown opcode '%s'", fields[0])
		if similar := engine.FindSimilar(name, Mnemonics(), 3); len(similar) > 0 {
			e.Suggestion = fmt.Sprintf("Did you mean: %s?", strings.Join(similar, ", "))
		}
		return Instr{}, e
	}
	in := Instr{Op: op, Pos: pos}
	kind := op.Operand()
	switch {
	case kind == NoOperand && len(fields) != 1:
		return Instr{}, s.syntaxErr(pos, "%s takes no operand", op)
	case kind != NoOperand && len(fields) != 2:
		return Instr{}, s.syntaxErr(pos, "%s takes exactly one operand", op)
	}
	if kind == NoOperand {
		return in, nil
	}

	arg := fields[1]
	switch kind {
	case IntOperand:
		n, err := strconv.ParseInt(arg, 0, 32)
		if err != nil {
			return Instr{}, s.syntaxErr(pos, "%s: bad int32 operand '%s'", op, arg)
		}
		in.Int = int32(n)
	case DoubleOperand:
		f, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return Instr{}, s.syntaxErr(pos, "%s: bad number '%s'", op, arg)
		}
		in.Num = f
	case IndexOperand, CountOperand:
		n, err := strconv.ParseInt(arg, 10, 32)
		if err != nil || n < 0 {
			return Instr{}, s.syntaxErr(pos, "%s: operand must be a non-negative integer, got '%s'", op, arg)
		}
		in.Int = int32(n)
	case LabelOperand:
		if !validLabel(arg) {
			return Instr{}, s.syntaxErr(pos, "%s: bad label name '%s'", op, arg)
		}
		in.Label = arg
	}
	return in, nil
}

func validLabel(name string) bool {
	for i, ch := range name {
		switch {
		case ch == '_', ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z':
		case ch >= '0' && ch <= '9' && i > 0:
		default:
			return false
		}
	}
	return name != ""
}

// ParseLiteral decodes a value written as undefined, null, true, false,
// an int32 or a double. Integers outside the int32 range become doubles.
func ParseLiteral(text string) (value.Value, error) {
	switch text {
	case "undefined":
		return value.Undefined(), nil
	case "null", "~":
		return value.Null(), nil
	case "true":
		return value.Bool(true), nil
	case "false":
		return value.Bool(false), nil
	}
	if n, err := strconv.ParseInt(text, 0, 64); err == nil {
		if n >= math.MinInt32 && n <= math.MaxInt32 {
			return value.Int32(int32(n)), nil
		}
		return value.Double(float64(n)), nil
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		return value.Double(f), nil
	}
	return value.Value{}, fmt.Errorf("%w: bad literal '%s'", ErrSyntax, text)
}

func (s *Script) literal(n *yaml.Node, what string, absent value.Value) (value.Value, error) {
	switch n.Kind {
	case 0:
		return absent, nil
	case yaml.ScalarNode:
	default:
		return value.Value{}, s.syntaxErr(nodePos(n), "%s must be a single value", what)
	}
	text := n.Value
	if n.Tag == "!!null" {
		text = "null"
	}
	v, err := ParseLiteral(text)
	if err != nil {
		return value.Value{}, s.syntaxErr(nodePos(n), "%s: bad literal '%s'", what, n.Value)
	}
	return v, nil
}

func (s *Script) decodeRun(raw *runFile) (*Run, error) {
	run := &Run{}
	var err error
	if run.This, err = s.literal(&raw.This, "this", value.Undefined()); err != nil {
		return nil, err
	}
	if run.CallResult, err = s.literal(&raw.CallResult, "call_result", value.Undefined()); err != nil {
		return nil, err
	}
	for i := range raw.Args {
		v, err := s.literal(&raw.Args[i], fmt.Sprintf("args[%d]", i), value.Undefined())
		if err != nil {
			return nil, err
		}
		run.Args = append(run.Args, v)
	}
	if raw.Expect.Kind != 0 {
		if run.Expect, err = s.literal(&raw.Expect, "expect", value.Undefined()); err != nil {
			return nil, err
		}
		run.HasExpect = true
	}
	return run, nil
}

// Arg returns argument n of the run, undefined when the caller passed fewer
func (r *Run) Arg(n int) value.Value {
	if n < len(r.Args) {
		return r.Args[n]
	}
	return value.Undefined()
}
