// Completion: 100% - Bytecode compiler complete
//
// Package jit compiles stack machine scripts one instruction at a time,
// letting the frame state decide where every value lives.
package jit

import (
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/xyproto/jitframe/internal/asm"
	"github.com/xyproto/jitframe/internal/bytecode"
	"github.com/xyproto/jitframe/internal/engine"
	"github.com/xyproto/jitframe/internal/frame"
	"github.com/xyproto/jitframe/internal/value"
)

// ErrNotCompilable means the function has to stay in the interpreter
var ErrNotCompilable = errors.New("function cannot be compiled")

// Options configure one compilation
type Options struct {
	Registers  *engine.RegisterFile
	MaxEntries int
	Uncopy     frame.UncopyWalk
	// Debug validates the frame state after every operation
	Debug  bool
	Logger commonlog.Logger
	// Trace receives a human readable account of every instruction
	Trace io.Writer
}

// Result is compiled code together with what is needed to run it
type Result struct {
	ID        uuid.UUID
	Script    *bytecode.Script
	Registers *engine.RegisterFile
	Code      []asm.Instr
	// Snapshots holds the register assignment at every label
	Snapshots []frame.Snapshot

	frame *frame.Frame
}

type edge struct {
	stub string
	snap frame.Snapshot
}

type compiler struct {
	s     *bytecode.Script
	opts  Options
	rf    *engine.RegisterFile
	f     *frame.Frame
	b     *asm.Buffer
	log   commonlog.Logger
	id    uuid.UUID
	trace io.Writer

	pc        int
	reachable bool
	compiled  map[string]bool
	edges     map[string][]edge
	stubs     int
	snapshots []frame.Snapshot
}

// Compile turns s into code for opts.Registers. Functions the frame state
// gives up on fail with ErrNotCompilable.
func Compile(s *bytecode.Script, opts Options) (res *Result, err error) {
	if opts.Registers == nil {
		return nil, errors.New("jit: no register file")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	c := &compiler{
		s:         s,
		opts:      opts,
		rf:        opts.Registers,
		b:         asm.NewBuffer(),
		log:       opts.Logger,
		id:        uuid.New(),
		trace:     opts.Trace,
		reachable: true,
		compiled:  make(map[string]bool),
		edges:     make(map[string][]edge),
	}
	if c.log == nil {
		c.log = commonlog.GetLogger("jitframe.jit")
	}

	f, err := frame.New(frame.Config{
		Registers:     c.rf,
		Emitter:       c.b,
		NArgs:         s.NArgs,
		NFixed:        s.NLocals,
		NStack:        s.MaxDepth,
		ClosedVars:    s.ClosedLocals,
		ClosedArgs:    s.ClosedArgs,
		UsesEval:      s.UsesEval,
		UsesArguments: s.UsesArguments,
		MaxEntries:    opts.MaxEntries,
		Uncopy:        opts.Uncopy,
		Debug:         opts.Debug,
		Logger:        opts.Logger,
	})
	if err != nil {
		c.log.Warningf("not compiling %s: %v", s.Name, err)
		return nil, fmt.Errorf("%w: %s: %w", ErrNotCompilable, s.Name, err)
	}
	c.f = f

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		ie, ok := r.(*frame.InternalError)
		if !ok {
			panic(r)
		}
		c.f.DiscardFrame()
		c.log.Warningf("giving up on %s at %s: %v", s.Name, c.where(), ie)
		res, err = nil, fmt.Errorf("%w: %s at %s: %w", ErrNotCompilable, s.Name, c.where(), ie)
	}()

	c.log.Infof("compiling %s (%s) for %s, %s layout", s.Name, c.id, c.rf.Platform, f.Layout().Name())
	for c.pc = 0; c.pc < len(s.Code); c.pc++ {
		in := s.Code[c.pc]
		start := c.b.Len()
		if err := c.compileOp(in); err != nil {
			c.log.Warningf("not compiling %s: %v", s.Name, err)
			return nil, err
		}
		c.traceOp(in, start)
	}
	if c.reachable {
		c.f.Push(value.Undefined())
		c.ret()
	}

	c.log.Infof("compiled %s: %d instructions, %d loads, %d stores", s.Name, c.b.Len(), c.b.Loads(), c.b.Stores())
	return &Result{
		ID:        c.id,
		Script:    s,
		Registers: c.rf,
		Code:      c.b.Code,
		Snapshots: c.snapshots,
		frame:     c.f,
	}, nil
}

func (c *compiler) where() string {
	if c.pc < len(c.s.Code) {
		in := c.s.Code[c.pc]
		return fmt.Sprintf("line %d (%s)", in.Pos.Line, in)
	}
	return "end of script"
}

func (c *compiler) unsupported(format string, args ...any) error {
	return fmt.Errorf("%w: %s at %s: %s", ErrNotCompilable, c.s.Name, c.where(), fmt.Sprintf(format, args...))
}

func (c *compiler) traceOp(in bytecode.Instr, start int) {
	c.log.Debugf("%s: %s", c.where(), in)
	if c.trace == nil {
		return
	}
	fmt.Fprintf(c.trace, "%4d  %s\n", c.pc, in)
	for _, ins := range c.b.Code[start:] {
		fmt.Fprintf(c.trace, "        %s\n", ins.Format(c.rf))
	}
	if desc := c.f.Describe(); desc != "" {
		fmt.Fprintf(c.trace, "      frame:\n")
		for _, line := range splitLines(desc) {
			fmt.Fprintf(c.trace, "        %s\n", line)
		}
	}
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

func (c *compiler) compileOp(in bytecode.Instr) error {
	f := c.f
	if in.Op == bytecode.OpLabel {
		c.label(in.Label)
		return nil
	}
	if !c.reachable {
		// behind a branch folded into a jump
		return nil
	}
	n := int(in.Int)

	switch in.Op {
	case bytecode.OpInt:
		f.Push(value.Int32(in.Int))
	case bytecode.OpDouble:
		f.Push(value.Double(in.Num))
	case bytecode.OpTrue:
		f.Push(value.Bool(true))
	case bytecode.OpFalse:
		f.Push(value.Bool(false))
	case bytecode.OpNull:
		f.Push(value.Null())
	case bytecode.OpUndefined:
		f.Push(value.Undefined())

	case bytecode.OpGetArg:
		f.PushArg(n)
	case bytecode.OpSetArg:
		f.StoreArg(n)
	case bytecode.OpGetLocal:
		f.PushLocal(n)
	case bytecode.OpSetLocal:
		f.StoreLocal(n)
	case bytecode.OpThis:
		f.PushThis()
	case bytecode.OpCallee:
		f.PushCallee()

	case bytecode.OpDup:
		f.Dup()
	case bytecode.OpDup2:
		f.Dup2()
	case bytecode.OpPop:
		f.Pop()
	case bytecode.OpPopN:
		f.Popn(n)
	case bytecode.OpSwap:
		// a b -> a b a b -> b a
		f.Dup2()
		f.Shift(-3)
		f.Shift(-1)

	case bytecode.OpCall:
		c.call(n)
	case bytecode.OpJump:
		c.jump(in.Label)
	case bytecode.OpIfEq:
		c.branch(in.Label, false)
	case bytecode.OpIfNe:
		c.branch(in.Label, true)
	case bytecode.OpEnterBlock:
		f.EnterBlock(n)
	case bytecode.OpLeaveBlock:
		f.LeaveBlock(n)
	case bytecode.OpReturn:
		c.ret()

	default:
		if in.Op.IsBinary() {
			return c.binary(in.Op.BinOp())
		}
		return c.unsupported("opcode %s", in.Op)
	}
	return nil
}

// call passes the callee and the arguments through memory and pushes the
// returned value from the return registers
func (c *compiler) call(argc int) {
	f := c.f
	f.SyncAndKill(c.rf.Temp, f.AllUses())
	c.b.Call(fmt.Sprintf("call/%d", argc))
	f.Popn(argc + 1)
	f.TakeReg(c.rf.ReturnTypeReg)
	f.TakeReg(c.rf.ReturnDataReg)
	f.PushRegs(c.rf.ReturnTypeReg, c.rf.ReturnDataReg)
}

func (c *compiler) ret() {
	c.f.LoadForReturn(c.f.Peek(-1), c.rf.ReturnTypeReg, c.rf.ReturnDataReg, c.returnTemp())
	c.b.Ret()
	c.reachable = false
}

// returnTemp picks the register LoadForReturn may clobber
func (c *compiler) returnTemp() engine.Reg {
	if c.rf.Unified() {
		return c.rf.ValueReg
	}
	for _, r := range c.rf.Avail.Regs() {
		if r != c.rf.ReturnTypeReg && r != c.rf.ReturnDataReg {
			return r
		}
	}
	return engine.NoReg
}
