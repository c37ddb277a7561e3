// Package frame tracks where every value of a method's frame lives while a
// method JIT emits code for it, one bytecode at a time.
//
// The frame is laid out as
//
//	[callee, this, args..., locals..., operand stack...]
//
// and each entry keeps a type component and a data component that each sit
// in a register, in the entry's memory slot, or are compile-time constants.
// Registers are handed out lazily and reclaimed by spilling; entries can
// alias each other instead of being copied; memory is only brought up to
// date ("synced") when a join, a call or a register steal needs it.
//
// A Frame is not safe for concurrent use. Internal consistency failures
// panic with an *InternalError; the compiler is expected to recover it and
// fall back to interpreting the function.
package frame

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/xyproto/jitframe/internal/asm"
	"github.com/xyproto/jitframe/internal/engine"
)

// DefaultMaxEntries bounds the frame size when Config.MaxEntries is zero
const DefaultMaxEntries = 1 << 16

const (
	CalleeSlot Handle = 0
	ThisSlot   Handle = 1
)

// UncopyWalk selects how a backing entry's copies are searched
type UncopyWalk uint8

const (
	WalkAuto    UncopyWalk = iota // pick by estimated cost
	WalkTracker                   // scan the tracker after the backing entry
	WalkFrame                     // scan the frame above the backing entry
)

// Config describes the function being compiled and its target
type Config struct {
	Registers *engine.RegisterFile
	Emitter   asm.Emitter

	NArgs  int
	NFixed int // locals
	NStack int // maximum operand stack depth

	// ClosedVars and ClosedArgs name slots captured by nested closures.
	// Such slots are always kept in memory.
	ClosedVars    []int
	ClosedArgs    []int
	UsesEval      bool
	UsesArguments bool

	MaxEntries int
	Uncopy     UncopyWalk

	// Debug validates every invariant after each mutating operation
	Debug  bool
	Logger commonlog.Logger
}

type regState struct {
	fe   Handle // owning entry, NoEntry when free or held by the caller
	part Component
	pins int
}

// Frame is the register and value state of one function being compiled
type Frame struct {
	rf     *engine.RegisterFile
	layout Layout
	em     asm.Emitter
	log    commonlog.Logger
	debug  bool
	walk   UncopyWalk

	entries    []Entry
	nargs      int
	nfixed     int
	localsBase Handle
	spBase     Handle
	sp         Handle // next free operand stack entry

	tracker  tracker
	regstate [engine.MaxRegs]regState
	free     engine.RegMask

	closedVars    []bool
	closedArgs    []bool
	usesEval      bool
	usesArguments bool
	inTryBlock    bool
}

// New creates the frame state for one function
func New(cfg Config) (*Frame, error) {
	if cfg.Registers == nil {
		return nil, fmt.Errorf("frame: no register file")
	}
	if cfg.Emitter == nil {
		return nil, fmt.Errorf("frame: no emitter")
	}
	if cfg.NArgs < 0 || cfg.NFixed < 0 || cfg.NStack < 0 {
		return nil, fmt.Errorf("frame: negative slot count (args=%d locals=%d stack=%d)", cfg.NArgs, cfg.NFixed, cfg.NStack)
	}
	limit := cfg.MaxEntries
	if limit <= 0 {
		limit = DefaultMaxEntries
	}
	total := 2 + cfg.NArgs + cfg.NFixed + cfg.NStack
	if total > limit {
		return nil, fmt.Errorf("frame: %w: %d entries needed, limit is %d", ErrOutOfMemory, total, limit)
	}

	f := &Frame{
		rf:            cfg.Registers,
		layout:        LayoutFor(cfg.Registers),
		em:            cfg.Emitter,
		log:           cfg.Logger,
		debug:         cfg.Debug,
		walk:          cfg.Uncopy,
		entries:       make([]Entry, total),
		nargs:         cfg.NArgs,
		nfixed:        cfg.NFixed,
		localsBase:    Handle(2 + cfg.NArgs),
		closedVars:    make([]bool, cfg.NFixed),
		closedArgs:    make([]bool, cfg.NArgs),
		usesEval:      cfg.UsesEval,
		usesArguments: cfg.UsesArguments,
	}
	if f.log == nil {
		f.log = commonlog.GetLogger("jitframe.frame")
	}
	f.spBase = f.localsBase + Handle(cfg.NFixed)
	f.sp = f.spBase
	f.tracker.list = make([]Handle, 0, total)
	for i := range f.entries {
		f.entries[i].index = Handle(i)
		f.entries[i].trackerIndex = -1
		f.entries[i].resetSynced()
	}
	for _, n := range cfg.ClosedVars {
		if n < 0 || n >= cfg.NFixed {
			return nil, fmt.Errorf("frame: closed local %d out of range", n)
		}
		f.closedVars[n] = true
	}
	for _, n := range cfg.ClosedArgs {
		if n < 0 || n >= cfg.NArgs {
			return nil, fmt.Errorf("frame: closed argument %d out of range", n)
		}
		f.closedArgs[n] = true
	}
	f.resetRegisters()
	return f, nil
}

func (f *Frame) resetRegisters() {
	for i := range f.regstate {
		f.regstate[i] = regState{fe: NoEntry}
	}
	f.free = f.rf.Avail
}

// Registers returns the register file the frame allocates from
func (f *Frame) Registers() *engine.RegisterFile { return f.rf }

// Layout returns the value layout of the target
func (f *Frame) Layout() Layout { return f.layout }

// Emitter returns the emitter the frame writes to
func (f *Frame) Emitter() asm.Emitter { return f.em }

// SetEmitter redirects all further code to em
func (f *Frame) SetEmitter(em asm.Emitter) { f.em = em }

func (f *Frame) entry(h Handle) *Entry {
	if h < 0 || int(h) >= len(f.entries) {
		f.fail("entry", ErrMisuse, "handle %d out of range", h)
	}
	return &f.entries[h]
}

// backing resolves a copy to the entry that holds its value
func (f *Frame) backing(fe *Entry) *Entry {
	if fe.isCopy() {
		return &f.entries[fe.copyOf]
	}
	return fe
}

// tracked returns the entry, adding it to the tracker on first use. An
// untracked entry is in memory.
func (f *Frame) tracked(h Handle) *Entry {
	fe := f.entry(h)
	if !f.isTracked(fe) {
		f.addToTracker(fe)
		fe.resetSynced()
	}
	return fe
}

func (f *Frame) NArgs() int  { return f.nargs }
func (f *Frame) NFixed() int { return f.nfixed }

// Arg returns the handle of argument n
func (f *Frame) Arg(n int) Handle {
	if n < 0 || n >= f.nargs {
		f.fail("Arg", ErrMisuse, "argument %d out of range", n)
	}
	return Handle(2 + n)
}

// Local returns the handle of local n
func (f *Frame) Local(n int) Handle {
	if n < 0 || n >= f.nfixed {
		f.fail("Local", ErrMisuse, "local %d out of range", n)
	}
	return f.localsBase + Handle(n)
}

// Depth is the current operand stack depth
func (f *Frame) Depth() int {
	return int(f.sp - f.spBase)
}

// Peek returns the stack entry depth slots down from the top; -1 is the top
func (f *Frame) Peek(depth int) Handle {
	h := f.sp + Handle(depth)
	if depth >= 0 || h < f.spBase {
		f.fail("Peek", ErrMisuse, "depth %d with %d entries on the stack", depth, f.Depth())
	}
	return h
}

// StackIndex converts a stack handle to its depth from the bottom
func (f *Frame) StackIndex(h Handle) int {
	return int(h - f.spBase)
}

// IsClosedVar reports whether local n must stay in memory
func (f *Frame) IsClosedVar(n int) bool {
	return f.usesEval || f.closedVars[n]
}

// IsClosedArg reports whether argument n must stay in memory
func (f *Frame) IsClosedArg(n int) bool {
	return f.usesEval || f.usesArguments || f.closedArgs[n]
}

// SetClosedVar marks local n as captured
func (f *Frame) SetClosedVar(n int) { f.closedVars[n] = true }

// SetClosedArg marks argument n as captured
func (f *Frame) SetClosedArg(n int) { f.closedArgs[n] = true }

// SetInTryBlock makes every local store write through to memory while set
func (f *Frame) SetInTryBlock(in bool) { f.inTryBlock = in }

// AddressOf returns the memory slot of an entry, relative to the frame
// register. Locals start at offset zero.
func (f *Frame) AddressOf(h Handle) asm.Address {
	return asm.Address{Base: f.rf.FrameReg, Offset: int32(h-f.localsBase) * asm.SlotSize}
}

func (f *Frame) addressOf(fe *Entry) asm.Address {
	return f.AddressOf(fe.index)
}

// ResetInternalState forgets all tracking and register assignments without
// emitting code. Memory is assumed to hold every value.
func (f *Frame) ResetInternalState() {
	for _, h := range f.tracker.list {
		fe := &f.entries[h]
		fe.resetSynced()
		fe.trackerIndex = -1
	}
	f.tracker.reset()
	f.resetRegisters()
}

// DiscardFrame drops everything, including the operand stack. Used when
// the function will not be compiled after all.
func (f *Frame) DiscardFrame() {
	f.ResetInternalState()
	f.sp = f.spBase
}

// ForgetEverything resets the frame after code has made memory complete
func (f *Frame) ForgetEverything() {
	if f.debug {
		for _, h := range f.tracker.list {
			fe := &f.entries[h]
			if fe.index >= f.sp {
				continue
			}
			if needsSync(fe, TypePart) || needsSync(fe, DataPart) {
				f.fail("ForgetEverything", ErrInvariant, "entry %d is not synced", fe.index)
			}
		}
	}
	f.ResetInternalState()
}

// SyncAndForgetEverything writes every live value to memory and forgets
// all registers
func (f *Frame) SyncAndForgetEverything() {
	f.SyncAndKill(f.rf.Avail, f.AllUses())
	f.ForgetEverything()
}

func (f *Frame) check(op string) {
	if !f.debug {
		return
	}
	if err := f.Validate(); err != nil {
		f.fail(op, ErrInvariant, "%v", err)
	}
}
