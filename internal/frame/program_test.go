package frame

import (
	"math/rand"
	"testing"

	"github.com/xyproto/jitframe/internal/asm"
	"github.com/xyproto/jitframe/internal/engine"
	"github.com/xyproto/jitframe/internal/value"
)

// model is the interpreter's view of the frame: plain values, no registers
type model struct {
	locals []int32
	stack  []int32
}

func (m *model) push(v int32) { m.stack = append(m.stack, v) }

func (m *model) pop() int32 {
	v := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return v
}

func (m *model) top() int32 { return m.stack[len(m.stack)-1] }

// operand is the instruction source for one side of a staged binary op
func operand(f *Frame, reg engine.Reg, h Handle) asm.Operand {
	if reg != engine.NoReg {
		return asm.R(reg)
	}
	return asm.Imm32(f.Constant(h).Int32())
}

// binary emits lhs op rhs the way a compiler would, folding constants
func binary(f *Frame, em asm.Assembler, op asm.BinOp) {
	lhs, rhs := f.Peek(-2), f.Peek(-1)
	if f.IsConstant(lhs) && f.IsConstant(rhs) {
		a, b := f.Constant(lhs).Int32(), f.Constant(rhs).Int32()
		f.Popn(2)
		if op == asm.OpAdd {
			f.Push(value.Int32(a + b))
		} else {
			f.Push(value.Int32(a - b))
		}
		return
	}
	a := f.AllocForBinary(lhs, rhs, op, true)
	if a.ResultHasRhs {
		em.Binary(op, operand(f, a.LhsData, lhs), a.Result)
	} else {
		em.Binary(op, operand(f, a.RhsData, rhs), a.Result)
	}
	if a.ExtraFree != engine.NoReg {
		f.FreeReg(a.ExtraFree)
	}
	f.Popn(2)
	f.PushInt32(a.Result)
}

// TestRandomPrograms drives the frame with random straight-line programs
// and checks the generated code against the model on the simulated machine
func TestRandomPrograms(t *testing.T) {
	const (
		nlocals = 3
		nstack  = 8
		steps   = 60
	)
	files := []*engine.RegisterFile{
		registerFile(t, engine.Arch386),
		registerFile(t, engine.ArchX86_64).Restrict(engine.MaskOf(0, 1, 2, 6, 7)),
		registerFile(t, engine.ArchX86_64),
	}
	for _, rf := range files {
		for _, walk := range []UncopyWalk{WalkAuto, WalkTracker, WalkFrame} {
			for seed := int64(1); seed <= 25; seed++ {
				rng := rand.New(rand.NewSource(seed))
				x := newFixture(t, rf, Config{NFixed: nlocals, NStack: nstack, Uncopy: walk})
				mdl := &model{locals: make([]int32, nlocals)}
				for i := range mdl.locals {
					mdl.locals[i] = int32(100 + i)
					x.write(x.f.Local(i), value.Int32(mdl.locals[i]))
				}

				var trace []string
				for step := 0; step < steps; step++ {
					depth := x.f.Depth()
					n := rng.Intn(nlocals)
					switch op := rng.Intn(10); {
					case op == 0 && depth < nstack:
						c := int32(rng.Intn(20))
						x.f.Push(value.Int32(c))
						mdl.push(c)
						trace = append(trace, "push")
					case op <= 2 && depth < nstack:
						x.f.PushLocal(n)
						mdl.push(mdl.locals[n])
						trace = append(trace, "getlocal")
					case op == 3 && depth > 0 && depth < nstack:
						x.f.Dup()
						mdl.push(mdl.top())
						trace = append(trace, "dup")
					case op == 4 && depth > 0:
						x.f.StoreLocal(n)
						mdl.locals[n] = mdl.top()
						trace = append(trace, "setlocal")
					case op == 5 && depth > 0:
						x.f.Pop()
						mdl.pop()
						trace = append(trace, "pop")
					case op == 6 && depth >= 2:
						bop := asm.OpAdd
						if rng.Intn(2) == 0 {
							bop = asm.OpSub
						}
						binary(x.f, x.b, bop)
						b, a := mdl.pop(), mdl.pop()
						if bop == asm.OpAdd {
							mdl.push(a + b)
						} else {
							mdl.push(a - b)
						}
						trace = append(trace, bop.String())
					case op == 7 && depth > 0:
						top := x.f.Peek(-1)
						if !x.f.IsTypeKnown(top) {
							x.f.TempRegForType(top)
						}
						if !x.f.IsConstant(top) {
							x.f.TempRegForData(top)
						}
						trace = append(trace, "load")
					case op == 8:
						x.f.SyncAndKill(rf.Temp, x.f.AllUses())
						x.b.Call("clobber")
						trace = append(trace, "call")
					case op == 9:
						x.f.Sync()
						trace = append(trace, "sync")
					}
					if err := x.f.Validate(); err != nil {
						t.Fatalf("%s walk %d seed %d after %v: %v", rf.Platform.Arch, walk, seed, trace, err)
					}
				}

				x.f.Sync()
				if err := x.m.Run(x.b.Code); err != nil {
					t.Fatalf("%s seed %d: %v", rf.Platform.Arch, seed, err)
				}
				for i, want := range mdl.locals {
					if got := x.m.ReadSlot(x.f.AddressOf(x.f.Local(i))); got != value.Int32(want) {
						t.Errorf("%s walk %d seed %d: local%d = %s, want %d\nops %v\n%s",
							rf.Platform.Arch, walk, seed, i, got, want, trace, asm.Listing(x.b.Code, rf))
					}
				}
				for i, want := range mdl.stack {
					h := x.f.Peek(i - len(mdl.stack))
					if got := x.m.ReadSlot(x.f.AddressOf(h)); got != value.Int32(want) {
						t.Errorf("%s walk %d seed %d: stack%d = %s, want %d\nops %v",
							rf.Platform.Arch, walk, seed, i, got, want, trace)
					}
				}
				if !x.f.PinnedRegs().Empty() {
					t.Errorf("%s seed %d: pins left behind", rf.Platform.Arch, seed)
				}
			}
		}
	}
}
