// Completion: 100% - Frame memory simulator complete
package asm

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/xyproto/jitframe/internal/engine"
	"github.com/xyproto/jitframe/internal/value"
)

// SlotSize is the size of one frame slot on every target
const SlotSize = 8

// Poison is written to caller-saved registers by a simulated call
const Poison uint64 = 0xBAD0BAD0BAD0BAD0

var ErrDivideByZero = errors.New("integer division by zero")

// Machine executes recorded code against simulated registers and frame
// memory, following the encoding of its register file. It exists so that
// generated code can be checked by what it computes rather than by its text.
type Machine struct {
	rf      *engine.RegisterFile
	unified bool
	order   binary.ByteOrder

	Regs [engine.MaxRegs]uint64

	mem  []byte
	base int64 // address of mem[0]

	// CallResult is what a simulated call leaves in the return registers
	CallResult value.Value
	Calls      []string

	// MaxSteps bounds execution of code with backward jumps
	MaxSteps int
	Steps    int
}

// NewMachine creates a machine whose frame register points at the middle of
// a memory area with room for slots slots on either side.
func NewMachine(rf *engine.RegisterFile, slots int) *Machine {
	m := &Machine{
		rf:       rf,
		unified:  rf.Unified(),
		order:    rf.Platform.Arch.ByteOrder(),
		mem:      make([]byte, 2*slots*SlotSize),
		base:     0x10000,
		MaxSteps: 1 << 20,
	}
	m.Regs[rf.FrameReg] = uint64(m.base) + uint64(slots*SlotSize)
	return m
}

func (m *Machine) offset(addr Address, width int) int64 {
	at := int64(m.Regs[addr.Base]) + int64(addr.Offset) - m.base
	if at < 0 || at+int64(width) > int64(len(m.mem)) {
		panic(fmt.Sprintf("asm: access outside frame memory at %s", addr.Format(m.rf)))
	}
	return at
}

func (m *Machine) read32(addr Address) uint64 {
	at := m.offset(addr, 4)
	return uint64(m.order.Uint32(m.mem[at:]))
}

func (m *Machine) write32(addr Address, v uint64) {
	at := m.offset(addr, 4)
	m.order.PutUint32(m.mem[at:], uint32(v))
}

func (m *Machine) read64(addr Address) uint64 {
	at := m.offset(addr, 8)
	return m.order.Uint64(m.mem[at:])
}

func (m *Machine) write64(addr Address, v uint64) {
	at := m.offset(addr, 8)
	m.order.PutUint64(m.mem[at:], v)
}

// tagAddr and payloadAddr locate the two words of a split slot
func tagAddr(addr Address) Address     { return addr.Add(4) }
func payloadAddr(addr Address) Address { return addr }

func (m *Machine) operand(o Operand) uint64 {
	if o.IsReg() {
		return m.Regs[o.Reg]
	}
	return o.Bits(m.unified)
}

// ReadSlot decodes the value stored at addr
func (m *Machine) ReadSlot(addr Address) value.Value {
	if m.unified {
		return value.FromBoxed(m.read64(addr))
	}
	return value.FromSplitWords(uint32(m.read32(tagAddr(addr))), uint32(m.read32(payloadAddr(addr))))
}

// WriteSlot encodes v at addr
func (m *Machine) WriteSlot(addr Address, v value.Value) {
	if m.unified {
		m.write64(addr, v.Boxed())
		return
	}
	tag, payload := v.SplitWords()
	m.write32(tagAddr(addr), uint64(tag))
	m.write32(payloadAddr(addr), uint64(payload))
}

// RegValue decodes a value held as a (type, data) register pair
func (m *Machine) RegValue(typ, data engine.Reg) value.Value {
	return value.FromComponents(m.unified, m.Regs[typ], m.Regs[data])
}

// SetRegValue loads v into a (type, data) register pair
func (m *Machine) SetRegValue(typ, data engine.Reg, v value.Value) {
	m.Regs[typ] = v.TypeBits(m.unified)
	m.Regs[data] = v.DataBits(m.unified)
}

// scratch records the boxing scratch register as clobbered by a composite store
func (m *Machine) scratch(word uint64) {
	if m.rf.ValueReg != engine.NoReg {
		m.Regs[m.rf.ValueReg] = word
	}
}

func (m *Machine) exec(in Instr) error {
	switch in.Op {
	case InsLoadType:
		if m.unified {
			m.Regs[in.Dst] = m.read64(in.Addr) & value.TagMask
		} else {
			m.Regs[in.Dst] = m.read32(tagAddr(in.Addr))
		}
	case InsLoadPayload:
		if m.unified {
			m.Regs[in.Dst] = m.read64(in.Addr) & value.PayloadMask
		} else {
			m.Regs[in.Dst] = m.read32(payloadAddr(in.Addr))
		}
	case InsLoadValue:
		if m.unified {
			m.Regs[in.Dst] = m.read64(in.Addr)
		} else {
			m.Regs[in.Dst] = m.read32(tagAddr(in.Addr))<<32 | m.read32(payloadAddr(in.Addr))
		}
	case InsLoadComponents:
		if m.unified {
			w := m.read64(in.Addr)
			m.Regs[in.Dst] = w & value.TagMask
			m.Regs[in.Dst2] = w & value.PayloadMask
		} else {
			m.Regs[in.Dst] = m.read32(tagAddr(in.Addr))
			m.Regs[in.Dst2] = m.read32(payloadAddr(in.Addr))
		}
	case InsStoreType:
		src := m.operand(in.Src)
		if m.unified {
			w := m.read64(in.Addr)&value.PayloadMask | src&value.TagMask
			m.scratch(w)
			m.write64(in.Addr, w)
		} else {
			m.write32(tagAddr(in.Addr), src)
		}
	case InsStorePayload:
		src := m.operand(in.Src)
		if m.unified {
			w := m.read64(in.Addr)&value.TagMask | src&value.PayloadMask
			m.scratch(w)
			m.write64(in.Addr, w)
		} else {
			m.write32(payloadAddr(in.Addr), src)
		}
	case InsStoreValue:
		m.WriteSlot(in.Addr, in.Value)
	case InsStoreComponents:
		typ, data := m.operand(in.Src), m.operand(in.Data)
		if m.unified {
			w := typ&value.TagMask | data&value.PayloadMask
			m.scratch(w)
			m.write64(in.Addr, w)
		} else {
			m.write32(tagAddr(in.Addr), typ)
			m.write32(payloadAddr(in.Addr), data)
		}
	case InsStorePtr:
		if m.unified {
			m.write64(in.Addr, m.Regs[in.Dst])
		} else {
			w := m.Regs[in.Dst]
			m.write32(tagAddr(in.Addr), w>>32)
			m.write32(payloadAddr(in.Addr), w)
		}
	case InsMove:
		m.Regs[in.Dst] = m.operand(in.Src)
	case InsOr:
		m.Regs[in.Dst] |= m.operand(in.Src)
	case InsBinary:
		r, err := Eval32(in.BinOp, int32(uint32(m.Regs[in.Dst])), int32(uint32(m.operand(in.Src))))
		if err != nil {
			return err
		}
		m.Regs[in.Dst] = r
	case InsCall:
		m.Calls = append(m.Calls, in.Target)
		for _, r := range m.rf.Temp.Regs() {
			m.Regs[r] = Poison
		}
		m.SetRegValue(m.rf.ReturnTypeReg, m.rf.ReturnDataReg, m.CallResult)
	}
	return nil
}

// Eval32 computes an int32 operation the way generated code does. Comparisons
// give 1 or 0.
func Eval32(op BinOp, a, b int32) (uint64, error) {
	var r int32
	switch op {
	case OpAdd:
		r = a + b
	case OpSub:
		r = a - b
	case OpMul:
		r = a * b
	case OpDiv:
		if b == 0 {
			return 0, ErrDivideByZero
		}
		r = a / b
	case OpMod:
		if b == 0 {
			return 0, ErrDivideByZero
		}
		r = a % b
	default:
		var ok bool
		switch op {
		case OpLt:
			ok = a < b
		case OpLe:
			ok = a <= b
		case OpGt:
			ok = a > b
		case OpGe:
			ok = a >= b
		case OpEq:
			ok = a == b
		case OpNe:
			ok = a != b
		}
		if ok {
			r = 1
		}
	}
	return uint64(uint32(r)), nil
}

// Run executes code until it returns or falls off the end
func (m *Machine) Run(code []Instr) error {
	labels := make(map[string]int)
	for i, in := range code {
		if in.Op == InsLabel {
			labels[in.Target] = i
		}
	}
	jump := func(label string) (int, error) {
		at, ok := labels[label]
		if !ok {
			return 0, fmt.Errorf("asm: jump to undefined label %q", label)
		}
		return at, nil
	}
	for pc := 0; pc < len(code); pc++ {
		if m.Steps++; m.Steps > m.MaxSteps {
			return fmt.Errorf("asm: step limit of %d exceeded", m.MaxSteps)
		}
		in := code[pc]
		switch in.Op {
		case InsRet:
			return nil
		case InsJump:
			at, err := jump(in.Target)
			if err != nil {
				return err
			}
			pc = at
		case InsBranch:
			zero := uint32(m.Regs[in.Dst]) == 0
			if zero == in.IfZero {
				at, err := jump(in.Target)
				if err != nil {
					return err
				}
				pc = at
			}
		default:
			if err := m.exec(in); err != nil {
				return fmt.Errorf("asm: %s at %d: %w", in.Format(m.rf), pc, err)
			}
		}
	}
	return nil
}
