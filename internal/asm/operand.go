// Completion: 100% - Operand model complete
package asm

import (
	"fmt"

	"github.com/xyproto/jitframe/internal/engine"
	"github.com/xyproto/jitframe/internal/value"
)

// Address is a memory operand: base register plus a byte offset
type Address struct {
	Base   engine.Reg
	Offset int32
}

// Add returns the address delta bytes further on
func (a Address) Add(delta int32) Address {
	return Address{Base: a.Base, Offset: a.Offset + delta}
}

func (a Address) Format(rf *engine.RegisterFile) string {
	switch {
	case a.Offset > 0:
		return fmt.Sprintf("[%s+%d]", rf.Name(a.Base), a.Offset)
	case a.Offset < 0:
		return fmt.Sprintf("[%s%d]", rf.Name(a.Base), a.Offset)
	default:
		return fmt.Sprintf("[%s]", rf.Name(a.Base))
	}
}

// OperandKind says how to read an Operand
type OperandKind uint8

const (
	OperandReg     OperandKind = iota
	OperandImm                 // 32-bit integer immediate
	OperandType                // type component of any value of a known type
	OperandTag                 // type component of a constant value
	OperandPayload             // data component of a constant value
)

// Operand is a register or an immediate. Type and value immediates are
// resolved to bits only once the encoding is known.
type Operand struct {
	Kind  OperandKind
	Reg   engine.Reg
	Imm   int32
	Type  value.Type
	Value value.Value
}

// R is a register operand
func R(r engine.Reg) Operand {
	return Operand{Kind: OperandReg, Reg: r}
}

func Imm32(i int32) Operand {
	return Operand{Kind: OperandImm, Imm: i}
}

// ImmType is the type component shared by all values of type t
func ImmType(t value.Type) Operand {
	return Operand{Kind: OperandType, Type: t}
}

// ImmTag is the type component of a constant, valid for doubles too
func ImmTag(v value.Value) Operand {
	return Operand{Kind: OperandTag, Value: v}
}

// ImmPayload is the data component of a constant
func ImmPayload(v value.Value) Operand {
	return Operand{Kind: OperandPayload, Value: v}
}

func (o Operand) IsReg() bool {
	return o.Kind == OperandReg
}

// Bits resolves an immediate for an encoding. Registers have no bits.
func (o Operand) Bits(unified bool) uint64 {
	switch o.Kind {
	case OperandImm:
		return uint64(uint32(o.Imm))
	case OperandType:
		return value.TypeOnlyBits(o.Type, unified)
	case OperandTag:
		return o.Value.TypeBits(unified)
	case OperandPayload:
		return o.Value.DataBits(unified)
	default:
		panic(fmt.Sprintf("asm: register operand %d has no immediate bits", o.Reg))
	}
}

func (o Operand) Format(rf *engine.RegisterFile) string {
	switch o.Kind {
	case OperandReg:
		return rf.Name(o.Reg)
	case OperandImm:
		return fmt.Sprintf("#%d", o.Imm)
	case OperandType:
		return fmt.Sprintf("type(%s)", o.Type)
	case OperandTag:
		return fmt.Sprintf("tag(%s:%s)", o.Value.Type(), o.Value)
	case OperandPayload:
		return fmt.Sprintf("payload(%s)", o.Value)
	default:
		return "?"
	}
}
