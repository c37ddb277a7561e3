// Completion: 100% - Emitter interface complete
package asm

import (
	"github.com/xyproto/jitframe/internal/engine"
	"github.com/xyproto/jitframe/internal/value"
)

// Emitter is the subset of a macro assembler the frame state drives.
//
// On split targets the type tag and the payload are separate 32-bit words;
// on unified targets both live in one 64-bit word and the partial stores are
// read-modify-write sequences through the target's value scratch register.
type Emitter interface {
	LoadTypeTag(addr Address, dst engine.Reg)
	LoadPayload(addr Address, dst engine.Reg)
	// LoadValue loads the whole slot into one register
	LoadValue(addr Address, dst engine.Reg)
	LoadValueAsComponents(addr Address, typ, data engine.Reg)

	StoreTypeTag(src Operand, addr Address)
	StorePayload(src Operand, addr Address)
	StoreValue(v value.Value, addr Address)
	StoreValueFromComponents(typ, data Operand, addr Address)
	// StorePtr stores a whole register, as loaded by LoadValue
	StorePtr(src engine.Reg, addr Address)

	Move(src Operand, dst engine.Reg)
	OrPtr(src Operand, dst engine.Reg)
}

// Assembler adds the arithmetic and control flow a bytecode driver needs
type Assembler interface {
	Emitter

	// Binary computes dst = dst op src on int32 payloads. Comparisons
	// leave a boolean payload in dst.
	Binary(op BinOp, src Operand, dst engine.Reg)
	Call(target string)
	Label(name string)
	Jump(label string)
	// Branch jumps when the payload in reg is zero (ifZero) or non-zero
	Branch(ifZero bool, reg engine.Reg, label string)
	Ret()
}

// BinOp is a two-operand bytecode operator
type BinOp uint8

const (
	OpAdd BinOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpLt
	OpLe
	OpGt
	OpGe
	OpEq
	OpNe
)

var binOpNames = [...]string{
	OpAdd: "add", OpSub: "sub", OpMul: "mul", OpDiv: "div", OpMod: "mod",
	OpLt: "lt", OpLe: "le", OpGt: "gt", OpGe: "ge", OpEq: "eq", OpNe: "ne",
}

func (op BinOp) String() string {
	if int(op) < len(binOpNames) {
		return binOpNames[op]
	}
	return "binop?"
}

// IsCompare reports whether the result is a boolean
func (op BinOp) IsCompare() bool {
	return op >= OpLt
}

// Commutative reports whether the operands may be exchanged. Ordered
// comparisons qualify because exchanging them only mirrors the condition.
func (op BinOp) Commutative() bool {
	switch op {
	case OpSub, OpDiv, OpMod:
		return false
	default:
		return true
	}
}

// Mirrored returns the operator that gives the same result with the
// operands exchanged
func (op BinOp) Mirrored() BinOp {
	switch op {
	case OpLt:
		return OpGt
	case OpLe:
		return OpGe
	case OpGt:
		return OpLt
	case OpGe:
		return OpLe
	default:
		return op
	}
}

// ParseBinOp maps an operator name back to a BinOp
func ParseBinOp(name string) (BinOp, bool) {
	for i, n := range binOpNames {
		if n == name {
			return BinOp(i), true
		}
	}
	return 0, false
}
