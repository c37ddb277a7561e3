package jit

import (
	"math"

	"github.com/xyproto/jitframe/internal/asm"
	"github.com/xyproto/jitframe/internal/engine"
	"github.com/xyproto/jitframe/internal/frame"
	"github.com/xyproto/jitframe/internal/value"
)

// payloadValue reports whether v can take part in int32 arithmetic as its
// payload word
func payloadValue(v value.Value) bool {
	switch v.Type() {
	case value.TypeInt32, value.TypeBoolean, value.TypeNull:
		return true
	default:
		return false
	}
}

// fold evaluates op on two constants. ok is false for an integer division
// by zero and for operands that are not numbers.
func fold(op asm.BinOp, a, b value.Value) (v value.Value, ok bool) {
	if payloadValue(a) && payloadValue(b) {
		r, err := asm.Eval32(op, a.Int32(), b.Int32())
		if err != nil {
			return value.Value{}, false
		}
		if op.IsCompare() {
			return value.Bool(r != 0), true
		}
		return value.Int32(int32(uint32(r))), true
	}
	if !a.IsNumber() && !payloadValue(a) || !b.IsNumber() && !payloadValue(b) {
		return value.Value{}, false
	}
	x, y := a.Float64(), b.Float64()
	if !a.IsNumber() {
		x = float64(a.Int32())
	}
	if !b.IsNumber() {
		y = float64(b.Int32())
	}
	switch op {
	case asm.OpAdd:
		return value.Number(x + y), true
	case asm.OpSub:
		return value.Number(x - y), true
	case asm.OpMul:
		return value.Number(x * y), true
	case asm.OpDiv:
		return value.Number(x / y), true
	case asm.OpMod:
		return value.Number(math.Mod(x, y)), true
	case asm.OpLt:
		return value.Bool(x < y), true
	case asm.OpLe:
		return value.Bool(x <= y), true
	case asm.OpGt:
		return value.Bool(x > y), true
	case asm.OpGe:
		return value.Bool(x >= y), true
	case asm.OpEq:
		return value.Bool(x == y), true
	default:
		return value.Bool(x != y), true
	}
}

func (c *compiler) operand(reg engine.Reg, h frame.Handle) asm.Operand {
	if reg != engine.NoReg {
		return asm.R(reg)
	}
	return asm.Imm32(c.f.Constant(h).Int32())
}

// binary compiles lhs op rhs on int32 payloads
func (c *compiler) binary(op asm.BinOp) error {
	f := c.f
	lhs, rhs := f.Peek(-2), f.Peek(-1)
	if f.IsConstant(lhs) && f.IsConstant(rhs) {
		v, ok := fold(op, f.Constant(lhs), f.Constant(rhs))
		if !ok {
			return c.unsupported("%s cannot be folded", op)
		}
		f.Popn(2)
		f.Push(v)
		return nil
	}
	for _, h := range []frame.Handle{lhs, rhs} {
		if f.IsConstant(h) && !payloadValue(f.Constant(h)) {
			return c.unsupported("%s with a %s operand", op, f.Constant(h).Type())
		}
	}

	a := f.AllocForBinary(lhs, rhs, op, true)
	if a.ResultHasRhs {
		c.b.Binary(op.Mirrored(), c.operand(a.LhsData, lhs), a.Result)
	} else {
		c.b.Binary(op, c.operand(a.RhsData, rhs), a.Result)
	}
	if a.ExtraFree != engine.NoReg {
		f.FreeReg(a.ExtraFree)
	}
	f.Popn(2)
	if op.IsCompare() {
		f.PushTypedPayload(value.TypeBoolean, a.Result)
	} else {
		f.PushInt32(a.Result)
	}
	return nil
}
