// Completion: 100% - Instruction recorder complete
package asm

import (
	"fmt"
	"strings"

	"github.com/xyproto/jitframe/internal/engine"
	"github.com/xyproto/jitframe/internal/value"
)

// Opcode identifies a recorded instruction
type Opcode uint8

const (
	InsLoadType Opcode = iota
	InsLoadPayload
	InsLoadValue
	InsLoadComponents
	InsStoreType
	InsStorePayload
	InsStoreValue
	InsStoreComponents
	InsStorePtr
	InsMove
	InsOr
	InsBinary
	InsCall
	InsLabel
	InsJump
	InsBranch
	InsRet
)

var opcodeNames = [...]string{
	InsLoadType:        "ldtag",
	InsLoadPayload:     "ldpay",
	InsLoadValue:       "ldval",
	InsLoadComponents:  "ldcomp",
	InsStoreType:       "sttag",
	InsStorePayload:    "stpay",
	InsStoreValue:      "stval",
	InsStoreComponents: "stcomp",
	InsStorePtr:        "stptr",
	InsMove:            "mov",
	InsOr:              "or",
	InsBinary:          "binop",
	InsCall:            "call",
	InsLabel:           "label",
	InsJump:            "jmp",
	InsBranch:          "branch",
	InsRet:             "ret",
}

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) {
		return opcodeNames[op]
	}
	return fmt.Sprintf("op(%d)", uint8(op))
}

// IsLoad reports whether the instruction reads frame memory
func (op Opcode) IsLoad() bool {
	return op <= InsLoadComponents
}

// IsStore reports whether the instruction writes frame memory
func (op Opcode) IsStore() bool {
	return op >= InsStoreType && op <= InsStorePtr
}

// Instr is one recorded instruction. Which fields matter depends on Op.
type Instr struct {
	Op     Opcode
	Src    Operand // source, or type source of stcomp
	Data   Operand // data source of stcomp
	Dst    engine.Reg
	Dst2   engine.Reg // data destination of ldcomp
	Addr   Address
	Value  value.Value
	BinOp  BinOp
	IfZero bool
	Target string // call target or label
}

func (in Instr) Format(rf *engine.RegisterFile) string {
	addr := in.Addr.Format(rf)
	switch in.Op {
	case InsLoadType, InsLoadPayload, InsLoadValue:
		return fmt.Sprintf("%-7s %s, %s", in.Op, rf.Name(in.Dst), addr)
	case InsLoadComponents:
		return fmt.Sprintf("%-7s %s:%s, %s", in.Op, rf.Name(in.Dst), rf.Name(in.Dst2), addr)
	case InsStoreType, InsStorePayload:
		return fmt.Sprintf("%-7s %s, %s", in.Op, addr, in.Src.Format(rf))
	case InsStoreValue:
		return fmt.Sprintf("%-7s %s, %s:%s", in.Op, addr, in.Value.Type(), in.Value)
	case InsStoreComponents:
		return fmt.Sprintf("%-7s %s, %s:%s", in.Op, addr, in.Src.Format(rf), in.Data.Format(rf))
	case InsStorePtr:
		return fmt.Sprintf("%-7s %s, %s", in.Op, addr, rf.Name(in.Dst))
	case InsMove, InsOr:
		return fmt.Sprintf("%-7s %s, %s", in.Op, rf.Name(in.Dst), in.Src.Format(rf))
	case InsBinary:
		return fmt.Sprintf("%-7s %s, %s", in.BinOp, rf.Name(in.Dst), in.Src.Format(rf))
	case InsCall:
		return fmt.Sprintf("%-7s %s", in.Op, in.Target)
	case InsLabel:
		return in.Target + ":"
	case InsJump:
		return fmt.Sprintf("%-7s %s", in.Op, in.Target)
	case InsBranch:
		mnemonic := "jnz"
		if in.IfZero {
			mnemonic = "jz"
		}
		return fmt.Sprintf("%-7s %s, %s", mnemonic, rf.Name(in.Dst), in.Target)
	case InsRet:
		return "ret"
	default:
		return in.Op.String()
	}
}

// Buffer records instructions instead of encoding them. It satisfies
// Assembler, so anything that emits code can be pointed at it.
type Buffer struct {
	Code []Instr
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

func (b *Buffer) emit(in Instr) {
	b.Code = append(b.Code, in)
}

func (b *Buffer) LoadTypeTag(addr Address, dst engine.Reg) {
	b.emit(Instr{Op: InsLoadType, Addr: addr, Dst: dst})
}

func (b *Buffer) LoadPayload(addr Address, dst engine.Reg) {
	b.emit(Instr{Op: InsLoadPayload, Addr: addr, Dst: dst})
}

func (b *Buffer) LoadValue(addr Address, dst engine.Reg) {
	b.emit(Instr{Op: InsLoadValue, Addr: addr, Dst: dst})
}

func (b *Buffer) LoadValueAsComponents(addr Address, typ, data engine.Reg) {
	b.emit(Instr{Op: InsLoadComponents, Addr: addr, Dst: typ, Dst2: data})
}

func (b *Buffer) StoreTypeTag(src Operand, addr Address) {
	b.emit(Instr{Op: InsStoreType, Src: src, Addr: addr})
}

func (b *Buffer) StorePayload(src Operand, addr Address) {
	b.emit(Instr{Op: InsStorePayload, Src: src, Addr: addr})
}

func (b *Buffer) StoreValue(v value.Value, addr Address) {
	b.emit(Instr{Op: InsStoreValue, Value: v, Addr: addr})
}

func (b *Buffer) StoreValueFromComponents(typ, data Operand, addr Address) {
	b.emit(Instr{Op: InsStoreComponents, Src: typ, Data: data, Addr: addr})
}

func (b *Buffer) StorePtr(src engine.Reg, addr Address) {
	b.emit(Instr{Op: InsStorePtr, Dst: src, Addr: addr})
}

func (b *Buffer) Move(src Operand, dst engine.Reg) {
	b.emit(Instr{Op: InsMove, Src: src, Dst: dst})
}

func (b *Buffer) OrPtr(src Operand, dst engine.Reg) {
	b.emit(Instr{Op: InsOr, Src: src, Dst: dst})
}

func (b *Buffer) Binary(op BinOp, src Operand, dst engine.Reg) {
	b.emit(Instr{Op: InsBinary, BinOp: op, Src: src, Dst: dst})
}

func (b *Buffer) Call(target string) {
	b.emit(Instr{Op: InsCall, Target: target})
}

func (b *Buffer) Label(name string) {
	b.emit(Instr{Op: InsLabel, Target: name})
}

func (b *Buffer) Jump(label string) {
	b.emit(Instr{Op: InsJump, Target: label})
}

func (b *Buffer) Branch(ifZero bool, reg engine.Reg, label string) {
	b.emit(Instr{Op: InsBranch, IfZero: ifZero, Dst: reg, Target: label})
}

func (b *Buffer) Ret() {
	b.emit(Instr{Op: InsRet})
}

func (b *Buffer) Len() int {
	return len(b.Code)
}

func (b *Buffer) Reset() {
	b.Code = b.Code[:0]
}

// Count returns how many recorded instructions have one of the opcodes
func (b *Buffer) Count(ops ...Opcode) int {
	n := 0
	for _, in := range b.Code {
		for _, op := range ops {
			if in.Op == op {
				n++
				break
			}
		}
	}
	return n
}

// Loads counts instructions that read frame memory
func (b *Buffer) Loads() int {
	n := 0
	for _, in := range b.Code {
		if in.Op.IsLoad() {
			n++
		}
	}
	return n
}

// Stores counts instructions that write frame memory
func (b *Buffer) Stores() int {
	n := 0
	for _, in := range b.Code {
		if in.Op.IsStore() {
			n++
		}
	}
	return n
}

// LoadsFrom counts loads that read the slot at addr
func (b *Buffer) LoadsFrom(addr Address) int {
	n := 0
	for _, in := range b.Code {
		if in.Op.IsLoad() && in.Addr == addr {
			n++
		}
	}
	return n
}

// StoresTo counts stores that write the slot at addr
func (b *Buffer) StoresTo(addr Address) int {
	n := 0
	for _, in := range b.Code {
		if in.Op.IsStore() && in.Addr == addr {
			n++
		}
	}
	return n
}

// Replay emits every recorded instruction into another assembler
func (b *Buffer) Replay(to Assembler) {
	for _, in := range b.Code {
		switch in.Op {
		case InsLoadType:
			to.LoadTypeTag(in.Addr, in.Dst)
		case InsLoadPayload:
			to.LoadPayload(in.Addr, in.Dst)
		case InsLoadValue:
			to.LoadValue(in.Addr, in.Dst)
		case InsLoadComponents:
			to.LoadValueAsComponents(in.Addr, in.Dst, in.Dst2)
		case InsStoreType:
			to.StoreTypeTag(in.Src, in.Addr)
		case InsStorePayload:
			to.StorePayload(in.Src, in.Addr)
		case InsStoreValue:
			to.StoreValue(in.Value, in.Addr)
		case InsStoreComponents:
			to.StoreValueFromComponents(in.Src, in.Data, in.Addr)
		case InsStorePtr:
			to.StorePtr(in.Dst, in.Addr)
		case InsMove:
			to.Move(in.Src, in.Dst)
		case InsOr:
			to.OrPtr(in.Src, in.Dst)
		case InsBinary:
			to.Binary(in.BinOp, in.Src, in.Dst)
		case InsCall:
			to.Call(in.Target)
		case InsLabel:
			to.Label(in.Target)
		case InsJump:
			to.Jump(in.Target)
		case InsBranch:
			to.Branch(in.IfZero, in.Dst, in.Target)
		case InsRet:
			to.Ret()
		}
	}
}

// Listing renders code one instruction per line, labels flush left
func Listing(code []Instr, rf *engine.RegisterFile) string {
	var sb strings.Builder
	for _, in := range code {
		if in.Op != InsLabel {
			sb.WriteString("    ")
		}
		sb.WriteString(in.Format(rf))
		sb.WriteByte('\n')
	}
	return sb.String()
}
