// Completion: 100% - Opcode table complete
package bytecode

import (
	"github.com/xyproto/jitframe/internal/asm"
)

// Opcode is one stack machine operation
type Opcode uint8

const (
	OpInvalid Opcode = iota

	// constants
	OpInt
	OpDouble
	OpTrue
	OpFalse
	OpNull
	OpUndefined

	// frame slots
	OpGetArg
	OpSetArg
	OpGetLocal
	OpSetLocal
	OpThis
	OpCallee

	// stack shuffles
	OpDup
	OpDup2
	OpPop
	OpPopN
	OpSwap

	// binary operators, in asm.BinOp order
	OpAdd
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

	OpCall
	OpJump
	OpIfEq // jump when the popped value is falsy
	OpIfNe // jump when the popped value is truthy
	OpLabel
	OpEnterBlock
	OpLeaveBlock
	OpReturn

	opCount
)

// Operand is the kind of immediate an opcode takes
type Operand uint8

const (
	NoOperand Operand = iota
	IntOperand
	DoubleOperand
	IndexOperand // non-negative slot index
	CountOperand // non-negative count
	LabelOperand
)

type opInfo struct {
	name    string
	operand Operand
}

var opTable = [opCount]opInfo{
	OpInvalid:    {"invalid", NoOperand},
	OpInt:        {"int", IntOperand},
	OpDouble:     {"double", DoubleOperand},
	OpTrue:       {"true", NoOperand},
	OpFalse:      {"false", NoOperand},
	OpNull:       {"null", NoOperand},
	OpUndefined:  {"undefined", NoOperand},
	OpGetArg:     {"getarg", IndexOperand},
	OpSetArg:     {"setarg", IndexOperand},
	OpGetLocal:   {"getlocal", IndexOperand},
	OpSetLocal:   {"setlocal", IndexOperand},
	OpThis:       {"this", NoOperand},
	OpCallee:     {"callee", NoOperand},
	OpDup:        {"dup", NoOperand},
	OpDup2:       {"dup2", NoOperand},
	OpPop:        {"pop", NoOperand},
	OpPopN:       {"popn", CountOperand},
	OpSwap:       {"swap", NoOperand},
	OpAdd:        {"add", NoOperand},
	OpSub:        {"sub", NoOperand},
	OpMul:        {"mul", NoOperand},
	OpDiv:        {"div", NoOperand},
	OpMod:        {"mod", NoOperand},
	OpLt:         {"lt", NoOperand},
	OpLe:         {"le", NoOperand},
	OpGt:         {"gt", NoOperand},
	OpGe:         {"ge", NoOperand},
	OpEq:         {"eq", NoOperand},
	OpNe:         {"ne", NoOperand},
	OpCall:       {"call", CountOperand},
	OpJump:       {"jump", LabelOperand},
	OpIfEq:       {"ifeq", LabelOperand},
	OpIfNe:       {"ifne", LabelOperand},
	OpLabel:      {"label", LabelOperand},
	OpEnterBlock: {"enterblock", CountOperand},
	OpLeaveBlock: {"leaveblock", CountOperand},
	OpReturn:     {"return", NoOperand},
}

var opByName = func() map[string]Opcode {
	m := make(map[string]Opcode, opCount)
	for op := OpInvalid + 1; op < opCount; op++ {
		m[opTable[op].name] = op
	}
	return m
}()

func (op Opcode) String() string {
	if op < opCount {
		return opTable[op].name
	}
	return "invalid"
}

// Operand returns the immediate kind of op
func (op Opcode) Operand() Operand {
	if op < opCount {
		return opTable[op].operand
	}
	return NoOperand
}

// IsBinary reports whether op is a two-operand operator
func (op Opcode) IsBinary() bool {
	return op >= OpAdd && op <= OpNe
}

// BinOp returns the assembler operator for a binary opcode
func (op Opcode) BinOp() asm.BinOp {
	return asm.BinOp(op - OpAdd)
}

// IsJump reports whether op transfers control to a label
func (op Opcode) IsJump() bool {
	return op == OpJump || op == OpIfEq || op == OpIfNe
}

// EndsBlock reports whether control never falls through op
func (op Opcode) EndsBlock() bool {
	return op == OpJump || op == OpReturn
}

// LookupOpcode finds an opcode by its mnemonic
func LookupOpcode(name string) (Opcode, bool) {
	op, ok := opByName[name]
	return op, ok
}

// Mnemonics lists every opcode name
func Mnemonics() []string {
	names := make([]string, 0, opCount-1)
	for op := OpInvalid + 1; op < opCount; op++ {
		names = append(names, opTable[op].name)
	}
	return names
}
