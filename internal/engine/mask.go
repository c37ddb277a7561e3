package engine

import (
	"math/bits"
	"strings"
)

// Reg is a physical general purpose register number, as encoded by the target.
type Reg uint8

// NoReg marks an absent register.
const NoReg Reg = 0xFF

// MaxRegs bounds the register numbers a RegMask can hold.
const MaxRegs = 32

// RegMask is a set of registers, one bit per register number.
type RegMask uint32

// MaskOf builds a mask from a list of registers.
func MaskOf(regs ...Reg) RegMask {
	var m RegMask
	for _, r := range regs {
		m = m.With(r)
	}
	return m
}

func (m RegMask) Has(r Reg) bool {
	return r < MaxRegs && m&(1<<r) != 0
}

func (m RegMask) With(r Reg) RegMask {
	return m | 1<<r
}

func (m RegMask) Without(r Reg) RegMask {
	return m &^ (1 << r)
}

func (m RegMask) Empty() bool {
	return m == 0
}

func (m RegMask) Count() int {
	return bits.OnesCount32(uint32(m))
}

// First returns the lowest numbered register in the set, or NoReg.
func (m RegMask) First() Reg {
	if m == 0 {
		return NoReg
	}
	return Reg(bits.TrailingZeros32(uint32(m)))
}

// Regs lists the registers in ascending order.
func (m RegMask) Regs() []Reg {
	regs := make([]Reg, 0, m.Count())
	for m != 0 {
		r := m.First()
		regs = append(regs, r)
		m = m.Without(r)
	}
	return regs
}

// Format renders the set using the names of a register file.
func (m RegMask) Format(rf *RegisterFile) string {
	names := make([]string, 0, m.Count())
	for _, r := range m.Regs() {
		names = append(names, rf.Name(r))
	}
	return "{" + strings.Join(names, ", ") + "}"
}
