// Completion: 100% - Register files for all supported targets
package engine

import (
	"fmt"
	"sort"
	"strings"
)

// RegisterFile describes the general purpose registers the frame state may
// hand out on one target, and the handful it must never touch.
type RegisterFile struct {
	Platform Platform
	Names    []string // indexed by register number

	Avail RegMask // allocatable
	Temp  RegMask // caller-saved, clobbered by calls
	Saved RegMask // callee-saved

	FrameReg      Reg // base of the frame's slot area
	ValueReg      Reg // scratch for boxing a whole value; NoReg on 32-bit targets
	ReturnTypeReg Reg
	ReturnDataReg Reg
}

var x86_64Names = []string{
	"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
}

var i386Names = []string{"eax", "ecx", "edx", "ebx", "esp", "ebp", "esi", "edi"}

var riscv64Names = []string{
	"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
	"s0", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
	"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
	"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
}

var armNames = []string{
	"r0", "r1", "r2", "r3", "r4", "r5", "r6", "r7",
	"r8", "r9", "r10", "r11", "r12", "sp", "lr", "pc",
}

func arm64Names() []string {
	names := make([]string, 32)
	for i := 0; i < 31; i++ {
		names[i] = fmt.Sprintf("x%d", i)
	}
	names[31] = "sp"
	return names
}

func regRange(from, to Reg) RegMask {
	var m RegMask
	for r := from; r <= to; r++ {
		m = m.With(r)
	}
	return m
}

// RegistersFor returns the register file of a platform.
func RegistersFor(p Platform) (*RegisterFile, error) {
	rf := &RegisterFile{Platform: p, ValueReg: NoReg}
	switch p.Arch {
	case ArchX86_64:
		// rbx holds the frame, r11 is the boxing scratch, rsp/rbp are the native stack
		rf.Names = x86_64Names
		rf.Temp = MaskOf(0, 1, 2, 6, 7, 8, 9, 10)
		rf.Saved = MaskOf(12, 13, 14, 15)
		if p.OS == OSWindows {
			// rsi and rdi are callee-saved in the Microsoft x64 ABI
			rf.Temp = rf.Temp.Without(6).Without(7)
			rf.Saved = rf.Saved.With(6).With(7)
		}
		rf.FrameReg = 3
		rf.ValueReg = 11
		rf.ReturnTypeReg = 1
		rf.ReturnDataReg = 2
	case ArchARM64:
		rf.Names = arm64Names()
		rf.Temp = regRange(0, 15)
		rf.Saved = regRange(20, 28)
		rf.FrameReg = 19
		rf.ValueReg = 16
		rf.ReturnTypeReg = 1
		rf.ReturnDataReg = 0
	case ArchRiscv64:
		rf.Names = riscv64Names
		rf.Temp = regRange(5, 7) | regRange(10, 17) | regRange(28, 30)
		rf.Saved = regRange(18, 27)
		rf.FrameReg = 9
		rf.ValueReg = 31
		rf.ReturnTypeReg = 11
		rf.ReturnDataReg = 10
	case Arch386:
		rf.Names = i386Names
		rf.Temp = MaskOf(0, 1, 2)
		rf.Saved = MaskOf(6, 7)
		rf.FrameReg = 3
		rf.ReturnTypeReg = 1
		rf.ReturnDataReg = 2
	case ArchARM:
		rf.Names = armNames
		rf.Temp = regRange(0, 3)
		rf.Saved = regRange(4, 10)
		rf.FrameReg = 11
		rf.ReturnTypeReg = 1
		rf.ReturnDataReg = 0
	default:
		return nil, fmt.Errorf("no register file for architecture %s", p.Arch)
	}
	rf.Avail = rf.Temp | rf.Saved
	return rf, nil
}

// Restrict returns a copy of the register file that only hands out the
// registers in keep. Used to model register pressure.
func (rf *RegisterFile) Restrict(keep RegMask) *RegisterFile {
	c := *rf
	c.Avail &= keep
	c.Temp &= keep
	c.Saved &= keep
	return &c
}

// Unified reports whether a value fits in one register on this target.
func (rf *RegisterFile) Unified() bool {
	return rf.Platform.Arch.Is64Bit()
}

// Name returns the assembler name of a register
func (rf *RegisterFile) Name(r Reg) string {
	if int(r) < len(rf.Names) {
		return rf.Names[r]
	}
	if r == NoReg {
		return "<none>"
	}
	return fmt.Sprintf("r?%d", r)
}

// Lookup finds a register by name
func (rf *RegisterFile) Lookup(name string) (Reg, bool) {
	name = strings.ToLower(name)
	for i, n := range rf.Names {
		if n == name {
			return Reg(i), true
		}
	}
	return NoReg, false
}

// Describe returns a multi-line summary of the register file
func (rf *RegisterFile) Describe() string {
	var sb strings.Builder
	layout := "split (32-bit tag + 32-bit payload)"
	if rf.Unified() {
		layout = "unified (boxed 64-bit word)"
	}
	fmt.Fprintf(&sb, "target:      %s\n", rf.Platform)
	fmt.Fprintf(&sb, "layout:      %s\n", layout)
	fmt.Fprintf(&sb, "allocatable: %s\n", rf.Avail.Format(rf))
	fmt.Fprintf(&sb, "temporary:   %s\n", rf.Temp.Format(rf))
	fmt.Fprintf(&sb, "saved:       %s\n", rf.Saved.Format(rf))
	fmt.Fprintf(&sb, "frame:       %s\n", rf.Name(rf.FrameReg))
	if rf.ValueReg != NoReg {
		fmt.Fprintf(&sb, "value:       %s\n", rf.Name(rf.ValueReg))
	}
	fmt.Fprintf(&sb, "return:      type=%s data=%s\n", rf.Name(rf.ReturnTypeReg), rf.Name(rf.ReturnDataReg))
	return sb.String()
}

// SupportedArchs lists every architecture with a register file, sorted by name
func SupportedArchs() []Arch {
	archs := []Arch{ArchX86_64, ArchARM64, ArchRiscv64, Arch386, ArchARM}
	sort.Slice(archs, func(i, j int) bool { return archs[i].String() < archs[j].String() })
	return archs
}
