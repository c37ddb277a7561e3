package frame

import (
	"github.com/xyproto/jitframe/internal/asm"
	"github.com/xyproto/jitframe/internal/engine"
	"github.com/xyproto/jitframe/internal/value"
)

// TempRegForType returns a register holding the entry's type tag. The
// register stays owned by the entry and is only valid until the next
// allocation unless pinned.
func (f *Frame) TempRegForType(h Handle) engine.Reg {
	fe := f.backing(f.tracked(h))
	r := f.tempRegForType(fe)
	f.check("TempRegForType")
	return r
}

func (f *Frame) tempRegForType(fe *Entry) engine.Reg {
	switch fe.typ.loc {
	case LocRegister:
		return fe.typ.reg
	case LocMemory:
		r := f.allocRegFor(fe, TypePart)
		f.em.LoadTypeTag(f.addressOf(fe), r)
		fe.typ.setRegister(r)
		return r
	case LocConstant:
		f.fail("TempRegForType", ErrMisuse, "type of entry %d is known to be %s", fe.index, fe.knownType)
	default:
		f.fail("TempRegForType", ErrInvariant, "type of entry %d is invalid", fe.index)
	}
	return engine.NoReg
}

// TempRegForData returns a register holding the entry's payload, owned by
// the entry
func (f *Frame) TempRegForData(h Handle) engine.Reg {
	fe := f.backing(f.tracked(h))
	r := f.tempRegForData(fe)
	f.check("TempRegForData")
	return r
}

func (f *Frame) tempRegForData(fe *Entry) engine.Reg {
	switch fe.data.loc {
	case LocRegister:
		return fe.data.reg
	case LocMemory:
		r := f.allocRegFor(fe, DataPart)
		f.em.LoadPayload(f.addressOf(fe), r)
		fe.data.setRegister(r)
		return r
	case LocConstant:
		f.fail("TempRegForData", ErrMisuse, "entry %d is a constant", fe.index)
	default:
		f.fail("TempRegForData", ErrInvariant, "data of entry %d is invalid", fe.index)
	}
	return engine.NoReg
}

// TempRegInMaskForData is TempRegForData with the register restricted to
// mask. A payload held elsewhere is moved.
func (f *Frame) TempRegInMaskForData(h Handle, mask engine.RegMask) engine.Reg {
	fe := f.backing(f.tracked(h))
	if fe.data.inRegister() {
		old := fe.data.reg
		if mask.Has(old) {
			return old
		}
		f.PinReg(old)
		r := f.allocRegIn(mask)
		f.UnpinReg(old)
		f.em.Move(asm.R(old), r)
		f.associate(fe, DataPart, r)
		f.forgetReg(old)
		fe.data.setRegister(r)
		f.check("TempRegInMaskForData")
		return r
	}
	if !fe.data.inMemory() {
		f.fail("TempRegInMaskForData", ErrMisuse, "data of entry %d is %s", fe.index, fe.data.loc)
	}
	r := f.allocRegIn(mask)
	f.associate(fe, DataPart, r)
	f.em.LoadPayload(f.addressOf(fe), r)
	fe.data.setRegister(r)
	f.check("TempRegInMaskForData")
	return r
}

// TempRegForConstant moves a non-double constant's payload into a register
// the entry then owns. The type stays known.
func (f *Frame) TempRegForConstant(h Handle) engine.Reg {
	fe := f.backing(f.tracked(h))
	if !fe.isConstant() {
		f.fail("TempRegForConstant", ErrMisuse, "entry %d is not a constant", fe.index)
	}
	if fe.constant.IsDouble() {
		f.fail("TempRegForConstant", ErrMisuse, "entry %d is a double constant", fe.index)
	}
	r := f.allocRegFor(fe, DataPart)
	f.em.Move(asm.ImmPayload(fe.constant), r)
	fe.data.setRegister(r)
	f.check("TempRegForConstant")
	return r
}

// CopyDataIntoReg returns a temporary register holding a copy of the
// payload. The caller may clobber it and must free it.
func (f *Frame) CopyDataIntoReg(h Handle) engine.Reg {
	return f.CopyDataIntoRegHint(h, engine.NoReg)
}

// CopyDataIntoRegHint is CopyDataIntoReg preferring the register hint when
// it is free
func (f *Frame) CopyDataIntoRegHint(h Handle, hint engine.Reg) engine.Reg {
	fe := f.backing(f.tracked(h))
	r := f.copyDataIntoReg(fe, hint)
	f.check("CopyDataIntoReg")
	return r
}

func (f *Frame) copyDataIntoReg(fe *Entry, hint engine.Reg) engine.Reg {
	alloc := func() engine.Reg {
		if hint != engine.NoReg && f.free.Has(hint) {
			f.free = f.free.Without(hint)
			return hint
		}
		return f.allocReg()
	}
	if fe.data.inRegister() {
		reg := fe.data.reg
		if f.free.Empty() && f.regstate[reg].pins == 0 {
			// Steal the entry's register; memory takes over the payload
			f.ensureDataSynced(fe)
			fe.data.setMemory()
			f.disown("CopyDataIntoReg", reg)
			return reg
		}
		f.PinReg(reg)
		r := alloc()
		f.UnpinReg(reg)
		f.em.Move(asm.R(reg), r)
		return r
	}
	r := alloc()
	switch fe.data.loc {
	case LocMemory:
		f.em.LoadPayload(f.addressOf(fe), r)
	case LocConstant:
		f.em.Move(asm.ImmPayload(fe.constant), r)
	default:
		f.fail("CopyDataIntoReg", ErrInvariant, "data of entry %d is invalid", fe.index)
	}
	return r
}

// CopyTypeIntoReg returns a temporary register holding a copy of the type
func (f *Frame) CopyTypeIntoReg(h Handle) engine.Reg {
	fe := f.backing(f.tracked(h))
	r := f.copyTypeIntoReg(fe)
	f.check("CopyTypeIntoReg")
	return r
}

func (f *Frame) copyTypeIntoReg(fe *Entry) engine.Reg {
	switch fe.typ.loc {
	case LocRegister:
		reg := fe.typ.reg
		if f.free.Empty() && f.regstate[reg].pins == 0 {
			f.ensureTypeSynced(fe)
			fe.typ.setMemory()
			f.disown("CopyTypeIntoReg", reg)
			return reg
		}
		f.PinReg(reg)
		r := f.allocReg()
		f.UnpinReg(reg)
		f.em.Move(asm.R(reg), r)
		return r
	case LocMemory:
		r := f.allocReg()
		f.em.LoadTypeTag(f.addressOf(fe), r)
		return r
	case LocConstant:
		r := f.allocReg()
		f.em.Move(f.typeOperand(fe), r)
		return r
	}
	f.fail("CopyTypeIntoReg", ErrInvariant, "type of entry %d is invalid", fe.index)
	return engine.NoReg
}

// CopyInt32ConstantIntoReg returns a temporary holding an int32 constant
func (f *Frame) CopyInt32ConstantIntoReg(h Handle) engine.Reg {
	fe := f.backing(f.tracked(h))
	if !fe.isConstant() || !fe.constant.IsInt32() {
		f.fail("CopyInt32ConstantIntoReg", ErrMisuse, "entry %d is not an int32 constant", fe.index)
	}
	r := f.allocReg()
	f.em.Move(asm.Imm32(fe.constant.Int32()), r)
	return r
}

// OwnRegForData returns a register holding the payload that the caller
// takes over. The entry no longer has a data component of its own and is
// expected to be popped or overwritten.
func (f *Frame) OwnRegForData(h Handle) engine.Reg {
	fe := f.tracked(h)
	r := f.ownRegFor(fe, DataPart)
	f.check("OwnRegForData")
	return r
}

// OwnRegForType is OwnRegForData for the type tag
func (f *Frame) OwnRegForType(h Handle) engine.Reg {
	fe := f.tracked(h)
	r := f.ownRegFor(fe, TypePart)
	f.check("OwnRegForType")
	return r
}

func (f *Frame) ownRegFor(fe *Entry, part Component) engine.Reg {
	if fe.isCopy() {
		return f.copyOf(&f.entries[fe.copyOf], part)
	}
	if fe.copied {
		if promotee := f.uncopy(fe); promotee != nil {
			// The promotee inherited our registers; give the caller a copy
			fe.typ.invalidate()
			fe.data.invalidate()
			return f.copyOf(promotee, part)
		}
	}
	rm := fe.part(part)
	switch rm.loc {
	case LocRegister:
		r := rm.reg
		f.disown("OwnRegFor", r)
		rm.invalidate()
		return r
	case LocMemory:
		r := f.allocReg()
		if part == TypePart {
			f.em.LoadTypeTag(f.addressOf(fe), r)
		} else {
			f.em.LoadPayload(f.addressOf(fe), r)
		}
		rm.invalidate()
		return r
	case LocConstant:
		r := f.allocReg()
		if part == TypePart {
			f.em.Move(f.typeOperand(fe), r)
		} else {
			f.em.Move(asm.ImmPayload(fe.constant), r)
		}
		rm.invalidate()
		return r
	default:
		f.fail("OwnRegFor", ErrInvariant, "%s of entry %d is invalid", part, fe.index)
	}
	return engine.NoReg
}

// copyOf returns a temporary holding a component of a backing entry
func (f *Frame) copyOf(fe *Entry, part Component) engine.Reg {
	if part == DataPart {
		return f.copyDataIntoReg(fe, engine.NoReg)
	}
	return f.copyTypeIntoReg(fe)
}

// EnsureFullRegs puts both components of a non-constant entry with an
// unknown type in registers, so the value can be tested without loads
func (f *Frame) EnsureFullRegs(h Handle) (typeReg, dataReg engine.Reg) {
	fe := f.backing(f.tracked(h))
	if fe.isConstant() || fe.isTypeKnown() {
		f.fail("EnsureFullRegs", ErrMisuse, "entry %d has a known type", fe.index)
	}
	typeReg = f.tempRegForType(fe)
	f.PinReg(typeReg)
	dataReg = f.tempRegForData(fe)
	f.UnpinReg(typeReg)
	f.check("EnsureFullRegs")
	return typeReg, dataReg
}

// typeOperand is the immediate for a known or constant type component
func (f *Frame) typeOperand(fe *Entry) asm.Operand {
	if fe.isConstant() {
		return asm.ImmTag(fe.constant)
	}
	return asm.ImmType(fe.knownType)
}

// IsTypeKnown reports whether the entry's type tag is known at compile time
func (f *Frame) IsTypeKnown(h Handle) bool {
	return f.backing(f.entry(h)).isTypeKnown()
}

// KnownType returns the compile-time type. Only valid with IsTypeKnown.
func (f *Frame) KnownType(h Handle) value.Type {
	fe := f.backing(f.entry(h))
	if !fe.isTypeKnown() {
		f.fail("KnownType", ErrMisuse, "type of entry %d is not known", fe.index)
	}
	return fe.knownType
}

// IsConstant reports whether the entry is a compile-time constant
func (f *Frame) IsConstant(h Handle) bool {
	return f.backing(f.entry(h)).isConstant()
}

// Constant returns the value of a constant entry
func (f *Frame) Constant(h Handle) value.Value {
	fe := f.backing(f.entry(h))
	if !fe.isConstant() {
		f.fail("Constant", ErrMisuse, "entry %d is not a constant", fe.index)
	}
	return fe.constant
}

// IsNumber reports whether the entry is known to hold an int32 or a double
func (f *Frame) IsNumber(h Handle) bool {
	return f.backing(f.entry(h)).isNumber
}
