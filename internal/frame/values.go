package frame

import (
	"github.com/xyproto/jitframe/internal/asm"
	"github.com/xyproto/jitframe/internal/engine"
	"github.com/xyproto/jitframe/internal/value"
)

// LearnType records that entry h holds a value of type t, for example after
// a type guard. Learning that a value is a double only marks it a number,
// since a double's tag word is part of its bits.
func (f *Frame) LearnType(h Handle, t value.Type) {
	fe := f.backing(f.tracked(h))
	if fe.isConstant() {
		f.fail("LearnType", ErrMisuse, "entry %d is a constant", fe.index)
	}
	if t == value.TypeDouble {
		fe.isNumber = true
		return
	}
	if fe.typ.inRegister() {
		f.disown("LearnType", fe.typ.reg)
		f.forgetReg(fe.typ.reg)
	}
	fe.setType(t)
	f.check("LearnType")
}

// ForgetType drops compile-time knowledge of the type of entry h, writing
// the type tag out first
func (f *Frame) ForgetType(h Handle) {
	fe := f.backing(f.tracked(h))
	if !fe.isTypeKnown() || fe.isConstant() {
		return
	}
	f.ensureTypeSynced(fe)
	fe.typ.setMemory()
	f.check("ForgetType")
}

// StoreTo writes the value of entry h to addr. With popped the entry is
// about to go away, so no registers are left assigned to it.
func (f *Frame) StoreTo(h Handle, addr asm.Address, popped bool) {
	fe := f.tracked(h)
	if addr.Base != f.rf.FrameReg && f.free.Has(addr.Base) {
		f.fail("StoreTo", ErrMisuse, "address base %s is a free register", f.rf.Name(addr.Base))
	}
	f.layout.storeTo(f, f.backing(fe), addr, popped)
	f.check("StoreTo")
}

// LoadForReturn moves the value of entry h into typeReg and dataReg.
// tempReg may be used when the two registers hold each other's halves.
// The frame state is unchanged, so this ends the code path.
func (f *Frame) LoadForReturn(h Handle, typeReg, dataReg, tempReg engine.Reg) {
	if typeReg == dataReg || typeReg == tempReg || dataReg == tempReg {
		f.fail("LoadForReturn", ErrMisuse, "return registers must differ")
	}
	fe := f.backing(f.tracked(h))
	f.layout.loadForReturn(f, fe, typeReg, dataReg, tempReg)
}

// LoadThisForReturn is LoadForReturn for the this value
func (f *Frame) LoadThisForReturn(typeReg, dataReg, tempReg engine.Reg) {
	f.LoadForReturn(ThisSlot, typeReg, dataReg, tempReg)
}

// ValueRemat says where a whole value can be found while its entry is
// pinned
type ValueRemat struct {
	Constant  bool
	Value     value.Value
	TypeKnown bool
	KnownType value.Type
	TypeReg   engine.Reg
	DataReg   engine.Reg
}

// PinEntry puts the value of entry h in registers and pins them until
// UnpinEntry
func (f *Frame) PinEntry(h Handle) ValueRemat {
	fe := f.backing(f.tracked(h))
	vr := ValueRemat{TypeReg: engine.NoReg, DataReg: engine.NoReg}
	if fe.isConstant() {
		vr.Constant = true
		vr.Value = fe.constant
		return vr
	}
	if fe.isTypeKnown() {
		vr.TypeKnown = true
		vr.KnownType = fe.knownType
	} else {
		vr.TypeReg = f.tempRegForType(fe)
		f.PinReg(vr.TypeReg)
	}
	vr.DataReg = f.tempRegForData(fe)
	f.PinReg(vr.DataReg)
	f.check("PinEntry")
	return vr
}

func (f *Frame) UnpinEntry(vr ValueRemat) {
	if vr.TypeReg != engine.NoReg {
		f.UnpinReg(vr.TypeReg)
	}
	if vr.DataReg != engine.NoReg {
		f.UnpinReg(vr.DataReg)
	}
}

// EnsureValueSynced emits into em the store that brings the slot of entry
// h up to date, given the pinned value vr. The frame state is unchanged.
func (f *Frame) EnsureValueSynced(em asm.Emitter, h Handle, vr ValueRemat) {
	fe := f.tracked(h)
	if !needsSync(fe, TypePart) && !needsSync(fe, DataPart) {
		return
	}
	addr := f.addressOf(fe)
	switch {
	case vr.Constant:
		em.StoreValue(vr.Value, addr)
	case vr.TypeKnown:
		em.StoreValueFromComponents(asm.ImmType(vr.KnownType), asm.R(vr.DataReg), addr)
	default:
		em.StoreValueFromComponents(asm.R(vr.TypeReg), asm.R(vr.DataReg), addr)
	}
}
