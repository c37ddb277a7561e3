// Completion: 100% - Split and unified value layouts complete
package frame

import (
	"github.com/xyproto/jitframe/internal/asm"
	"github.com/xyproto/jitframe/internal/engine"
)

// Layout is the physical encoding of a value in registers and memory. It
// is chosen once per target; everything else in the frame state is
// layout-agnostic.
type Layout interface {
	Name() string
	// Unified reports whether a value travels as one 64-bit word
	Unified() bool

	// syncEntry writes the needed components of fe to its slot, reading
	// them from backing (fe itself unless fe is a copy)
	syncEntry(f *Frame, em asm.Emitter, fe, backing *Entry, needType, needData bool)
	// storeTo writes the value of backing to an arbitrary address
	storeTo(f *Frame, backing *Entry, addr asm.Address, popped bool)
	// loadForReturn materializes the value of backing in fixed registers
	loadForReturn(f *Frame, backing *Entry, typeReg, dataReg, tempReg engine.Reg)
}

// LayoutFor returns the layout used by a register file's target
func LayoutFor(rf *engine.RegisterFile) Layout {
	if rf.Unified() {
		return unifiedLayout{}
	}
	return splitLayout{}
}

// source returns the operand a component can be read from without a load
func (f *Frame) source(backing *Entry, part Component) (asm.Operand, bool) {
	rm := backing.part(part)
	switch rm.loc {
	case LocConstant:
		if part == TypePart {
			return f.typeOperand(backing), true
		}
		return asm.ImmPayload(backing.constant), true
	case LocRegister:
		return asm.R(rm.reg), true
	}
	return asm.Operand{}, false
}

func (f *Frame) mustSource(backing *Entry, part Component) asm.Operand {
	op, ok := f.source(backing, part)
	if !ok {
		f.fail("sync", ErrInvariant, "%s of entry %d is %s, not a register or constant", part, backing.index, backing.part(part).loc)
	}
	return op
}

// splitLayout keeps the payload word at +0 and the tag word at +4
type splitLayout struct{}

func (splitLayout) Name() string  { return "split" }
func (splitLayout) Unified() bool { return false }

func (splitLayout) syncEntry(f *Frame, em asm.Emitter, fe, backing *Entry, needType, needData bool) {
	addr := f.addressOf(fe)
	if needData {
		em.StorePayload(f.mustSource(backing, DataPart), addr)
	}
	if needType {
		em.StoreTypeTag(f.mustSource(backing, TypePart), addr)
	}
}

func (splitLayout) storeTo(f *Frame, backing *Entry, addr asm.Address, popped bool) {
	if backing.isConstant() {
		f.em.StoreValue(backing.constant, addr)
		return
	}
	load := func(part Component) engine.Reg {
		var r engine.Reg
		if popped {
			r = f.allocReg()
		} else {
			r = f.allocRegFor(backing, part)
			backing.part(part).setRegister(r)
		}
		if part == TypePart {
			f.em.LoadTypeTag(f.addressOf(backing), r)
		} else {
			f.em.LoadPayload(f.addressOf(backing), r)
		}
		return r
	}

	if backing.data.inRegister() {
		f.em.StorePayload(asm.R(backing.data.reg), addr)
	} else {
		r := load(DataPart)
		f.em.StorePayload(asm.R(r), addr)
		if popped {
			f.forgetReg(r)
		}
	}

	switch {
	case backing.isTypeKnown():
		f.em.StoreTypeTag(f.typeOperand(backing), addr)
	case backing.typ.inRegister():
		f.em.StoreTypeTag(asm.R(backing.typ.reg), addr)
	default:
		r := load(TypePart)
		f.em.StoreTypeTag(asm.R(r), addr)
		if popped {
			f.forgetReg(r)
		}
	}
}

func (splitLayout) loadForReturn(f *Frame, backing *Entry, typeReg, dataReg, tempReg engine.Reg) {
	loadForReturn(f, backing, typeReg, dataReg, tempReg)
}

// unifiedLayout boxes type and payload into one 64-bit word. Partial
// stores and memory-to-memory moves go through the value register.
type unifiedLayout struct{}

func (unifiedLayout) Name() string  { return "unified" }
func (unifiedLayout) Unified() bool { return true }

func (unifiedLayout) syncEntry(f *Frame, em asm.Emitter, fe, backing *Entry, needType, needData bool) {
	if !needType && !needData {
		return
	}
	addr := f.addressOf(fe)
	if backing.isConstant() {
		em.StoreValue(backing.constant, addr)
		return
	}
	typ, typeOK := f.source(backing, TypePart)
	data, dataOK := f.source(backing, DataPart)
	if fe == backing {
		// A component of a non-copy that is in memory is synced
		switch {
		case needType && needData:
			em.StoreValueFromComponents(typ, data, addr)
		case needType:
			em.StoreTypeTag(typ, addr)
		default:
			em.StorePayload(data, addr)
		}
		return
	}

	// A copy gets the whole word, which is correct whatever half it lacked
	from := f.addressOf(backing)
	vreg := f.rf.ValueReg
	switch {
	case typeOK && dataOK:
		em.StoreValueFromComponents(typ, data, addr)
	case !typeOK && !dataOK:
		em.LoadValue(from, vreg)
		em.StorePtr(vreg, addr)
	case !typeOK:
		em.LoadTypeTag(from, vreg)
		em.StoreValueFromComponents(asm.R(vreg), data, addr)
	default:
		em.LoadPayload(from, vreg)
		em.StoreValueFromComponents(typ, asm.R(vreg), addr)
	}
}

func (unifiedLayout) storeTo(f *Frame, backing *Entry, addr asm.Address, popped bool) {
	if backing.isConstant() {
		f.em.StoreValue(backing.constant, addr)
		return
	}
	from := f.addressOf(backing)
	vreg := f.rf.ValueReg
	typ, typeOK := f.source(backing, TypePart)
	data, dataOK := f.source(backing, DataPart)
	switch {
	case typeOK && dataOK:
		f.em.StoreValueFromComponents(typ, data, addr)
	case !typeOK && !dataOK:
		f.em.LoadValue(from, vreg)
		f.em.StorePtr(vreg, addr)
	case !typeOK:
		f.em.LoadTypeTag(from, vreg)
		f.em.StoreValueFromComponents(asm.R(vreg), data, addr)
	default:
		f.em.LoadPayload(from, vreg)
		f.em.StoreValueFromComponents(typ, asm.R(vreg), addr)
	}
}

func (unifiedLayout) loadForReturn(f *Frame, backing *Entry, typeReg, dataReg, tempReg engine.Reg) {
	loadForReturn(f, backing, typeReg, dataReg, f.rf.ValueReg)
}

// loadForReturn moves a value into (typeReg, dataReg) without changing the
// frame state. swap is only used when the two registers hold each other's
// halves.
func loadForReturn(f *Frame, fe *Entry, typeReg, dataReg, swap engine.Reg) {
	em := f.em
	addr := f.addressOf(fe)
	if fe.isConstant() {
		em.Move(asm.ImmTag(fe.constant), typeReg)
		em.Move(asm.ImmPayload(fe.constant), dataReg)
		return
	}
	if fe.isTypeKnown() {
		if fe.data.inRegister() {
			if fe.data.reg != dataReg {
				em.Move(asm.R(fe.data.reg), dataReg)
			}
		} else {
			em.LoadPayload(addr, dataReg)
		}
		em.Move(asm.ImmType(fe.knownType), typeReg)
		return
	}
	t, d := fe.typ, fe.data
	switch {
	case t.inMemory() && d.inMemory():
		em.LoadValueAsComponents(addr, typeReg, dataReg)
	case t.inMemory():
		if d.reg != dataReg {
			em.Move(asm.R(d.reg), dataReg)
		}
		em.LoadTypeTag(addr, typeReg)
	case d.inMemory():
		if t.reg != typeReg {
			em.Move(asm.R(t.reg), typeReg)
		}
		em.LoadPayload(addr, dataReg)
	case t.reg == dataReg && d.reg == typeReg:
		em.Move(asm.R(t.reg), swap)
		em.Move(asm.R(d.reg), dataReg)
		em.Move(asm.R(swap), typeReg)
	case t.reg == dataReg:
		em.Move(asm.R(t.reg), typeReg)
		if d.reg != dataReg {
			em.Move(asm.R(d.reg), dataReg)
		}
	default:
		if d.reg != dataReg {
			em.Move(asm.R(d.reg), dataReg)
		}
		if t.reg != typeReg {
			em.Move(asm.R(t.reg), typeReg)
		}
	}
}
