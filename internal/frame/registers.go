// Completion: 100% - Register allocation and eviction complete
package frame

import (
	"github.com/xyproto/jitframe/internal/asm"
	"github.com/xyproto/jitframe/internal/engine"
)

// A register is in one of three states:
//
//	free       in f.free, regstate.fe == NoEntry
//	temporary  not in f.free, regstate.fe == NoEntry (held by the caller)
//	owned      not in f.free, regstate.fe names the owning entry component

func (f *Frame) isOwned(r engine.Reg) bool {
	return f.regstate[r].fe != NoEntry
}

// associate records that reg holds one component of fe
func (f *Frame) associate(fe *Entry, part Component, reg engine.Reg) {
	f.free = f.free.Without(reg)
	f.regstate[reg].fe = fe.index
	f.regstate[reg].part = part
}

// reassociate hands an owned register to another entry
func (f *Frame) reassociate(reg engine.Reg, fe *Entry) {
	f.regstate[reg].fe = fe.index
}

// forgetReg returns a register to the free set without emitting code
func (f *Frame) forgetReg(reg engine.Reg) {
	f.regstate[reg] = regState{fe: NoEntry}
	if f.rf.Avail.Has(reg) {
		f.free = f.free.With(reg)
	}
}

// disown takes an owned register away from its entry. The register keeps
// no pin count, so a pinned register may not change hands.
func (f *Frame) disown(op string, r engine.Reg) {
	if f.regstate[r].pins > 0 {
		f.fail(op, ErrMisuse, "%s is pinned", f.rf.Name(r))
	}
	f.regstate[r] = regState{fe: NoEntry}
}

// forgetAllRegs releases every register fe owns. The component states are
// left for the caller to overwrite.
func (f *Frame) forgetAllRegs(fe *Entry) {
	if fe.typ.inRegister() && f.regstate[fe.typ.reg].fe == fe.index {
		f.forgetReg(fe.typ.reg)
	}
	if fe.data.inRegister() && f.regstate[fe.data.reg].fe == fe.index {
		f.forgetReg(fe.data.reg)
	}
}

// allocReg returns a register the caller holds as a temporary, evicting an
// entry if nothing is free.
func (f *Frame) allocReg() engine.Reg {
	return f.allocRegIn(f.rf.Avail)
}

func (f *Frame) allocRegIn(mask engine.RegMask) engine.Reg {
	mask &= f.rf.Avail
	if r := (f.free & mask).First(); r != engine.NoReg {
		f.free = f.free.Without(r)
		return r
	}
	r := f.evictSomeReg(mask)
	f.free = f.free.Without(r)
	return r
}

// allocRegFor allocates a register and makes it the home of a component
func (f *Frame) allocRegFor(fe *Entry, part Component) engine.Reg {
	r := f.allocReg()
	f.associate(fe, part, r)
	return r
}

// pickVictim chooses the register to evict from mask. Owners whose
// component memory already holds win, since releasing them costs no store;
// otherwise the lowest numbered owned register goes.
func (f *Frame) pickVictim(mask engine.RegMask) engine.Reg {
	fallback := engine.NoReg
	for _, r := range mask.Regs() {
		st := f.regstate[r]
		if st.pins > 0 || st.fe == NoEntry || f.free.Has(r) {
			continue
		}
		fe := &f.entries[st.fe]
		if fe.part(st.part).synced {
			return r
		}
		if fallback == engine.NoReg {
			fallback = r
		}
	}
	return fallback
}

func (f *Frame) evictSomeReg(mask engine.RegMask) engine.Reg {
	r := f.pickVictim(mask)
	if r == engine.NoReg {
		f.fail("allocReg", ErrNoRegisters, "%d tracked entries, pinned %s", f.tracker.len(), f.PinnedRegs().Format(f.rf))
	}
	f.evictReg(r)
	return r
}

// evictReg writes a register's component back to memory if it is dirty and
// frees the register
func (f *Frame) evictReg(r engine.Reg) {
	st := f.regstate[r]
	fe := &f.entries[st.fe]
	rm := fe.part(st.part)
	if !rm.synced {
		f.log.Debugf("evicting %s: storing %s of entry %d", f.rf.Name(r), st.part, fe.index)
		if st.part == TypePart {
			f.em.StoreTypeTag(asm.R(r), f.addressOf(fe))
		} else {
			f.em.StorePayload(asm.R(r), f.addressOf(fe))
		}
	}
	rm.setMemory()
	f.forgetReg(r)
}

// AllocReg returns a temporary register. Release it with FreeReg.
func (f *Frame) AllocReg() engine.Reg {
	r := f.allocReg()
	f.check("AllocReg")
	return r
}

// AllocRegInMask returns a temporary register from mask
func (f *Frame) AllocRegInMask(mask engine.RegMask) engine.Reg {
	if (mask & f.rf.Avail).Empty() {
		f.fail("AllocRegInMask", ErrMisuse, "no allocatable register in %s", mask.Format(f.rf))
	}
	r := f.allocRegIn(mask)
	f.check("AllocRegInMask")
	return r
}

// TakeReg claims a specific register as a temporary, evicting its owner
func (f *Frame) TakeReg(r engine.Reg) {
	f.takeReg(r)
	f.check("TakeReg")
}

func (f *Frame) takeReg(r engine.Reg) {
	if !f.rf.Avail.Has(r) {
		f.fail("TakeReg", ErrMisuse, "%s is not allocatable", f.rf.Name(r))
	}
	switch {
	case f.free.Has(r):
		f.free = f.free.Without(r)
	case f.isOwned(r):
		if f.regstate[r].pins > 0 {
			f.fail("TakeReg", ErrMisuse, "%s is pinned", f.rf.Name(r))
		}
		f.evictReg(r)
		f.free = f.free.Without(r)
	default:
		f.fail("TakeReg", ErrMisuse, "%s is already held as a temporary", f.rf.Name(r))
	}
}

// FreeReg releases a temporary register
func (f *Frame) FreeReg(r engine.Reg) {
	if f.isOwned(r) {
		f.fail("FreeReg", ErrMisuse, "%s is owned by entry %d", f.rf.Name(r), f.regstate[r].fe)
	}
	if f.free.Has(r) {
		f.fail("FreeReg", ErrMisuse, "%s is already free", f.rf.Name(r))
	}
	f.forgetReg(r)
}

// ForgetReg releases a temporary, or takes a register away from an owner
// whose memory is already current
func (f *Frame) ForgetReg(r engine.Reg) {
	if f.isOwned(r) {
		st := f.regstate[r]
		rm := f.entries[st.fe].part(st.part)
		if !rm.synced {
			f.fail("ForgetReg", ErrMisuse, "%s of entry %d in %s is not synced", st.part, st.fe, f.rf.Name(r))
		}
		rm.setMemory()
	}
	f.forgetReg(r)
	f.check("ForgetReg")
}

// PinReg protects a register from eviction. Pins nest.
func (f *Frame) PinReg(r engine.Reg) {
	f.regstate[r].pins++
}

func (f *Frame) UnpinReg(r engine.Reg) {
	if f.regstate[r].pins == 0 {
		f.fail("UnpinReg", ErrMisuse, "%s is not pinned", f.rf.Name(r))
	}
	f.regstate[r].pins--
}

// UnpinKilledReg releases a register that was pinned across a kill
func (f *Frame) UnpinKilledReg(r engine.Reg) {
	f.UnpinReg(r)
	f.ForgetReg(r)
}

// PinnedRegs returns every register with an outstanding pin
func (f *Frame) PinnedRegs() engine.RegMask {
	var m engine.RegMask
	for _, r := range f.rf.Avail.Regs() {
		if f.regstate[r].pins > 0 {
			m = m.With(r)
		}
	}
	return m
}

// FreeRegs returns the registers nothing holds
func (f *Frame) FreeRegs() engine.RegMask {
	return f.free
}

// HasFreeReg reports whether an allocation would not need to evict
func (f *Frame) HasFreeReg() bool {
	return !f.free.Empty()
}

// RegOwner returns the entry and component held in r, or NoEntry
func (f *Frame) RegOwner(r engine.Reg) (Handle, Component) {
	st := f.regstate[r]
	return st.fe, st.part
}
