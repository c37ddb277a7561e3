// Completion: 100% - Memory synchronization complete
package frame

import (
	"github.com/xyproto/jitframe/internal/asm"
	"github.com/xyproto/jitframe/internal/engine"
)

// Uses is how many entries at the top of the frame the next operation reads
type Uses struct {
	N int
}

// AllUses covers every live entry, locals and arguments included
func (f *Frame) AllUses() Uses {
	return Uses{N: int(f.sp)}
}

// ensureTypeSynced stores the type of a non-copy if memory lacks it
func (f *Frame) ensureTypeSynced(fe *Entry) {
	if fe.typ.synced {
		return
	}
	f.em.StoreTypeTag(f.mustSource(fe, TypePart), f.addressOf(fe))
	fe.typ.synced = true
}

// ensureDataSynced stores the payload of a non-copy if memory lacks it
func (f *Frame) ensureDataSynced(fe *Entry) {
	if fe.data.synced {
		return
	}
	f.em.StorePayload(f.mustSource(fe, DataPart), f.addressOf(fe))
	fe.data.synced = true
}

// needsSync reports whether a component of fe is missing from memory. An
// invalid component of a non-copy has been handed to the caller and is
// not part of the value any more.
func needsSync(fe *Entry, part Component) bool {
	rm := fe.part(part)
	return !rm.synced && (fe.isCopy() || rm.loc != LocInvalid)
}

// syncFe brings the slot of fe up to date. A copy on a split target may
// need its backing entry loaded into registers first.
func (f *Frame) syncFe(fe *Entry) {
	backing := f.backing(fe)
	needType, needData := needsSync(fe, TypePart), needsSync(fe, DataPart)
	if !needType && !needData {
		return
	}
	if !f.layout.Unified() && fe != backing {
		var pins []engine.Reg
		pin := func(r engine.Reg) {
			f.PinReg(r)
			pins = append(pins, r)
		}
		if backing.typ.inRegister() {
			pin(backing.typ.reg)
		}
		if backing.data.inRegister() {
			pin(backing.data.reg)
		}
		if needType && backing.typ.inMemory() {
			pin(f.tempRegForType(backing))
		}
		if needData && backing.data.inMemory() {
			pin(f.tempRegForData(backing))
		}
		for _, r := range pins {
			f.UnpinReg(r)
		}
	}
	f.layout.syncEntry(f, f.em, fe, backing, needType, needData)
	fe.typ.synced = true
	fe.data.synced = true
}

// syncer writes every live value to memory. A committing syncer marks the
// components synced; otherwise state is left alone so the code can go on
// a side path that rejoins the unsynced main path.
type syncer struct {
	f      *Frame
	em     asm.Emitter
	commit bool
	done   []uint8 // components already written by a non-committing sync
}

func newSyncer(f *Frame, em asm.Emitter, commit bool) *syncer {
	s := &syncer{f: f, em: em, commit: commit}
	if !commit {
		s.done = make([]uint8, len(f.entries))
	}
	return s
}

func (s *syncer) needs(fe *Entry, part Component) bool {
	if !needsSync(fe, part) {
		return false
	}
	return s.commit || s.done[fe.index]&(1<<part) == 0
}

func (s *syncer) mark(fe *Entry, part Component) {
	if s.commit {
		fe.part(part).synced = true
	} else {
		s.done[fe.index] |= 1 << part
	}
}

// scratch finds a register for a split copy whose backing component is in
// memory. Free registers come first; otherwise an owned register is
// borrowed and reloaded afterwards, which is sound because every owned
// register has been written back by then.
func (s *syncer) scratch() (engine.Reg, bool) {
	f := s.f
	if r := f.free.First(); r != engine.NoReg {
		return r, false
	}
	for _, r := range f.rf.Avail.Regs() {
		st := f.regstate[r]
		if st.fe != NoEntry && st.pins == 0 {
			return r, true
		}
	}
	f.fail("sync", ErrNoRegisters, "no scratch register for a copy")
	return engine.NoReg, false
}

func (s *syncer) viaScratch(fe, backing *Entry, part Component) {
	f := s.f
	r, borrowed := s.scratch()
	from, to := f.addressOf(backing), f.addressOf(fe)
	if part == TypePart {
		s.em.LoadTypeTag(from, r)
		s.em.StoreTypeTag(asm.R(r), to)
	} else {
		s.em.LoadPayload(from, r)
		s.em.StorePayload(asm.R(r), to)
	}
	if borrowed {
		st := f.regstate[r]
		owner := f.addressOf(&f.entries[st.fe])
		if st.part == TypePart {
			s.em.LoadTypeTag(owner, r)
		} else {
			s.em.LoadPayload(owner, r)
		}
	}
}

func (s *syncer) syncParts(fe *Entry, wantType, wantData bool) {
	f := s.f
	needType := wantType && s.needs(fe, TypePart)
	needData := wantData && s.needs(fe, DataPart)
	if !needType && !needData {
		return
	}
	backing := f.backing(fe)
	t, d := needType, needData
	if !f.layout.Unified() && fe != backing {
		if t && backing.typ.inMemory() {
			s.viaScratch(fe, backing, TypePart)
			t = false
		}
		if d && backing.data.inMemory() {
			s.viaScratch(fe, backing, DataPart)
			d = false
		}
	}
	f.layout.syncEntry(f, s.em, fe, backing, t, d)
	if needType {
		s.mark(fe, TypePart)
	}
	if needData {
		s.mark(fe, DataPart)
	}
}

func (s *syncer) run() {
	f := s.f
	unified := f.layout.Unified()

	// Registers first, so that any register can be borrowed afterwards
	for _, r := range f.rf.Avail.Regs() {
		st := f.regstate[r]
		if st.fe == NoEntry {
			continue
		}
		fe := &f.entries[st.fe]
		if unified {
			s.syncParts(fe, true, true)
		} else {
			s.syncParts(fe, st.part == TypePart, st.part == DataPart)
		}
	}

	for i := f.tracker.len() - 1; i >= 0; i-- {
		fe := &f.entries[f.tracker.at(i)]
		if fe.index >= f.sp {
			continue
		}
		s.syncParts(fe, true, true)
	}
}

// Sync writes every live value to memory and marks it synced. Register
// assignments are kept.
func (f *Frame) Sync() {
	newSyncer(f, f.em, true).run()
	f.check("Sync")
}

// SyncTo emits the code that would make memory complete into em, leaving
// the frame state untouched. Used for side exits that leave the main path
// as it was.
func (f *Frame) SyncTo(em asm.Emitter) {
	newSyncer(f, em, false).run()
}

// SyncAndKill prepares for code that clobbers the registers in kill: every
// value held in them is written back to memory and forgotten, unless
// pinned. The entries uses covers are synced completely.
func (f *Frame) SyncAndKill(kill engine.RegMask, uses Uses) {
	kill &= f.rf.Avail
	unified := f.layout.Unified()

	for _, r := range kill.Regs() {
		st := f.regstate[r]
		if st.fe == NoEntry {
			continue
		}
		fe := &f.entries[st.fe]
		if unified {
			// One store for the pair; syncFe could allocate
			f.layout.syncEntry(f, f.em, fe, fe, needsSync(fe, TypePart), needsSync(fe, DataPart))
			fe.typ.synced = true
			fe.data.synced = true
		} else if st.part == TypePart {
			f.ensureTypeSynced(fe)
		} else {
			f.ensureDataSynced(fe)
		}
	}

	bottom := f.sp - Handle(uses.N)
	if bottom < 0 {
		bottom = 0
	}
	visits := f.tracker.len()
	for h := f.sp - 1; h >= bottom && visits > 0; h-- {
		fe := &f.entries[h]
		if !f.isTracked(fe) {
			continue
		}
		visits--
		f.syncFe(fe)
		if fe.data.inRegister() && kill.Has(fe.data.reg) && f.regstate[fe.data.reg].pins == 0 {
			f.forgetReg(fe.data.reg)
			fe.data.setMemory()
		}
		if fe.typ.inRegister() && kill.Has(fe.typ.reg) && f.regstate[fe.typ.reg].pins == 0 {
			f.forgetReg(fe.typ.reg)
			fe.typ.setMemory()
		}
	}

	// Whatever still owns a killed register was synced above
	for _, r := range kill.Regs() {
		st := f.regstate[r]
		if st.fe == NoEntry || st.pins > 0 {
			continue
		}
		f.entries[st.fe].part(st.part).setMemory()
		f.forgetReg(r)
	}
	f.check("SyncAndKill")
}
