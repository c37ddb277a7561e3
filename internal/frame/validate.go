package frame

import (
	"fmt"

	"github.com/xyproto/jitframe/internal/engine"
	"github.com/xyproto/jitframe/internal/value"
)

// Validate checks the frame state invariants and returns the first
// violation found, wrapped in ErrInvariant
func (f *Frame) Validate() error {
	bad := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvariant, fmt.Sprintf(format, args...))
	}

	seen := make(map[Handle]bool, f.tracker.len())
	for i, h := range f.tracker.list {
		if seen[h] {
			return bad("entry %d is tracked twice", h)
		}
		seen[h] = true
		if f.entries[h].trackerIndex != i {
			return bad("entry %d is at tracker position %d but records %d", h, i, f.entries[h].trackerIndex)
		}
	}

	live := func(fe *Entry) bool {
		return fe.index < f.sp && f.isTracked(fe)
	}

	for _, h := range f.tracker.list {
		fe := &f.entries[h]
		if fe.index >= f.sp {
			continue
		}
		if fe.isCopy() {
			b := &f.entries[fe.copyOf]
			switch {
			case b.index >= fe.index:
				return bad("copy %d is below its backing entry %d", fe.index, b.index)
			case !live(b):
				return bad("backing entry %d of copy %d is not live", b.index, fe.index)
			case b.trackerIndex >= fe.trackerIndex:
				return bad("copy %d is tracked before its backing entry %d", fe.index, b.index)
			case b.isCopy():
				return bad("backing entry %d of copy %d is itself a copy", b.index, fe.index)
			case !b.copied:
				return bad("backing entry %d of copy %d is not marked copied", b.index, fe.index)
			case fe.typ.inRegister() || fe.data.inRegister():
				return bad("copy %d holds a register", fe.index)
			case b.isConstant():
				return bad("copy %d aliases constant entry %d", fe.index, b.index)
			}
			continue
		}
		for _, part := range []Component{TypePart, DataPart} {
			rm := fe.part(part)
			switch rm.loc {
			case LocRegister:
				st := f.regstate[rm.reg]
				if st.fe != fe.index || st.part != part {
					return bad("%s of entry %d claims %s, which records entry %d", part, fe.index, f.rf.Name(rm.reg), st.fe)
				}
			case LocMemory:
				if !rm.synced {
					return bad("%s of entry %d is in memory but not synced", part, fe.index)
				}
			}
		}
		if fe.isConstant() && !fe.isTypeKnown() {
			return bad("constant entry %d has no known type", fe.index)
		}
		if fe.isTypeKnown() && fe.knownType == value.TypeDouble && !fe.isConstant() {
			return bad("entry %d has a known double type", fe.index)
		}
	}

	if f.free&^f.rf.Avail != 0 {
		return bad("free set %s has unallocatable registers", f.free.Format(f.rf))
	}
	for r := engine.Reg(0); r < engine.MaxRegs; r++ {
		st := f.regstate[r]
		if st.fe == NoEntry {
			continue
		}
		if f.free.Has(r) {
			return bad("%s is free but owned by entry %d", f.rf.Name(r), st.fe)
		}
		fe := &f.entries[st.fe]
		if !live(fe) {
			return bad("%s is owned by dead entry %d", f.rf.Name(r), st.fe)
		}
		rm := fe.part(st.part)
		if !rm.inRegister() || rm.reg != r {
			return bad("%s records %s of entry %d, which is %s", f.rf.Name(r), st.part, fe.index, rm.loc)
		}
	}
	return nil
}
