package frame

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/xyproto/jitframe/internal/asm"
	"github.com/xyproto/jitframe/internal/engine"
)

// RegAssignment records one register held by an entry component
type RegAssignment struct {
	Reg    engine.Reg `cbor:"1,keyasint"`
	Entry  Handle     `cbor:"2,keyasint"`
	Part   Component  `cbor:"3,keyasint"`
	Synced bool       `cbor:"4,keyasint"`
}

// Snapshot is the register assignment at one point of the code, taken so a
// later join can tell which reloads a predecessor makes unnecessary
type Snapshot struct {
	Label string          `cbor:"1,keyasint,omitempty"`
	SP    int             `cbor:"2,keyasint"`
	Regs  []RegAssignment `cbor:"3,keyasint,omitempty"`
}

var snapshotEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("frame: failed to create CBOR enc mode: %v", err))
	}
	snapshotEncMode = em
}

// Snapshot captures the current register assignment
func (f *Frame) Snapshot() Snapshot {
	s := Snapshot{SP: f.Depth()}
	for _, r := range f.rf.Avail.Regs() {
		st := f.regstate[r]
		if st.fe == NoEntry {
			continue
		}
		s.Regs = append(s.Regs, RegAssignment{
			Reg:    r,
			Entry:  st.fe,
			Part:   st.part,
			Synced: f.entries[st.fe].part(st.part).synced,
		})
	}
	return s
}

// Holds reports whether the snapshot has component part of entry h in r
func (s Snapshot) Holds(r engine.Reg, h Handle, part Component) bool {
	for _, ra := range s.Regs {
		if ra.Reg == r {
			return ra.Entry == h && ra.Part == part
		}
	}
	return false
}

// Encode serializes the snapshot to canonical CBOR
func (s Snapshot) Encode() ([]byte, error) {
	return snapshotEncMode.Marshal(s)
}

// DecodeSnapshot deserializes a snapshot from CBOR bytes
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("frame: unmarshal snapshot: %w", err)
	}
	return s, nil
}

// Merge emits into em the loads that take a predecessor, whose register
// assignment is pred and whose memory is complete, to the current register
// assignment. Registers pred already holds the same way are skipped.
func (f *Frame) Merge(em asm.Emitter, pred Snapshot) {
	var done engine.RegMask
	for _, r := range f.rf.Avail.Regs() {
		if done.Has(r) {
			continue
		}
		st := f.regstate[r]
		if st.fe == NoEntry {
			continue
		}
		fe := &f.entries[st.fe]
		addr := f.addressOf(fe)
		needType := fe.typ.inRegister() && !pred.Holds(fe.typ.reg, fe.index, TypePart)
		needData := fe.data.inRegister() && !pred.Holds(fe.data.reg, fe.index, DataPart)
		if fe.typ.inRegister() {
			done = done.With(fe.typ.reg)
		}
		if fe.data.inRegister() {
			done = done.With(fe.data.reg)
		}
		switch {
		case needType && needData:
			em.LoadValueAsComponents(addr, fe.typ.reg, fe.data.reg)
		case needType:
			em.LoadTypeTag(addr, fe.typ.reg)
		case needData:
			em.LoadPayload(addr, fe.data.reg)
		}
	}
}

// PrepareJoin makes the current state one every path into a join can
// reach: memory is complete and the only compile-time knowledge left is
// which registers hold which components.
func (f *Frame) PrepareJoin() {
	f.Sync()
	for _, h := range f.tracker.list {
		fe := &f.entries[h]
		if fe.index >= f.sp {
			continue
		}
		if fe.isCopy() || fe.isConstant() {
			fe.resetSynced()
			continue
		}
		if fe.isTypeKnown() {
			fe.typ.setMemory()
		}
		if fe.typ.loc == LocInvalid {
			fe.typ.setMemory()
		}
		if fe.data.loc == LocInvalid {
			fe.data.setMemory()
		}
		fe.copied = false
		fe.isNumber = false
	}
	f.check("PrepareJoin")
}
