package frame

import (
	"fmt"
	"strings"

	"github.com/xyproto/jitframe/internal/engine"
	"github.com/xyproto/jitframe/internal/value"
)

// ComponentState describes one component of an entry
type ComponentState struct {
	Loc    Location
	Reg    engine.Reg
	Synced bool
}

// EntryState is a read-only view of one entry, for tests and dumps
type EntryState struct {
	Index     Handle
	Tracked   bool
	CopyOf    Handle
	Copied    bool
	Type      ComponentState
	Data      ComponentState
	TypeKnown bool
	KnownType value.Type
	Constant  bool
	Value     value.Value
	IsNumber  bool
}

// State returns the current view of entry h. Untracked entries are in
// memory.
func (f *Frame) State(h Handle) EntryState {
	fe := f.entry(h)
	if !f.isTracked(fe) {
		return EntryState{
			Index:  h,
			CopyOf: NoEntry,
			Type:   ComponentState{Loc: LocMemory, Reg: engine.NoReg, Synced: true},
			Data:   ComponentState{Loc: LocMemory, Reg: engine.NoReg, Synced: true},
		}
	}
	s := EntryState{
		Index:     h,
		Tracked:   true,
		CopyOf:    fe.copyOf,
		Copied:    fe.copied,
		Type:      ComponentState{Loc: fe.typ.loc, Reg: fe.typ.reg, Synced: fe.typ.synced},
		Data:      ComponentState{Loc: fe.data.loc, Reg: fe.data.reg, Synced: fe.data.synced},
		TypeKnown: fe.isTypeKnown(),
		Constant:  fe.isConstant(),
		IsNumber:  fe.isNumber,
	}
	if s.TypeKnown {
		s.KnownType = fe.knownType
	}
	if s.Constant {
		s.Value = fe.constant
	}
	return s
}

// Describe renders the live part of the frame, one entry per line
func (f *Frame) Describe() string {
	var sb strings.Builder
	for h := Handle(0); h < f.sp; h++ {
		fe := &f.entries[h]
		if !f.isTracked(fe) {
			continue
		}
		fmt.Fprintf(&sb, "%-8s ", f.slotName(h))
		switch {
		case fe.isCopy():
			fmt.Fprintf(&sb, "copy of %s", f.slotName(fe.copyOf))
		case fe.isConstant():
			fmt.Fprintf(&sb, "const %s:%s", fe.constant.Type(), fe.constant)
		default:
			fmt.Fprintf(&sb, "type=%s data=%s", f.describeRemat(fe, fe.typ), f.describeRemat(fe, fe.data))
		}
		if fe.copied {
			sb.WriteString(" copied")
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func (f *Frame) describeRemat(fe *Entry, rm remat) string {
	var s string
	switch rm.loc {
	case LocRegister:
		s = f.rf.Name(rm.reg)
	case LocConstant:
		s = fe.knownType.String()
	default:
		s = rm.loc.String()
	}
	if !rm.synced {
		s += "*"
	}
	return s
}

func (f *Frame) slotName(h Handle) string {
	switch {
	case h == CalleeSlot:
		return "callee"
	case h == ThisSlot:
		return "this"
	case h < f.localsBase:
		return fmt.Sprintf("arg%d", h-2)
	case h < f.spBase:
		return fmt.Sprintf("local%d", h-f.localsBase)
	default:
		return fmt.Sprintf("stack%d", h-f.spBase)
	}
}
