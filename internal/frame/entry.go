package frame

import (
	"github.com/xyproto/jitframe/internal/engine"
	"github.com/xyproto/jitframe/internal/value"
)

// Handle identifies a frame entry by its index in the frame
type Handle int

// NoEntry is the absent handle
const NoEntry Handle = -1

// Component selects one half of a value
type Component uint8

const (
	TypePart Component = iota
	DataPart
)

func (c Component) String() string {
	if c == TypePart {
		return "type"
	}
	return "data"
}

// Location says where the current value of a component lives
type Location uint8

const (
	// LocInvalid: the component has no meaning of its own. Copies resolve
	// it through their backing entry.
	LocInvalid Location = iota
	LocMemory
	LocRegister
	LocConstant
)

func (l Location) String() string {
	switch l {
	case LocMemory:
		return "memory"
	case LocRegister:
		return "register"
	case LocConstant:
		return "constant"
	default:
		return "invalid"
	}
}

// remat is what it takes to rematerialize one component
type remat struct {
	loc    Location
	reg    engine.Reg
	synced bool // memory already holds the current value
}

func (r *remat) setMemory() {
	r.loc = LocMemory
	r.reg = engine.NoReg
	r.synced = true
}

func (r *remat) setRegister(reg engine.Reg) {
	r.loc = LocRegister
	r.reg = reg
}

func (r *remat) setConstant() {
	r.loc = LocConstant
	r.reg = engine.NoReg
}

func (r *remat) invalidate() {
	r.loc = LocInvalid
	r.reg = engine.NoReg
}

// inherit takes over another component's location but keeps its own sync bit
func (r *remat) inherit(o remat) {
	r.loc = o.loc
	r.reg = o.reg
}

func (r remat) inRegister() bool { return r.loc == LocRegister }
func (r remat) inMemory() bool   { return r.loc == LocMemory }
func (r remat) isConstant() bool { return r.loc == LocConstant }

// Entry is one slot of the abstract frame: callee, this, an argument, a
// local or an operand stack slot.
type Entry struct {
	index     Handle
	typ, data remat

	knownType value.Type
	constant  value.Value
	isNumber  bool

	copyOf       Handle // backing entry when this entry is a copy
	copied       bool   // some live entry may be a copy of this one
	trackerIndex int
}

func (e *Entry) isCopy() bool      { return e.copyOf != NoEntry }
func (e *Entry) isTypeKnown() bool { return e.typ.isConstant() }
func (e *Entry) isConstant() bool  { return e.data.isConstant() }

func (e *Entry) part(c Component) *remat {
	if c == TypePart {
		return &e.typ
	}
	return &e.data
}

func (e *Entry) setType(t value.Type) {
	e.typ.setConstant()
	e.knownType = t
	e.isNumber = t.IsNumber()
}

func (e *Entry) setConstant(v value.Value) {
	e.typ.setConstant()
	e.typ.synced = false
	e.data.setConstant()
	e.data.synced = false
	e.knownType = v.Type()
	e.constant = v
	e.isNumber = v.IsNumber()
}

func (e *Entry) clear() {
	e.copyOf = NoEntry
	e.copied = false
	e.isNumber = false
	e.knownType = 0
	e.constant = value.Value{}
}

// resetUnsynced prepares the entry to receive a value memory does not have
func (e *Entry) resetUnsynced() {
	e.clear()
	e.typ.invalidate()
	e.typ.synced = false
	e.data.invalidate()
	e.data.synced = false
}

// resetSynced makes memory the only home of the entry's value
func (e *Entry) resetSynced() {
	e.clear()
	e.typ.setMemory()
	e.data.setMemory()
}
