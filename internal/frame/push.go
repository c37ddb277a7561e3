package frame

import (
	"github.com/xyproto/jitframe/internal/asm"
	"github.com/xyproto/jitframe/internal/engine"
	"github.com/xyproto/jitframe/internal/value"
)

func (f *Frame) rawPush() *Entry {
	if int(f.sp) >= len(f.entries) {
		f.fail("push", ErrMisuse, "operand stack overflow at depth %d", f.Depth())
	}
	fe := &f.entries[f.sp]
	if !f.isTracked(fe) {
		f.addToTracker(fe)
	}
	f.sp++
	return fe
}

// claim checks that reg is a temporary the caller is handing over
func (f *Frame) claim(op string, reg engine.Reg) {
	if !f.rf.Avail.Has(reg) || f.free.Has(reg) || f.isOwned(reg) {
		f.fail(op, ErrMisuse, "%s is not a temporary register", f.rf.Name(reg))
	}
}

// Push pushes a compile-time constant
func (f *Frame) Push(v value.Value) {
	fe := f.rawPush()
	fe.resetUnsynced()
	fe.setConstant(v)
	f.check("Push")
}

// PushSynced pushes a value that code has already stored in the new slot
func (f *Frame) PushSynced() {
	fe := f.rawPush()
	fe.resetSynced()
	f.check("PushSynced")
}

// PushSyncedType is PushSynced for a value known to be of type t
func (f *Frame) PushSyncedType(t value.Type) {
	fe := f.rawPush()
	fe.resetSynced()
	if t == value.TypeDouble {
		fe.isNumber = true
	} else {
		fe.setType(t)
	}
	f.check("PushSyncedType")
}

// PushSyncedReg pushes a value of type t that is in memory and whose
// payload is also in reg
func (f *Frame) PushSyncedReg(t value.Type, reg engine.Reg) {
	f.claim("PushSyncedReg", reg)
	if t == value.TypeDouble {
		f.fail("PushSyncedReg", ErrMisuse, "doubles have no payload register")
	}
	fe := f.rawPush()
	fe.resetSynced()
	fe.setType(t)
	fe.data.setRegister(reg)
	f.associate(fe, DataPart, reg)
	f.check("PushSyncedReg")
}

// PushRegs pushes a value held in two temporaries, which the frame takes
func (f *Frame) PushRegs(typeReg, dataReg engine.Reg) {
	f.claim("PushRegs", typeReg)
	f.claim("PushRegs", dataReg)
	f.pushRegs(typeReg, dataReg)
	f.check("PushRegs")
}

func (f *Frame) pushRegs(typeReg, dataReg engine.Reg) {
	fe := f.rawPush()
	fe.resetUnsynced()
	fe.typ.setRegister(typeReg)
	fe.data.setRegister(dataReg)
	f.associate(fe, TypePart, typeReg)
	f.associate(fe, DataPart, dataReg)
}

// PushTypedPayload pushes a value of known type t whose payload is in a
// temporary
func (f *Frame) PushTypedPayload(t value.Type, payload engine.Reg) {
	f.claim("PushTypedPayload", payload)
	if t == value.TypeDouble {
		f.fail("PushTypedPayload", ErrMisuse, "doubles have no payload register")
	}
	fe := f.rawPush()
	fe.resetUnsynced()
	fe.setType(t)
	fe.data.setRegister(payload)
	f.associate(fe, DataPart, payload)
	f.check("PushTypedPayload")
}

// PushInt32 pushes an int32 held in a temporary
func (f *Frame) PushInt32(payload engine.Reg) {
	f.PushTypedPayload(value.TypeInt32, payload)
}

// PushUntypedPayload stores the tag of type t right away and tracks only
// the payload, so later code does not assume the type
func (f *Frame) PushUntypedPayload(t value.Type, payload engine.Reg) {
	f.claim("PushUntypedPayload", payload)
	if t == value.TypeDouble {
		f.fail("PushUntypedPayload", ErrMisuse, "doubles have no payload register")
	}
	fe := f.rawPush()
	fe.resetUnsynced()
	f.em.StoreTypeTag(asm.ImmType(t), f.addressOf(fe))
	fe.typ.setMemory()
	fe.data.setRegister(payload)
	f.associate(fe, DataPart, payload)
	f.check("PushUntypedPayload")
}

// PushFrom loads a value from an arbitrary address and pushes it
func (f *Frame) PushFrom(addr asm.Address) {
	f.pushFrom(addr)
	f.check("PushFrom")
}

func (f *Frame) pushFrom(addr asm.Address) {
	typeReg := f.allocReg()
	dataReg := f.allocReg()
	f.em.LoadValueAsComponents(addr, typeReg, dataReg)
	f.pushRegs(typeReg, dataReg)
}

// PushLocal pushes local n. Closed variables are reloaded from memory
// instead of aliased, since a closure may write them at any call.
func (f *Frame) PushLocal(n int) {
	h := f.Local(n)
	if f.IsClosedVar(n) {
		f.pushFrom(f.AddressOf(h))
	} else {
		f.pushCopyOf(f.tracked(h))
	}
	f.check("PushLocal")
}

// PushArg pushes argument n
func (f *Frame) PushArg(n int) {
	h := f.Arg(n)
	if f.IsClosedArg(n) {
		f.pushFrom(f.AddressOf(h))
	} else {
		f.pushCopyOf(f.tracked(h))
	}
	f.check("PushArg")
}

func (f *Frame) PushThis()   { f.PushCopyOf(ThisSlot) }
func (f *Frame) PushCallee() { f.PushCopyOf(CalleeSlot) }

// Dup pushes a copy of the top of the stack
func (f *Frame) Dup() {
	f.DupAt(-1)
}

// Dup2 pushes copies of the top two entries, keeping their order
func (f *Frame) Dup2() {
	lhs, rhs := f.Peek(-2), f.Peek(-1)
	f.pushCopyOf(&f.entries[lhs])
	f.pushCopyOf(&f.entries[rhs])
	f.check("Dup2")
}

// DupAt pushes a copy of the entry depth slots down
func (f *Frame) DupAt(depth int) {
	f.pushCopyOf(&f.entries[f.Peek(depth)])
	f.check("DupAt")
}

// Pop discards the top of the stack
func (f *Frame) Pop() {
	f.pop()
	f.check("Pop")
}

func (f *Frame) pop() {
	if f.sp <= f.spBase {
		f.fail("Pop", ErrMisuse, "operand stack is empty")
	}
	f.sp--
	fe := &f.entries[f.sp]
	if !f.isTracked(fe) {
		return
	}
	f.forgetAllRegs(fe)
	fe.typ.invalidate()
	fe.data.invalidate()
}

func (f *Frame) Popn(n int) {
	for i := 0; i < n; i++ {
		f.pop()
	}
	f.check("Popn")
}

// Shimmy stores the top of the stack n+1 slots down and pops the n
// entries above that slot
func (f *Frame) Shimmy(n int) {
	if n < 1 || f.Depth() < n+1 {
		f.fail("Shimmy", ErrMisuse, "shimmy %d with %d entries on the stack", n, f.Depth())
	}
	f.storeTop(&f.entries[f.sp-Handle(n)-1])
	for i := 0; i < n; i++ {
		f.pop()
	}
	f.check("Shimmy")
}

// Shift stores the top of the stack at depth n-1 (n < 0) and pops it
func (f *Frame) Shift(n int) {
	if n >= 0 || f.Depth() < 1-n {
		f.fail("Shift", ErrMisuse, "shift %d with %d entries on the stack", n, f.Depth())
	}
	f.storeTop(&f.entries[f.sp+Handle(n)-1])
	f.pop()
	f.check("Shift")
}

// EnterBlock pushes n block-scoped slots, initially undefined
func (f *Frame) EnterBlock(n int) {
	for i := 0; i < n; i++ {
		fe := f.rawPush()
		fe.resetUnsynced()
		fe.setConstant(value.Undefined())
	}
	f.check("EnterBlock")
}

// LeaveBlock pops n block-scoped slots
func (f *Frame) LeaveBlock(n int) {
	f.Popn(n)
}

// GiveOwnRegs makes the top of the stack hold its own registers instead of
// aliasing another entry
func (f *Frame) GiveOwnRegs() {
	fe := &f.entries[f.Peek(-1)]
	if fe.isConstant() {
		f.fail("GiveOwnRegs", ErrMisuse, "top of the stack is a constant")
	}
	if !fe.isCopy() {
		return
	}
	backing := &f.entries[fe.copyOf]
	data := f.copyDataIntoReg(backing, engine.NoReg)
	if backing.isTypeKnown() {
		t := backing.knownType
		f.pop()
		f.PushTypedPayload(t, data)
		return
	}
	typeReg := f.copyTypeIntoReg(backing)
	f.pop()
	f.PushRegs(typeReg, data)
}

// DiscardFe forgets all about entry h. Memory becomes its only home, so
// code must have written the current value there.
func (f *Frame) DiscardFe(h Handle) {
	fe := f.tracked(h)
	f.forgetEntry(fe)
	fe.resetSynced()
	f.check("DiscardFe")
}
