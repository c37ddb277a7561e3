package frame

import (
	"testing"

	"github.com/xyproto/jitframe/internal/asm"
	"github.com/xyproto/jitframe/internal/engine"
	"github.com/xyproto/jitframe/internal/value"
)

// TestTryBlockWritesThrough checks that local stores inside a try block
// reach memory without a sync
func TestTryBlockWritesThrough(t *testing.T) {
	for _, arch := range bothLayouts {
		x := newFixture(t, registerFile(t, arch), Config{NFixed: 1, NStack: 2})
		local := x.f.Local(0)
		x.f.Push(value.Int32(4))
		x.f.StoreLocal(0)
		if n := x.b.StoresTo(x.f.AddressOf(local)); n != 0 {
			t.Errorf("%s: store outside a try block wrote %d times", arch, n)
		}
		x.f.Pop()

		x.f.SetInTryBlock(true)
		x.f.Push(value.Int32(6))
		x.f.StoreLocal(0)
		if x.b.StoresTo(x.f.AddressOf(local)) == 0 {
			t.Errorf("%s: store in a try block was not written through", arch)
		}
		if st := x.f.State(local); !st.Data.Synced {
			t.Errorf("%s: local0 is not synced", arch)
		}
		x.run()
		x.expectSlot(local, value.Int32(6))
		x.f.SetInTryBlock(false)
	}
}

// TestPushUntypedPayload checks that the tag is stored at once and only the
// payload is tracked
func TestPushUntypedPayload(t *testing.T) {
	for _, arch := range bothLayouts {
		x := newFixture(t, registerFile(t, arch), Config{NStack: 2})
		r := x.f.AllocReg()
		x.b.Move(asm.Imm32(6), r)
		x.f.PushUntypedPayload(value.TypeInt32, r)
		top := x.f.Peek(-1)
		if x.b.StoresTo(x.f.AddressOf(top)) != 1 {
			t.Errorf("%s: tag was not stored\n%s", arch, asm.Listing(x.b.Code, x.rf))
		}
		st := x.f.State(top)
		if st.TypeKnown || st.Type.Loc != LocMemory || st.Data.Reg != r {
			t.Errorf("%s: top is %+v", arch, st)
		}
		if h, part := x.f.RegOwner(r); h != top || part != DataPart {
			t.Errorf("%s: %s is owned by %d/%s", arch, x.rf.Name(r), h, part)
		}
		x.f.Sync()
		x.run()
		x.expectSlot(top, value.Int32(6))
		expectPanic(t, ErrMisuse, func() { x.f.PushUntypedPayload(value.TypeInt32, r) })
	}
}

// TestPushSyncedReg checks that a value already in memory and a register
// needs no store
func TestPushSyncedReg(t *testing.T) {
	for _, arch := range bothLayouts {
		x := newFixture(t, registerFile(t, arch), Config{NStack: 2})
		r := x.f.AllocReg()
		x.b.Move(asm.Imm32(5), r)
		x.f.PushSyncedReg(value.TypeInt32, r)
		top := x.f.Peek(-1)
		x.write(top, value.Int32(5))
		x.run()

		st := x.f.State(top)
		if !st.TypeKnown || st.Data.Loc != LocRegister || !st.Data.Synced {
			t.Errorf("%s: top is %+v", arch, st)
		}
		if got := x.f.TempRegForData(top); got != r {
			t.Errorf("%s: payload in %s, want %s", arch, x.rf.Name(got), x.rf.Name(r))
		}
		x.f.Sync()
		if x.b.Len() != 0 {
			t.Errorf("%s: sync of a synced register emitted\n%s", arch, asm.Listing(x.b.Code, x.rf))
		}
		expectPanic(t, ErrMisuse, func() { x.f.PushSyncedReg(value.TypeDouble, x.f.AllocReg()) })
	}
}

// TestTempRegInMaskForData tests the load and move paths and rejects constants
func TestTempRegInMaskForData(t *testing.T) {
	for _, arch := range bothLayouts {
		x := newFixture(t, registerFile(t, arch), Config{NStack: 4})
		x.f.PushSyncedType(value.TypeInt32)
		top := x.f.Peek(-1)
		x.write(top, value.Int32(12))
		old := x.f.TempRegForData(top)

		if got := x.f.TempRegInMaskForData(top, x.rf.Avail); got != old {
			t.Errorf("%s: payload moved out of an allowed register", arch)
		}
		moved := x.f.TempRegInMaskForData(top, x.rf.Avail.Without(old))
		if moved == old {
			t.Fatalf("%s: payload stayed in %s", arch, x.rf.Name(old))
		}
		if st := x.f.State(top); st.Data.Reg != moved {
			t.Errorf("%s: top records %s", arch, x.rf.Name(st.Data.Reg))
		}
		if h, _ := x.f.RegOwner(old); h != NoEntry || !x.f.FreeRegs().Has(old) {
			t.Errorf("%s: %s was not released", arch, x.rf.Name(old))
		}
		x.run()
		if got := uint32(x.m.Regs[moved]); got != 12 {
			t.Errorf("%s: moved register holds %d", arch, got)
		}

		x.f.PushSynced()
		mem := x.f.Peek(-1)
		x.write(mem, value.Int32(3))
		want := x.rf.Avail.Regs()[x.rf.Avail.Count()-1]
		if got := x.f.TempRegInMaskForData(mem, engine.MaskOf(want)); got != want {
			t.Errorf("%s: loaded into %s, want %s", arch, x.rf.Name(got), x.rf.Name(want))
		}
		x.run()
		if got := uint32(x.m.Regs[want]); got != 3 {
			t.Errorf("%s: loaded register holds %d", arch, got)
		}

		x.f.Push(value.Int32(1))
		expectPanic(t, ErrMisuse, func() { x.f.TempRegInMaskForData(x.f.Peek(-1), x.rf.Avail) })
	}
}

// TestAllocRegInMask evicts within the mask and rejects masks with nothing
// allocatable
func TestAllocRegInMask(t *testing.T) {
	for _, arch := range bothLayouts {
		x := newFixture(t, registerFile(t, arch), Config{NStack: 2})
		x.f.PushSyncedType(value.TypeInt32)
		top := x.f.Peek(-1)
		owned := x.f.TempRegForData(top)
		x.b.Reset()

		if r := x.f.AllocRegInMask(engine.MaskOf(owned)); r != owned {
			t.Errorf("%s: allocated %s, want %s", arch, x.rf.Name(r), x.rf.Name(owned))
		}
		if st := x.f.State(top); st.Data.Loc != LocMemory || x.b.Stores() != 0 {
			t.Errorf("%s: synced owner left as %s", arch, st.Data.Loc)
		}
		if x.f.FreeRegs().Has(owned) {
			t.Errorf("%s: allocated register is still free", arch)
		}
		x.f.FreeReg(owned)
		expectPanic(t, ErrMisuse, func() { x.f.AllocRegInMask(engine.MaskOf(x.rf.FrameReg)) })
	}
}

// TestConstantRegisters tests the ways a constant reaches a register
func TestConstantRegisters(t *testing.T) {
	for _, arch := range bothLayouts {
		x := newFixture(t, registerFile(t, arch), Config{NStack: 4})
		x.f.Push(value.Int32(-9))
		top := x.f.Peek(-1)
		tmp := x.f.CopyInt32ConstantIntoReg(top)
		if h, _ := x.f.RegOwner(tmp); h != NoEntry || !x.f.IsConstant(top) {
			t.Errorf("%s: copying changed the constant", arch)
		}

		owned := x.f.TempRegForConstant(top)
		st := x.f.State(top)
		if st.Constant || !st.TypeKnown || st.KnownType != value.TypeInt32 || st.Data.Reg != owned {
			t.Errorf("%s: top is %+v", arch, st)
		}
		x.f.Sync()
		x.run()
		if got := int32(uint32(x.m.Regs[tmp])); got != -9 {
			t.Errorf("%s: copied constant is %d", arch, got)
		}
		if got := int32(uint32(x.m.Regs[owned])); got != -9 {
			t.Errorf("%s: owned constant is %d", arch, got)
		}
		x.expectSlot(top, value.Int32(-9))
		x.f.FreeReg(tmp)

		x.f.Push(value.Bool(true))
		expectPanic(t, ErrMisuse, func() { x.f.CopyInt32ConstantIntoReg(x.f.Peek(-1)) })
		x.f.Push(value.Double(1.5))
		expectPanic(t, ErrMisuse, func() { x.f.TempRegForConstant(x.f.Peek(-1)) })
		x.f.PushSynced()
		expectPanic(t, ErrMisuse, func() { x.f.TempRegForConstant(x.f.Peek(-1)) })
	}
}

// TestCopyTypeIntoReg copies the type of entries in memory, in registers and
// constant
func TestCopyTypeIntoReg(t *testing.T) {
	for _, arch := range bothLayouts {
		x := newFixture(t, registerFile(t, arch), Config{NFixed: 1, NStack: 4})
		x.write(x.f.Local(0), value.Bool(false))
		x.f.PushSynced()
		x.write(x.f.Peek(-1), value.Null())
		x.f.PushFrom(x.f.AddressOf(x.f.Local(0)))
		x.f.Push(value.Bool(true))

		want := []value.Value{value.Null(), value.Bool(false), value.Bool(true)}
		for i := range want {
			h := x.f.Peek(i - len(want))
			before := x.f.State(h)
			tr := x.f.CopyTypeIntoReg(h)
			dr := x.f.CopyDataIntoReg(h)
			if x.f.State(h) != before {
				t.Errorf("%s: copying changed entry %s", arch, x.f.slotName(h))
			}
			x.run()
			if got := x.m.RegValue(tr, dr); got != want[i] {
				t.Errorf("%s: copy of %s holds %s, want %s", arch, x.f.slotName(h), got, want[i])
			}
			x.f.FreeReg(tr)
			x.f.FreeReg(dr)
		}
	}
}

// TestOwnRegForData checks that taking the registers of a copied entry
// promotes its copy first
func TestOwnRegForData(t *testing.T) {
	for _, arch := range bothLayouts {
		x := newFixture(t, registerFile(t, arch), Config{NFixed: 1, NStack: 2})
		local := x.f.Local(0)
		x.write(local, value.Int32(7))
		x.f.PushLocal(0)
		top := x.f.Peek(-1)

		r := x.f.OwnRegForData(local)
		if st := x.f.State(top); st.CopyOf != NoEntry || st.Data.Loc != LocRegister {
			t.Fatalf("%s: top was not promoted: %+v", arch, st)
		}
		if st := x.f.State(local); st.Copied || st.Data.Loc != LocInvalid {
			t.Errorf("%s: local0 is %+v", arch, st)
		}
		if h, _ := x.f.RegOwner(r); h != NoEntry || x.f.FreeRegs().Has(r) {
			t.Errorf("%s: %s is not a temporary", arch, x.rf.Name(r))
		}
		x.run()
		if got := uint32(x.m.Regs[r]); got != 7 {
			t.Errorf("%s: owned register holds %d", arch, got)
		}

		x.f.Push(value.Int32(1))
		x.f.StoreLocal(0)
		x.f.Pop()
		x.f.FreeReg(r)
		x.f.Sync()
		x.run()
		x.expectSlot(top, value.Int32(7))
		x.expectSlot(local, value.Int32(1))
	}
}

// TestOwnRegForType takes both registers of a stack value
func TestOwnRegForType(t *testing.T) {
	for _, arch := range bothLayouts {
		x := newFixture(t, registerFile(t, arch), Config{NFixed: 1, NStack: 2})
		x.write(x.f.Local(0), value.Bool(true))
		x.f.PushFrom(x.f.AddressOf(x.f.Local(0)))
		top := x.f.Peek(-1)

		tr := x.f.OwnRegForType(top)
		if st := x.f.State(top); st.Type.Loc != LocInvalid || st.Data.Loc != LocRegister {
			t.Errorf("%s: top is %+v", arch, st)
		}
		x.f.PinReg(x.f.State(top).Data.Reg)
		expectPanic(t, ErrMisuse, func() { x.f.OwnRegForData(top) })
		x.f.UnpinReg(x.f.State(top).Data.Reg)
		dr := x.f.OwnRegForData(top)
		x.f.Pop()
		if h, _ := x.f.RegOwner(tr); h != NoEntry {
			t.Errorf("%s: type register still owned", arch)
		}
		x.run()
		if got := x.m.RegValue(tr, dr); got != value.Bool(true) {
			t.Errorf("%s: owned registers hold %s", arch, got)
		}
		x.f.PushRegs(tr, dr)
		if !x.f.PinnedRegs().Empty() {
			t.Errorf("%s: pins left behind", arch)
		}
	}
}

// TestPinEntry pins values of every kind and syncs them on the side
func TestPinEntry(t *testing.T) {
	for _, arch := range bothLayouts {
		x := newFixture(t, registerFile(t, arch), Config{NFixed: 1, NStack: 4})
		x.write(x.f.Local(0), value.Int32(5))
		x.f.Push(value.Int32(3))
		r := x.f.AllocReg()
		x.b.Move(asm.Imm32(8), r)
		x.f.PushInt32(r)
		x.f.PushFrom(x.f.AddressOf(x.f.Local(0)))

		want := []value.Value{value.Int32(3), value.Int32(8), value.Int32(5)}
		side := asm.NewBuffer()
		var pins []ValueRemat
		for i := range want {
			h := x.f.Peek(i - len(want))
			vr := x.f.PinEntry(h)
			x.f.EnsureValueSynced(side, h, vr)
			pins = append(pins, vr)
		}
		if !pins[0].Constant || !pins[1].TypeKnown || pins[2].TypeReg == engine.NoReg {
			t.Errorf("%s: remats %+v", arch, pins)
		}
		wantPinned := engine.MaskOf(pins[1].DataReg, pins[2].TypeReg, pins[2].DataReg)
		if got := x.f.PinnedRegs(); got != wantPinned {
			t.Errorf("%s: pinned %s, want %s", arch, got.Format(x.rf), wantPinned.Format(x.rf))
		}
		if st := x.f.State(x.f.Peek(-1)); st.Data.Synced {
			t.Errorf("%s: EnsureValueSynced changed the frame state", arch)
		}
		expectPanic(t, ErrMisuse, func() { x.f.LearnType(x.f.Peek(-1), value.TypeInt32) })

		x.b.Code = append(x.b.Code, side.Code...)
		x.run()
		for i, h := range []Handle{x.f.Peek(-3), x.f.Peek(-2), x.f.Peek(-1)} {
			x.expectSlot(h, want[i])
		}
		for _, vr := range pins {
			x.f.UnpinEntry(vr)
		}
		if !x.f.PinnedRegs().Empty() {
			t.Errorf("%s: pins left behind", arch)
		}
		x.f.LearnType(x.f.Peek(-1), value.TypeInt32)
	}
}

// TestUnpinKilledReg releases temporaries and synced owners pinned across a
// kill
func TestUnpinKilledReg(t *testing.T) {
	for _, arch := range bothLayouts {
		x := newFixture(t, registerFile(t, arch), Config{NStack: 2})
		x.f.PushSyncedType(value.TypeInt32)
		top := x.f.Peek(-1)
		owned := x.f.TempRegForData(top)
		tmp := x.f.AllocReg()
		x.f.PinReg(owned)
		x.f.PinReg(tmp)

		x.f.UnpinKilledReg(owned)
		x.f.UnpinKilledReg(tmp)
		if st := x.f.State(top); st.Data.Loc != LocMemory || !st.Data.Synced {
			t.Errorf("%s: top is %s", arch, st.Data.Loc)
		}
		if x.f.FreeRegs() != x.rf.Avail || !x.f.PinnedRegs().Empty() {
			t.Errorf("%s: free %s, pinned %s", arch, x.f.FreeRegs().Format(x.rf), x.f.PinnedRegs().Format(x.rf))
		}
		expectPanic(t, ErrMisuse, func() { x.f.UnpinKilledReg(owned) })
	}
}

// TestDiscardFe drops what the frame knows about an entry and promotes its
// copies
func TestDiscardFe(t *testing.T) {
	for _, arch := range bothLayouts {
		x := newFixture(t, registerFile(t, arch), Config{NFixed: 1, NStack: 4})
		local := x.f.Local(0)
		x.write(local, value.Int32(4))

		x.f.PushFrom(x.f.AddressOf(local))
		x.f.StoreTo(x.f.Peek(-1), x.f.AddressOf(x.f.Peek(-1)), false)
		x.run()
		x.f.DiscardFe(x.f.Peek(-1))
		if st := x.f.State(x.f.Peek(-1)); st.Data.Loc != LocMemory || !st.Type.Synced || st.TypeKnown {
			t.Errorf("%s: discarded entry is %+v", arch, st)
		}
		if x.f.FreeRegs() != x.rf.Avail || x.b.Len() != 0 {
			t.Errorf("%s: discarding emitted or kept registers", arch)
		}

		x.f.PushLocal(0)
		top := x.f.Peek(-1)
		x.f.DiscardFe(local)
		if st := x.f.State(top); st.CopyOf != NoEntry {
			t.Errorf("%s: copy still aliases entry %d", arch, st.CopyOf)
		}
		x.f.Sync()
		x.run()
		x.expectSlot(top, value.Int32(4))
		x.expectSlot(x.f.Peek(-2), value.Int32(4))
	}
}

// TestEnsureFullRegs loads both halves of a value with an unknown type
func TestEnsureFullRegs(t *testing.T) {
	for _, arch := range bothLayouts {
		x := newFixture(t, registerFile(t, arch), Config{NStack: 2})
		x.f.PushSynced()
		top := x.f.Peek(-1)
		x.write(top, value.Null())
		tr, dr := x.f.EnsureFullRegs(top)
		st := x.f.State(top)
		if st.Type.Reg != tr || st.Data.Reg != dr || tr == dr {
			t.Errorf("%s: top is %+v", arch, st)
		}
		if !x.f.PinnedRegs().Empty() {
			t.Errorf("%s: type register left pinned", arch)
		}
		x.run()
		if got := x.m.RegValue(tr, dr); got != value.Null() {
			t.Errorf("%s: registers hold %s", arch, got)
		}
		x.f.PushSyncedType(value.TypeInt32)
		expectPanic(t, ErrMisuse, func() { x.f.EnsureFullRegs(x.f.Peek(-1)) })
	}
}

// TestLoadThisForReturn returns the this value from memory and from
// registers
func TestLoadThisForReturn(t *testing.T) {
	for _, arch := range bothLayouts {
		rf := registerFile(t, arch)
		typeReg, dataReg := rf.ReturnTypeReg, rf.ReturnDataReg
		tempReg := rf.Avail.Without(typeReg).Without(dataReg).First()
		x := newFixture(t, rf, Config{NStack: 2})
		x.write(ThisSlot, value.Bool(true))

		x.f.LoadThisForReturn(typeReg, dataReg, tempReg)
		x.run()
		if got := x.m.RegValue(typeReg, dataReg); got != value.Bool(true) {
			t.Errorf("%s: returned %s from memory", arch, got)
		}

		x.m.SetRegValue(typeReg, dataReg, value.Null())
		x.f.EnsureFullRegs(ThisSlot)
		before := x.f.State(ThisSlot)
		x.f.LoadThisForReturn(typeReg, dataReg, tempReg)
		if x.f.State(ThisSlot) != before {
			t.Errorf("%s: returning changed the frame state", arch)
		}
		x.run()
		if got := x.m.RegValue(typeReg, dataReg); got != value.Bool(true) {
			t.Errorf("%s: returned %s from registers", arch, got)
		}
		expectPanic(t, ErrMisuse, func() { x.f.LoadThisForReturn(typeReg, typeReg, tempReg) })
	}
}

// TestStoreTop assigns the top of the stack to a deeper stack slot
func TestStoreTop(t *testing.T) {
	for _, arch := range bothLayouts {
		x := newFixture(t, registerFile(t, arch), Config{NFixed: 1, NStack: 4})
		x.write(x.f.Local(0), value.Int32(9))
		x.f.Push(value.Int32(1))
		x.f.Push(value.Int32(2))
		x.f.PushFrom(x.f.AddressOf(x.f.Local(0)))
		bottom, middle, top := x.f.Peek(-3), x.f.Peek(-2), x.f.Peek(-1)

		x.f.StoreTop(bottom)
		if st := x.f.State(bottom); st.Data.Loc != LocRegister || st.Constant {
			t.Errorf("%s: bottom is %+v", arch, st)
		}
		if st := x.f.State(top); st.CopyOf != bottom {
			t.Errorf("%s: top aliases %d", arch, st.CopyOf)
		}
		expectPanic(t, ErrMisuse, func() { x.f.StoreTop(top) })

		x.f.Sync()
		x.run()
		x.expectSlot(bottom, value.Int32(9))
		x.expectSlot(middle, value.Int32(2))
		x.expectSlot(top, value.Int32(9))
	}
}

// TestClosedArgs tests SetClosedArg and the frame-wide flags that keep
// slots in memory
func TestClosedArgs(t *testing.T) {
	for _, arch := range bothLayouts {
		rf := registerFile(t, arch)
		x := newFixture(t, rf, Config{NArgs: 2, NFixed: 1, NStack: 2})
		if x.f.IsClosedArg(0) || x.f.IsClosedVar(0) {
			t.Fatalf("%s: nothing should be closed yet", arch)
		}
		x.f.SetClosedArg(0)
		if !x.f.IsClosedArg(0) || x.f.IsClosedArg(1) {
			t.Errorf("%s: closed args wrong", arch)
		}
		arg := x.f.Arg(0)
		x.f.Push(value.Int32(2))
		x.f.StoreArg(0)
		if st := x.f.State(arg); st.Data.Loc != LocMemory || st.Constant {
			t.Errorf("%s: closed arg kept as %s", arch, st.Data.Loc)
		}
		x.f.Pop()
		x.f.PushArg(0)
		if x.b.Count(asm.InsLoadComponents) != 1 {
			t.Errorf("%s: closed arg was aliased instead of loaded", arch)
		}
		x.run()
		x.expectSlot(arg, value.Int32(2))

		x = newFixture(t, rf, Config{NArgs: 1, NFixed: 1, NStack: 2, UsesArguments: true})
		if !x.f.IsClosedArg(0) || x.f.IsClosedVar(0) {
			t.Errorf("%s: arguments object should close args only", arch)
		}
		x = newFixture(t, rf, Config{NArgs: 1, NFixed: 1, NStack: 2, UsesEval: true})
		if !x.f.IsClosedArg(0) || !x.f.IsClosedVar(0) {
			t.Errorf("%s: eval should close every slot", arch)
		}
		x.f.PushLocal(0)
		if x.b.Count(asm.InsLoadComponents) != 1 {
			t.Errorf("%s: local under eval was aliased", arch)
		}
	}
}
