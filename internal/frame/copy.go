// Completion: 100% - Copy tracking and promotion complete
package frame

import (
	"github.com/xyproto/jitframe/internal/engine"
)

// PushCopyOf pushes an alias of entry h. Constants are pushed as constants;
// copies of copies alias the original backing entry.
func (f *Frame) PushCopyOf(h Handle) {
	f.pushCopyOf(f.tracked(h))
	f.check("PushCopyOf")
}

func (f *Frame) pushCopyOf(backing *Entry) {
	fe := f.rawPush()
	fe.resetUnsynced()
	if backing.isConstant() {
		fe.setConstant(backing.constant)
		return
	}
	if backing.isCopy() {
		backing = &f.entries[backing.copyOf]
	}
	if backing.isTypeKnown() {
		fe.setType(backing.knownType)
	}
	fe.isNumber = backing.isNumber
	fe.copyOf = backing.index
	backing.copied = true

	// A re-pushed slot can have an older tracker position than its backing
	if fe.trackerIndex < backing.trackerIndex {
		f.swapInTracker(fe, backing)
	}
}

// uncopy picks a new backing entry for the copies of original, which is
// about to lose its value. The promotee is the lowest live copy; it takes
// over original's value and the other copies are redirected to it. Returns
// nil when no live copy remains.
func (f *Frame) uncopy(original *Entry) *Entry {
	var promotee *Entry
	walk := f.walk
	if walk == WalkAuto {
		// Estimated costs of the two walks
		if (f.tracker.len()-original.trackerIndex)*2 > int(f.sp-original.index) {
			walk = WalkFrame
		} else {
			walk = WalkTracker
		}
	}
	if walk == WalkFrame {
		promotee = f.walkFrameForUncopy(original)
	} else {
		promotee = f.walkTrackerForUncopy(original)
	}
	original.copied = false
	if promotee == nil {
		return nil
	}
	f.log.Debugf("uncopy: entry %d takes over from entry %d", promotee.index, original.index)

	// Memory of the promotee may be stale, so anything it cannot find in
	// its own slot must come from a register.
	pinned := engine.NoReg
	if !original.isTypeKnown() {
		if original.typ.inMemory() && !promotee.typ.synced {
			f.tempRegForType(original)
		}
		promotee.typ.inherit(original.typ)
		if promotee.typ.inRegister() {
			f.reassociate(promotee.typ.reg, promotee)
			pinned = promotee.typ.reg
			f.PinReg(pinned)
		}
	} else {
		promotee.typ.inherit(original.typ)
		promotee.knownType = original.knownType
	}
	if original.data.inMemory() && !promotee.data.synced {
		f.tempRegForData(original)
	}
	promotee.data.inherit(original.data)
	if promotee.data.inRegister() {
		f.reassociate(promotee.data.reg, promotee)
	}
	if pinned != engine.NoReg {
		f.UnpinReg(pinned)
	}
	promotee.isNumber = original.isNumber
	return promotee
}

// walkTrackerForUncopy finds the copies of original by scanning the tracker
// from original's position onwards
func (f *Frame) walkTrackerForUncopy(original *Entry) *Entry {
	first := -1
	var best *Entry
	ncopies := 0
	for i := original.trackerIndex + 1; i < f.tracker.len(); i++ {
		fe := &f.entries[f.tracker.at(i)]
		if fe.index >= f.sp {
			continue
		}
		if fe.copyOf == original.index {
			if first < 0 {
				first = i
				best = fe
			} else if fe.index < best.index {
				best = fe
			}
			ncopies++
		}
	}
	if ncopies == 0 {
		return nil
	}

	best.copyOf = NoEntry
	if ncopies == 1 {
		best.copied = false
		return best
	}
	best.copied = true
	for i := first; i < f.tracker.len(); i++ {
		other := &f.entries[f.tracker.at(i)]
		if other.index >= f.sp || other == best {
			continue
		}
		if other.copyOf != original.index {
			continue
		}
		other.copyOf = best.index
		// Entries swapped forward are seen again but no longer match
		if other.trackerIndex < best.trackerIndex {
			f.swapInTracker(best, other)
		}
	}
	return best
}

// walkFrameForUncopy finds the copies of original by scanning the frame
// above it. Only tracked entries can be copies, so the scan stops once
// every tracked entry has been seen.
func (f *Frame) walkFrameForUncopy(original *Entry) *Entry {
	var best *Entry
	ncopies := 0
	visits := f.tracker.len()
	for h := original.index + 1; h < f.sp && visits > 0; h++ {
		fe := &f.entries[h]
		if !f.isTracked(fe) {
			continue
		}
		visits--
		if fe.copyOf != original.index {
			continue
		}
		if best == nil {
			best = fe
			best.copyOf = NoEntry
		} else {
			fe.copyOf = best.index
			if fe.trackerIndex < best.trackerIndex {
				f.swapInTracker(best, fe)
			}
		}
		ncopies++
	}
	if best != nil {
		best.copied = ncopies > 1
	}
	return best
}

// forgetEntry detaches fe from its copies and registers before it gets a
// new value
func (f *Frame) forgetEntry(fe *Entry) {
	if fe.copied {
		f.uncopy(fe)
	}
	f.forgetAllRegs(fe)
}

// storeTop assigns the top of the stack to target without popping it
func (f *Frame) storeTop(target *Entry) {
	top := &f.entries[f.sp-1]

	// x = x
	if top.isCopy() && top.copyOf == target.index {
		return
	}

	f.forgetEntry(target)
	target.resetUnsynced()

	if top.isConstant() {
		target.setConstant(top.constant)
		return
	}

	backing := top
	if top.isCopy() {
		backing = &f.entries[top.copyOf]
		if backing.index < target.index {
			// target becomes another copy of the same backing entry
			if target.trackerIndex < backing.trackerIndex {
				f.swapInTracker(backing, target)
			}
			target.copyOf = backing.index
			if backing.isTypeKnown() {
				target.setType(backing.knownType)
			}
			target.isNumber = backing.isNumber
			target.data.invalidate()
			return
		}

		// The backing entry sits above target and may be popped first, so
		// target takes over the value and every copy is redirected to it
		for i := backing.trackerIndex + 1; i < f.tracker.len(); i++ {
			fe := &f.entries[f.tracker.at(i)]
			if fe.index >= f.sp {
				continue
			}
			if fe.copyOf == backing.index {
				fe.copyOf = target.index
			}
		}
	}
	backing.copied = false

	// All copies of backing follow it in the tracker, so one swap puts
	// target ahead of them
	if backing.trackerIndex < target.trackerIndex {
		f.swapInTracker(backing, target)
	}

	reg := f.tempRegForData(backing)
	target.data.setRegister(reg)
	f.reassociate(reg, target)

	if backing.isTypeKnown() {
		target.setType(backing.knownType)
	} else {
		f.PinReg(reg)
		treg := f.tempRegForType(backing)
		f.UnpinReg(reg)
		target.typ.setRegister(treg)
		f.reassociate(treg, target)
		backing.typ.invalidate()
	}
	backing.data.invalidate()
	backing.copyOf = target.index
	target.isNumber = backing.isNumber

	// top is now a copy of target, along with any redirected copies
	target.copied = true
}

// StoreLocal assigns the top of the stack to local n, leaving it on the
// stack
func (f *Frame) StoreLocal(n int) {
	local := f.tracked(f.Local(n))
	f.storeTop(local)
	closed := f.IsClosedVar(n)
	if closed || f.inTryBlock {
		f.syncFe(local)
	}
	if closed {
		f.forgetEntry(local)
		local.resetSynced()
	}
	f.check("StoreLocal")
}

// StoreArg assigns the top of the stack to argument n. Arguments are
// written through to memory right away.
func (f *Frame) StoreArg(n int) {
	arg := f.tracked(f.Arg(n))
	f.storeTop(arg)
	f.syncFe(arg)
	if f.IsClosedArg(n) {
		f.forgetEntry(arg)
		arg.resetSynced()
	}
	f.check("StoreArg")
}

// StoreTop assigns the top of the stack to any entry below it
func (f *Frame) StoreTop(h Handle) {
	if h >= f.sp-1 {
		f.fail("StoreTop", ErrMisuse, "entry %d is not below the top", h)
	}
	f.storeTop(f.tracked(h))
	f.check("StoreTop")
}
