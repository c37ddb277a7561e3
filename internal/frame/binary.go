// Completion: 100% - Binary operand staging complete
package frame

import (
	"github.com/xyproto/jitframe/internal/asm"
	"github.com/xyproto/jitframe/internal/engine"
)

// BinaryAlloc is the register assignment for one two-operand operation.
// A register field is engine.NoReg when the component is not needed in a
// register: a known type, or an immediate the operation can take as is.
type BinaryAlloc struct {
	LhsType engine.Reg
	RhsType engine.Reg
	LhsData engine.Reg
	RhsData engine.Reg

	// Result holds a copy of the lhs payload, or of the rhs payload when
	// ResultHasRhs is set, for the operation to overwrite. It is a
	// temporary the caller pushes or frees.
	Result       engine.Reg
	ResultHasRhs bool

	// The operand's data register became Result and the operand now lives
	// in memory
	LhsNeedsRemat bool
	RhsNeedsRemat bool

	// ExtraFree is a temporary holding a materialized constant; free it
	// after the operation
	ExtraFree engine.Reg
}

func newBinaryAlloc() BinaryAlloc {
	return BinaryAlloc{
		LhsType:   engine.NoReg,
		RhsType:   engine.NoReg,
		LhsData:   engine.NoReg,
		RhsData:   engine.NoReg,
		Result:    engine.NoReg,
		ExtraFree: engine.NoReg,
	}
}

// binaryPins keeps track of what one staging call pinned
type binaryPins struct {
	f    *Frame
	regs []engine.Reg
}

func (p *binaryPins) pin(r engine.Reg) {
	p.f.PinReg(r)
	p.regs = append(p.regs, r)
}

func (p *binaryPins) unpin(r engine.Reg) {
	for i, pr := range p.regs {
		if pr == r {
			p.f.UnpinReg(r)
			p.regs = append(p.regs[:i], p.regs[i+1:]...)
			return
		}
	}
}

func (p *binaryPins) release() {
	for _, r := range p.regs {
		p.f.UnpinReg(r)
	}
	p.regs = nil
}

// AllocForBinary stages lhs and rhs for op. Unknown types are loaded so
// they can be checked, payloads are loaded unless op can take an immediate,
// and with needsResult a register for the result is picked, preferably
// one no store has to free.
func (f *Frame) AllocForBinary(lhs, rhs Handle, op asm.BinOp, needsResult bool) BinaryAlloc {
	bl := f.backing(f.tracked(lhs))
	br := f.backing(f.tracked(rhs))
	if bl == br {
		return f.AllocForSameBinary(lhs, op, needsResult)
	}
	if bl.isConstant() && br.isConstant() {
		f.fail("AllocForBinary", ErrMisuse, "both operands are constants")
	}

	a := newBinaryAlloc()
	p := &binaryPins{f: f}

	// Take whatever is already in registers out of the running first
	if bl.typ.inRegister() {
		a.LhsType = bl.typ.reg
		p.pin(a.LhsType)
	}
	if bl.data.inRegister() {
		a.LhsData = bl.data.reg
		p.pin(a.LhsData)
	}
	if br.typ.inRegister() {
		a.RhsType = br.typ.reg
		p.pin(a.RhsType)
	}
	if br.data.inRegister() {
		a.RhsData = br.data.reg
		p.pin(a.RhsData)
	}

	if a.LhsType == engine.NoReg && bl.typ.inMemory() {
		a.LhsType = f.tempRegForType(bl)
		p.pin(a.LhsType)
	}
	if a.RhsType == engine.NoReg && br.typ.inMemory() {
		a.RhsType = f.tempRegForType(br)
		p.pin(a.RhsType)
	}

	// Not every target multiplies by an immediate, and a non-commutative
	// operation needs the lhs in a register
	needReg := op == asm.OpMul || !op.Commutative()
	if a.LhsData == engine.NoReg {
		if bl.data.inMemory() {
			a.LhsData = f.tempRegForData(bl)
			p.pin(a.LhsData)
		} else if needReg {
			a.LhsData = f.allocReg()
			a.ExtraFree = a.LhsData
			f.em.Move(asm.ImmPayload(bl.constant), a.LhsData)
		}
	}
	if a.RhsData == engine.NoReg {
		if br.data.inMemory() {
			a.RhsData = f.tempRegForData(br)
			p.pin(a.RhsData)
		} else if needReg {
			a.RhsData = f.allocReg()
			a.ExtraFree = a.RhsData
			f.em.Move(asm.ImmPayload(br.constant), a.RhsData)
		}
	}

	if needsResult {
		f.allocBinaryResult(&a, bl, br, op, p)
	}
	p.release()
	f.check("AllocForBinary")
	return a
}

func (f *Frame) allocBinaryResult(a *BinaryAlloc, bl, br *Entry, op asm.BinOp, p *binaryPins) {
	commu := op.Commutative()
	if !f.free.Empty() {
		a.Result = f.allocReg()
		if a.LhsData == engine.NoReg {
			f.em.Move(asm.R(a.RhsData), a.Result)
			a.ResultHasRhs = true
		} else {
			f.em.Move(asm.R(a.LhsData), a.Result)
		}
		return
	}

	// No free register: reuse an operand's own register, preferring one
	// whose value memory already holds
	leftInReg, rightInReg := bl.data.inRegister(), br.data.inRegister()
	leftSynced, rightSynced := bl.data.synced, br.data.synced
	if !commu || (leftInReg && (leftSynced || !rightInReg || !rightSynced)) {
		switch {
		case leftInReg:
			a.Result = bl.data.reg
			p.unpin(a.Result)
			f.takeReg(a.Result)
			a.LhsNeedsRemat = true
		case a.LhsData != engine.NoReg && a.LhsData == a.ExtraFree:
			a.Result = a.ExtraFree
			a.ExtraFree = engine.NoReg
		default:
			f.fail("AllocForBinary", ErrInvariant, "lhs entry %d has no data register", bl.index)
		}
		return
	}
	a.Result = br.data.reg
	p.unpin(a.Result)
	f.takeReg(a.Result)
	a.ResultHasRhs = true
	a.RhsNeedsRemat = true
}

// AllocForSameBinary stages an operation whose two operands are the same
// value, as in x + x
func (f *Frame) AllocForSameBinary(h Handle, op asm.BinOp, needsResult bool) BinaryAlloc {
	fe := f.backing(f.tracked(h))
	if fe.isConstant() {
		f.fail("AllocForSameBinary", ErrMisuse, "operand %d is a constant", fe.index)
	}
	a := newBinaryAlloc()
	p := &binaryPins{f: f}
	if !fe.isTypeKnown() {
		a.LhsType = f.tempRegForType(fe)
		p.pin(a.LhsType)
	}
	a.LhsData = f.tempRegForData(fe)
	if needsResult {
		if !f.free.Empty() {
			a.Result = f.allocReg()
			f.em.Move(asm.R(a.LhsData), a.Result)
		} else {
			a.Result = a.LhsData
			f.takeReg(a.Result)
			a.LhsNeedsRemat = true
		}
	}
	p.release()
	a.RhsType = a.LhsType
	a.RhsData = a.LhsData
	f.check("AllocForSameBinary")
	return a
}
