package jit

import (
	"fmt"

	"github.com/xyproto/jitframe/internal/asm"
	"github.com/xyproto/jitframe/internal/bytecode"
	"github.com/xyproto/jitframe/internal/frame"
	"github.com/xyproto/jitframe/internal/value"
)

// CalleeValue is the function object a simulated caller passes
var CalleeValue = value.Object(0x7f00)

// Listing renders the code with the target's register names
func (r *Result) Listing() string {
	return asm.Listing(r.Code, r.Registers)
}

// Machine sets up a simulated frame the way a caller would: callee, this
// and arguments in their slots, locals undefined
func (r *Result) Machine(run *bytecode.Run) *asm.Machine {
	s := r.Script
	m := asm.NewMachine(r.Registers, 2+s.NArgs+s.NLocals+s.MaxDepth)
	f := r.frame
	m.WriteSlot(f.AddressOf(frame.CalleeSlot), CalleeValue)
	m.WriteSlot(f.AddressOf(frame.ThisSlot), run.This)
	for i := 0; i < s.NArgs; i++ {
		m.WriteSlot(f.AddressOf(f.Arg(i)), run.Arg(i))
	}
	for i := 0; i < s.NLocals; i++ {
		m.WriteSlot(f.AddressOf(f.Local(i)), value.Undefined())
	}
	m.CallResult = run.CallResult
	return m
}

// Execute runs the code on a simulated machine and returns what the
// function returned
func (r *Result) Execute(run *bytecode.Run) (value.Value, *asm.Machine, error) {
	if run == nil {
		run = &bytecode.Run{This: value.Undefined(), CallResult: value.Undefined()}
	}
	m := r.Machine(run)
	if err := m.Run(r.Code); err != nil {
		return value.Value{}, m, fmt.Errorf("running %s: %w", r.Script.Name, err)
	}
	return m.RegValue(r.Registers.ReturnTypeReg, r.Registers.ReturnDataReg), m, nil
}

// Check runs the script's own run section and compares the result with
// its expectation
func (r *Result) Check() (value.Value, error) {
	run := r.Script.Run
	got, _, err := r.Execute(run)
	if err != nil {
		return got, err
	}
	if run != nil && run.HasExpect && got != run.Expect {
		return got, fmt.Errorf("%s returned %s, expected %s", r.Script.Name, got, run.Expect)
	}
	return got, nil
}
