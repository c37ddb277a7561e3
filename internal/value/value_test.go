package value

import (
	"math"
	"testing"
)

var samples = []Value{
	Int32(0),
	Int32(-1),
	Int32(math.MaxInt32),
	Double(1.5),
	Double(-0.25),
	Double(math.Inf(-1)),
	Double(math.NaN()),
	Bool(true),
	Bool(false),
	Undefined(),
	Null(),
	Magic(3),
	Object(0xdeadbeef),
	String(0x1000),
}

// TestComponentsRecombine checks that splitting a value into type and data
// components and joining them again is lossless on both encodings
func TestComponentsRecombine(t *testing.T) {
	for _, unified := range []bool{false, true} {
		for _, v := range samples {
			got := FromComponents(unified, v.TypeBits(unified), v.DataBits(unified))
			if got != v {
				t.Errorf("unified=%v: %s recombined as %s", unified, v, got)
			}
		}
	}
}

// TestBoxedTags checks that non-doubles always box above the double range
func TestBoxedTags(t *testing.T) {
	for _, v := range samples {
		boxed := v.Boxed()
		if v.IsDouble() != (boxed <= MaxDoubleBits) {
			t.Errorf("%s boxed to %#x", v, boxed)
		}
		if FromBoxed(boxed) != v {
			t.Errorf("%s did not survive boxing", v)
		}
	}
}

// TestSplitTags checks the tag word of every type
func TestSplitTags(t *testing.T) {
	tag, payload := Int32(-2).SplitWords()
	if tag != 0xFFFFFF81 {
		t.Errorf("int32 tag = %#x", tag)
	}
	if payload != 0xFFFFFFFE {
		t.Errorf("int32 payload = %#x", payload)
	}
	tag, _ = Double(2).SplitWords()
	if tag >= TagClear {
		t.Errorf("double high word %#x collides with tags", tag)
	}
}

// TestTypeOnlyBits checks that a known type produces the same type component
// as any value of that type
func TestTypeOnlyBits(t *testing.T) {
	for _, unified := range []bool{false, true} {
		for _, v := range samples {
			if v.IsDouble() {
				continue
			}
			if TypeOnlyBits(v.Type(), unified) != v.TypeBits(unified) {
				t.Errorf("unified=%v: type bits of %s differ", unified, v)
			}
		}
	}
}

// TestNumber tests int32 narrowing
func TestNumber(t *testing.T) {
	if !Number(42).IsInt32() {
		t.Error("42 should be an int32")
	}
	if !Number(0.5).IsDouble() {
		t.Error("0.5 should be a double")
	}
	if !Number(math.Copysign(0, -1)).IsDouble() {
		t.Error("-0 should stay a double")
	}
	if !Number(1 << 40).IsDouble() {
		t.Error("2^40 does not fit an int32")
	}
}

// TestTruthy tests boolean coercion
func TestTruthy(t *testing.T) {
	tests := []struct {
		v    Value
		want bool
	}{
		{Int32(0), false},
		{Int32(7), true},
		{Double(math.NaN()), false},
		{Double(0.1), true},
		{Undefined(), false},
		{Null(), false},
		{Object(8), true},
		{Bool(false), false},
	}
	for _, tt := range tests {
		if got := tt.v.Truthy(); got != tt.want {
			t.Errorf("Truthy(%s) = %v", tt.v, got)
		}
	}
}
