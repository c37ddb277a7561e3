// Package value defines the dynamically typed values a compiled frame holds,
// and the two machine encodings used to store them.
//
// Split encoding (32-bit targets): every slot is two 32-bit words, a payload
// word at offset 0 and a tag word at offset 4. Doubles use both words for
// their IEEE 754 bits; their high word is always below TagClear.
//
// Unified encoding (64-bit targets): every slot is one 64-bit word. Doubles
// are stored as is; everything else is a shifted tag above the largest
// double NaN, OR'ed with a 47-bit payload:
//
//	bits 63..47  tag (0x1FFF0 | type)
//	bits 46..0   payload
//
// On both encodings a value splits into a type component and a data
// component that can be held in two registers and recombined without loss.
package value

import (
	"fmt"
	"math"
)

// Type is the dynamic type carried in a value's tag.
type Type uint8

const (
	TypeDouble Type = iota
	TypeInt32
	TypeUndefined
	TypeBoolean
	TypeMagic
	TypeString
	TypeNull
	TypeObject
)

func (t Type) String() string {
	switch t {
	case TypeDouble:
		return "double"
	case TypeInt32:
		return "int32"
	case TypeUndefined:
		return "undefined"
	case TypeBoolean:
		return "boolean"
	case TypeMagic:
		return "magic"
	case TypeString:
		return "string"
	case TypeNull:
		return "null"
	case TypeObject:
		return "object"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// IsNumber reports whether values of this type are numbers.
func (t Type) IsNumber() bool {
	return t == TypeDouble || t == TypeInt32
}

// Split encoding constants
const (
	// TagClear is the lowest tag word of a non-double.
	TagClear uint32 = 0xFFFFFF80
)

// Unified encoding constants
const (
	TagShift    = 47
	PayloadMask = uint64(1)<<TagShift - 1
	TagMask     = ^PayloadMask

	tagMaxDouble uint32 = 0x1FFF0

	// MaxDoubleBits is the largest word that decodes as a double.
	MaxDoubleBits = uint64(tagMaxDouble) << TagShift
)

// canonicalNaN is the only NaN a Value ever carries, so that a NaN never
// collides with a tag on either encoding.
const canonicalNaN = 0x7FF8000000000000

// Value is an immutable dynamically typed value.
type Value struct {
	typ  Type
	bits uint64 // IEEE bits for doubles, zero-extended payload otherwise
}

func Int32(i int32) Value {
	return Value{typ: TypeInt32, bits: uint64(uint32(i))}
}

func Double(f float64) Value {
	if math.IsNaN(f) {
		return Value{typ: TypeDouble, bits: canonicalNaN}
	}
	return Value{typ: TypeDouble, bits: math.Float64bits(f)}
}

// Number returns an int32 when f is integral and fits, a double otherwise.
func Number(f float64) Value {
	if i := int32(f); float64(i) == f && !(f == 0 && math.Signbit(f)) {
		return Int32(i)
	}
	return Double(f)
}

func Bool(b bool) Value {
	if b {
		return Value{typ: TypeBoolean, bits: 1}
	}
	return Value{typ: TypeBoolean}
}

func Undefined() Value { return Value{typ: TypeUndefined} }

func Null() Value { return Value{typ: TypeNull} }

// Magic values mark internal sentinels such as holes in arrays.
func Magic(why uint32) Value {
	return Value{typ: TypeMagic, bits: uint64(why)}
}

// Object wraps a heap pointer. Only the low 47 bits survive boxing.
func Object(ptr uint64) Value {
	return Value{typ: TypeObject, bits: ptr & PayloadMask}
}

// String wraps a pointer to a string cell.
func String(ptr uint64) Value {
	return Value{typ: TypeString, bits: ptr & PayloadMask}
}

func (v Value) Type() Type { return v.typ }

func (v Value) IsDouble() bool { return v.typ == TypeDouble }

func (v Value) IsInt32() bool { return v.typ == TypeInt32 }

func (v Value) IsNumber() bool { return v.typ.IsNumber() }

func (v Value) Int32() int32 { return int32(uint32(v.bits)) }

func (v Value) Float64() float64 {
	if v.typ == TypeInt32 {
		return float64(v.Int32())
	}
	return math.Float64frombits(v.bits)
}

func (v Value) Bool() bool { return v.bits != 0 }

// Payload returns the raw payload. For doubles this is the IEEE bits.
func (v Value) Payload() uint64 { return v.bits }

// Truthy follows the usual dynamic-language coercion to boolean.
func (v Value) Truthy() bool {
	switch v.typ {
	case TypeDouble:
		f := v.Float64()
		return f != 0 && !math.IsNaN(f)
	case TypeInt32, TypeBoolean:
		return v.bits != 0
	case TypeUndefined, TypeNull, TypeMagic:
		return false
	default:
		return true
	}
}

func (v Value) String() string {
	switch v.typ {
	case TypeDouble:
		return fmt.Sprintf("%g", v.Float64())
	case TypeInt32:
		return fmt.Sprintf("%d", v.Int32())
	case TypeBoolean:
		if v.Bool() {
			return "true"
		}
		return "false"
	case TypeUndefined:
		return "undefined"
	case TypeNull:
		return "null"
	default:
		return fmt.Sprintf("%s@%#x", v.typ, v.bits)
	}
}

// SplitTag is the tag word of a non-double type.
func SplitTag(t Type) uint32 {
	return TagClear | uint32(t)
}

// UnifiedTag is the shifted tag of a type, ready to be OR'ed with a payload.
func UnifiedTag(t Type) uint64 {
	return uint64(tagMaxDouble|uint32(t)) << TagShift
}

// SplitWords returns the (tag, payload) words of the split encoding.
func (v Value) SplitWords() (tag, payload uint32) {
	if v.typ == TypeDouble {
		return uint32(v.bits >> 32), uint32(v.bits)
	}
	return SplitTag(v.typ), uint32(v.bits)
}

// FromSplitWords decodes a split encoding.
func FromSplitWords(tag, payload uint32) Value {
	if tag < TagClear {
		return Value{typ: TypeDouble, bits: uint64(tag)<<32 | uint64(payload)}
	}
	return Value{typ: Type(tag & 0x7F), bits: uint64(payload)}
}

// Boxed returns the unified encoding.
func (v Value) Boxed() uint64 {
	if v.typ == TypeDouble {
		return v.bits
	}
	return UnifiedTag(v.typ) | v.bits&PayloadMask
}

// FromBoxed decodes a unified encoding.
func FromBoxed(bits uint64) Value {
	if bits <= MaxDoubleBits {
		return Value{typ: TypeDouble, bits: bits}
	}
	t := Type(uint32(bits>>TagShift) & 0xF)
	return Value{typ: t, bits: bits & PayloadMask}
}

// TypeBits is what a type register holds for this value: the tag word on
// split targets, the tag bits of the boxed word on unified targets.
func (v Value) TypeBits(unified bool) uint64 {
	if unified {
		return v.Boxed() & TagMask
	}
	tag, _ := v.SplitWords()
	return uint64(tag)
}

// DataBits is what a data register holds for this value.
func (v Value) DataBits(unified bool) uint64 {
	if unified {
		return v.Boxed() & PayloadMask
	}
	_, payload := v.SplitWords()
	return uint64(payload)
}

// TypeOnlyBits is the type component of any value of type t. Not meaningful
// for doubles.
func TypeOnlyBits(t Type, unified bool) uint64 {
	if unified {
		return UnifiedTag(t)
	}
	return uint64(SplitTag(t))
}

// FromComponents recombines a type component and a data component.
func FromComponents(unified bool, typeBits, dataBits uint64) Value {
	if unified {
		return FromBoxed(typeBits&TagMask | dataBits&PayloadMask)
	}
	return FromSplitWords(uint32(typeBits), uint32(dataBits))
}
