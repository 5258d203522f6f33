package types

import "math"

// SignalType tags the bit-exact payload carried by a TypedValue, mirroring
// the SignalValue union in CollectionInspectionAPITypes.h.
type SignalType uint8

const (
	SignalTypeUint8 SignalType = iota
	SignalTypeInt8
	SignalTypeUint16
	SignalTypeInt16
	SignalTypeUint32
	SignalTypeInt32
	SignalTypeUint64
	SignalTypeInt64
	SignalTypeFloat32
	SignalTypeFloat64
	SignalTypeBool
	SignalTypeRawHandle
)

func (t SignalType) String() string {
	switch t {
	case SignalTypeUint8:
		return "uint8"
	case SignalTypeInt8:
		return "int8"
	case SignalTypeUint16:
		return "uint16"
	case SignalTypeInt16:
		return "int16"
	case SignalTypeUint32:
		return "uint32"
	case SignalTypeInt32:
		return "int32"
	case SignalTypeUint64:
		return "uint64"
	case SignalTypeInt64:
		return "int64"
	case SignalTypeFloat32:
		return "float32"
	case SignalTypeFloat64:
		return "float64"
	case SignalTypeBool:
		return "bool"
	case SignalTypeRawHandle:
		return "raw_handle"
	default:
		return "unknown"
	}
}

// TypedValue pairs a type tag with its bit-exact payload. The zero value is
// an invalid value, distinct from any successfully decoded signal — see
// Invalid() and IsInvalid().
type TypedValue struct {
	typ     SignalType
	invalid bool

	u64 uint64 // holds every integer width and the bool, widened losslessly
	f64 float64
	f32 float32
}

// Invalid returns the sentinel value the evaluator propagates for
// div-by-zero, missing signals, and empty windows (spec §4.3, §7).
func Invalid() TypedValue {
	return TypedValue{invalid: true}
}

// IsInvalid reports whether v is the INVALID sentinel.
func (v TypedValue) IsInvalid() bool {
	return v.invalid
}

// Type returns the value's signal type. Calling it on an invalid value is
// a programming error in the caller — evaluator code must check IsInvalid
// first.
func (v TypedValue) Type() SignalType {
	return v.typ
}

// BoolValue constructs a boolean TypedValue.
func BoolValue(b bool) TypedValue {
	var u uint64
	if b {
		u = 1
	}
	return TypedValue{typ: SignalTypeBool, u64: u}
}

// FloatValue constructs a float64 TypedValue, used for CONSTANT_NUMBER
// nodes and for every arithmetic/comparison result (spec: "Arithmetic is
// performed in f64").
func FloatValue(f float64) TypedValue {
	return TypedValue{typ: SignalTypeFloat64, f64: f}
}

// FromUint64 constructs a typed value from a raw unsigned payload and its
// declared SignalType, mirroring CollectedSignal's templated constructor.
func FromUint64(raw uint64, t SignalType) TypedValue {
	return TypedValue{typ: t, u64: raw}
}

// FromFloat32 constructs a float32-typed value.
func FromFloat32(f float32) TypedValue {
	return TypedValue{typ: SignalTypeFloat32, f32: f}
}

// FromFloat64 constructs a float64-typed value.
func FromFloat64(f float64) TypedValue {
	return TypedValue{typ: SignalTypeFloat64, f64: f}
}

// AsBool reports the value's boolish truth: non-zero/true is true.
// INVALID values must be handled by the caller before reaching here.
func (v TypedValue) AsBool() bool {
	if v.typ == SignalTypeFloat64 {
		return v.f64 != 0
	}
	if v.typ == SignalTypeFloat32 {
		return v.f32 != 0
	}
	return v.u64 != 0
}

// AsF64 widens v to float64 the way the original SignalValue union's
// arithmetic path does: every integer width promotes through its native Go
// type first. Precision above 2^53 is lost for uint64/int64, as documented
// in spec §3 ("documented precision loss for u64/i64") — no safe-cast
// helper in the reference pack is ever exercised by its own authors (see
// DESIGN.md), so this stays a direct, commented conversion rather than an
// unjustified dependency.
func (v TypedValue) AsF64() float64 {
	switch v.typ {
	case SignalTypeUint8:
		return float64(uint8(v.u64))
	case SignalTypeInt8:
		return float64(int8(v.u64))
	case SignalTypeUint16:
		return float64(uint16(v.u64))
	case SignalTypeInt16:
		return float64(int16(v.u64))
	case SignalTypeUint32:
		return float64(uint32(v.u64))
	case SignalTypeInt32:
		return float64(int32(v.u64))
	case SignalTypeUint64:
		return float64(v.u64) // lossy above 2^53, by design
	case SignalTypeInt64:
		return float64(int64(v.u64)) // lossy above 2^53, by design
	case SignalTypeFloat32:
		return float64(v.f32)
	case SignalTypeFloat64:
		return v.f64
	case SignalTypeBool:
		if v.u64 != 0 {
			return 1
		}
		return 0
	default:
		return math.NaN()
	}
}
