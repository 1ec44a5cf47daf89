// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package wasmdbg

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ValueKind classifies the four numeric kinds a Value can hold. The constants
// match the WebAssembly binary encoding of value types.
type ValueKind byte

const (
	I32 ValueKind = 0x7f
	I64 ValueKind = 0x7e
	F32 ValueKind = 0x7d
	F64 ValueKind = 0x7c
)

func (k ValueKind) String() string {
	switch k {
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	default:
		return fmt.Sprintf("valuekind(0x%02x)", byte(k))
	}
}

// Size returns the byte width of values of this kind.
func (k ValueKind) Size() int {
	switch k {
	case I32, F32:
		return 4
	default:
		return 8
	}
}

var errValueTooShort = errors.New("buffer too short for value")

// Value is an immutable tagged union over the four WebAssembly numeric kinds.
// Floats are stored as their raw bit pattern, so NaN payloads survive every
// construction, copy, and (de)serialization. Two Values are equal (==) exactly
// when their kind and bit pattern are equal.
type Value struct {
	kind ValueKind
	bits uint64
}

func I32Value(v int32) Value { return Value{kind: I32, bits: uint64(uint32(v))} }

func I64Value(v int64) Value { return Value{kind: I64, bits: uint64(v)} }

func F32Value(v float32) Value {
	return Value{kind: F32, bits: uint64(math.Float32bits(v))}
}

func F64Value(v float64) Value {
	return Value{kind: F64, bits: math.Float64bits(v)}
}

// F32FromBits builds an f32 Value from a raw bit pattern, preserving it
// exactly.
func F32FromBits(bits uint32) Value { return Value{kind: F32, bits: uint64(bits)} }

// F64FromBits builds an f64 Value from a raw bit pattern, preserving it
// exactly.
func F64FromBits(bits uint64) Value { return Value{kind: F64, bits: bits} }

// ZeroValue returns the zero value of the given kind.
func ZeroValue(kind ValueKind) Value { return Value{kind: kind} }

func (v Value) Kind() ValueKind { return v.kind }

// AsI32 returns the stored int32 and true, or zero and false if the Value
// holds a different kind. There is no implicit coercion between kinds.
func (v Value) AsI32() (int32, bool) {
	if v.kind != I32 {
		return 0, false
	}
	return int32(v.bits), true
}

func (v Value) AsI64() (int64, bool) {
	if v.kind != I64 {
		return 0, false
	}
	return int64(v.bits), true
}

func (v Value) AsF32() (float32, bool) {
	if v.kind != F32 {
		return 0, false
	}
	return math.Float32frombits(uint32(v.bits)), true
}

func (v Value) AsF64() (float64, bool) {
	if v.kind != F64 {
		return 0, false
	}
	return math.Float64frombits(v.bits), true
}

// Bits returns the raw bit pattern, zero extended to 64 bits.
func (v Value) Bits() uint64 { return v.bits }

// Internal raw accessors used by the dispatch loop. Operand kinds are
// guaranteed by module validation, so these read the bit pattern directly.
func (v Value) i32() int32   { return int32(v.bits) }
func (v Value) i64() int64   { return int64(v.bits) }
func (v Value) f32() float32 { return math.Float32frombits(uint32(v.bits)) }
func (v Value) f64() float64 { return math.Float64frombits(v.bits) }

// AppendLittleEndian appends the little-endian encoding of v (4 bytes for
// 32-bit kinds, 8 for 64-bit kinds) to dst.
func (v Value) AppendLittleEndian(dst []byte) []byte {
	n := v.kind.Size()
	for i := 0; i < n; i++ {
		dst = append(dst, byte(v.bits>>(8*i)))
	}
	return dst
}

// ValueFromLittleEndian decodes a Value of the given kind from the start of
// buf. Decoding the bytes produced by AppendLittleEndian reproduces the exact
// original bit pattern, including NaN payloads.
func ValueFromLittleEndian(kind ValueKind, buf []byte) (Value, error) {
	n := kind.Size()
	if len(buf) < n {
		return Value{}, errValueTooShort
	}
	var bits uint64
	for i := 0; i < n; i++ {
		bits |= uint64(buf[i]) << (8 * i)
	}
	return Value{kind: kind, bits: bits}, nil
}

// ParseValue parses a textual value of the given kind, as typed in the shell.
// Integers accept 0x, 0o and 0b radix prefixes.
func ParseValue(s string, kind ValueKind) (Value, error) {
	switch kind {
	case I32:
		v, err := parseInt(s, 32)
		if err != nil {
			return Value{}, err
		}
		return I32Value(int32(v)), nil
	case I64:
		v, err := parseInt(s, 64)
		if err != nil {
			return Value{}, err
		}
		return I64Value(v), nil
	case F32:
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return Value{}, err
		}
		return F32Value(float32(v)), nil
	case F64:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Value{}, err
		}
		return F64Value(v), nil
	default:
		return Value{}, fmt.Errorf("unknown value kind %q", kind)
	}
}

func parseInt(s string, bitSize int) (int64, error) {
	base := 10
	digits := s
	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "0x"):
		base, digits = 16, s[2:]
	case strings.HasPrefix(lower, "0o"):
		base, digits = 8, s[2:]
	case strings.HasPrefix(lower, "0b"):
		base, digits = 2, s[2:]
	}
	// Accept the full unsigned range as well; the bit pattern is what counts.
	if v, err := strconv.ParseInt(digits, base, bitSize); err == nil {
		return v, nil
	}
	u, err := strconv.ParseUint(digits, base, bitSize)
	if err != nil {
		return 0, err
	}
	return int64(u), nil
}

func (v Value) String() string {
	switch v.kind {
	case I32:
		val := int32(v.bits)
		if val < 0 {
			return fmt.Sprintf("i32 : 0x%08x = %d = %d", uint32(v.bits), uint32(v.bits), val)
		}
		return fmt.Sprintf("i32 : 0x%08x = %d", uint32(v.bits), uint32(v.bits))
	case I64:
		val := int64(v.bits)
		if val < 0 {
			return fmt.Sprintf("i64 : 0x%016x = %d = %d", v.bits, v.bits, val)
		}
		return fmt.Sprintf("i64 : 0x%016x = %d", v.bits, v.bits)
	case F32:
		return fmt.Sprintf("f32 : 0x%08x ~ %.8f", uint32(v.bits), v.f32())
	case F64:
		return fmt.Sprintf("f64 : 0x%016x ~ %.16f", v.bits, v.f64())
	default:
		return fmt.Sprintf("value(kind=0x%02x, bits=0x%x)", byte(v.kind), v.bits)
	}
}
