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
	"math"
	"testing"
)

func TestDivS32(t *testing.T) {
	if got, err := DivS32(-7, 2); err != nil || got != -3 {
		t.Errorf("DivS32(-7, 2) = (%d, %v), want (-3, nil)", got, err)
	}
	if _, err := DivS32(1, 0); !errors.Is(err, ErrDivisionByZero) {
		t.Errorf("DivS32(1, 0) error = %v, want ErrDivisionByZero", err)
	}
	if _, err := DivS32(math.MinInt32, -1); !errors.Is(err, ErrSignedIntegerOverflow) {
		t.Errorf("DivS32(MinInt32, -1) error = %v, want ErrSignedIntegerOverflow", err)
	}
}

func TestDivU32(t *testing.T) {
	// -1 reinterpreted as unsigned is MaxUint32.
	if got, err := DivU32(-1, 2); err != nil || uint32(got) != math.MaxUint32/2 {
		t.Errorf("DivU32(-1, 2) = (%d, %v), want (%d, nil)", uint32(got), err, uint32(math.MaxUint32/2))
	}
	if _, err := DivU32(1, 0); !errors.Is(err, ErrDivisionByZero) {
		t.Errorf("DivU32(1, 0) error = %v, want ErrDivisionByZero", err)
	}
}

func TestRemS32(t *testing.T) {
	if got, err := RemS32(-7, 2); err != nil || got != -1 {
		t.Errorf("RemS32(-7, 2) = (%d, %v), want (-1, nil)", got, err)
	}
	// MinInt32 % -1 is zero, not a trap.
	if got, err := RemS32(math.MinInt32, -1); err != nil || got != 0 {
		t.Errorf("RemS32(MinInt32, -1) = (%d, %v), want (0, nil)", got, err)
	}
	if _, err := RemS32(1, 0); !errors.Is(err, ErrDivisionByZero) {
		t.Errorf("RemS32(1, 0) error = %v, want ErrDivisionByZero", err)
	}
}

func TestDivRem64(t *testing.T) {
	if _, err := DivS64(math.MinInt64, -1); !errors.Is(err, ErrSignedIntegerOverflow) {
		t.Errorf("DivS64(MinInt64, -1) error = %v, want ErrSignedIntegerOverflow", err)
	}
	if got, err := RemS64(math.MinInt64, -1); err != nil || got != 0 {
		t.Errorf("RemS64(MinInt64, -1) = (%d, %v), want (0, nil)", got, err)
	}
	if got, err := DivU64(-2, 2); err != nil || uint64(got) != math.MaxUint64/2 {
		t.Errorf("DivU64(-2, 2) = (%d, %v)", uint64(got), err)
	}
}

func TestShiftsMaskTheShiftCount(t *testing.T) {
	if got := shl32(1, 33); got != 2 {
		t.Errorf("shl32(1, 33) = %d, want 2", got)
	}
	if got := shrU32(-1, 31); got != 1 {
		t.Errorf("shrU32(-1, 31) = %d, want 1", got)
	}
	if got := shrS32(-8, 1); got != -4 {
		t.Errorf("shrS32(-8, 1) = %d, want -4", got)
	}
	if got := shl64(1, 65); got != 2 {
		t.Errorf("shl64(1, 65) = %d, want 2", got)
	}
}

func TestRotations(t *testing.T) {
	if got := rotl32(1, 1); got != 2 {
		t.Errorf("rotl32(1, 1) = %d, want 2", got)
	}
	if got := rotr32(1, 1); uint32(got) != 0x80000000 {
		t.Errorf("rotr32(1, 1) = %#x, want 0x80000000", uint32(got))
	}
	if got := rotl64(1, 64); got != 1 {
		t.Errorf("rotl64(1, 64) = %d, want 1", got)
	}
}

func TestBitCounting(t *testing.T) {
	if got := clz32(1); got != 31 {
		t.Errorf("clz32(1) = %d, want 31", got)
	}
	if got := clz32(0); got != 32 {
		t.Errorf("clz32(0) = %d, want 32", got)
	}
	if got := ctz32(8); got != 3 {
		t.Errorf("ctz32(8) = %d, want 3", got)
	}
	if got := popcnt32(-1); got != 32 {
		t.Errorf("popcnt32(-1) = %d, want 32", got)
	}
	if got := popcnt64(0xff); got != 8 {
		t.Errorf("popcnt64(0xff) = %d, want 8", got)
	}
}

func TestNearestRoundsToEven(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0.5, 0},
		{1.5, 2},
		{2.5, 2},
		{-0.5, math.Copysign(0, -1)},
		{-1.5, -2},
	}
	for _, tt := range tests {
		got := nearest(tt.in)
		if got != tt.want || math.Signbit(got) != math.Signbit(tt.want) {
			t.Errorf("nearest(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTruncToI32(t *testing.T) {
	if got, err := truncSToI32(-1.9); err != nil || got != -1 {
		t.Errorf("truncSToI32(-1.9) = (%d, %v), want (-1, nil)", got, err)
	}
	if _, err := truncSToI32(math.NaN()); !errors.Is(err, errInvalidConversionToInteger) {
		t.Errorf("truncSToI32(NaN) error = %v, want errInvalidConversionToInteger", err)
	}
	if _, err := truncSToI32(maxInt32Plus1); !errors.Is(err, errIntegerOverflow) {
		t.Errorf("truncSToI32(2^31) error = %v, want errIntegerOverflow", err)
	}
	// 2^31 fits the unsigned range.
	if got, err := truncUToI32(maxInt32Plus1); err != nil || uint32(got) != 1<<31 {
		t.Errorf("truncUToI32(2^31) = (%#x, %v)", uint32(got), err)
	}
	if _, err := truncUToI32(-1); !errors.Is(err, errIntegerOverflow) {
		t.Errorf("truncUToI32(-1) error = %v, want errIntegerOverflow", err)
	}
}

func TestTruncToI64(t *testing.T) {
	if got, err := truncSToI64(-3.7); err != nil || got != -3 {
		t.Errorf("truncSToI64(-3.7) = (%d, %v), want (-3, nil)", got, err)
	}
	if _, err := truncSToI64(maxInt64Plus1); !errors.Is(err, errIntegerOverflow) {
		t.Errorf("truncSToI64(2^63) error = %v, want errIntegerOverflow", err)
	}
	if _, err := truncUToI64(math.NaN()); !errors.Is(err, errInvalidConversionToInteger) {
		t.Errorf("truncUToI64(NaN) error = %v, want errInvalidConversionToInteger", err)
	}
}

func TestSignExtension(t *testing.T) {
	if got := signExtend8To32(0x80); got != -128 {
		t.Errorf("signExtend8To32(0x80) = %d, want -128", got)
	}
	if got := signExtend16To64(0x8000); got != -32768 {
		t.Errorf("signExtend16To64(0x8000) = %d, want -32768", got)
	}
	if got := signExtend32To64(int64(int32(-1)) & 0xffffffff); got != -1 {
		t.Errorf("signExtend32To64(0xffffffff) = %d, want -1", got)
	}
	if got := extendI32UToI64(-1); got != math.MaxUint32 {
		t.Errorf("extendI32UToI64(-1) = %d, want %d", got, int64(math.MaxUint32))
	}
}

func TestConversions(t *testing.T) {
	if got := convertI32UToF64(-1); got != float64(math.MaxUint32) {
		t.Errorf("convertI32UToF64(-1) = %v", got)
	}
	if got := convertI64UToF32(-1); got != float32(math.MaxUint64) {
		t.Errorf("convertI64UToF32(-1) = %v", got)
	}
	if got := wrapI64ToI32(0x1_0000_0001); got != 1 {
		t.Errorf("wrapI64ToI32(2^32+1) = %d, want 1", got)
	}
}
