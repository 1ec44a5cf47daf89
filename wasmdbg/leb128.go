// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package wasmdbg

import "errors"

const (
	continuationBit = 0x80
	payloadMask     = 0x7f
	leb128SignBit   = 0x40

	maxUleb32Bytes = 5
	maxUleb64Bytes = 10
)

var (
	errIntRepresentationTooLong = errors.New("integer representation too long")
	errIntegerTooLarge          = errors.New("integer too large")
)

func readUleb128(readByte func() (byte, error), maxBytes int) (uint64, error) {
	var result uint64
	var shift uint
	bytesRead := 0

	for {
		b, err := readByte()
		if err != nil {
			return 0, err
		}
		bytesRead++
		if bytesRead > maxBytes {
			return 0, errIntRepresentationTooLong
		}

		result |= uint64(b&payloadMask) << shift

		// The continuation bit (MSB) cleared means this was the last byte.
		if b&continuationBit == 0 {
			return result, nil
		}
		shift += 7
	}
}

// readSleb128 decodes a signed integer of up to 64 bits and returns its bit
// pattern. The 10th byte of a 64-bit encoding carries only the sign bit plus
// padding, which must match the sign.
func readSleb128(readByte func() (byte, error), maxBytes int) (uint64, error) {
	var result int64
	var shift uint
	var b byte
	var err error
	bytesRead := 0

	for {
		b, err = readByte()
		if err != nil {
			return 0, err
		}
		bytesRead++
		if bytesRead > maxBytes {
			return 0, errIntRepresentationTooLong
		}

		if bytesRead == maxUleb64Bytes {
			sign := b & 1
			padding := (b & 0x7e) >> 1
			if sign == 0 && padding != 0 {
				return 0, errIntegerTooLarge
			}
			if sign == 1 && padding != 0x3f {
				return 0, errIntegerTooLarge
			}
		}

		result |= int64(b&payloadMask) << shift

		if b&continuationBit == 0 {
			break
		}
		shift += 7
	}

	if shift < 63 && b&leb128SignBit != 0 {
		result |= -1 << (shift + 7)
	}

	return uint64(result), nil
}
