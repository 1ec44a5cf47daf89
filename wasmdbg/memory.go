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

import "errors"

const (
	// PageSize is the size of a linear memory page in bytes (64KiB).
	PageSize = 65536
	// maxPages caps memory growth when the memory declares no maximum.
	maxPages = uint32(1 << 16)
)

var ErrMemoryOutOfBounds = errors.New("out of bounds memory access")

// Memory is a linear memory instance. Loads and stores address it with a
// 32-bit base plus a static offset; the effective address is computed in
// 64 bits so the sum cannot wrap.
type Memory struct {
	limits Limits
	data   []byte
}

// NewMemory creates a Memory of the type's minimum size, zero filled.
func NewMemory(memType MemoryType) *Memory {
	return &Memory{
		limits: memType.Limits,
		data:   make([]byte, uint64(memType.Limits.Min)*PageSize),
	}
}

// Grow extends the memory by the given number of pages. It returns the
// previous size in pages, or -1 when growing would exceed the memory's
// maximum.
func (m *Memory) Grow(pages int32) int32 {
	if pages < 0 {
		return -1
	}
	currentSize := m.Size()
	max := maxPages
	if m.limits.Max != nil {
		max = *m.limits.Max
	}
	if uint64(uint32(pages))+uint64(uint32(currentSize)) > uint64(max) {
		return -1
	}
	m.data = append(m.data, make([]byte, uint64(pages)*PageSize)...)
	return currentSize
}

// Size returns the memory size in pages.
func (m *Memory) Size() int32 {
	return int32(len(m.data) / PageSize)
}

// BytesSize returns the memory size in bytes.
func (m *Memory) BytesSize() uint32 {
	return uint32(len(m.data))
}

// Read returns a copy of length bytes starting at addr.
func (m *Memory) Read(addr, length uint32) ([]byte, error) {
	end := uint64(addr) + uint64(length)
	if end > uint64(len(m.data)) {
		return nil, ErrMemoryOutOfBounds
	}
	out := make([]byte, length)
	copy(out, m.data[addr:end])
	return out, nil
}

// Write copies the given bytes into memory starting at addr.
func (m *Memory) Write(addr uint32, values []byte) error {
	end := uint64(addr) + uint64(len(values))
	if end > uint64(len(m.data)) {
		return ErrMemoryOutOfBounds
	}
	copy(m.data[addr:], values)
	return nil
}

// Bytes returns the backing byte slice. Mutations are visible to the VM;
// callers that only inspect should use Read.
func (m *Memory) Bytes() []byte {
	return m.data
}

// effectiveAddress bounds-checks a base+offset access of n bytes and returns
// the effective address.
func (m *Memory) effectiveAddress(base uint32, offset uint64, n int) (uint64, error) {
	addr := uint64(base) + offset
	if addr+uint64(n) > uint64(len(m.data)) {
		return 0, ErrMemoryOutOfBounds
	}
	return addr, nil
}

// load reads n little-endian bytes at base+offset and returns the effective
// address of the read, for watchpoint matching, alongside the raw bits.
func (m *Memory) load(base uint32, offset uint64, n int) (uint64, uint64, error) {
	addr, err := m.effectiveAddress(base, offset, n)
	if err != nil {
		return 0, 0, err
	}
	var bits uint64
	for i := 0; i < n; i++ {
		bits |= uint64(m.data[addr+uint64(i)]) << (8 * i)
	}
	return addr, bits, nil
}

// store commits n little-endian bytes of bits at base+offset and returns the
// effective address of the write, for watchpoint matching.
func (m *Memory) store(base uint32, offset uint64, bits uint64, n int) (uint64, error) {
	addr, err := m.effectiveAddress(base, offset, n)
	if err != nil {
		return 0, err
	}
	for i := 0; i < n; i++ {
		m.data[addr+uint64(i)] = byte(bits >> (8 * i))
	}
	return addr, nil
}

// initSegment copies a data segment's content into memory at destOffset.
func (m *Memory) initSegment(destOffset uint32, content []byte) error {
	if uint64(destOffset)+uint64(len(content)) > uint64(len(m.data)) {
		return ErrMemoryOutOfBounds
	}
	copy(m.data[destOffset:], content)
	return nil
}
