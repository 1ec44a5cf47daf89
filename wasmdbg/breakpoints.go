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
	"fmt"
	"slices"
	"sync"
)

// WatchTrigger selects which accesses a watchpoint observes.
type WatchTrigger int

const (
	WatchRead WatchTrigger = iota
	WatchWrite
	WatchReadWrite
)

func (t WatchTrigger) String() string {
	switch t {
	case WatchRead:
		return "read"
	case WatchWrite:
		return "write"
	case WatchReadWrite:
		return "read/write"
	default:
		return fmt.Sprintf("trigger(%d)", int(t))
	}
}

func (t WatchTrigger) observes(access WatchTrigger) bool {
	return t == WatchReadWrite || t == access
}

// Breakpoint is a registered stop condition: a code position, a watched
// global, or a watched memory range.
type Breakpoint interface {
	isBreakpoint()
	String() string
}

// CodeBreakpoint pauses execution when the instruction at Position is about
// to execute.
type CodeBreakpoint struct {
	Position CodePosition
}

// GlobalWatchpoint pauses execution when the global at GlobalIndex is
// accessed in a way the trigger observes.
type GlobalWatchpoint struct {
	Trigger     WatchTrigger
	GlobalIndex uint32
}

// MemoryWatchpoint pauses execution when a load or store touches any byte in
// [Start, Start+Length).
type MemoryWatchpoint struct {
	Trigger WatchTrigger
	Start   uint32
	Length  uint32
}

func (CodeBreakpoint) isBreakpoint()   {}
func (GlobalWatchpoint) isBreakpoint() {}
func (MemoryWatchpoint) isBreakpoint() {}

func (b CodeBreakpoint) String() string {
	return fmt.Sprintf("breakpoint at %s", b.Position)
}

func (w GlobalWatchpoint) String() string {
	return fmt.Sprintf("watchpoint on %s of global %d", w.Trigger, w.GlobalIndex)
}

func (w MemoryWatchpoint) String() string {
	return fmt.Sprintf(
		"watchpoint on %s of memory [0x%08x, 0x%08x)",
		w.Trigger, w.Start, uint64(w.Start)+uint64(w.Length),
	)
}

// IndexedBreakpoint pairs a breakpoint with its registry index.
type IndexedBreakpoint struct {
	Index      uint32
	Breakpoint Breakpoint
}

// Breakpoints is the registry of breakpoints and watchpoints. Indices are
// handed out monotonically and never reused, so a deleted breakpoint's index
// stays dead for the lifetime of the registry. When several entries match the
// same event, the lowest index wins.
type Breakpoints struct {
	mu      sync.Mutex
	next    uint32
	entries map[uint32]Breakpoint
	order   []uint32
}

func NewBreakpoints() *Breakpoints {
	return &Breakpoints{entries: make(map[uint32]Breakpoint)}
}

// Add registers a breakpoint and returns its index.
func (b *Breakpoints) Add(bp Breakpoint) uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	index := b.next
	b.next++
	b.entries[index] = bp
	b.order = append(b.order, index)
	return index
}

// Delete removes the breakpoint with the given index. It reports whether the
// index was present.
func (b *Breakpoints) Delete(index uint32) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.entries[index]; !ok {
		return false
	}
	delete(b.entries, index)
	i, _ := slices.BinarySearch(b.order, index)
	b.order = slices.Delete(b.order, i, i+1)
	return true
}

// Clear removes every breakpoint. Indices of cleared entries are not reused.
func (b *Breakpoints) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = make(map[uint32]Breakpoint)
	b.order = b.order[:0]
}

// Get returns the breakpoint registered under the given index.
func (b *Breakpoints) Get(index uint32) (Breakpoint, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bp, ok := b.entries[index]
	return bp, ok
}

// Len returns the number of registered breakpoints.
func (b *Breakpoints) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// All returns every registered breakpoint in ascending index order.
func (b *Breakpoints) All() []IndexedBreakpoint {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]IndexedBreakpoint, 0, len(b.order))
	for _, index := range b.order {
		out = append(out, IndexedBreakpoint{Index: index, Breakpoint: b.entries[index]})
	}
	return out
}

// FindCode returns the lowest-indexed code breakpoint at the given position.
func (b *Breakpoints) FindCode(pos CodePosition) (uint32, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, index := range b.order {
		if cb, ok := b.entries[index].(CodeBreakpoint); ok && cb.Position == pos {
			return index, true
		}
	}
	return 0, false
}

// findGlobal returns the lowest-indexed global watchpoint observing the given
// access to the given global.
func (b *Breakpoints) findGlobal(globalIndex uint32, access WatchTrigger) (uint32, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, index := range b.order {
		wp, ok := b.entries[index].(GlobalWatchpoint)
		if ok && wp.GlobalIndex == globalIndex && wp.Trigger.observes(access) {
			return index, true
		}
	}
	return 0, false
}

// findMemory returns the lowest-indexed memory watchpoint whose range
// overlaps an access of n bytes at addr.
func (b *Breakpoints) findMemory(addr uint64, n int, access WatchTrigger) (uint32, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	end := addr + uint64(n)
	for _, index := range b.order {
		wp, ok := b.entries[index].(MemoryWatchpoint)
		if !ok || !wp.Trigger.observes(access) {
			continue
		}
		wpStart := uint64(wp.Start)
		wpEnd := wpStart + uint64(wp.Length)
		if addr < wpEnd && wpStart < end {
			return index, true
		}
	}
	return 0, false
}
