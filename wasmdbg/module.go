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

// FuncType classifies the signature of a function, mapping a vector of
// parameters to a vector of results.
// See https://webassembly.github.io/spec/core/syntax/types.html#function-types.
type FuncType struct {
	Params  []ValueKind
	Results []ValueKind
}

func (ft *FuncType) Equal(other *FuncType) bool {
	if ft == other {
		return true
	}
	if ft == nil || other == nil {
		return false
	}
	return slices.Equal(ft.Params, other.Params) &&
		slices.Equal(ft.Results, other.Results)
}

func (ft *FuncType) String() string {
	s := "("
	for i, p := range ft.Params {
		if i > 0 {
			s += ", "
		}
		s += p.String()
	}
	s += ")"
	if len(ft.Results) > 0 {
		s += " -> " + ft.Results[0].String()
	}
	return s
}

// Function is one locally defined function: its signature index, the kinds of
// its declared locals (parameters excluded) and its fully decoded body. The
// trailing end of the body is kept as an explicit instruction so the last
// instruction index of every function is its return point.
type Function struct {
	TypeIndex uint32
	Locals    []ValueKind
	Instrs    []Instruction

	// matchEnd[i] holds, for a block/loop/if at instruction index i, the index
	// of its matching end. matchElse[i] holds the index of the matching else
	// for an if, or the matching end when the if has no else arm. Both are
	// filled in by Module.prepare.
	matchEnd  []uint32
	matchElse []uint32
}

// ImportedFunc is a function the module expects the host to provide. Imported
// functions occupy the lowest function indices, in import order.
type ImportedFunc struct {
	ModuleName string
	Name       string
	TypeIndex  uint32
}

// ExportKind tags what an export refers to.
type ExportKind byte

const (
	ExportFunc   ExportKind = 0x0
	ExportTable  ExportKind = 0x1
	ExportMemory ExportKind = 0x2
	ExportGlobal ExportKind = 0x3
)

type Export struct {
	Name  string
	Kind  ExportKind
	Index uint32
}

// Limits bounds the size of a memory or table.
// See https://webassembly.github.io/spec/core/binary/types.html#limits.
type Limits struct {
	Min uint32
	Max *uint32
}

type MemoryType struct {
	Limits Limits
}

type TableType struct {
	Limits Limits
}

// Global declares a module global: its kind, mutability and the constant
// expression producing its initial value.
type Global struct {
	Kind     ValueKind
	Mutable  bool
	InitExpr []Instruction
}

// ElementSegment initializes a range of a table with function indices.
type ElementSegment struct {
	TableIndex  uint32
	OffsetExpr  []Instruction
	FuncIndexes []uint32
}

// DataSegment initializes a range of a memory with constant bytes.
type DataSegment struct {
	MemoryIndex uint32
	OffsetExpr  []Instruction
	Content     []byte
}

// CustomSection is an uninterpreted custom section, kept verbatim so debug
// information (the "name" section in particular) survives parsing.
type CustomSection struct {
	Name string
	Data []byte
}

// Module is a fully decoded module. Function bodies are instruction lists,
// not raw bytes, so every instruction has a stable index that breakpoints and
// the instruction pointer can address.
//
// A Module is immutable after prepare and may back any number of VMs
// concurrently; always share it by pointer.
type Module struct {
	Types           []FuncType
	ImportedFuncs   []ImportedFunc
	Funcs           []Function
	Globals         []Global
	Exports         []Export
	StartIndex      *uint32
	Memories        []MemoryType
	Tables          []TableType
	ElementSegments []ElementSegment
	DataSegments    []DataSegment
	CustomSections  []CustomSection

	prepareOnce sync.Once
	prepareErr  error
	debugInfo   *DebugInfo
}

// FunctionCount returns the total number of function indices, imported
// functions included.
func (m *Module) FunctionCount() uint32 {
	return uint32(len(m.ImportedFuncs) + len(m.Funcs))
}

// IsImported reports whether the function index refers to an imported
// function.
func (m *Module) IsImported(funcIndex uint32) bool {
	return funcIndex < uint32(len(m.ImportedFuncs))
}

// Func returns the locally defined function at the given function index, or
// nil for imported or out-of-range indices.
func (m *Module) Func(funcIndex uint32) *Function {
	local := int(funcIndex) - len(m.ImportedFuncs)
	if local < 0 || local >= len(m.Funcs) {
		return nil
	}
	return &m.Funcs[local]
}

// FuncType returns the signature of the function at the given index.
func (m *Module) FuncType(funcIndex uint32) (*FuncType, error) {
	var typeIndex uint32
	switch {
	case m.IsImported(funcIndex):
		typeIndex = m.ImportedFuncs[funcIndex].TypeIndex
	case funcIndex < m.FunctionCount():
		typeIndex = m.Funcs[funcIndex-uint32(len(m.ImportedFuncs))].TypeIndex
	default:
		return nil, fmt.Errorf("no function with index %d", funcIndex)
	}
	if int(typeIndex) >= len(m.Types) {
		return nil, fmt.Errorf("function %d has invalid type index %d", funcIndex, typeIndex)
	}
	return &m.Types[typeIndex], nil
}

// ExportedFunc returns the function index exported under the given name.
func (m *Module) ExportedFunc(name string) (uint32, bool) {
	for _, export := range m.Exports {
		if export.Kind == ExportFunc && export.Name == name {
			return export.Index, true
		}
	}
	return 0, false
}

// DebugInfo returns the module's debug information, parsed lazily from the
// "name" custom section. It is never nil; absent debug info yields empty
// lookups.
func (m *Module) DebugInfo() *DebugInfo {
	if err := m.prepare(); err != nil {
		return &DebugInfo{}
	}
	return m.debugInfo
}

// prepare computes the structural branch tables of every function body and
// decodes debug info. It runs once per Module; concurrent callers observe the
// same result.
func (m *Module) prepare() error {
	m.prepareOnce.Do(func() {
		for i := range m.Funcs {
			if err := m.Funcs[i].computeBranchTargets(); err != nil {
				local := uint32(i) + uint32(len(m.ImportedFuncs))
				m.prepareErr = fmt.Errorf("function %d: %w", local, err)
				return
			}
		}
		m.debugInfo = parseDebugInfo(m.CustomSections)
	})
	return m.prepareErr
}

// computeBranchTargets walks the body once, pairing every block, loop and if
// with its matching end (and else, if present).
func (f *Function) computeBranchTargets() error {
	f.matchEnd = make([]uint32, len(f.Instrs))
	f.matchElse = make([]uint32, len(f.Instrs))

	var openers []uint32
	for i, instr := range f.Instrs {
		switch instr.Op {
		case OpBlock, OpLoop, OpIf:
			openers = append(openers, uint32(i))
		case OpElse:
			if len(openers) == 0 {
				return fmt.Errorf("else at instruction %d without matching if", i)
			}
			opener := openers[len(openers)-1]
			if f.Instrs[opener].Op != OpIf {
				return fmt.Errorf("else at instruction %d inside non-if block", i)
			}
			f.matchElse[opener] = uint32(i)
		case OpEnd:
			if len(openers) == 0 {
				// The end closing the function body itself.
				if i != len(f.Instrs)-1 {
					return fmt.Errorf("unbalanced end at instruction %d", i)
				}
				continue
			}
			opener := openers[len(openers)-1]
			openers = openers[:len(openers)-1]
			f.matchEnd[opener] = uint32(i)
			if f.Instrs[opener].Op == OpIf && f.matchElse[opener] == 0 {
				f.matchElse[opener] = uint32(i)
			}
		}
	}
	if len(openers) != 0 {
		return fmt.Errorf("block at instruction %d never closed", openers[len(openers)-1])
	}
	if n := len(f.Instrs); n == 0 || f.Instrs[n-1].Op != OpEnd {
		return fmt.Errorf("function body must end with an end instruction")
	}
	return nil
}
