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

import "fmt"

// TrapKind identifies why the VM stopped advancing.
type TrapKind int

const (
	// ExecutionFinished reports that the outermost frame returned normally.
	ExecutionFinished TrapKind = iota
	// BreakpointReached and WatchpointReached are explicit pauses; the Index
	// field carries the index of the triggering registry entry.
	BreakpointReached
	WatchpointReached
	// Fault kinds. The VM stays alive and inspectable after any of them.
	UnreachableExecuted
	DivisionByZero
	IntegerOverflow
	InvalidConversionToInteger
	MemoryAccessOutOfBounds
	NoMemory
	UndefinedTableIndex
	IndirectCallTypeMismatch
	CallStackExhausted
	// UnsupportedCallToImportedFunction carries the index of the imported
	// function the import handler could not fulfill.
	UnsupportedCallToImportedFunction
)

// Trap is the VM's stop signal: normal completion, an explicit pause, or a
// fault. A trap is not an unwind; it leaves the VM state consistent and
// inspectable at the pausing or faulting instruction.
type Trap struct {
	Kind TrapKind
	// Index is the breakpoint/watchpoint registry index for pauses, or the
	// function index for unsupported import calls. Zero otherwise.
	Index uint32
}

func newTrap(kind TrapKind) *Trap { return &Trap{Kind: kind} }

func trapBreakpoint(index uint32) *Trap {
	return &Trap{Kind: BreakpointReached, Index: index}
}

func trapWatchpoint(index uint32) *Trap {
	return &Trap{Kind: WatchpointReached, Index: index}
}

func trapUnsupportedImport(funcIndex uint32) *Trap {
	return &Trap{Kind: UnsupportedCallToImportedFunction, Index: funcIndex}
}

// IsFault reports whether the trap is a fault rather than completion or an
// explicit pause.
func (t Trap) IsFault() bool {
	switch t.Kind {
	case ExecutionFinished, BreakpointReached, WatchpointReached:
		return false
	default:
		return true
	}
}

func (t Trap) String() string {
	switch t.Kind {
	case ExecutionFinished:
		return "execution finished"
	case BreakpointReached:
		return fmt.Sprintf("breakpoint %d reached", t.Index)
	case WatchpointReached:
		return fmt.Sprintf("watchpoint %d reached", t.Index)
	case UnreachableExecuted:
		return "unreachable executed"
	case DivisionByZero:
		return "division by zero"
	case IntegerOverflow:
		return "integer overflow"
	case InvalidConversionToInteger:
		return "invalid conversion to integer"
	case MemoryAccessOutOfBounds:
		return "out of bounds memory access"
	case NoMemory:
		return "no memory present"
	case UndefinedTableIndex:
		return "undefined table index"
	case IndirectCallTypeMismatch:
		return "indirect call type mismatch"
	case CallStackExhausted:
		return "call stack exhausted"
	case UnsupportedCallToImportedFunction:
		return fmt.Sprintf("unsupported call to imported function %d", t.Index)
	default:
		return fmt.Sprintf("trap(%d)", int(t.Kind))
	}
}
