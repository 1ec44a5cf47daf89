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

func ins(op Opcode, imm ...uint64) Instruction {
	return Instruction{Op: op, Imm: imm}
}

func singleFuncModule(params, results, locals []ValueKind, code ...Instruction) *Module {
	return &Module{
		Types: []FuncType{{Params: params, Results: results}},
		Funcs: []Function{{TypeIndex: 0, Locals: locals, Instrs: code}},
	}
}

func newTestVM(t *testing.T, module *Module, handler ImportHandler) *VM {
	t.Helper()
	vm, err := NewVM(module, nil, handler)
	if err != nil {
		t.Fatalf("NewVM failed: %v", err)
	}
	return vm
}

func runFunc(t *testing.T, vm *VM, funcIndex uint32, args ...Value) *Trap {
	t.Helper()
	if err := vm.StartFunc(funcIndex, args); err != nil {
		t.Fatalf("StartFunc(%d) failed: %v", funcIndex, err)
	}
	trap, err := vm.ContinueExecution()
	if err != nil {
		t.Fatalf("execution failed: %v", err)
	}
	return trap
}

func wantI32Result(t *testing.T, vm *VM, want int32) {
	t.Helper()
	stack := vm.ValueStack()
	if len(stack) != 1 {
		t.Fatalf("value stack has %d entries, want 1: %v", len(stack), stack)
	}
	got, ok := stack[0].AsI32()
	if !ok || got != want {
		t.Fatalf("result = %v, want i32 %d", stack[0], want)
	}
}

func TestExecuteArithmetic(t *testing.T) {
	module := singleFuncModule(
		[]ValueKind{I32, I32}, []ValueKind{I32}, nil,
		ins(OpLocalGet, 0),
		ins(OpLocalGet, 1),
		ins(OpI32Add),
		ins(OpEnd),
	)
	vm := newTestVM(t, module, nil)

	trap := runFunc(t, vm, 0, I32Value(40), I32Value(2))
	if trap.Kind != ExecutionFinished {
		t.Fatalf("trap = %v, want execution finished", trap)
	}
	if vm.State() != StateFinished {
		t.Fatalf("state = %s, want finished", vm.State())
	}
	wantI32Result(t, vm, 42)
}

func TestIfElse(t *testing.T) {
	module := singleFuncModule(
		[]ValueKind{I32}, []ValueKind{I32}, nil,
		ins(OpLocalGet, 0),
		ins(OpIf, uint64(I32)),
		ins(OpI32Const, 10),
		ins(OpElse),
		ins(OpI32Const, 20),
		ins(OpEnd),
		ins(OpEnd),
	)

	for _, tt := range []struct {
		arg  int32
		want int32
	}{{1, 10}, {0, 20}, {-5, 10}} {
		vm := newTestVM(t, module, nil)
		runFunc(t, vm, 0, I32Value(tt.arg))
		wantI32Result(t, vm, tt.want)
	}
}

func TestIfWithoutElse(t *testing.T) {
	module := singleFuncModule(
		[]ValueKind{I32}, []ValueKind{I32}, []ValueKind{I32},
		ins(OpLocalGet, 0),
		ins(OpIf, blockTypeEmpty),
		ins(OpI32Const, 1),
		ins(OpLocalSet, 1),
		ins(OpEnd),
		ins(OpLocalGet, 1),
		ins(OpEnd),
	)

	vm := newTestVM(t, module, nil)
	runFunc(t, vm, 0, I32Value(1))
	wantI32Result(t, vm, 1)

	vm = newTestVM(t, module, nil)
	runFunc(t, vm, 0, I32Value(0))
	wantI32Result(t, vm, 0)
}

// Sums 1..n with a block/loop pair, exercising both branch directions.
func TestLoopBranching(t *testing.T) {
	module := singleFuncModule(
		[]ValueKind{I32}, []ValueKind{I32}, []ValueKind{I32},
		ins(OpBlock, blockTypeEmpty),
		ins(OpLoop, blockTypeEmpty),
		ins(OpLocalGet, 0),
		ins(OpI32Eqz),
		ins(OpBrIf, 1),
		ins(OpLocalGet, 1),
		ins(OpLocalGet, 0),
		ins(OpI32Add),
		ins(OpLocalSet, 1),
		ins(OpLocalGet, 0),
		ins(OpI32Const, 1),
		ins(OpI32Sub),
		ins(OpLocalSet, 0),
		ins(OpBr, 0),
		ins(OpEnd),
		ins(OpEnd),
		ins(OpLocalGet, 1),
		ins(OpEnd),
	)

	vm := newTestVM(t, module, nil)
	trap := runFunc(t, vm, 0, I32Value(5))
	if trap.Kind != ExecutionFinished {
		t.Fatalf("trap = %v, want execution finished", trap)
	}
	wantI32Result(t, vm, 15)
}

func TestBrTable(t *testing.T) {
	module := singleFuncModule(
		[]ValueKind{I32}, []ValueKind{I32}, nil,
		ins(OpBlock, blockTypeEmpty),
		ins(OpBlock, blockTypeEmpty),
		ins(OpLocalGet, 0),
		ins(OpBrTable, 0, 1, 1), // targets [0, 1], default 1
		ins(OpEnd),
		ins(OpI32Const, 10),
		ins(OpReturn),
		ins(OpEnd),
		ins(OpI32Const, 20),
		ins(OpReturn),
		ins(OpEnd),
	)

	for _, tt := range []struct {
		arg  int32
		want int32
	}{{0, 10}, {1, 20}, {7, 20}} {
		vm := newTestVM(t, module, nil)
		runFunc(t, vm, 0, I32Value(tt.arg))
		wantI32Result(t, vm, tt.want)
	}
}

func TestBranchCarriesBlockResult(t *testing.T) {
	module := singleFuncModule(
		nil, []ValueKind{I32}, nil,
		ins(OpBlock, uint64(I32)),
		ins(OpI32Const, 7),
		ins(OpBr, 0),
		ins(OpI32Const, 8), // skipped
		ins(OpEnd),
		ins(OpEnd),
	)
	vm := newTestVM(t, module, nil)
	runFunc(t, vm, 0)
	wantI32Result(t, vm, 7)
}

func TestCall(t *testing.T) {
	module := &Module{
		Types: []FuncType{
			{Results: []ValueKind{I32}},
			{Params: []ValueKind{I32, I32}, Results: []ValueKind{I32}},
		},
		Funcs: []Function{
			{TypeIndex: 0, Instrs: []Instruction{
				ins(OpI32Const, 2),
				ins(OpI32Const, 3),
				ins(OpCall, 1),
				ins(OpEnd),
			}},
			{TypeIndex: 1, Instrs: []Instruction{
				ins(OpLocalGet, 0),
				ins(OpLocalGet, 1),
				ins(OpI32Mul),
				ins(OpEnd),
			}},
		},
	}
	vm := newTestVM(t, module, nil)
	trap := runFunc(t, vm, 0)
	if trap.Kind != ExecutionFinished {
		t.Fatalf("trap = %v, want execution finished", trap)
	}
	wantI32Result(t, vm, 6)
}

func indirectModule() *Module {
	return &Module{
		Types: []FuncType{
			{Params: []ValueKind{I32}, Results: []ValueKind{I32}}, // callee type
			{Results: []ValueKind{I64}},                           // mismatching type
		},
		Funcs: []Function{
			// 0: double(n)
			{TypeIndex: 0, Instrs: []Instruction{
				ins(OpLocalGet, 0),
				ins(OpLocalGet, 0),
				ins(OpI32Add),
				ins(OpEnd),
			}},
			// 1: wrongType()
			{TypeIndex: 1, Instrs: []Instruction{
				ins(OpI64Const, 0),
				ins(OpEnd),
			}},
			// 2: dispatch(slot): 21 -> call_indirect type 0
			{TypeIndex: 0, Instrs: []Instruction{
				ins(OpI32Const, 21),
				ins(OpLocalGet, 0),
				ins(OpCallIndirect, 0, 0),
				ins(OpEnd),
			}},
		},
		Tables: []TableType{{Limits: Limits{Min: 4}}},
		ElementSegments: []ElementSegment{{
			OffsetExpr:  []Instruction{ins(OpI32Const, 0)},
			FuncIndexes: []uint32{0, 1},
		}},
	}
}

func TestCallIndirect(t *testing.T) {
	vm := newTestVM(t, indirectModule(), nil)
	trap := runFunc(t, vm, 2, I32Value(0))
	if trap.Kind != ExecutionFinished {
		t.Fatalf("trap = %v, want execution finished", trap)
	}
	wantI32Result(t, vm, 42)
}

func TestCallIndirectTypeMismatch(t *testing.T) {
	vm := newTestVM(t, indirectModule(), nil)
	trap := runFunc(t, vm, 2, I32Value(1))
	if trap.Kind != IndirectCallTypeMismatch {
		t.Fatalf("trap = %v, want indirect call type mismatch", trap)
	}
	if vm.State() != StateFaulted {
		t.Fatalf("state = %s, want faulted", vm.State())
	}
}

func TestCallIndirectUndefinedIndex(t *testing.T) {
	// Slot 2 exists but was never initialized; slot 9 is out of range.
	for _, slot := range []int32{2, 9} {
		vm := newTestVM(t, indirectModule(), nil)
		trap := runFunc(t, vm, 2, I32Value(slot))
		if trap.Kind != UndefinedTableIndex {
			t.Fatalf("slot %d: trap = %v, want undefined table index", slot, trap)
		}
	}
}

func TestDivisionByZeroFaultRewindsIP(t *testing.T) {
	module := singleFuncModule(
		nil, []ValueKind{I32}, nil,
		ins(OpI32Const, 1),
		ins(OpI32Const, 0),
		ins(OpI32DivS),
		ins(OpEnd),
	)
	vm := newTestVM(t, module, nil)
	trap := runFunc(t, vm, 0)
	if trap.Kind != DivisionByZero {
		t.Fatalf("trap = %v, want division by zero", trap)
	}
	if !trap.IsFault() {
		t.Fatalf("IsFault() = false for a division by zero")
	}

	// The instruction pointer must name the faulting instruction.
	pos, ok := vm.IP()
	if !ok || pos.InstrIndex != 2 {
		t.Fatalf("IP = (%v, %t), want instruction 2", pos, ok)
	}
	if vm.FrameCount() != 1 {
		t.Fatalf("frame count = %d, want 1", vm.FrameCount())
	}
}

func TestIntegerOverflowFault(t *testing.T) {
	module := singleFuncModule(
		nil, []ValueKind{I32}, nil,
		ins(OpI32Const, 0x80000000), // math.MinInt32
		ins(OpI32Const, 0xffffffff), // -1
		ins(OpI32DivS),
		ins(OpEnd),
	)
	vm := newTestVM(t, module, nil)
	trap := runFunc(t, vm, 0)
	if trap.Kind != IntegerOverflow {
		t.Fatalf("trap = %v, want integer overflow", trap)
	}
}

func TestUnreachableFault(t *testing.T) {
	module := singleFuncModule(
		nil, nil, nil,
		ins(OpUnreachable),
		ins(OpEnd),
	)
	vm := newTestVM(t, module, nil)
	trap := runFunc(t, vm, 0)
	if trap.Kind != UnreachableExecuted {
		t.Fatalf("trap = %v, want unreachable executed", trap)
	}
}

func TestTruncFaults(t *testing.T) {
	nan := singleFuncModule(
		nil, []ValueKind{I32}, nil,
		ins(OpF32Const, uint64(math.Float32bits(float32(math.NaN())))),
		ins(OpI32TruncF32S),
		ins(OpEnd),
	)
	vm := newTestVM(t, nan, nil)
	if trap := runFunc(t, vm, 0); trap.Kind != InvalidConversionToInteger {
		t.Fatalf("trap = %v, want invalid conversion to integer", trap)
	}

	overflow := singleFuncModule(
		nil, []ValueKind{I32}, nil,
		ins(OpF64Const, math.Float64bits(1e12)),
		ins(OpI32TruncF64S),
		ins(OpEnd),
	)
	vm = newTestVM(t, overflow, nil)
	if trap := runFunc(t, vm, 0); trap.Kind != IntegerOverflow {
		t.Fatalf("signed trunc trap = %v, want integer overflow", trap)
	}

	// Unsigned truncation overflows report the same kind.
	unsignedOverflow := singleFuncModule(
		nil, []ValueKind{I32}, nil,
		ins(OpF64Const, math.Float64bits(-2.5)),
		ins(OpI32TruncF64U),
		ins(OpEnd),
	)
	vm = newTestVM(t, unsignedOverflow, nil)
	if trap := runFunc(t, vm, 0); trap.Kind != IntegerOverflow {
		t.Fatalf("unsigned trunc trap = %v, want integer overflow", trap)
	}
}

func memoryModule(code ...Instruction) *Module {
	module := singleFuncModule(nil, []ValueKind{I32}, nil, code...)
	module.Memories = []MemoryType{{Limits: Limits{Min: 1}}}
	return module
}

func TestMemoryStoreLoad(t *testing.T) {
	module := memoryModule(
		ins(OpI32Const, 8),
		ins(OpI32Const, 0xfffffffe), // -2
		ins(OpI32Store, 2, 4),       // align 2, offset 4
		ins(OpI32Const, 8),
		ins(OpI32Load, 2, 4),
		ins(OpEnd),
	)
	vm := newTestVM(t, module, nil)
	trap := runFunc(t, vm, 0)
	if trap.Kind != ExecutionFinished {
		t.Fatalf("trap = %v, want execution finished", trap)
	}
	wantI32Result(t, vm, -2)
}

func TestMemoryLoadSignExtension(t *testing.T) {
	module := memoryModule(
		ins(OpI32Const, 0),
		ins(OpI32Const, 0x80),
		ins(OpI32Store8, 0, 0),
		ins(OpI32Const, 0),
		ins(OpI32Load8S, 0, 0),
		ins(OpEnd),
	)
	vm := newTestVM(t, module, nil)
	runFunc(t, vm, 0)
	wantI32Result(t, vm, -128)
}

func TestMemoryAccessOutOfBoundsFault(t *testing.T) {
	module := memoryModule(
		ins(OpI32Const, uint64(PageSize-3)),
		ins(OpI32Load, 2, 0),
		ins(OpEnd),
	)
	vm := newTestVM(t, module, nil)
	trap := runFunc(t, vm, 0)
	if trap.Kind != MemoryAccessOutOfBounds {
		t.Fatalf("trap = %v, want out of bounds memory access", trap)
	}
}

func TestMemorySizeAndGrow(t *testing.T) {
	module := memoryModule(
		ins(OpI32Const, 1),
		ins(OpMemoryGrow),
		ins(OpDrop),
		ins(OpMemorySize),
		ins(OpEnd),
	)
	vm := newTestVM(t, module, nil)
	runFunc(t, vm, 0)
	wantI32Result(t, vm, 2)
}

func TestNoMemoryFault(t *testing.T) {
	module := singleFuncModule(
		nil, []ValueKind{I32}, nil,
		ins(OpI32Const, 0),
		ins(OpI32Load, 2, 0),
		ins(OpEnd),
	)
	vm := newTestVM(t, module, nil)
	trap := runFunc(t, vm, 0)
	if trap.Kind != NoMemory {
		t.Fatalf("trap = %v, want no memory present", trap)
	}
}

func TestDataSegmentsInitializeMemory(t *testing.T) {
	module := memoryModule(
		ins(OpI32Const, 4),
		ins(OpI32Load8U, 0, 0),
		ins(OpEnd),
	)
	module.DataSegments = []DataSegment{{
		OffsetExpr: []Instruction{ins(OpI32Const, 4)},
		Content:    []byte{0x2a},
	}}
	vm := newTestVM(t, module, nil)
	runFunc(t, vm, 0)
	wantI32Result(t, vm, 42)
}

func TestGlobalInitializers(t *testing.T) {
	module := &Module{
		Types: []FuncType{{Results: []ValueKind{I32}}},
		Globals: []Global{
			{Kind: I32, Mutable: true, InitExpr: []Instruction{ins(OpI32Const, 7)}},
			{Kind: I32, InitExpr: []Instruction{ins(OpGlobalGet, 0)}},
		},
		Funcs: []Function{{TypeIndex: 0, Instrs: []Instruction{
			ins(OpI32Const, 9),
			ins(OpGlobalSet, 0),
			ins(OpGlobalGet, 0),
			ins(OpGlobalGet, 1),
			ins(OpI32Add),
			ins(OpEnd),
		}}},
	}
	vm := newTestVM(t, module, nil)

	globals := vm.Globals()
	if len(globals) != 2 || globals[0] != I32Value(7) || globals[1] != I32Value(7) {
		t.Fatalf("initial globals = %v, want [7, 7]", globals)
	}

	runFunc(t, vm, 0)
	wantI32Result(t, vm, 16)
}

func TestGlobalInitializerCannotReadLaterGlobal(t *testing.T) {
	module := &Module{
		Globals: []Global{
			{Kind: I32, InitExpr: []Instruction{ins(OpGlobalGet, 1)}},
			{Kind: I32, InitExpr: []Instruction{ins(OpI32Const, 1)}},
		},
	}
	if _, err := NewVM(module, nil, nil); err == nil {
		t.Fatalf("instantiating a module with a forward global reference succeeded")
	}
}

func TestEntryPoint(t *testing.T) {
	start := uint32(0)
	withStart := singleFuncModule(nil, nil, nil, ins(OpEnd))
	withStart.StartIndex = &start
	vm := newTestVM(t, withStart, nil)
	if entry, err := vm.EntryPoint(); err != nil || entry != 0 {
		t.Errorf("EntryPoint() = (%d, %v), want (0, nil)", entry, err)
	}

	withMain := singleFuncModule(nil, nil, nil, ins(OpEnd))
	withMain.Exports = []Export{{Name: "main", Kind: ExportFunc, Index: 0}}
	vm = newTestVM(t, withMain, nil)
	if entry, err := vm.EntryPoint(); err != nil || entry != 0 {
		t.Errorf("EntryPoint() = (%d, %v), want (0, nil)", entry, err)
	}

	bare := singleFuncModule(nil, nil, nil, ins(OpEnd))
	vm = newTestVM(t, bare, nil)
	if _, err := vm.EntryPoint(); !errors.Is(err, errNoEntryPoint) {
		t.Errorf("EntryPoint() error = %v, want errNoEntryPoint", err)
	}
}

func TestStartFuncArguments(t *testing.T) {
	module := singleFuncModule(
		[]ValueKind{I32, I64}, []ValueKind{I32}, nil,
		ins(OpLocalGet, 0),
		ins(OpEnd),
	)

	// Missing arguments are zero filled.
	vm := newTestVM(t, module, nil)
	if err := vm.StartFunc(0, []Value{I32Value(3)}); err != nil {
		t.Fatalf("StartFunc with a missing argument failed: %v", err)
	}
	frame, _ := vm.FrameAt(0)
	if frame.Locals()[1] != ZeroValue(I64) {
		t.Fatalf("missing argument = %v, want i64 zero", frame.Locals()[1])
	}

	// Excess arguments are rejected.
	vm = newTestVM(t, module, nil)
	if err := vm.StartFunc(0, []Value{I32Value(1), I64Value(2), I32Value(3)}); err == nil {
		t.Fatalf("StartFunc with an excess argument succeeded")
	}

	// Kind mismatches are rejected.
	vm = newTestVM(t, module, nil)
	if err := vm.StartFunc(0, []Value{F32Value(1)}); err == nil {
		t.Fatalf("StartFunc with a mismatched argument kind succeeded")
	}
}

func TestCallStackExhausted(t *testing.T) {
	module := singleFuncModule(
		nil, nil, nil,
		ins(OpCall, 0),
		ins(OpEnd),
	)
	vm := newTestVM(t, module, nil)
	trap := runFunc(t, vm, 0)
	if trap.Kind != CallStackExhausted {
		t.Fatalf("trap = %v, want call stack exhausted", trap)
	}
	if vm.FrameCount() != maxCallDepth {
		t.Fatalf("frame count = %d, want %d", vm.FrameCount(), maxCallDepth)
	}
}

func importModule() *Module {
	return &Module{
		Types: []FuncType{{Params: []ValueKind{I32}, Results: []ValueKind{I32}}},
		ImportedFuncs: []ImportedFunc{
			{ModuleName: "env", Name: "double", TypeIndex: 0},
		},
		Funcs: []Function{{TypeIndex: 0, Instrs: []Instruction{
			ins(OpLocalGet, 0),
			ins(OpCall, 0),
			ins(OpEnd),
		}}},
		Globals:  []Global{{Kind: I32, Mutable: true, InitExpr: []Instruction{ins(OpI32Const, 1)}}},
		Memories: []MemoryType{{Limits: Limits{Min: 1}}},
	}
}

func TestImportCallFulfilled(t *testing.T) {
	var gotIndex uint32
	var gotArgs []Value
	handler := ImportHandlerFunc(func(funcIndex uint32, args, globals []Value, memory []byte) (*ImportResult, error) {
		gotIndex = funcIndex
		gotArgs = args
		arg, _ := args[0].AsI32()
		ret := I32Value(arg * 2)
		globals[0] = I32Value(5)
		memory[0] = 42
		return &ImportResult{Return: &ret, Globals: globals, Memory: memory}, nil
	})

	vm := newTestVM(t, importModule(), handler)
	trap := runFunc(t, vm, 1, I32Value(21))
	if trap.Kind != ExecutionFinished {
		t.Fatalf("trap = %v, want execution finished", trap)
	}
	wantI32Result(t, vm, 42)

	if gotIndex != 0 {
		t.Errorf("handler saw function index %d, want 0", gotIndex)
	}
	if len(gotArgs) != 1 || gotArgs[0] != I32Value(21) {
		t.Errorf("handler saw args %v, want [21]", gotArgs)
	}

	// The handler's globals and memory are written back wholesale.
	if global, _ := vm.GlobalValue(0); global != I32Value(5) {
		t.Errorf("global after import call = %v, want 5", global)
	}
	if vm.DefaultMemory().Bytes()[0] != 42 {
		t.Errorf("memory after import call = %d, want 42", vm.DefaultMemory().Bytes()[0])
	}

	// No pseudo-frame survives a successful call.
	if vm.FrameCount() != 0 {
		t.Errorf("frame count = %d, want 0", vm.FrameCount())
	}
}

func TestImportCallVoidReturnPushesNothing(t *testing.T) {
	module := importModule()
	module.Types = append(module.Types, FuncType{Params: []ValueKind{I32}})
	module.ImportedFuncs[0].TypeIndex = 1
	module.Funcs[0].Instrs = []Instruction{
		ins(OpLocalGet, 0),
		ins(OpCall, 0),
		ins(OpLocalGet, 0),
		ins(OpEnd),
	}

	handler := ImportHandlerFunc(func(uint32, []Value, []Value, []byte) (*ImportResult, error) {
		return &ImportResult{}, nil
	})
	vm := newTestVM(t, module, handler)
	trap := runFunc(t, vm, 1, I32Value(7))
	if trap.Kind != ExecutionFinished {
		t.Fatalf("trap = %v, want execution finished", trap)
	}
	wantI32Result(t, vm, 7)
}

func TestImportCallUnsupported(t *testing.T) {
	vm := newTestVM(t, importModule(), nil)
	trap := runFunc(t, vm, 1, I32Value(21))
	if trap.Kind != UnsupportedCallToImportedFunction {
		t.Fatalf("trap = %v, want unsupported call to imported function", trap)
	}
	if trap.Index != 0 {
		t.Fatalf("trap index = %d, want imported function 0", trap.Index)
	}
	if vm.State() != StateFaulted {
		t.Fatalf("state = %s, want faulted", vm.State())
	}

	// The pseudo-frame stays on top so the fault is attributed to the callee.
	frame, err := vm.FrameAt(vm.FrameCount() - 1)
	if err != nil {
		t.Fatalf("FrameAt failed: %v", err)
	}
	if !frame.Imported() || frame.FuncIndex() != 0 {
		t.Fatalf("top frame = (imported %t, func %d), want the import pseudo-frame",
			frame.Imported(), frame.FuncIndex())
	}
}

func TestSelect(t *testing.T) {
	module := singleFuncModule(
		[]ValueKind{I32}, []ValueKind{I32}, nil,
		ins(OpI32Const, 100),
		ins(OpI32Const, 200),
		ins(OpLocalGet, 0),
		ins(OpSelect),
		ins(OpEnd),
	)
	vm := newTestVM(t, module, nil)
	runFunc(t, vm, 0, I32Value(1))
	wantI32Result(t, vm, 100)

	vm = newTestVM(t, module, nil)
	runFunc(t, vm, 0, I32Value(0))
	wantI32Result(t, vm, 200)
}

func TestReinterpretPreservesBits(t *testing.T) {
	const nanBits = uint64(0x7ff8000000000123)
	module := singleFuncModule(
		nil, []ValueKind{I64}, nil,
		ins(OpF64Const, nanBits),
		ins(OpI64ReinterpretF64),
		ins(OpEnd),
	)
	vm := newTestVM(t, module, nil)
	runFunc(t, vm, 0)
	stack := vm.ValueStack()
	if len(stack) != 1 || stack[0].Bits() != nanBits {
		t.Fatalf("result = %v, want bit pattern %#x", stack, nanBits)
	}
}

func TestLocalTeeKeepsOperand(t *testing.T) {
	module := singleFuncModule(
		nil, []ValueKind{I32}, []ValueKind{I32},
		ins(OpI32Const, 5),
		ins(OpLocalTee, 0),
		ins(OpLocalGet, 0),
		ins(OpI32Add),
		ins(OpEnd),
	)
	vm := newTestVM(t, module, nil)
	runFunc(t, vm, 0)
	wantI32Result(t, vm, 10)
}
