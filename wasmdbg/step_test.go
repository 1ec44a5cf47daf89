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

import "testing"

// countdownModule decrements a local from 3 to 0 in a loop. Instruction 4
// (local.get 0) is the first instruction of each loop iteration.
func countdownModule() *Module {
	module := singleFuncModule(
		nil, []ValueKind{I32}, []ValueKind{I32},
		ins(OpI32Const, 3),
		ins(OpLocalSet, 0),
		ins(OpBlock, blockTypeEmpty),
		ins(OpLoop, blockTypeEmpty),
		ins(OpLocalGet, 0), // 4: loop head
		ins(OpI32Eqz),
		ins(OpBrIf, 1),
		ins(OpLocalGet, 0),
		ins(OpI32Const, 1),
		ins(OpI32Sub),
		ins(OpLocalSet, 0),
		ins(OpBr, 0),
		ins(OpEnd),
		ins(OpEnd),
		ins(OpLocalGet, 0),
		ins(OpEnd),
	)
	module.Exports = []Export{{Name: "main", Kind: ExportFunc, Index: 0}}
	return module
}

func localAt(t *testing.T, vm *VM, index int) Value {
	t.Helper()
	frame, err := vm.FrameAt(vm.FrameCount() - 1)
	if err != nil {
		t.Fatalf("FrameAt failed: %v", err)
	}
	return frame.Locals()[index]
}

func TestContinueMakesProgressAfterBreakpoint(t *testing.T) {
	breakpoints := NewBreakpoints()
	bpIndex := breakpoints.Add(CodeBreakpoint{Position: CodePosition{FuncIndex: 0, InstrIndex: 4}})

	vm, err := NewVM(countdownModule(), breakpoints, nil)
	if err != nil {
		t.Fatalf("NewVM failed: %v", err)
	}

	trap, err := vm.Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if trap.Kind != BreakpointReached || trap.Index != bpIndex {
		t.Fatalf("Run trap = %v, want breakpoint %d", trap, bpIndex)
	}
	if pos, _ := vm.IP(); pos.InstrIndex != 4 {
		t.Fatalf("IP = %v, want instruction 4", pos)
	}
	if got := localAt(t, vm, 0); got != I32Value(3) {
		t.Fatalf("counter at first hit = %v, want 3", got)
	}

	// Resuming must not re-report the hit on the same instruction; the loop
	// decrements once per iteration, so each Continue lands one lower.
	for want := int32(2); want >= 0; want-- {
		trap, err = vm.ContinueExecution()
		if err != nil {
			t.Fatalf("Continue failed: %v", err)
		}
		if trap.Kind != BreakpointReached {
			t.Fatalf("Continue trap = %v, want breakpoint", trap)
		}
		if got := localAt(t, vm, 0); got != I32Value(want) {
			t.Fatalf("counter = %v, want %d", got, want)
		}
	}

	trap, err = vm.ContinueExecution()
	if err != nil {
		t.Fatalf("Continue failed: %v", err)
	}
	if trap.Kind != ExecutionFinished {
		t.Fatalf("final trap = %v, want execution finished", trap)
	}
	wantI32Result(t, vm, 0)
}

func TestRunStopsOnEntryFirstInstruction(t *testing.T) {
	breakpoints := NewBreakpoints()
	breakpoints.Add(CodeBreakpoint{Position: CodePosition{FuncIndex: 0, InstrIndex: 0}})

	vm, err := NewVM(countdownModule(), breakpoints, nil)
	if err != nil {
		t.Fatalf("NewVM failed: %v", err)
	}
	trap, err := vm.Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if trap.Kind != BreakpointReached {
		t.Fatalf("Run trap = %v, want breakpoint on the first instruction", trap)
	}
	if pos, _ := vm.IP(); pos.InstrIndex != 0 {
		t.Fatalf("IP = %v, want instruction 0", pos)
	}
	// Nothing has executed yet.
	if got := localAt(t, vm, 0); got != ZeroValue(I32) {
		t.Fatalf("counter before execution = %v, want 0", got)
	}

	if trap, err = vm.ContinueExecution(); err != nil || trap.Kind != ExecutionFinished {
		t.Fatalf("Continue = (%v, %v), want execution finished", trap, err)
	}
}

func TestStepIgnoresBreakpointOnOwnInstruction(t *testing.T) {
	breakpoints := NewBreakpoints()
	breakpoints.Add(CodeBreakpoint{Position: CodePosition{FuncIndex: 0, InstrIndex: 0}})

	vm, err := NewVM(countdownModule(), breakpoints, nil)
	if err != nil {
		t.Fatalf("NewVM failed: %v", err)
	}
	if err := vm.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	trap, err := vm.Step()
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if trap != nil {
		t.Fatalf("Step trap = %v, want nil", trap)
	}
	if pos, _ := vm.IP(); pos.InstrIndex != 1 {
		t.Fatalf("IP after step = %v, want instruction 1", pos)
	}
}

// callerModule's function 0 computes a value, calls function 1 and adds.
// Instruction 2 of function 0 is the call.
func callerModule() *Module {
	return &Module{
		Types: []FuncType{
			{Results: []ValueKind{I32}},
			{Params: []ValueKind{I32}, Results: []ValueKind{I32}},
		},
		Funcs: []Function{
			{TypeIndex: 0, Instrs: []Instruction{
				ins(OpI32Const, 1),
				ins(OpI32Const, 2),
				ins(OpCall, 1), // 2
				ins(OpI32Add),  // 3
				ins(OpEnd),
			}},
			{TypeIndex: 1, Instrs: []Instruction{
				ins(OpLocalGet, 0), // 0
				ins(OpLocalGet, 0),
				ins(OpI32Mul),
				ins(OpEnd),
			}},
		},
	}
}

func stepTo(t *testing.T, vm *VM, instrIndex uint32) {
	t.Helper()
	for {
		pos, ok := vm.IP()
		if !ok {
			t.Fatalf("no instruction pointer while stepping to %d", instrIndex)
		}
		if pos.InstrIndex == instrIndex {
			return
		}
		if trap, err := vm.Step(); trap != nil || err != nil {
			t.Fatalf("Step = (%v, %v) before reaching instruction %d", trap, err, instrIndex)
		}
	}
}

func TestStepOverRunsCalleeToCompletion(t *testing.T) {
	vm, err := NewVM(callerModule(), nil, nil)
	if err != nil {
		t.Fatalf("NewVM failed: %v", err)
	}
	if err := vm.StartFunc(0, nil); err != nil {
		t.Fatalf("StartFunc failed: %v", err)
	}
	stepTo(t, vm, 2)

	trap, err := vm.StepOver()
	if err != nil {
		t.Fatalf("StepOver failed: %v", err)
	}
	if trap != nil {
		t.Fatalf("StepOver trap = %v, want nil", trap)
	}
	if vm.FrameCount() != 1 {
		t.Fatalf("frame count after StepOver = %d, want 1", vm.FrameCount())
	}
	if pos, _ := vm.IP(); pos.InstrIndex != 3 {
		t.Fatalf("IP after StepOver = %v, want instruction 3", pos)
	}
	// The callee ran: 2*2 is on the stack above the 1 from instruction 0.
	stack := vm.ValueStack()
	if len(stack) != 2 || stack[1] != I32Value(4) {
		t.Fatalf("value stack after StepOver = %v, want [1, 4]", stack)
	}
}

func TestStepOverStopsAtBreakpointInsideCallee(t *testing.T) {
	breakpoints := NewBreakpoints()
	breakpoints.Add(CodeBreakpoint{Position: CodePosition{FuncIndex: 1, InstrIndex: 2}})

	vm, err := NewVM(callerModule(), breakpoints, nil)
	if err != nil {
		t.Fatalf("NewVM failed: %v", err)
	}
	if err := vm.StartFunc(0, nil); err != nil {
		t.Fatalf("StartFunc failed: %v", err)
	}
	stepTo(t, vm, 2)

	trap, err := vm.StepOver()
	if err != nil {
		t.Fatalf("StepOver failed: %v", err)
	}
	if trap == nil || trap.Kind != BreakpointReached {
		t.Fatalf("StepOver trap = %v, want breakpoint inside the callee", trap)
	}
	if vm.FrameCount() != 2 {
		t.Fatalf("frame count = %d, want 2", vm.FrameCount())
	}
	if pos, _ := vm.IP(); pos.FuncIndex != 1 || pos.InstrIndex != 2 {
		t.Fatalf("IP = %v, want function 1 instruction 2", pos)
	}
}

func TestStepOutReturnsToCaller(t *testing.T) {
	vm, err := NewVM(callerModule(), nil, nil)
	if err != nil {
		t.Fatalf("NewVM failed: %v", err)
	}
	if err := vm.StartFunc(0, nil); err != nil {
		t.Fatalf("StartFunc failed: %v", err)
	}
	stepTo(t, vm, 2)
	// Step into the callee.
	if trap, err := vm.Step(); trap != nil || err != nil {
		t.Fatalf("Step into callee = (%v, %v)", trap, err)
	}
	if vm.FrameCount() != 2 {
		t.Fatalf("frame count inside callee = %d, want 2", vm.FrameCount())
	}

	trap, err := vm.StepOut()
	if err != nil {
		t.Fatalf("StepOut failed: %v", err)
	}
	if trap != nil {
		t.Fatalf("StepOut trap = %v, want nil", trap)
	}
	if vm.FrameCount() != 1 {
		t.Fatalf("frame count after StepOut = %d, want 1", vm.FrameCount())
	}
	if pos, _ := vm.IP(); pos.FuncIndex != 0 || pos.InstrIndex != 3 {
		t.Fatalf("IP after StepOut = %v, want function 0 instruction 3", pos)
	}
}

func TestGlobalWatchpointOnWrite(t *testing.T) {
	module := &Module{
		Types:   []FuncType{{Results: []ValueKind{I32}}},
		Globals: []Global{{Kind: I32, Mutable: true, InitExpr: []Instruction{ins(OpI32Const, 1)}}},
		Funcs: []Function{{TypeIndex: 0, Instrs: []Instruction{
			ins(OpI32Const, 9),
			ins(OpGlobalSet, 0), // 1
			ins(OpGlobalGet, 0),
			ins(OpEnd),
		}}},
	}
	breakpoints := NewBreakpoints()
	wpIndex := breakpoints.Add(GlobalWatchpoint{Trigger: WatchWrite, GlobalIndex: 0})

	vm, err := NewVM(module, breakpoints, nil)
	if err != nil {
		t.Fatalf("NewVM failed: %v", err)
	}
	if err := vm.StartFunc(0, nil); err != nil {
		t.Fatalf("StartFunc failed: %v", err)
	}
	trap, err := vm.ContinueExecution()
	if err != nil {
		t.Fatalf("Continue failed: %v", err)
	}
	if trap.Kind != WatchpointReached || trap.Index != wpIndex {
		t.Fatalf("trap = %v, want watchpoint %d", trap, wpIndex)
	}
	// The write has already been committed when the watchpoint reports.
	if global, _ := vm.GlobalValue(0); global != I32Value(9) {
		t.Fatalf("global at watchpoint = %v, want 9", global)
	}
	// The read of global 0 later must not re-trigger a write watchpoint.
	if trap, err = vm.ContinueExecution(); err != nil || trap.Kind != ExecutionFinished {
		t.Fatalf("Continue = (%v, %v), want execution finished", trap, err)
	}
}

func TestGlobalWatchpointOnRead(t *testing.T) {
	module := &Module{
		Types:   []FuncType{{Results: []ValueKind{I32}}},
		Globals: []Global{{Kind: I32, InitExpr: []Instruction{ins(OpI32Const, 7)}}},
		Funcs: []Function{{TypeIndex: 0, Instrs: []Instruction{
			ins(OpGlobalGet, 0),
			ins(OpEnd),
		}}},
	}
	breakpoints := NewBreakpoints()
	breakpoints.Add(GlobalWatchpoint{Trigger: WatchRead, GlobalIndex: 0})

	vm, err := NewVM(module, breakpoints, nil)
	if err != nil {
		t.Fatalf("NewVM failed: %v", err)
	}
	if err := vm.StartFunc(0, nil); err != nil {
		t.Fatalf("StartFunc failed: %v", err)
	}
	trap, err := vm.ContinueExecution()
	if err != nil {
		t.Fatalf("Continue failed: %v", err)
	}
	if trap.Kind != WatchpointReached {
		t.Fatalf("trap = %v, want watchpoint", trap)
	}
	// The loaded value is already on the stack when the watchpoint reports.
	stack := vm.ValueStack()
	if len(stack) != 1 || stack[0] != I32Value(7) {
		t.Fatalf("value stack at watchpoint = %v, want [7]", stack)
	}
}

func TestMemoryWatchpointFiresAfterCommit(t *testing.T) {
	module := memoryModule(
		ins(OpI32Const, 8),
		ins(OpI32Const, 0x2a),
		ins(OpI32Store, 2, 4), // effective address 12
		ins(OpI32Const, 0),
		ins(OpEnd),
	)
	breakpoints := NewBreakpoints()
	wpIndex := breakpoints.Add(MemoryWatchpoint{Trigger: WatchWrite, Start: 12, Length: 2})

	vm, err := NewVM(module, breakpoints, nil)
	if err != nil {
		t.Fatalf("NewVM failed: %v", err)
	}
	if err := vm.StartFunc(0, nil); err != nil {
		t.Fatalf("StartFunc failed: %v", err)
	}
	trap, err := vm.ContinueExecution()
	if err != nil {
		t.Fatalf("Continue failed: %v", err)
	}
	if trap.Kind != WatchpointReached || trap.Index != wpIndex {
		t.Fatalf("trap = %v, want watchpoint %d", trap, wpIndex)
	}
	if got := vm.DefaultMemory().Bytes()[12]; got != 0x2a {
		t.Fatalf("memory at watchpoint = %#x, want the committed 0x2a", got)
	}
	if trap, err = vm.ContinueExecution(); err != nil || trap.Kind != ExecutionFinished {
		t.Fatalf("Continue = (%v, %v), want execution finished", trap, err)
	}
}

func TestMemoryWatchpointIgnoresDisjointAccess(t *testing.T) {
	module := memoryModule(
		ins(OpI32Const, 64),
		ins(OpI32Const, 1),
		ins(OpI32Store, 2, 0),
		ins(OpI32Const, 0),
		ins(OpEnd),
	)
	breakpoints := NewBreakpoints()
	breakpoints.Add(MemoryWatchpoint{Trigger: WatchWrite, Start: 0, Length: 16})

	vm, err := NewVM(module, breakpoints, nil)
	if err != nil {
		t.Fatalf("NewVM failed: %v", err)
	}
	trap := runFunc(t, vm, 0)
	if trap.Kind != ExecutionFinished {
		t.Fatalf("trap = %v, want execution finished", trap)
	}
}

func TestLowestWatchpointIndexWins(t *testing.T) {
	module := &Module{
		Types:   []FuncType{{}},
		Globals: []Global{{Kind: I32, Mutable: true, InitExpr: []Instruction{ins(OpI32Const, 0)}}},
		Funcs: []Function{{TypeIndex: 0, Instrs: []Instruction{
			ins(OpI32Const, 1),
			ins(OpGlobalSet, 0),
			ins(OpEnd),
		}}},
	}
	breakpoints := NewBreakpoints()
	first := breakpoints.Add(GlobalWatchpoint{Trigger: WatchWrite, GlobalIndex: 0})
	breakpoints.Add(GlobalWatchpoint{Trigger: WatchReadWrite, GlobalIndex: 0})

	vm, err := NewVM(module, breakpoints, nil)
	if err != nil {
		t.Fatalf("NewVM failed: %v", err)
	}
	if err := vm.StartFunc(0, nil); err != nil {
		t.Fatalf("StartFunc failed: %v", err)
	}
	trap, err := vm.ContinueExecution()
	if err != nil {
		t.Fatalf("Continue failed: %v", err)
	}
	if trap.Kind != WatchpointReached || trap.Index != first {
		t.Fatalf("trap = %v, want watchpoint %d", trap, first)
	}
}
