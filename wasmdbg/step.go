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

// The run loops below share two rules. First, a code breakpoint fires when
// the instruction it marks is about to execute, and the very first
// instruction after a resume is exempt, so resuming from a breakpoint makes
// progress instead of reporting the same hit forever. Second, every loop
// stops at whatever pause or fault executeStep surfaces, so watchpoints and
// traps inside a stepped-over call still win over the stepping policy.

// checkCodeBreakpoint pauses at a code breakpoint on the next instruction.
func (vm *VM) checkCodeBreakpoint() *Trap {
	pos, ok := vm.IP()
	if !ok {
		return nil
	}
	index, found := vm.breakpoints.FindCode(pos)
	if !found {
		return nil
	}
	trap := trapBreakpoint(index)
	vm.trap = trap
	vm.state = StatePaused
	return trap
}

// Step executes exactly one instruction. A nil trap means the step completed
// and the instance is paused at the next instruction; a step is never
// interrupted by a code breakpoint on its own instruction.
func (vm *VM) Step() (*Trap, error) {
	return vm.executeStep()
}

// StepOver executes one instruction, running any function it calls to
// completion. Breakpoints, watchpoints and faults inside the callee still
// stop execution there.
func (vm *VM) StepOver() (*Trap, error) {
	depth := vm.FrameCount()
	first := true
	for {
		if !first {
			if trap := vm.checkCodeBreakpoint(); trap != nil {
				return trap, nil
			}
		}
		first = false
		trap, err := vm.executeStep()
		if trap != nil || err != nil {
			return trap, err
		}
		if vm.FrameCount() <= depth {
			return nil, nil
		}
	}
}

// StepOut runs until the current function returns to its caller.
func (vm *VM) StepOut() (*Trap, error) {
	depth := vm.FrameCount()
	first := true
	for {
		if !first {
			if trap := vm.checkCodeBreakpoint(); trap != nil {
				return trap, nil
			}
		}
		first = false
		trap, err := vm.executeStep()
		if trap != nil || err != nil {
			return trap, err
		}
		if vm.FrameCount() < depth {
			return nil, nil
		}
	}
}

// ContinueExecution runs until a breakpoint, watchpoint, fault or normal
// completion stops it.
func (vm *VM) ContinueExecution() (*Trap, error) {
	first := true
	for {
		if !first {
			if trap := vm.checkCodeBreakpoint(); trap != nil {
				return trap, nil
			}
		}
		first = false
		trap, err := vm.executeStep()
		if trap != nil || err != nil {
			return trap, err
		}
	}
}

// Run starts the instance at its entry point and runs it to the first stop.
// The entry function's first instruction is subject to breakpoints.
func (vm *VM) Run() (*Trap, error) {
	if err := vm.Start(); err != nil {
		return nil, err
	}
	if trap := vm.checkCodeBreakpoint(); trap != nil {
		return trap, nil
	}
	return vm.ContinueExecution()
}
