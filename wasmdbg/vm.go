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
)

// maxCallDepth bounds the call stack; exceeding it faults the VM instead of
// exhausting the host stack.
const maxCallDepth = 10000

var (
	errValueStackUnderflow = errors.New("value stack underflow")
	errNoEntryPoint        = errors.New("module has no start function and no exported \"main\"")
)

// VMState describes where an instance is in its lifecycle.
type VMState int

const (
	// StateReady means the instance is instantiated but no frame has been
	// pushed yet.
	StateReady VMState = iota
	// StatePaused means execution stopped at a breakpoint, watchpoint or step
	// boundary and can resume.
	StatePaused
	// StateFinished means the outermost frame returned; results remain on the
	// value stack for inspection.
	StateFinished
	// StateFaulted means execution trapped. The instance stays inspectable
	// but cannot resume.
	StateFaulted
)

func (s VMState) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StatePaused:
		return "paused"
	case StateFinished:
		return "finished"
	case StateFaulted:
		return "faulted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// label is an open structured-control scope inside a frame. Branches address
// labels relatively: depth 0 is the innermost.
type label struct {
	// opener is the instruction index of the block, loop or if.
	opener uint32
	// stackHeight is the value stack height when the scope was entered.
	stackHeight int
	// arity is the number of result values the scope leaves behind.
	arity  int
	isLoop bool
}

// Frame is one call stack entry. Parameters and declared locals share the
// Locals slice, parameters first.
type Frame struct {
	funcIndex uint32
	pc        uint32
	locals    []Value
	labels    []label
	// stackBase is the value stack height at function entry, after the
	// arguments were consumed. Returning truncates the stack back to it.
	stackBase int
	// imported marks the pseudo-frame pushed around an import call so a
	// failed call is attributed to its callee.
	imported bool
}

func (f *Frame) FuncIndex() uint32 { return f.funcIndex }

// PC returns the index of the next instruction to execute in this frame.
func (f *Frame) PC() uint32 { return f.pc }

// Locals returns the frame's live locals slice, parameters first. Writing an
// element changes the running instance.
func (f *Frame) Locals() []Value { return f.locals }

// Imported reports whether this frame stands in for an import call.
func (f *Frame) Imported() bool { return f.imported }

// VM executes one instantiated module. It is a pure instruction machine: it
// consults the breakpoint registry it was given but all stepping policy lives
// in the run loops layered on top.
//
// A VM is not safe for concurrent use; the session serializes access.
type VM struct {
	module        *Module
	breakpoints   *Breakpoints
	importHandler ImportHandler

	state      VMState
	trap       *Trap
	valueStack []Value
	frames     []Frame
	globals    []Value
	memory     *Memory
	// table maps table slots to function indices; -1 marks an uninitialized
	// slot.
	table []int64
}

// NewVM instantiates a module: globals are initialized from their constant
// expressions, the default memory is allocated and filled from active data
// segments, and the table is filled from element segments. The returned VM is
// in StateReady with an empty call stack.
func NewVM(module *Module, breakpoints *Breakpoints, handler ImportHandler) (*VM, error) {
	if err := module.prepare(); err != nil {
		return nil, err
	}
	if breakpoints == nil {
		breakpoints = NewBreakpoints()
	}
	if handler == nil {
		handler = UnsupportedImportHandler{}
	}

	vm := &VM{
		module:        module,
		breakpoints:   breakpoints,
		importHandler: handler,
		state:         StateReady,
	}

	for i, global := range module.Globals {
		value, err := vm.evalConstExpr(global.InitExpr)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize global %d: %w", i, err)
		}
		if value.Kind() != global.Kind {
			return nil, fmt.Errorf(
				"global %d initializer has kind %s, want %s",
				i, value.Kind(), global.Kind,
			)
		}
		vm.globals = append(vm.globals, value)
	}

	if len(module.Memories) > 0 {
		vm.memory = NewMemory(module.Memories[0])
	}
	for i, segment := range module.DataSegments {
		if vm.memory == nil {
			return nil, fmt.Errorf("data segment %d targets a module without memory", i)
		}
		offset, err := vm.evalConstExpr(segment.OffsetExpr)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate data segment %d offset: %w", i, err)
		}
		dest, ok := offset.AsI32()
		if !ok {
			return nil, fmt.Errorf("data segment %d offset is not an i32", i)
		}
		if err := vm.memory.initSegment(uint32(dest), segment.Content); err != nil {
			return nil, fmt.Errorf("data segment %d: %w", i, err)
		}
	}

	if len(module.Tables) > 0 {
		vm.table = make([]int64, module.Tables[0].Limits.Min)
		for i := range vm.table {
			vm.table[i] = -1
		}
	}
	for i, segment := range module.ElementSegments {
		if vm.table == nil {
			return nil, fmt.Errorf("element segment %d targets a module without table", i)
		}
		offset, err := vm.evalConstExpr(segment.OffsetExpr)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate element segment %d offset: %w", i, err)
		}
		start, ok := offset.AsI32()
		if !ok {
			return nil, fmt.Errorf("element segment %d offset is not an i32", i)
		}
		if uint64(uint32(start))+uint64(len(segment.FuncIndexes)) > uint64(len(vm.table)) {
			return nil, fmt.Errorf("element segment %d does not fit in table", i)
		}
		for j, funcIndex := range segment.FuncIndexes {
			vm.table[uint32(start)+uint32(j)] = int64(funcIndex)
		}
	}

	return vm, nil
}

// evalConstExpr evaluates a constant expression against the globals
// initialized so far.
func (vm *VM) evalConstExpr(instrs []Instruction) (Value, error) {
	if len(instrs) != 1 {
		return Value{}, fmt.Errorf("constant expression must be a single instruction")
	}
	instr := instrs[0]
	switch instr.Op {
	case OpI32Const:
		return I32Value(int32(instr.Imm[0])), nil
	case OpI64Const:
		return I64Value(int64(instr.Imm[0])), nil
	case OpF32Const:
		return F32FromBits(uint32(instr.Imm[0])), nil
	case OpF64Const:
		return F64FromBits(instr.Imm[0]), nil
	case OpGlobalGet:
		index := uint32(instr.Imm[0])
		if int(index) >= len(vm.globals) {
			return Value{}, fmt.Errorf("constant expression reads uninitialized global %d", index)
		}
		return vm.globals[index], nil
	default:
		return Value{}, fmt.Errorf("unsupported instruction %s in constant expression", instr)
	}
}

// EntryPoint returns the module's entry function: the start section's
// function if present, otherwise the function exported as "main".
func (vm *VM) EntryPoint() (uint32, error) {
	if vm.module.StartIndex != nil {
		return *vm.module.StartIndex, nil
	}
	if index, ok := vm.module.ExportedFunc("main"); ok {
		return index, nil
	}
	return 0, errNoEntryPoint
}

// Start pushes the entry function's frame without executing anything, pausing
// at its first instruction.
func (vm *VM) Start() error {
	entry, err := vm.EntryPoint()
	if err != nil {
		return err
	}
	return vm.StartFunc(entry, nil)
}

// StartFunc pushes a frame for the given function, pausing at its first
// instruction. Missing arguments are zero filled; excess arguments or a kind
// mismatch is an error.
func (vm *VM) StartFunc(funcIndex uint32, args []Value) error {
	if vm.state != StateReady {
		return fmt.Errorf("instance already started (state %s)", vm.state)
	}
	if vm.module.IsImported(funcIndex) {
		return fmt.Errorf("function %d is imported and cannot be an entry point", funcIndex)
	}
	fn := vm.module.Func(funcIndex)
	if fn == nil {
		return fmt.Errorf("no function with index %d", funcIndex)
	}
	ftype, err := vm.module.FuncType(funcIndex)
	if err != nil {
		return err
	}
	if len(args) > len(ftype.Params) {
		return fmt.Errorf(
			"function %d takes %d arguments, got %d",
			funcIndex, len(ftype.Params), len(args),
		)
	}

	locals := make([]Value, 0, len(ftype.Params)+len(fn.Locals))
	for i, kind := range ftype.Params {
		if i < len(args) {
			if args[i].Kind() != kind {
				return fmt.Errorf(
					"argument %d has kind %s, want %s",
					i, args[i].Kind(), kind,
				)
			}
			locals = append(locals, args[i])
			continue
		}
		locals = append(locals, ZeroValue(kind))
	}
	for _, kind := range fn.Locals {
		locals = append(locals, ZeroValue(kind))
	}

	vm.frames = append(vm.frames, Frame{
		funcIndex: funcIndex,
		locals:    locals,
		stackBase: len(vm.valueStack),
	})
	vm.state = StatePaused
	return nil
}

// State returns the instance's lifecycle state.
func (vm *VM) State() VMState { return vm.state }

// Trap returns the trap that last stopped the instance, or nil if it has not
// stopped yet.
func (vm *VM) Trap() *Trap { return vm.trap }

// Module returns the module backing this instance.
func (vm *VM) Module() *Module { return vm.module }

// IP returns the position of the next instruction to execute. It reports
// false when no frame is live.
func (vm *VM) IP() (CodePosition, bool) {
	if len(vm.frames) == 0 {
		return CodePosition{}, false
	}
	frame := &vm.frames[len(vm.frames)-1]
	return CodePosition{FuncIndex: frame.funcIndex, InstrIndex: frame.pc}, true
}

// FrameCount returns the call stack depth.
func (vm *VM) FrameCount() int { return len(vm.frames) }

// FrameAt returns the i-th frame, 0 being the outermost.
func (vm *VM) FrameAt(i int) (*Frame, error) {
	if i < 0 || i >= len(vm.frames) {
		return nil, fmt.Errorf("no frame with index %d", i)
	}
	return &vm.frames[i], nil
}

// CallStack returns the position of every live frame, outermost first. For
// all but the innermost frame the position is the pending call instruction's
// successor.
func (vm *VM) CallStack() []CodePosition {
	stack := make([]CodePosition, len(vm.frames))
	for i := range vm.frames {
		stack[i] = CodePosition{
			FuncIndex:  vm.frames[i].funcIndex,
			InstrIndex: vm.frames[i].pc,
		}
	}
	return stack
}

// Backtrace returns the position of every live frame, innermost first: the
// instruction pointer, then each caller's pending call-instruction successor.
func (vm *VM) Backtrace() []CodePosition {
	trace := make([]CodePosition, len(vm.frames))
	for i := range vm.frames {
		frame := &vm.frames[len(vm.frames)-1-i]
		trace[i] = CodePosition{FuncIndex: frame.funcIndex, InstrIndex: frame.pc}
	}
	return trace
}

// ValueStack returns a copy of the value stack, bottom first.
func (vm *VM) ValueStack() []Value {
	out := make([]Value, len(vm.valueStack))
	copy(out, vm.valueStack)
	return out
}

// Globals returns a copy of the instance's global values.
func (vm *VM) Globals() []Value {
	out := make([]Value, len(vm.globals))
	copy(out, vm.globals)
	return out
}

// GlobalValue returns the value of the global at the given index.
func (vm *VM) GlobalValue(index uint32) (Value, error) {
	if int(index) >= len(vm.globals) {
		return Value{}, fmt.Errorf("no global with index %d", index)
	}
	return vm.globals[index], nil
}

// SetGlobal overwrites a global. The new value must match the global's kind;
// mutability is not enforced, this is a debugger.
func (vm *VM) SetGlobal(index uint32, value Value) error {
	if int(index) >= len(vm.globals) {
		return fmt.Errorf("no global with index %d", index)
	}
	if value.Kind() != vm.module.Globals[index].Kind {
		return fmt.Errorf(
			"global %d has kind %s, got %s",
			index, vm.module.Globals[index].Kind, value.Kind(),
		)
	}
	vm.globals[index] = value
	return nil
}

// DefaultMemory returns the instance's linear memory, or nil when the module
// declares none.
func (vm *VM) DefaultMemory() *Memory { return vm.memory }

// Breakpoints returns the registry this instance consults.
func (vm *VM) Breakpoints() *Breakpoints { return vm.breakpoints }

func (vm *VM) push(v Value) {
	vm.valueStack = append(vm.valueStack, v)
}

func (vm *VM) pop() (Value, error) {
	if len(vm.valueStack) == 0 {
		return Value{}, errValueStackUnderflow
	}
	v := vm.valueStack[len(vm.valueStack)-1]
	vm.valueStack = vm.valueStack[:len(vm.valueStack)-1]
	return v, nil
}

func (vm *VM) popI32() (int32, error) {
	v, err := vm.pop()
	if err != nil {
		return 0, err
	}
	return v.i32(), nil
}

func (vm *VM) popI64() (int64, error) {
	v, err := vm.pop()
	if err != nil {
		return 0, err
	}
	return v.i64(), nil
}

func (vm *VM) popF32() (float32, error) {
	v, err := vm.pop()
	if err != nil {
		return 0, err
	}
	return v.f32(), nil
}

func (vm *VM) popF64() (float64, error) {
	v, err := vm.pop()
	if err != nil {
		return 0, err
	}
	return v.f64(), nil
}

// fault records a trap and moves the instance to StateFaulted.
func (vm *VM) fault(kind TrapKind) *Trap {
	trap := newTrap(kind)
	vm.trap = trap
	vm.state = StateFaulted
	return trap
}

// executeStep runs exactly one instruction. A nil trap with a nil error means
// the instruction completed and execution can continue. A non-nil trap is
// either a pause (watchpoint), completion, or a fault; vm.state reflects it.
// A non-nil error means the instance hit an internal inconsistency that only
// a malformed module can produce.
func (vm *VM) executeStep() (*Trap, error) {
	switch vm.state {
	case StatePaused:
	case StateFinished, StateFaulted:
		return vm.trap, nil
	default:
		return nil, fmt.Errorf("instance not started")
	}

	frameIndex := len(vm.frames) - 1
	frame := &vm.frames[frameIndex]
	fn := vm.module.Func(frame.funcIndex)
	if fn == nil || int(frame.pc) >= len(fn.Instrs) {
		return nil, fmt.Errorf("instruction pointer out of bounds")
	}

	ip := frame.pc
	frame.pc = ip + 1
	trap, err := vm.executeInstruction(frame, fn, ip)
	if err != nil {
		return nil, err
	}
	if trap != nil {
		vm.trap = trap
		switch trap.Kind {
		case ExecutionFinished:
			vm.state = StateFinished
		case WatchpointReached, BreakpointReached:
			vm.state = StatePaused
		default:
			vm.state = StateFaulted
			// Rewind so the instruction pointer names the faulting
			// instruction. An unsupported import keeps its pseudo-frame on
			// top instead.
			if trap.Kind != UnsupportedCallToImportedFunction {
				vm.frames[frameIndex].pc = ip
			}
		}
	}
	return trap, nil
}
