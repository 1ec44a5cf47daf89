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
	"sync"
)

var (
	ErrNoFileLoaded              = errors.New("no file loaded")
	ErrNoRunningInstance         = errors.New("no running instance")
	ErrNoMemory                  = errors.New("no memory present")
	ErrInvalidBreakpointPosition = errors.New("invalid breakpoint position")
	ErrInvalidWatchpointTarget   = errors.New("invalid watchpoint target")
)

// Debugger is a debug session: one loaded module, one breakpoint registry and
// at most one running instance, all behind a single lock. Every method is
// safe to call from any goroutine; execution happens synchronously inside the
// call that requested it.
type Debugger struct {
	mu            sync.Mutex
	file          *File
	breakpoints   *Breakpoints
	vm            *VM
	importHandler ImportHandler
}

// NewDebugger creates an empty session. A nil handler rejects every import
// call.
func NewDebugger(handler ImportHandler) *Debugger {
	if handler == nil {
		handler = UnsupportedImportHandler{}
	}
	return &Debugger{
		breakpoints:   NewBreakpoints(),
		importHandler: handler,
	}
}

// SetImportHandler replaces the session's import handler. Instances created
// afterwards use the new handler.
func (d *Debugger) SetImportHandler(handler ImportHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if handler == nil {
		handler = UnsupportedImportHandler{}
	}
	d.importHandler = handler
}

// LoadFile loads a module from disk, replacing the current one. The running
// instance is discarded and all breakpoints are cleared, since their indices
// address the old module.
func (d *Debugger) LoadFile(path string) error {
	file, err := LoadFile(path)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.load(file)
	return nil
}

// LoadBytes loads a module from a binary image in memory.
func (d *Debugger) LoadBytes(data []byte) error {
	file, err := LoadBytes(data)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.load(file)
	return nil
}

// LoadModule loads an already decoded module.
func (d *Debugger) LoadModule(module *Module) error {
	if err := module.prepare(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.load(&File{module: module})
	return nil
}

func (d *Debugger) load(file *File) {
	d.file = file
	d.vm = nil
	d.breakpoints.Clear()
}

// File returns the loaded file, or nil when nothing is loaded.
func (d *Debugger) File() *File {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.file
}

// Module returns the loaded module.
func (d *Debugger) Module() (*Module, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return nil, ErrNoFileLoaded
	}
	return d.file.module, nil
}

// newInstance replaces the running instance with a fresh one. Callers hold
// d.mu.
func (d *Debugger) newInstance() error {
	if d.file == nil {
		return ErrNoFileLoaded
	}
	vm, err := NewVM(d.file.module, d.breakpoints, d.importHandler)
	if err != nil {
		return err
	}
	d.vm = vm
	return nil
}

func (d *Debugger) instance() (*VM, error) {
	if d.vm == nil {
		return nil, ErrNoRunningInstance
	}
	return d.vm, nil
}

// Run instantiates the module anew and runs it from its entry point until
// the first stop.
func (d *Debugger) Run() (*Trap, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.newInstance(); err != nil {
		return nil, err
	}
	return d.vm.Run()
}

// Start instantiates the module anew and pauses at the entry point's first
// instruction without executing anything.
func (d *Debugger) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.newInstance(); err != nil {
		return err
	}
	return d.vm.Start()
}

// StartFunc instantiates the module anew and pauses at the first instruction
// of the given function. Missing arguments are zero filled; excess arguments
// are an error.
func (d *Debugger) StartFunc(funcIndex uint32, args []Value) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.newInstance(); err != nil {
		return err
	}
	return d.vm.StartFunc(funcIndex, args)
}

// RunFunc instantiates the module anew and runs the given function until the
// first stop.
func (d *Debugger) RunFunc(funcIndex uint32, args []Value) (*Trap, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.newInstance(); err != nil {
		return nil, err
	}
	if err := d.vm.StartFunc(funcIndex, args); err != nil {
		return nil, err
	}
	if trap := d.vm.checkCodeBreakpoint(); trap != nil {
		return trap, nil
	}
	return d.vm.ContinueExecution()
}

// Step executes one instruction of the running instance.
func (d *Debugger) Step() (*Trap, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	vm, err := d.instance()
	if err != nil {
		return nil, err
	}
	return vm.Step()
}

// StepOver executes one instruction, running called functions to completion.
func (d *Debugger) StepOver() (*Trap, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	vm, err := d.instance()
	if err != nil {
		return nil, err
	}
	return vm.StepOver()
}

// StepOut runs until the current function returns.
func (d *Debugger) StepOut() (*Trap, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	vm, err := d.instance()
	if err != nil {
		return nil, err
	}
	return vm.StepOut()
}

// Continue resumes execution until the next stop.
func (d *Debugger) Continue() (*Trap, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	vm, err := d.instance()
	if err != nil {
		return nil, err
	}
	return vm.ContinueExecution()
}

// Reset discards the running instance but keeps the loaded module and the
// breakpoints.
func (d *Debugger) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.vm = nil
}

// State returns the running instance's state.
func (d *Debugger) State() (VMState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	vm, err := d.instance()
	if err != nil {
		return 0, err
	}
	return vm.State(), nil
}

// Trap returns the trap that last stopped the running instance, nil if it has
// not stopped yet.
func (d *Debugger) Trap() (*Trap, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	vm, err := d.instance()
	if err != nil {
		return nil, err
	}
	return vm.Trap(), nil
}

// IP returns the position of the next instruction to execute.
func (d *Debugger) IP() (CodePosition, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	vm, err := d.instance()
	if err != nil {
		return CodePosition{}, err
	}
	pos, ok := vm.IP()
	if !ok {
		return CodePosition{}, ErrNoRunningInstance
	}
	return pos, nil
}

// CallStack returns the position of every live frame, outermost first.
func (d *Debugger) CallStack() ([]CodePosition, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	vm, err := d.instance()
	if err != nil {
		return nil, err
	}
	return vm.CallStack(), nil
}

// Backtrace returns the position of every live frame, innermost first.
func (d *Debugger) Backtrace() ([]CodePosition, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	vm, err := d.instance()
	if err != nil {
		return nil, err
	}
	return vm.Backtrace(), nil
}

// ValueStack returns a copy of the running instance's value stack, bottom
// first.
func (d *Debugger) ValueStack() ([]Value, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	vm, err := d.instance()
	if err != nil {
		return nil, err
	}
	return vm.ValueStack(), nil
}

// frameAtLevel resolves a call stack level: non-negative levels count from
// the outermost frame, negative levels from the innermost (-1 is the
// innermost). Callers hold d.mu.
func (d *Debugger) frameAtLevel(level int) (*Frame, error) {
	vm, err := d.instance()
	if err != nil {
		return nil, err
	}
	if level < 0 {
		level += vm.FrameCount()
	}
	return vm.FrameAt(level)
}

// Locals returns a copy of the locals of the frame at the given level,
// parameters first. Negative levels count from the innermost frame.
func (d *Debugger) Locals(level int) ([]Value, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	frame, err := d.frameAtLevel(level)
	if err != nil {
		return nil, err
	}
	locals := frame.Locals()
	out := make([]Value, len(locals))
	copy(out, locals)
	return out, nil
}

// SetLocal overwrites one local of the frame at the given level. The new
// value must match the local's current kind.
func (d *Debugger) SetLocal(level int, index uint32, value Value) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	frame, err := d.frameAtLevel(level)
	if err != nil {
		return err
	}
	locals := frame.Locals()
	if int(index) >= len(locals) {
		return fmt.Errorf("no local with index %d", index)
	}
	if locals[index].Kind() != value.Kind() {
		return fmt.Errorf(
			"local %d has kind %s, got %s",
			index, locals[index].Kind(), value.Kind(),
		)
	}
	locals[index] = value
	return nil
}

// Globals returns a copy of the running instance's globals.
func (d *Debugger) Globals() ([]Value, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	vm, err := d.instance()
	if err != nil {
		return nil, err
	}
	return vm.Globals(), nil
}

// GlobalValue returns the value of one global.
func (d *Debugger) GlobalValue(index uint32) (Value, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	vm, err := d.instance()
	if err != nil {
		return Value{}, err
	}
	return vm.GlobalValue(index)
}

// SetGlobal overwrites one global of the running instance.
func (d *Debugger) SetGlobal(index uint32, value Value) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	vm, err := d.instance()
	if err != nil {
		return err
	}
	return vm.SetGlobal(index, value)
}

// ReadMemory returns a copy of length bytes of linear memory at addr.
func (d *Debugger) ReadMemory(addr, length uint32) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	vm, err := d.instance()
	if err != nil {
		return nil, err
	}
	memory := vm.DefaultMemory()
	if memory == nil {
		return nil, ErrNoMemory
	}
	return memory.Read(addr, length)
}

// WriteMemory overwrites linear memory at addr.
func (d *Debugger) WriteMemory(addr uint32, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	vm, err := d.instance()
	if err != nil {
		return err
	}
	memory := vm.DefaultMemory()
	if memory == nil {
		return ErrNoMemory
	}
	return memory.Write(addr, data)
}

// MemoryPages returns the current size of linear memory in pages.
func (d *Debugger) MemoryPages() (int32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	vm, err := d.instance()
	if err != nil {
		return 0, err
	}
	memory := vm.DefaultMemory()
	if memory == nil {
		return 0, ErrNoMemory
	}
	return memory.Size(), nil
}

// AddBreakpoint registers a code breakpoint. The position must name an
// instruction of a locally defined function of the loaded module; a rejected
// add consumes no index.
func (d *Debugger) AddBreakpoint(pos CodePosition) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return 0, ErrNoFileLoaded
	}
	fn := d.file.module.Func(pos.FuncIndex)
	if fn == nil || int(pos.InstrIndex) >= len(fn.Instrs) {
		return 0, ErrInvalidBreakpointPosition
	}
	return d.breakpoints.Add(CodeBreakpoint{Position: pos}), nil
}

// AddGlobalWatchpoint registers a watchpoint on accesses to a global.
func (d *Debugger) AddGlobalWatchpoint(trigger WatchTrigger, globalIndex uint32) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return 0, ErrNoFileLoaded
	}
	if int(globalIndex) >= len(d.file.module.Globals) {
		return 0, ErrInvalidWatchpointTarget
	}
	return d.breakpoints.Add(GlobalWatchpoint{
		Trigger:     trigger,
		GlobalIndex: globalIndex,
	}), nil
}

// AddMemoryWatchpoint registers a watchpoint on accesses to a memory range.
func (d *Debugger) AddMemoryWatchpoint(trigger WatchTrigger, start, length uint32) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return 0, ErrNoFileLoaded
	}
	if length == 0 {
		return 0, ErrInvalidWatchpointTarget
	}
	return d.breakpoints.Add(MemoryWatchpoint{
		Trigger: trigger,
		Start:   start,
		Length:  length,
	}), nil
}

// DeleteBreakpoint removes one breakpoint or watchpoint by index. It reports
// whether the index existed; an unknown index is not an error.
func (d *Debugger) DeleteBreakpoint(index uint32) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return false, ErrNoFileLoaded
	}
	return d.breakpoints.Delete(index), nil
}

// ClearBreakpoints removes every breakpoint and watchpoint.
func (d *Debugger) ClearBreakpoints() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.breakpoints.Clear()
}

// Breakpoints lists every registered breakpoint in ascending index order.
func (d *Debugger) Breakpoints() []IndexedBreakpoint {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.breakpoints.All()
}
