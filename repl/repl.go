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

// Package repl is the interactive debugger shell.
package repl

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/wasmdbg/wasmdbg/wasmdbg"
)

const prompt = ">> "

type UsageError struct{}

func (e *UsageError) Error() string { return "wrong command usage" }

func NewUsageError() error { return &UsageError{} }

type Command struct {
	Usage   string
	Handler func(r *Repl, args []string) error
}

type Repl struct {
	debugger *wasmdbg.Debugger
	scanner  *bufio.Scanner
	commands map[string]Command
}

func NewRepl(debugger *wasmdbg.Debugger) *Repl {
	if debugger == nil {
		debugger = wasmdbg.NewDebugger(nil)
	}
	return &Repl{
		debugger: debugger,
		scanner:  bufio.NewScanner(os.Stdin),
		commands: map[string]Command{
			"LOAD": {
				Usage:   "LOAD <path-to-file | url>",
				Handler: (*Repl).handleLoad,
			},
			"RUN": {
				Usage:   "RUN",
				Handler: (*Repl).handleRun,
			},
			"START": {
				Usage:   "START",
				Handler: (*Repl).handleStart,
			},
			"CALL": {
				Usage:   "CALL <function-name | function-index> [args...]",
				Handler: (*Repl).handleCall,
			},
			"STEP": {
				Usage:   "STEP [<count>]",
				Handler: (*Repl).handleStep,
			},
			"NEXT": {
				Usage:   "NEXT",
				Handler: (*Repl).handleNext,
			},
			"FINISH": {
				Usage:   "FINISH",
				Handler: (*Repl).handleFinish,
			},
			"CONTINUE": {
				Usage:   "CONTINUE",
				Handler: (*Repl).handleContinue,
			},
			"BT": {
				Usage:   "BT",
				Handler: (*Repl).handleBacktrace,
			},
			"LOCALS": {
				Usage:   "LOCALS [<level>]",
				Handler: (*Repl).handleLocals,
			},
			"GLOBALS": {
				Usage:   "GLOBALS",
				Handler: (*Repl).handleGlobals,
			},
			"STACK": {
				Usage:   "STACK",
				Handler: (*Repl).handleStack,
			},
			"MEM": {
				Usage:   "MEM <offset> <length>",
				Handler: (*Repl).handleMem,
			},
			"DISAS": {
				Usage:   "DISAS [<function-name | function-index>]",
				Handler: (*Repl).handleDisas,
			},
			"BREAK": {
				Usage:   "BREAK <function-name | function-index> <instr-index>",
				Handler: (*Repl).handleBreak,
			},
			"WATCH": {
				Usage:   "WATCH <global <index> | memory <start> <length>> [r | w | rw]",
				Handler: (*Repl).handleWatch,
			},
			"DELETE": {
				Usage:   "DELETE <breakpoint-index>",
				Handler: (*Repl).handleDelete,
			},
			"SET": {
				Usage:   "SET <local <level> <index> | global <index>> <value>",
				Handler: (*Repl).handleSet,
			},
			"INFO": {
				Usage:   "INFO",
				Handler: (*Repl).handleInfo,
			},
			"RESET": {
				Usage:   "RESET",
				Handler: (*Repl).handleReset,
			},
			"/help": {
				Usage:   "/help",
				Handler: (*Repl).handleHelp,
			},
			"/clear": {
				Usage:   "/clear",
				Handler: (*Repl).handleClear,
			},
			"/quit": {
				Usage:   "/quit",
				Handler: (*Repl).handleQuit,
			},
		},
	}
}

func Start(debugger *wasmdbg.Debugger) {
	// Handle CTRL-C
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		fmt.Println("\nBye!")
		os.Exit(0)
	}()

	NewRepl(debugger).run()
}

func (r *Repl) run() {
	fmt.Print(prompt)

	for r.scanner.Scan() {
		line := r.scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			fmt.Print(prompt)
			continue
		}

		cmdName := parts[0]
		args := parts[1:]

		if cmd, ok := r.commands[strings.ToUpper(cmdName)]; ok && !strings.HasPrefix(cmdName, "/") {
			r.dispatch(cmd, args)
		} else if cmd, ok := r.commands[cmdName]; ok {
			r.dispatch(cmd, args)
		} else {
			fmt.Fprintln(
				os.Stderr, Red(fmt.Sprintf("Error: unknown command: %s", cmdName)),
			)
		}
		fmt.Print(prompt)
	}
}

func (r *Repl) dispatch(cmd Command, args []string) {
	if err := cmd.Handler(r, args); err != nil {
		var usageErr *UsageError
		if errors.As(err, &usageErr) {
			fmt.Fprintln(os.Stderr, Red(fmt.Sprintf("Usage: %s", cmd.Usage)))
		} else {
			fmt.Fprintln(os.Stderr, Red(fmt.Sprintf("Error: %s", err)))
		}
	}
}

func (r *Repl) handleLoad(args []string) error {
	if len(args) != 1 {
		return NewUsageError()
	}

	data, err := FetchModule(args[0])
	if err != nil {
		return err
	}
	if err := r.debugger.LoadBytes(data); err != nil {
		return err
	}
	fmt.Println(Green(fmt.Sprintf("'%s' loaded.", args[0])))
	return nil
}

func (r *Repl) handleRun(args []string) error {
	if len(args) != 0 {
		return NewUsageError()
	}
	trap, err := r.debugger.Run()
	if err != nil {
		return err
	}
	return r.reportTrap(trap)
}

func (r *Repl) handleStart(args []string) error {
	if len(args) != 0 {
		return NewUsageError()
	}
	if err := r.debugger.Start(); err != nil {
		return err
	}
	return r.reportTrap(nil)
}

func (r *Repl) handleCall(args []string) error {
	if len(args) < 1 {
		return NewUsageError()
	}

	funcIndex, err := r.resolveFunc(args[0])
	if err != nil {
		return err
	}

	module, err := r.debugger.Module()
	if err != nil {
		return err
	}
	funcType, err := module.FuncType(funcIndex)
	if err != nil {
		return err
	}

	strArgs := args[1:]
	if len(strArgs) > len(funcType.Params) {
		return fmt.Errorf(
			"too many arguments for function %d; expected at most %d, got %d",
			funcIndex,
			len(funcType.Params),
			len(strArgs),
		)
	}

	callArgs := make([]wasmdbg.Value, 0, len(strArgs))
	for i, strArg := range strArgs {
		value, err := wasmdbg.ParseValue(strArg, funcType.Params[i])
		if err != nil {
			return err
		}
		callArgs = append(callArgs, value)
	}

	trap, err := r.debugger.RunFunc(funcIndex, callArgs)
	if err != nil {
		return err
	}
	return r.reportTrap(trap)
}

func (r *Repl) handleStep(args []string) error {
	count := 1
	switch len(args) {
	case 0:
	case 1:
		parsed, err := strconv.Atoi(args[0])
		if err != nil || parsed < 1 {
			return fmt.Errorf("invalid step count: %s", args[0])
		}
		count = parsed
	default:
		return NewUsageError()
	}

	var trap *wasmdbg.Trap
	for i := 0; i < count; i++ {
		var err error
		trap, err = r.debugger.Step()
		if err != nil {
			return err
		}
		if trap != nil {
			break
		}
	}
	return r.reportTrap(trap)
}

func (r *Repl) handleNext(args []string) error {
	if len(args) != 0 {
		return NewUsageError()
	}
	trap, err := r.debugger.StepOver()
	if err != nil {
		return err
	}
	return r.reportTrap(trap)
}

func (r *Repl) handleFinish(args []string) error {
	if len(args) != 0 {
		return NewUsageError()
	}
	trap, err := r.debugger.StepOut()
	if err != nil {
		return err
	}
	return r.reportTrap(trap)
}

func (r *Repl) handleContinue(args []string) error {
	if len(args) != 0 {
		return NewUsageError()
	}
	trap, err := r.debugger.Continue()
	if err != nil {
		return err
	}
	return r.reportTrap(trap)
}

func (r *Repl) handleBacktrace(args []string) error {
	if len(args) != 0 {
		return NewUsageError()
	}
	frames, err := r.debugger.Backtrace()
	if err != nil {
		return err
	}
	for i, frame := range frames {
		marker := "  "
		if i == 0 {
			marker = "=>"
		}
		fmt.Printf("%s #%d %s (%s)\n", marker, i, r.funcLabel(frame.FuncIndex), frame)
	}
	return nil
}

func (r *Repl) handleLocals(args []string) error {
	level := -1
	switch len(args) {
	case 0:
	case 1:
		parsed, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid frame level: %s", args[0])
		}
		level = parsed
	default:
		return NewUsageError()
	}

	locals, err := r.debugger.Locals(level)
	if err != nil {
		return err
	}
	for i, local := range locals {
		fmt.Printf("local %d: %s\n", i, local)
	}
	return nil
}

func (r *Repl) handleGlobals(args []string) error {
	if len(args) != 0 {
		return NewUsageError()
	}
	globals, err := r.debugger.Globals()
	if err != nil {
		return err
	}
	for i, global := range globals {
		fmt.Printf("global %d: %s\n", i, global)
	}
	return nil
}

func (r *Repl) handleStack(args []string) error {
	if len(args) != 0 {
		return NewUsageError()
	}
	values, err := r.debugger.ValueStack()
	if err != nil {
		return err
	}
	for i := len(values) - 1; i >= 0; i-- {
		fmt.Printf("%4d: %s\n", i, values[i])
	}
	return nil
}

func (r *Repl) handleMem(args []string) error {
	if len(args) != 2 {
		return NewUsageError()
	}

	offset, err := strconv.ParseUint(args[0], 0, 32)
	if err != nil {
		return fmt.Errorf("invalid offset: %s", args[0])
	}
	length, err := strconv.ParseUint(args[1], 0, 32)
	if err != nil {
		return fmt.Errorf("invalid length: %s", args[1])
	}

	data, err := r.debugger.ReadMemory(uint32(offset), uint32(length))
	if err != nil {
		return err
	}
	printHexDump(uint32(offset), data)
	return nil
}

const hexDumpWidth = 16

func printHexDump(base uint32, data []byte) {
	for start := 0; start < len(data); start += hexDumpWidth {
		end := start + hexDumpWidth
		if end > len(data) {
			end = len(data)
		}
		row := data[start:end]

		var hex, ascii strings.Builder
		for i, b := range row {
			if i == hexDumpWidth/2 {
				hex.WriteByte(' ')
			}
			fmt.Fprintf(&hex, "%02x ", b)
			if b >= 0x20 && b < 0x7f {
				ascii.WriteByte(b)
			} else {
				ascii.WriteByte('.')
			}
		}
		fmt.Printf("%08x  %-49s |%s|\n", base+uint32(start), hex.String(), ascii.String())
	}
}

func (r *Repl) handleDisas(args []string) error {
	module, err := r.debugger.Module()
	if err != nil {
		return err
	}

	var funcIndex uint32
	switch len(args) {
	case 0:
		pos, err := r.debugger.IP()
		if err != nil {
			return err
		}
		funcIndex = pos.FuncIndex
	case 1:
		funcIndex, err = r.resolveFunc(args[0])
		if err != nil {
			return err
		}
	default:
		return NewUsageError()
	}

	fn := module.Func(funcIndex)
	if fn == nil {
		return fmt.Errorf("function %d is imported or does not exist", funcIndex)
	}

	current := -1
	if pos, err := r.debugger.IP(); err == nil && pos.FuncIndex == funcIndex {
		current = int(pos.InstrIndex)
	}

	fmt.Printf("%s:\n", r.funcLabel(funcIndex))
	for i, instr := range fn.Instrs {
		line := fmt.Sprintf("%5d: %s", i, instr)
		if i == current {
			line = Yellow("=> " + line)
		} else {
			line = "   " + line
		}
		fmt.Println(line)
	}
	return nil
}

func (r *Repl) handleBreak(args []string) error {
	if len(args) != 2 {
		return NewUsageError()
	}
	funcIndex, err := r.resolveFunc(args[0])
	if err != nil {
		return err
	}
	instrIndex, err := strconv.ParseUint(args[1], 0, 32)
	if err != nil {
		return fmt.Errorf("invalid instruction index: %s", args[1])
	}

	index, err := r.debugger.AddBreakpoint(wasmdbg.CodePosition{
		FuncIndex:  funcIndex,
		InstrIndex: uint32(instrIndex),
	})
	if err != nil {
		return err
	}
	fmt.Println(Green(fmt.Sprintf("Breakpoint %d set.", index)))
	return nil
}

func (r *Repl) handleWatch(args []string) error {
	if len(args) < 2 {
		return NewUsageError()
	}

	var index uint32
	var err error
	switch strings.ToLower(args[0]) {
	case "global":
		if len(args) < 2 || len(args) > 3 {
			return NewUsageError()
		}
		globalIndex, parseErr := strconv.ParseUint(args[1], 0, 32)
		if parseErr != nil {
			return fmt.Errorf("invalid global index: %s", args[1])
		}
		trigger, triggerErr := parseTrigger(args[2:])
		if triggerErr != nil {
			return triggerErr
		}
		index, err = r.debugger.AddGlobalWatchpoint(trigger, uint32(globalIndex))
	case "memory":
		if len(args) < 3 || len(args) > 4 {
			return NewUsageError()
		}
		start, parseErr := strconv.ParseUint(args[1], 0, 32)
		if parseErr != nil {
			return fmt.Errorf("invalid start address: %s", args[1])
		}
		length, parseErr := strconv.ParseUint(args[2], 0, 32)
		if parseErr != nil {
			return fmt.Errorf("invalid length: %s", args[2])
		}
		trigger, triggerErr := parseTrigger(args[3:])
		if triggerErr != nil {
			return triggerErr
		}
		index, err = r.debugger.AddMemoryWatchpoint(trigger, uint32(start), uint32(length))
	default:
		return NewUsageError()
	}
	if err != nil {
		return err
	}
	fmt.Println(Green(fmt.Sprintf("Watchpoint %d set.", index)))
	return nil
}

func parseTrigger(args []string) (wasmdbg.WatchTrigger, error) {
	if len(args) == 0 {
		return wasmdbg.WatchWrite, nil
	}
	switch strings.ToLower(args[0]) {
	case "r":
		return wasmdbg.WatchRead, nil
	case "w":
		return wasmdbg.WatchWrite, nil
	case "rw":
		return wasmdbg.WatchReadWrite, nil
	default:
		return 0, fmt.Errorf("invalid trigger %q; want r, w or rw", args[0])
	}
}

func (r *Repl) handleDelete(args []string) error {
	if len(args) != 1 {
		return NewUsageError()
	}
	index, err := strconv.ParseUint(args[0], 0, 32)
	if err != nil {
		return fmt.Errorf("invalid breakpoint index: %s", args[0])
	}
	deleted, err := r.debugger.DeleteBreakpoint(uint32(index))
	if err != nil {
		return err
	}
	if !deleted {
		fmt.Printf("No breakpoint with index %d.\n", index)
		return nil
	}
	fmt.Println(Green(fmt.Sprintf("Breakpoint %d deleted.", index)))
	return nil
}

func (r *Repl) handleSet(args []string) error {
	if len(args) < 1 {
		return NewUsageError()
	}
	switch strings.ToLower(args[0]) {
	case "local":
		if len(args) != 4 {
			return NewUsageError()
		}
		level, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid frame level: %s", args[1])
		}
		index, err := strconv.ParseUint(args[2], 0, 32)
		if err != nil {
			return fmt.Errorf("invalid local index: %s", args[2])
		}
		locals, err := r.debugger.Locals(level)
		if err != nil {
			return err
		}
		if int(index) >= len(locals) {
			return fmt.Errorf("no local with index %d", index)
		}
		value, err := wasmdbg.ParseValue(args[3], locals[index].Kind())
		if err != nil {
			return err
		}
		return r.debugger.SetLocal(level, uint32(index), value)
	case "global":
		if len(args) != 3 {
			return NewUsageError()
		}
		index, err := strconv.ParseUint(args[1], 0, 32)
		if err != nil {
			return fmt.Errorf("invalid global index: %s", args[1])
		}
		current, err := r.debugger.GlobalValue(uint32(index))
		if err != nil {
			return err
		}
		value, err := wasmdbg.ParseValue(args[2], current.Kind())
		if err != nil {
			return err
		}
		return r.debugger.SetGlobal(uint32(index), value)
	default:
		return NewUsageError()
	}
}

func (r *Repl) handleInfo(args []string) error {
	if len(args) != 0 {
		return NewUsageError()
	}

	module, err := r.debugger.Module()
	if err != nil {
		return err
	}

	if name := module.DebugInfo().ModuleName(); name != "" {
		fmt.Printf("module:      %s\n", name)
	}
	fmt.Printf("functions:   %d (%d imported)\n", module.FunctionCount(), len(module.ImportedFuncs))
	fmt.Printf("globals:     %d\n", len(module.Globals))
	fmt.Printf("exports:     %d\n", len(module.Exports))
	if pages, err := r.debugger.MemoryPages(); err == nil {
		fmt.Printf("memory:      %d pages\n", pages)
	}
	if state, err := r.debugger.State(); err == nil {
		fmt.Printf("state:       %s\n", state)
		if trap, err := r.debugger.Trap(); err == nil && trap != nil {
			fmt.Printf("trap:        %s\n", trap)
		}
		if pos, err := r.debugger.IP(); err == nil {
			fmt.Printf("position:    %s (%s)\n", pos, r.funcLabel(pos.FuncIndex))
		}
	} else {
		fmt.Println("state:       not running")
	}

	breakpoints := r.debugger.Breakpoints()
	if len(breakpoints) == 0 {
		fmt.Println("breakpoints: none")
		return nil
	}
	fmt.Println("breakpoints:")
	for _, bp := range breakpoints {
		fmt.Printf("  %d: %s\n", bp.Index, bp.Breakpoint)
	}
	return nil
}

func (r *Repl) handleReset(args []string) error {
	if len(args) != 0 {
		return NewUsageError()
	}
	r.debugger.Reset()
	fmt.Println(Green("Instance discarded."))
	return nil
}

func (r *Repl) handleHelp(args []string) error {
	for _, cmd := range r.commands {
		fmt.Println(cmd.Usage)
	}
	return nil
}

func (r *Repl) handleClear(args []string) error {
	fmt.Print("\033[H\033[2J")
	return nil
}

func (r *Repl) handleQuit(args []string) error {
	os.Exit(0)
	return nil
}

// reportTrap prints where and why execution stopped. A nil trap means the
// instance is paused without having hit anything.
func (r *Repl) reportTrap(trap *wasmdbg.Trap) error {
	if trap != nil {
		switch {
		case trap.Kind == wasmdbg.ExecutionFinished:
			fmt.Println(Green("Execution finished."))
			return r.printResults()
		case trap.IsFault():
			fmt.Println(Red(fmt.Sprintf("Trap: %s", trap)))
		default:
			fmt.Println(Yellow(trap.String()))
		}
	}
	return r.printLocation()
}

// printResults shows what the finished instance left on the value stack.
func (r *Repl) printResults() error {
	values, err := r.debugger.ValueStack()
	if err != nil {
		return err
	}
	for _, v := range values {
		fmt.Println(Green(v.String()))
	}
	return nil
}

func (r *Repl) printLocation() error {
	pos, err := r.debugger.IP()
	if err != nil {
		return nil
	}

	line := fmt.Sprintf("%s (%s)", pos, r.funcLabel(pos.FuncIndex))
	if module, err := r.debugger.Module(); err == nil {
		if fn := module.Func(pos.FuncIndex); fn != nil && int(pos.InstrIndex) < len(fn.Instrs) {
			line += fmt.Sprintf(": %s", fn.Instrs[pos.InstrIndex])
		}
	}
	fmt.Println(line)
	return nil
}

// funcLabel names a function for display, preferring the name section.
func (r *Repl) funcLabel(funcIndex uint32) string {
	module, err := r.debugger.Module()
	if err != nil {
		return fmt.Sprintf("func %d", funcIndex)
	}
	if name, ok := module.DebugInfo().FunctionName(funcIndex); ok {
		return name
	}
	for _, export := range module.Exports {
		if export.Kind == wasmdbg.ExportFunc && export.Index == funcIndex {
			return export.Name
		}
	}
	return fmt.Sprintf("func %d", funcIndex)
}

// resolveFunc turns a function name or numeric index into a function index.
func (r *Repl) resolveFunc(arg string) (uint32, error) {
	module, err := r.debugger.Module()
	if err != nil {
		return 0, err
	}
	if index, ok := module.ExportedFunc(arg); ok {
		return index, nil
	}
	if name := module.DebugInfo(); name != nil {
		for i := uint32(0); i < module.FunctionCount(); i++ {
			if n, ok := name.FunctionName(i); ok && n == arg {
				return i, nil
			}
		}
	}
	index, err := strconv.ParseUint(arg, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("no function named %q", arg)
	}
	if index >= uint64(module.FunctionCount()) {
		return 0, fmt.Errorf("no function with index %d", index)
	}
	return uint32(index), nil
}
