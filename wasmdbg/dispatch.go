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

// executeInstruction dispatches the instruction at ip. frame is the innermost
// frame; frame.pc has already been advanced to ip+1 and control instructions
// overwrite it.
func (vm *VM) executeInstruction(frame *Frame, fn *Function, ip uint32) (*Trap, error) {
	instr := fn.Instrs[ip]

	switch instr.Op {
	case OpUnreachable:
		return newTrap(UnreachableExecuted), nil
	case OpNop:
		return nil, nil

	case OpBlock, OpLoop:
		frame.labels = append(frame.labels, label{
			opener:      ip,
			stackHeight: len(vm.valueStack),
			arity:       blockArity(instr),
			isLoop:      instr.Op == OpLoop,
		})
		return nil, nil

	case OpIf:
		cond, err := vm.popI32()
		if err != nil {
			return nil, err
		}
		frame.labels = append(frame.labels, label{
			opener:      ip,
			stackHeight: len(vm.valueStack),
			arity:       blockArity(instr),
		})
		if cond == 0 {
			target := fn.matchElse[ip]
			if fn.Instrs[target].Op == OpElse {
				frame.pc = target + 1
			} else {
				// No else arm; land on the end so the label is popped.
				frame.pc = target
			}
		}
		return nil, nil

	case OpElse:
		// Reached by falling off the then arm; skip to the matching end.
		if len(frame.labels) == 0 {
			return nil, errors.New("else outside of any block")
		}
		top := frame.labels[len(frame.labels)-1]
		frame.pc = fn.matchEnd[top.opener]
		return nil, nil

	case OpEnd:
		if int(ip) == len(fn.Instrs)-1 {
			return vm.returnFromFrame()
		}
		if len(frame.labels) == 0 {
			return nil, errors.New("end outside of any block")
		}
		frame.labels = frame.labels[:len(frame.labels)-1]
		return nil, nil

	case OpBr:
		return vm.branch(frame, fn, uint32(instr.Imm[0]))

	case OpBrIf:
		cond, err := vm.popI32()
		if err != nil {
			return nil, err
		}
		if cond == 0 {
			return nil, nil
		}
		return vm.branch(frame, fn, uint32(instr.Imm[0]))

	case OpBrTable:
		index, err := vm.popI32()
		if err != nil {
			return nil, err
		}
		targets := instr.Imm
		depth := targets[len(targets)-1] // default
		if uint32(index) < uint32(len(targets)-1) {
			depth = targets[index]
		}
		return vm.branch(frame, fn, uint32(depth))

	case OpReturn:
		return vm.returnFromFrame()

	case OpCall:
		return vm.call(uint32(instr.Imm[0]))

	case OpCallIndirect:
		elem, err := vm.popI32()
		if err != nil {
			return nil, err
		}
		if vm.table == nil || uint32(elem) >= uint32(len(vm.table)) {
			return newTrap(UndefinedTableIndex), nil
		}
		entry := vm.table[uint32(elem)]
		if entry < 0 {
			return newTrap(UndefinedTableIndex), nil
		}
		funcIndex := uint32(entry)
		callee, err := vm.module.FuncType(funcIndex)
		if err != nil {
			return newTrap(UndefinedTableIndex), nil
		}
		typeIndex := uint32(instr.Imm[0])
		if int(typeIndex) >= len(vm.module.Types) {
			return nil, fmt.Errorf("call_indirect references invalid type %d", typeIndex)
		}
		if !callee.Equal(&vm.module.Types[typeIndex]) {
			return newTrap(IndirectCallTypeMismatch), nil
		}
		return vm.call(funcIndex)

	case OpDrop:
		_, err := vm.pop()
		return nil, err

	case OpSelect:
		cond, err := vm.popI32()
		if err != nil {
			return nil, err
		}
		b, err := vm.pop()
		if err != nil {
			return nil, err
		}
		a, err := vm.pop()
		if err != nil {
			return nil, err
		}
		if cond != 0 {
			vm.push(a)
		} else {
			vm.push(b)
		}
		return nil, nil

	case OpLocalGet:
		index := uint32(instr.Imm[0])
		if int(index) >= len(frame.locals) {
			return nil, fmt.Errorf("no local with index %d", index)
		}
		vm.push(frame.locals[index])
		return nil, nil

	case OpLocalSet:
		index := uint32(instr.Imm[0])
		if int(index) >= len(frame.locals) {
			return nil, fmt.Errorf("no local with index %d", index)
		}
		v, err := vm.pop()
		if err != nil {
			return nil, err
		}
		frame.locals[index] = v
		return nil, nil

	case OpLocalTee:
		index := uint32(instr.Imm[0])
		if int(index) >= len(frame.locals) {
			return nil, fmt.Errorf("no local with index %d", index)
		}
		if len(vm.valueStack) == 0 {
			return nil, errValueStackUnderflow
		}
		frame.locals[index] = vm.valueStack[len(vm.valueStack)-1]
		return nil, nil

	case OpGlobalGet:
		index := uint32(instr.Imm[0])
		if int(index) >= len(vm.globals) {
			return nil, fmt.Errorf("no global with index %d", index)
		}
		vm.push(vm.globals[index])
		if wp, ok := vm.breakpoints.findGlobal(index, WatchRead); ok {
			return trapWatchpoint(wp), nil
		}
		return nil, nil

	case OpGlobalSet:
		index := uint32(instr.Imm[0])
		if int(index) >= len(vm.globals) {
			return nil, fmt.Errorf("no global with index %d", index)
		}
		v, err := vm.pop()
		if err != nil {
			return nil, err
		}
		vm.globals[index] = v
		if wp, ok := vm.breakpoints.findGlobal(index, WatchWrite); ok {
			return trapWatchpoint(wp), nil
		}
		return nil, nil

	case OpI32Load, OpI64Load, OpF32Load, OpF64Load,
		OpI32Load8S, OpI32Load8U, OpI32Load16S, OpI32Load16U,
		OpI64Load8S, OpI64Load8U, OpI64Load16S, OpI64Load16U,
		OpI64Load32S, OpI64Load32U:
		return vm.executeLoad(instr)

	case OpI32Store, OpI64Store, OpF32Store, OpF64Store,
		OpI32Store8, OpI32Store16,
		OpI64Store8, OpI64Store16, OpI64Store32:
		return vm.executeStore(instr)

	case OpMemorySize:
		if vm.memory == nil {
			return newTrap(NoMemory), nil
		}
		vm.push(I32Value(vm.memory.Size()))
		return nil, nil

	case OpMemoryGrow:
		if vm.memory == nil {
			return newTrap(NoMemory), nil
		}
		pages, err := vm.popI32()
		if err != nil {
			return nil, err
		}
		vm.push(I32Value(vm.memory.Grow(pages)))
		return nil, nil

	case OpI32Const:
		vm.push(I32Value(int32(instr.Imm[0])))
		return nil, nil
	case OpI64Const:
		vm.push(I64Value(int64(instr.Imm[0])))
		return nil, nil
	case OpF32Const:
		vm.push(F32FromBits(uint32(instr.Imm[0])))
		return nil, nil
	case OpF64Const:
		vm.push(F64FromBits(instr.Imm[0]))
		return nil, nil

	case OpI32Eqz:
		return nil, vm.unI32(func(a int32) int32 { return boolToInt32(a == 0) })
	case OpI32Eq:
		return nil, vm.cmpI32(equal[int32])
	case OpI32Ne:
		return nil, vm.cmpI32(notEqual[int32])
	case OpI32LtS:
		return nil, vm.cmpI32(lessThan[int32])
	case OpI32LtU:
		return nil, vm.cmpI32(lessThanU32)
	case OpI32GtS:
		return nil, vm.cmpI32(greaterThan[int32])
	case OpI32GtU:
		return nil, vm.cmpI32(greaterThanU32)
	case OpI32LeS:
		return nil, vm.cmpI32(lessOrEqual[int32])
	case OpI32LeU:
		return nil, vm.cmpI32(lessOrEqualU32)
	case OpI32GeS:
		return nil, vm.cmpI32(greaterOrEqual[int32])
	case OpI32GeU:
		return nil, vm.cmpI32(greaterOrEqualU32)

	case OpI64Eqz:
		v, err := vm.popI64()
		if err != nil {
			return nil, err
		}
		vm.push(I32Value(boolToInt32(v == 0)))
		return nil, nil
	case OpI64Eq:
		return nil, vm.cmpI64(equal[int64])
	case OpI64Ne:
		return nil, vm.cmpI64(notEqual[int64])
	case OpI64LtS:
		return nil, vm.cmpI64(lessThan[int64])
	case OpI64LtU:
		return nil, vm.cmpI64(lessThanU64)
	case OpI64GtS:
		return nil, vm.cmpI64(greaterThan[int64])
	case OpI64GtU:
		return nil, vm.cmpI64(greaterThanU64)
	case OpI64LeS:
		return nil, vm.cmpI64(lessOrEqual[int64])
	case OpI64LeU:
		return nil, vm.cmpI64(lessOrEqualU64)
	case OpI64GeS:
		return nil, vm.cmpI64(greaterOrEqual[int64])
	case OpI64GeU:
		return nil, vm.cmpI64(greaterOrEqualU64)

	case OpF32Eq:
		return nil, vm.cmpF32(equal[float32])
	case OpF32Ne:
		return nil, vm.cmpF32(notEqual[float32])
	case OpF32Lt:
		return nil, vm.cmpF32(lessThan[float32])
	case OpF32Gt:
		return nil, vm.cmpF32(greaterThan[float32])
	case OpF32Le:
		return nil, vm.cmpF32(lessOrEqual[float32])
	case OpF32Ge:
		return nil, vm.cmpF32(greaterOrEqual[float32])

	case OpF64Eq:
		return nil, vm.cmpF64(equal[float64])
	case OpF64Ne:
		return nil, vm.cmpF64(notEqual[float64])
	case OpF64Lt:
		return nil, vm.cmpF64(lessThan[float64])
	case OpF64Gt:
		return nil, vm.cmpF64(greaterThan[float64])
	case OpF64Le:
		return nil, vm.cmpF64(lessOrEqual[float64])
	case OpF64Ge:
		return nil, vm.cmpF64(greaterOrEqual[float64])

	case OpI32Clz:
		return nil, vm.unI32(clz32)
	case OpI32Ctz:
		return nil, vm.unI32(ctz32)
	case OpI32Popcnt:
		return nil, vm.unI32(popcnt32)
	case OpI32Add:
		return nil, vm.binI32(add[int32])
	case OpI32Sub:
		return nil, vm.binI32(sub[int32])
	case OpI32Mul:
		return nil, vm.binI32(mul[int32])
	case OpI32DivS:
		return vm.binI32Trap(DivS32)
	case OpI32DivU:
		return vm.binI32Trap(DivU32)
	case OpI32RemS:
		return vm.binI32Trap(RemS32)
	case OpI32RemU:
		return vm.binI32Trap(RemU32)
	case OpI32And:
		return nil, vm.binI32(and[int32])
	case OpI32Or:
		return nil, vm.binI32(or[int32])
	case OpI32Xor:
		return nil, vm.binI32(xor[int32])
	case OpI32Shl:
		return nil, vm.binI32(shl32)
	case OpI32ShrS:
		return nil, vm.binI32(shrS32)
	case OpI32ShrU:
		return nil, vm.binI32(shrU32)
	case OpI32Rotl:
		return nil, vm.binI32(rotl32)
	case OpI32Rotr:
		return nil, vm.binI32(rotr32)

	case OpI64Clz:
		return nil, vm.unI64(clz64)
	case OpI64Ctz:
		return nil, vm.unI64(ctz64)
	case OpI64Popcnt:
		return nil, vm.unI64(popcnt64)
	case OpI64Add:
		return nil, vm.binI64(add[int64])
	case OpI64Sub:
		return nil, vm.binI64(sub[int64])
	case OpI64Mul:
		return nil, vm.binI64(mul[int64])
	case OpI64DivS:
		return vm.binI64Trap(DivS64)
	case OpI64DivU:
		return vm.binI64Trap(DivU64)
	case OpI64RemS:
		return vm.binI64Trap(RemS64)
	case OpI64RemU:
		return vm.binI64Trap(RemU64)
	case OpI64And:
		return nil, vm.binI64(and[int64])
	case OpI64Or:
		return nil, vm.binI64(or[int64])
	case OpI64Xor:
		return nil, vm.binI64(xor[int64])
	case OpI64Shl:
		return nil, vm.binI64(shl64)
	case OpI64ShrS:
		return nil, vm.binI64(shrS64)
	case OpI64ShrU:
		return nil, vm.binI64(shrU64)
	case OpI64Rotl:
		return nil, vm.binI64(rotl64)
	case OpI64Rotr:
		return nil, vm.binI64(rotr64)

	case OpF32Abs:
		return nil, vm.unF32(abs[float32])
	case OpF32Neg:
		return nil, vm.unF32(func(a float32) float32 { return -a })
	case OpF32Ceil:
		return nil, vm.unF32(ceil[float32])
	case OpF32Floor:
		return nil, vm.unF32(floor[float32])
	case OpF32Trunc:
		return nil, vm.unF32(ftrunc[float32])
	case OpF32Nearest:
		return nil, vm.unF32(nearest[float32])
	case OpF32Sqrt:
		return nil, vm.unF32(sqrt[float32])
	case OpF32Add:
		return nil, vm.binF32(add[float32])
	case OpF32Sub:
		return nil, vm.binF32(sub[float32])
	case OpF32Mul:
		return nil, vm.binF32(mul[float32])
	case OpF32Div:
		return nil, vm.binF32(fdiv[float32])
	case OpF32Min:
		return nil, vm.binF32(wasmMin[float32])
	case OpF32Max:
		return nil, vm.binF32(wasmMax[float32])
	case OpF32Copysign:
		return nil, vm.binF32(copysign[float32])

	case OpF64Abs:
		return nil, vm.unF64(abs[float64])
	case OpF64Neg:
		return nil, vm.unF64(func(a float64) float64 { return -a })
	case OpF64Ceil:
		return nil, vm.unF64(ceil[float64])
	case OpF64Floor:
		return nil, vm.unF64(floor[float64])
	case OpF64Trunc:
		return nil, vm.unF64(ftrunc[float64])
	case OpF64Nearest:
		return nil, vm.unF64(nearest[float64])
	case OpF64Sqrt:
		return nil, vm.unF64(sqrt[float64])
	case OpF64Add:
		return nil, vm.binF64(add[float64])
	case OpF64Sub:
		return nil, vm.binF64(sub[float64])
	case OpF64Mul:
		return nil, vm.binF64(mul[float64])
	case OpF64Div:
		return nil, vm.binF64(fdiv[float64])
	case OpF64Min:
		return nil, vm.binF64(wasmMin[float64])
	case OpF64Max:
		return nil, vm.binF64(wasmMax[float64])
	case OpF64Copysign:
		return nil, vm.binF64(copysign[float64])

	case OpI32WrapI64:
		v, err := vm.popI64()
		if err != nil {
			return nil, err
		}
		vm.push(I32Value(wrapI64ToI32(v)))
		return nil, nil

	case OpI32TruncF32S:
		return vm.truncToI32(instr, truncF32SToI32)
	case OpI32TruncF32U:
		return vm.truncToI32(instr, truncF32UToI32)
	case OpI32TruncF64S:
		v, err := vm.popF64()
		if err != nil {
			return nil, err
		}
		return vm.pushTruncResultI32(truncF64SToI32(v))
	case OpI32TruncF64U:
		v, err := vm.popF64()
		if err != nil {
			return nil, err
		}
		return vm.pushTruncResultI32(truncF64UToI32(v))

	case OpI64ExtendI32S:
		v, err := vm.popI32()
		if err != nil {
			return nil, err
		}
		vm.push(I64Value(extendI32SToI64(v)))
		return nil, nil
	case OpI64ExtendI32U:
		v, err := vm.popI32()
		if err != nil {
			return nil, err
		}
		vm.push(I64Value(extendI32UToI64(v)))
		return nil, nil

	case OpI64TruncF32S:
		v, err := vm.popF32()
		if err != nil {
			return nil, err
		}
		return vm.pushTruncResultI64(truncF32SToI64(v))
	case OpI64TruncF32U:
		v, err := vm.popF32()
		if err != nil {
			return nil, err
		}
		return vm.pushTruncResultI64(truncF32UToI64(v))
	case OpI64TruncF64S:
		v, err := vm.popF64()
		if err != nil {
			return nil, err
		}
		return vm.pushTruncResultI64(truncF64SToI64(v))
	case OpI64TruncF64U:
		v, err := vm.popF64()
		if err != nil {
			return nil, err
		}
		return vm.pushTruncResultI64(truncF64UToI64(v))

	case OpF32ConvertI32S:
		v, err := vm.popI32()
		if err != nil {
			return nil, err
		}
		vm.push(F32Value(convertI32SToF32(v)))
		return nil, nil
	case OpF32ConvertI32U:
		v, err := vm.popI32()
		if err != nil {
			return nil, err
		}
		vm.push(F32Value(convertI32UToF32(v)))
		return nil, nil
	case OpF32ConvertI64S:
		v, err := vm.popI64()
		if err != nil {
			return nil, err
		}
		vm.push(F32Value(convertI64SToF32(v)))
		return nil, nil
	case OpF32ConvertI64U:
		v, err := vm.popI64()
		if err != nil {
			return nil, err
		}
		vm.push(F32Value(convertI64UToF32(v)))
		return nil, nil
	case OpF32DemoteF64:
		v, err := vm.popF64()
		if err != nil {
			return nil, err
		}
		vm.push(F32Value(float32(v)))
		return nil, nil

	case OpF64ConvertI32S:
		v, err := vm.popI32()
		if err != nil {
			return nil, err
		}
		vm.push(F64Value(convertI32SToF64(v)))
		return nil, nil
	case OpF64ConvertI32U:
		v, err := vm.popI32()
		if err != nil {
			return nil, err
		}
		vm.push(F64Value(convertI32UToF64(v)))
		return nil, nil
	case OpF64ConvertI64S:
		v, err := vm.popI64()
		if err != nil {
			return nil, err
		}
		vm.push(F64Value(convertI64SToF64(v)))
		return nil, nil
	case OpF64ConvertI64U:
		v, err := vm.popI64()
		if err != nil {
			return nil, err
		}
		vm.push(F64Value(convertI64UToF64(v)))
		return nil, nil
	case OpF64PromoteF32:
		v, err := vm.popF32()
		if err != nil {
			return nil, err
		}
		vm.push(F64Value(float64(v)))
		return nil, nil

	case OpI32ReinterpretF32:
		v, err := vm.pop()
		if err != nil {
			return nil, err
		}
		vm.push(I32Value(int32(uint32(v.Bits()))))
		return nil, nil
	case OpI64ReinterpretF64:
		v, err := vm.pop()
		if err != nil {
			return nil, err
		}
		vm.push(I64Value(int64(v.Bits())))
		return nil, nil
	case OpF32ReinterpretI32:
		v, err := vm.pop()
		if err != nil {
			return nil, err
		}
		vm.push(F32FromBits(uint32(v.Bits())))
		return nil, nil
	case OpF64ReinterpretI64:
		v, err := vm.pop()
		if err != nil {
			return nil, err
		}
		vm.push(F64FromBits(v.Bits()))
		return nil, nil

	case OpI32Extend8S:
		return nil, vm.unI32(signExtend8To32)
	case OpI32Extend16S:
		return nil, vm.unI32(signExtend16To32)
	case OpI64Extend8S:
		return nil, vm.unI64(signExtend8To64)
	case OpI64Extend16S:
		return nil, vm.unI64(signExtend16To64)
	case OpI64Extend32S:
		return nil, vm.unI64(signExtend32To64)

	default:
		return nil, fmt.Errorf("unsupported instruction %s", instr)
	}
}

func blockArity(instr Instruction) int {
	if instr.Imm[0] == blockTypeEmpty {
		return 0
	}
	return 1
}

// branch transfers control to the label at the given relative depth. A depth
// addressing the function body itself returns from the function.
func (vm *VM) branch(frame *Frame, fn *Function, depth uint32) (*Trap, error) {
	if int(depth) >= len(frame.labels) {
		return vm.returnFromFrame()
	}
	targetIndex := len(frame.labels) - 1 - int(depth)
	target := frame.labels[targetIndex]

	if target.isLoop {
		// Branching to a loop re-enters it: keep the loop label, discard
		// everything above it, and continue at the loop body.
		frame.labels = frame.labels[:targetIndex+1]
		vm.valueStack = vm.valueStack[:target.stackHeight]
		frame.pc = target.opener + 1
		return nil, nil
	}

	if len(vm.valueStack) < target.stackHeight+target.arity {
		return nil, errValueStackUnderflow
	}
	results := make([]Value, target.arity)
	copy(results, vm.valueStack[len(vm.valueStack)-target.arity:])
	frame.labels = frame.labels[:targetIndex]
	vm.valueStack = vm.valueStack[:target.stackHeight]
	vm.valueStack = append(vm.valueStack, results...)
	frame.pc = fn.matchEnd[target.opener] + 1
	return nil, nil
}

// returnFromFrame pops the innermost frame, carrying the function's results
// across the frame boundary. Returning from the outermost frame finishes
// execution and leaves the results on the value stack.
func (vm *VM) returnFromFrame() (*Trap, error) {
	frame := &vm.frames[len(vm.frames)-1]
	ftype, err := vm.module.FuncType(frame.funcIndex)
	if err != nil {
		return nil, err
	}
	arity := len(ftype.Results)
	if len(vm.valueStack) < frame.stackBase+arity {
		return nil, errValueStackUnderflow
	}
	results := make([]Value, arity)
	copy(results, vm.valueStack[len(vm.valueStack)-arity:])
	vm.valueStack = vm.valueStack[:frame.stackBase]
	vm.valueStack = append(vm.valueStack, results...)
	vm.frames = vm.frames[:len(vm.frames)-1]

	if len(vm.frames) == 0 {
		return newTrap(ExecutionFinished), nil
	}
	return nil, nil
}

// call invokes a function by index. Imported functions run synchronously
// through the import handler under a pseudo-frame; local functions get a real
// frame and execution continues at their first instruction.
func (vm *VM) call(funcIndex uint32) (*Trap, error) {
	if len(vm.frames) >= maxCallDepth {
		return newTrap(CallStackExhausted), nil
	}
	ftype, err := vm.module.FuncType(funcIndex)
	if err != nil {
		return nil, err
	}

	args := make([]Value, len(ftype.Params))
	for i := len(args) - 1; i >= 0; i-- {
		args[i], err = vm.pop()
		if err != nil {
			return nil, err
		}
	}

	if vm.module.IsImported(funcIndex) {
		return vm.callImported(funcIndex, ftype, args)
	}

	fn := vm.module.Func(funcIndex)
	locals := make([]Value, 0, len(args)+len(fn.Locals))
	locals = append(locals, args...)
	for _, kind := range fn.Locals {
		locals = append(locals, ZeroValue(kind))
	}
	vm.frames = append(vm.frames, Frame{
		funcIndex: funcIndex,
		locals:    locals,
		stackBase: len(vm.valueStack),
	})
	return nil, nil
}

func (vm *VM) callImported(funcIndex uint32, ftype *FuncType, args []Value) (*Trap, error) {
	// The pseudo-frame makes a failed import call show up in the call stack
	// attributed to its callee.
	vm.frames = append(vm.frames, Frame{
		funcIndex: funcIndex,
		locals:    args,
		stackBase: len(vm.valueStack),
		imported:  true,
	})

	globals := vm.Globals()
	var memory []byte
	if vm.memory != nil {
		memory = make([]byte, len(vm.memory.data))
		copy(memory, vm.memory.data)
	}

	result, err := vm.importHandler.Fulfill(funcIndex, args, globals, memory)
	if err != nil {
		return trapUnsupportedImport(funcIndex), nil
	}

	if result != nil && result.Globals != nil {
		if len(result.Globals) != len(vm.globals) {
			return nil, fmt.Errorf(
				"import handler returned %d globals, instance has %d",
				len(result.Globals), len(vm.globals),
			)
		}
		copy(vm.globals, result.Globals)
	}
	if result != nil && result.Memory != nil && vm.memory != nil {
		if len(result.Memory) != len(vm.memory.data) {
			return nil, fmt.Errorf(
				"import handler returned %d bytes of memory, instance has %d",
				len(result.Memory), len(vm.memory.data),
			)
		}
		copy(vm.memory.data, result.Memory)
	}

	vm.frames = vm.frames[:len(vm.frames)-1]

	if len(ftype.Results) > 0 {
		ret := ZeroValue(ftype.Results[0])
		if result != nil && result.Return != nil {
			if result.Return.Kind() != ftype.Results[0] {
				return nil, fmt.Errorf(
					"import handler returned %s, function %d returns %s",
					result.Return.Kind(), funcIndex, ftype.Results[0],
				)
			}
			ret = *result.Return
		}
		vm.push(ret)
	}
	return nil, nil
}

func (vm *VM) executeLoad(instr Instruction) (*Trap, error) {
	if vm.memory == nil {
		return newTrap(NoMemory), nil
	}
	base, err := vm.popI32()
	if err != nil {
		return nil, err
	}
	offset := instr.Imm[1]

	var n int
	switch instr.Op {
	case OpI32Load8S, OpI32Load8U, OpI64Load8S, OpI64Load8U:
		n = 1
	case OpI32Load16S, OpI32Load16U, OpI64Load16S, OpI64Load16U:
		n = 2
	case OpI32Load, OpF32Load, OpI64Load32S, OpI64Load32U:
		n = 4
	default:
		n = 8
	}

	addr, bits, err := vm.memory.load(uint32(base), offset, n)
	if err != nil {
		return newTrap(MemoryAccessOutOfBounds), nil
	}

	switch instr.Op {
	case OpI32Load:
		vm.push(I32Value(int32(uint32(bits))))
	case OpI64Load:
		vm.push(I64Value(int64(bits)))
	case OpF32Load:
		vm.push(F32FromBits(uint32(bits)))
	case OpF64Load:
		vm.push(F64FromBits(bits))
	case OpI32Load8S:
		vm.push(I32Value(loadSignExtend8To32(byte(bits))))
	case OpI32Load8U:
		vm.push(I32Value(zeroExtend8To32(byte(bits))))
	case OpI32Load16S:
		vm.push(I32Value(loadSignExtend16To32(uint16(bits))))
	case OpI32Load16U:
		vm.push(I32Value(zeroExtend16To32(uint16(bits))))
	case OpI64Load8S:
		vm.push(I64Value(loadSignExtend8To64(byte(bits))))
	case OpI64Load8U:
		vm.push(I64Value(zeroExtend8To64(byte(bits))))
	case OpI64Load16S:
		vm.push(I64Value(loadSignExtend16To64(uint16(bits))))
	case OpI64Load16U:
		vm.push(I64Value(zeroExtend16To64(uint16(bits))))
	case OpI64Load32S:
		vm.push(I64Value(loadSignExtend32To64(uint32(bits))))
	case OpI64Load32U:
		vm.push(I64Value(zeroExtend32To64(uint32(bits))))
	}

	if wp, ok := vm.breakpoints.findMemory(addr, n, WatchRead); ok {
		return trapWatchpoint(wp), nil
	}
	return nil, nil
}

func (vm *VM) executeStore(instr Instruction) (*Trap, error) {
	if vm.memory == nil {
		return newTrap(NoMemory), nil
	}
	value, err := vm.pop()
	if err != nil {
		return nil, err
	}
	base, err := vm.popI32()
	if err != nil {
		return nil, err
	}
	offset := instr.Imm[1]

	var n int
	switch instr.Op {
	case OpI32Store8, OpI64Store8:
		n = 1
	case OpI32Store16, OpI64Store16:
		n = 2
	case OpI32Store, OpF32Store, OpI64Store32:
		n = 4
	default:
		n = 8
	}

	addr, err := vm.memory.store(uint32(base), offset, value.Bits(), n)
	if err != nil {
		return newTrap(MemoryAccessOutOfBounds), nil
	}

	// Watchpoints fire after the write is committed, so the paused state
	// shows the new contents.
	if wp, ok := vm.breakpoints.findMemory(addr, n, WatchWrite); ok {
		return trapWatchpoint(wp), nil
	}
	return nil, nil
}

func (vm *VM) truncToI32(instr Instruction, f func(float32) (int32, error)) (*Trap, error) {
	v, err := vm.popF32()
	if err != nil {
		return nil, err
	}
	return vm.pushTruncResultI32(f(v))
}

func (vm *VM) pushTruncResultI32(v int32, err error) (*Trap, error) {
	if err != nil {
		return trapFromNumericErr(err), nil
	}
	vm.push(I32Value(v))
	return nil, nil
}

func (vm *VM) pushTruncResultI64(v int64, err error) (*Trap, error) {
	if err != nil {
		return trapFromNumericErr(err), nil
	}
	vm.push(I64Value(v))
	return nil, nil
}

func trapFromNumericErr(err error) *Trap {
	switch {
	case errors.Is(err, ErrDivisionByZero):
		return newTrap(DivisionByZero)
	case errors.Is(err, errInvalidConversionToInteger):
		return newTrap(InvalidConversionToInteger)
	default:
		return newTrap(IntegerOverflow)
	}
}

func (vm *VM) unI32(f func(int32) int32) error {
	v, err := vm.popI32()
	if err != nil {
		return err
	}
	vm.push(I32Value(f(v)))
	return nil
}

func (vm *VM) unI64(f func(int64) int64) error {
	v, err := vm.popI64()
	if err != nil {
		return err
	}
	vm.push(I64Value(f(v)))
	return nil
}

func (vm *VM) unF32(f func(float32) float32) error {
	v, err := vm.popF32()
	if err != nil {
		return err
	}
	vm.push(F32Value(f(v)))
	return nil
}

func (vm *VM) unF64(f func(float64) float64) error {
	v, err := vm.popF64()
	if err != nil {
		return err
	}
	vm.push(F64Value(f(v)))
	return nil
}

func (vm *VM) binI32(f func(a, b int32) int32) error {
	b, err := vm.popI32()
	if err != nil {
		return err
	}
	a, err := vm.popI32()
	if err != nil {
		return err
	}
	vm.push(I32Value(f(a, b)))
	return nil
}

func (vm *VM) binI64(f func(a, b int64) int64) error {
	b, err := vm.popI64()
	if err != nil {
		return err
	}
	a, err := vm.popI64()
	if err != nil {
		return err
	}
	vm.push(I64Value(f(a, b)))
	return nil
}

func (vm *VM) binF32(f func(a, b float32) float32) error {
	b, err := vm.popF32()
	if err != nil {
		return err
	}
	a, err := vm.popF32()
	if err != nil {
		return err
	}
	vm.push(F32Value(f(a, b)))
	return nil
}

func (vm *VM) binF64(f func(a, b float64) float64) error {
	b, err := vm.popF64()
	if err != nil {
		return err
	}
	a, err := vm.popF64()
	if err != nil {
		return err
	}
	vm.push(F64Value(f(a, b)))
	return nil
}

func (vm *VM) binI32Trap(f func(a, b int32) (int32, error)) (*Trap, error) {
	b, err := vm.popI32()
	if err != nil {
		return nil, err
	}
	a, err := vm.popI32()
	if err != nil {
		return nil, err
	}
	v, ferr := f(a, b)
	if ferr != nil {
		return trapFromNumericErr(ferr), nil
	}
	vm.push(I32Value(v))
	return nil, nil
}

func (vm *VM) binI64Trap(f func(a, b int64) (int64, error)) (*Trap, error) {
	b, err := vm.popI64()
	if err != nil {
		return nil, err
	}
	a, err := vm.popI64()
	if err != nil {
		return nil, err
	}
	v, ferr := f(a, b)
	if ferr != nil {
		return trapFromNumericErr(ferr), nil
	}
	vm.push(I64Value(v))
	return nil, nil
}

func (vm *VM) cmpI32(f func(a, b int32) bool) error {
	b, err := vm.popI32()
	if err != nil {
		return err
	}
	a, err := vm.popI32()
	if err != nil {
		return err
	}
	vm.push(I32Value(boolToInt32(f(a, b))))
	return nil
}

func (vm *VM) cmpI64(f func(a, b int64) bool) error {
	b, err := vm.popI64()
	if err != nil {
		return err
	}
	a, err := vm.popI64()
	if err != nil {
		return err
	}
	vm.push(I32Value(boolToInt32(f(a, b))))
	return nil
}

func (vm *VM) cmpF32(f func(a, b float32) bool) error {
	b, err := vm.popF32()
	if err != nil {
		return err
	}
	a, err := vm.popF32()
	if err != nil {
		return err
	}
	vm.push(I32Value(boolToInt32(f(a, b))))
	return nil
}

func (vm *VM) cmpF64(f func(a, b float64) bool) error {
	b, err := vm.popF64()
	if err != nil {
		return err
	}
	a, err := vm.popF64()
	if err != nil {
		return err
	}
	vm.push(I32Value(boolToInt32(f(a, b))))
	return nil
}
