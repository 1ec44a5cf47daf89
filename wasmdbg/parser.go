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
	"bufio"
	"bytes"
	"fmt"
	"io"
	"math"
)

const (
	wasmMagicNumber      = "\x00asm"
	supportedWasmVersion = 1
)

// SectionID identifies the sections of a binary module.
// See https://webassembly.github.io/spec/core/binary/modules.html#sections.
type SectionID byte

const (
	CustomSectionID SectionID = iota
	TypeSectionID
	ImportSectionID
	FunctionSectionID
	TableSectionID
	MemorySectionID
	GlobalSectionID
	ExportSectionID
	StartSectionID
	ElementSectionID
	CodeSectionID
	DataSectionID
)

// Parser decodes a binary module into a Module, lowering every function body
// into an instruction list so instructions are individually addressable.
type Parser struct {
	reader *bufio.Reader
}

func NewParser(reader io.Reader) *Parser {
	return &Parser{reader: bufio.NewReader(reader)}
}

// Parse consumes the whole input and returns the decoded Module.
func (p *Parser) Parse() (*Module, error) {
	if err := p.parseHeader(); err != nil {
		return nil, err
	}

	module := &Module{}
	var functionTypeIndexes []uint32

	for {
		sectionIDByte, err := p.reader.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read section ID: %w", err)
		}

		sectionID := SectionID(sectionIDByte)
		payloadLen, err := p.parseUleb32()
		if err != nil {
			return nil, fmt.Errorf("failed to read payload length: %w", err)
		}

		switch sectionID {
		case CustomSectionID:
			custom, err := p.parseCustomSection(payloadLen)
			if err != nil {
				return nil, err
			}
			module.CustomSections = append(module.CustomSections, custom)
		case TypeSectionID:
			module.Types, err = parseVector(p, p.parseFuncType)
			if err != nil {
				return nil, err
			}
		case ImportSectionID:
			module.ImportedFuncs, err = p.parseImportSection()
			if err != nil {
				return nil, err
			}
		case FunctionSectionID:
			functionTypeIndexes, err = parseVector(p, p.parseIndex)
			if err != nil {
				return nil, err
			}
		case TableSectionID:
			module.Tables, err = parseVector(p, p.parseTableType)
			if err != nil {
				return nil, err
			}
		case MemorySectionID:
			module.Memories, err = parseVector(p, p.parseMemoryType)
			if err != nil {
				return nil, err
			}
		case GlobalSectionID:
			module.Globals, err = parseVector(p, p.parseGlobal)
			if err != nil {
				return nil, err
			}
		case ExportSectionID:
			module.Exports, err = parseVector(p, p.parseExport)
			if err != nil {
				return nil, err
			}
		case StartSectionID:
			index, err := p.parseIndex()
			if err != nil {
				return nil, err
			}
			module.StartIndex = &index
		case ElementSectionID:
			module.ElementSegments, err = parseVector(p, p.parseElementSegment)
			if err != nil {
				return nil, err
			}
		case CodeSectionID:
			module.Funcs, err = parseVector(p, p.parseFunction)
			if err != nil {
				return nil, err
			}
		case DataSectionID:
			module.DataSegments, err = parseVector(p, p.parseDataSegment)
			if err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("section %d not supported", sectionID)
		}
	}

	if len(functionTypeIndexes) != len(module.Funcs) {
		return nil, fmt.Errorf("incompatible number of func indexes/bodies")
	}
	for i := range module.Funcs {
		module.Funcs[i].TypeIndex = functionTypeIndexes[i]
	}

	if err := module.prepare(); err != nil {
		return nil, err
	}
	return module, nil
}

func (p *Parser) parseHeader() error {
	header := make([]byte, 8)
	if _, err := io.ReadFull(p.reader, header); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return fmt.Errorf("file is too short to be a valid module")
		}
		return fmt.Errorf("could not read header: %w", err)
	}

	if !bytes.HasPrefix(header, []byte(wasmMagicNumber)) {
		return fmt.Errorf("invalid module: does not start with magic number")
	}

	version := uint32(header[4]) | uint32(header[5])<<8 |
		uint32(header[6])<<16 | uint32(header[7])<<24
	if version != supportedWasmVersion {
		return fmt.Errorf("unsupported binary version: %d", version)
	}
	return nil
}

func (p *Parser) parseCustomSection(payloadLen uint32) (CustomSection, error) {
	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(p.reader, payload); err != nil {
		return CustomSection{}, fmt.Errorf("failed to read custom section: %w", err)
	}

	sub := bufio.NewReader(bytes.NewReader(payload))
	nameLen, err := readUleb128(sub.ReadByte, maxUleb32Bytes)
	if err != nil {
		return CustomSection{}, fmt.Errorf("failed to read custom section name: %w", err)
	}
	if nameLen > uint64(len(payload)) {
		return CustomSection{}, fmt.Errorf("custom section name exceeds payload")
	}
	name := make([]byte, nameLen)
	if _, err := io.ReadFull(sub, name); err != nil {
		return CustomSection{}, fmt.Errorf("failed to read custom section name: %w", err)
	}
	data, err := io.ReadAll(sub)
	if err != nil {
		return CustomSection{}, err
	}
	return CustomSection{Name: string(name), Data: data}, nil
}

func (p *Parser) parseImportSection() ([]ImportedFunc, error) {
	count, err := p.parseUleb32()
	if err != nil {
		return nil, err
	}

	var funcs []ImportedFunc
	for j := uint32(0); j < count; j++ {
		moduleName, err := p.parseUtf8String()
		if err != nil {
			return nil, err
		}
		name, err := p.parseUtf8String()
		if err != nil {
			return nil, err
		}
		kind, err := p.reader.ReadByte()
		if err != nil {
			return nil, err
		}
		// Only function imports participate in execution; other import kinds
		// are not supported.
		if kind != 0 {
			return nil, fmt.Errorf("unsupported import kind %d for %s.%s", kind, moduleName, name)
		}
		typeIndex, err := p.parseIndex()
		if err != nil {
			return nil, err
		}
		funcs = append(funcs, ImportedFunc{
			ModuleName: moduleName,
			Name:       name,
			TypeIndex:  typeIndex,
		})
	}
	return funcs, nil
}

func (p *Parser) parseFuncType() (FuncType, error) {
	b, err := p.reader.ReadByte()
	if err != nil {
		return FuncType{}, err
	}
	if b != 0x60 {
		return FuncType{}, fmt.Errorf("invalid function type prefix 0x%02x", b)
	}

	params, err := parseVector(p, p.parseValueKind)
	if err != nil {
		return FuncType{}, fmt.Errorf("failed to parse param types: %w", err)
	}
	results, err := parseVector(p, p.parseValueKind)
	if err != nil {
		return FuncType{}, fmt.Errorf("failed to parse result types: %w", err)
	}
	if len(results) > 1 {
		return FuncType{}, fmt.Errorf("multiple results are not supported")
	}
	return FuncType{Params: params, Results: results}, nil
}

func (p *Parser) parseValueKind() (ValueKind, error) {
	b, err := p.reader.ReadByte()
	if err != nil {
		return 0, err
	}
	switch ValueKind(b) {
	case I32, I64, F32, F64:
		return ValueKind(b), nil
	default:
		return 0, fmt.Errorf("invalid value type: 0x%02x", b)
	}
}

func (p *Parser) parseTableType() (TableType, error) {
	b, err := p.reader.ReadByte()
	if err != nil {
		return TableType{}, err
	}
	if b != 0x70 {
		return TableType{}, fmt.Errorf("invalid table element type 0x%02x", b)
	}
	limits, err := p.parseLimits()
	if err != nil {
		return TableType{}, err
	}
	return TableType{Limits: limits}, nil
}

func (p *Parser) parseMemoryType() (MemoryType, error) {
	limits, err := p.parseLimits()
	if err != nil {
		return MemoryType{}, err
	}
	return MemoryType{Limits: limits}, nil
}

func (p *Parser) parseLimits() (Limits, error) {
	b, err := p.reader.ReadByte()
	if err != nil {
		return Limits{}, err
	}
	switch b {
	case 0:
		min, err := p.parseIndex()
		if err != nil {
			return Limits{}, err
		}
		return Limits{Min: min}, nil
	case 1:
		min, err := p.parseIndex()
		if err != nil {
			return Limits{}, err
		}
		max, err := p.parseIndex()
		if err != nil {
			return Limits{}, err
		}
		return Limits{Min: min, Max: &max}, nil
	default:
		return Limits{}, fmt.Errorf("unexpected limits format")
	}
}

func (p *Parser) parseGlobal() (Global, error) {
	kind, err := p.parseValueKind()
	if err != nil {
		return Global{}, err
	}
	mutable, err := p.reader.ReadByte()
	if err != nil {
		return Global{}, err
	}
	if mutable != 0 && mutable != 1 {
		return Global{}, fmt.Errorf("invalid global mutability %d", mutable)
	}
	init, err := p.parseConstExpression()
	if err != nil {
		return Global{}, err
	}
	return Global{Kind: kind, Mutable: mutable == 1, InitExpr: init}, nil
}

func (p *Parser) parseExport() (Export, error) {
	name, err := p.parseUtf8String()
	if err != nil {
		return Export{}, err
	}
	b, err := p.reader.ReadByte()
	if err != nil {
		return Export{}, err
	}
	index, err := p.parseIndex()
	if err != nil {
		return Export{}, err
	}
	return Export{Name: name, Kind: ExportKind(b), Index: index}, nil
}

func (p *Parser) parseElementSegment() (ElementSegment, error) {
	flags, err := p.parseUleb32()
	if err != nil {
		return ElementSegment{}, fmt.Errorf("failed to read element flags: %w", err)
	}
	// Only active segments with plain function indices exist in the supported
	// binary format.
	if flags != 0 {
		return ElementSegment{}, fmt.Errorf("unsupported element segment flags %d", flags)
	}
	offset, err := p.parseConstExpression()
	if err != nil {
		return ElementSegment{}, err
	}
	indexes, err := parseVector(p, p.parseIndex)
	if err != nil {
		return ElementSegment{}, err
	}
	return ElementSegment{OffsetExpr: offset, FuncIndexes: indexes}, nil
}

func (p *Parser) parseDataSegment() (DataSegment, error) {
	flags, err := p.parseUleb32()
	if err != nil {
		return DataSegment{}, err
	}
	if flags != 0 {
		return DataSegment{}, fmt.Errorf("unsupported data segment flags %d", flags)
	}
	offset, err := p.parseConstExpression()
	if err != nil {
		return DataSegment{}, err
	}
	content, err := parseVector(p, p.reader.ReadByte)
	if err != nil {
		return DataSegment{}, err
	}
	return DataSegment{OffsetExpr: offset, Content: content}, nil
}

func (p *Parser) parseFunction() (Function, error) {
	size, err := p.parseUleb32()
	if err != nil {
		return Function{}, err
	}

	originalReader := p.reader
	defer func() { p.reader = originalReader }()

	// Limit reads to the declared body size so a truncated or overlong body
	// fails instead of eating the next function.
	limitedReader := io.LimitReader(originalReader, int64(size))
	p.reader = bufio.NewReader(limitedReader)

	localGroups, err := parseVector(p, p.parseLocalGroup)
	if err != nil {
		return Function{}, fmt.Errorf("failed to parse locals: %w", err)
	}

	totalLocals := 0
	for _, group := range localGroups {
		totalLocals += len(group)
	}
	if totalLocals > math.MaxInt32 {
		return Function{}, fmt.Errorf("too many locals: %d", totalLocals)
	}
	locals := make([]ValueKind, 0, totalLocals)
	for _, group := range localGroups {
		locals = append(locals, group...)
	}

	var instrs []Instruction
	for {
		instr, err := p.parseInstruction()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Function{}, err
		}
		instrs = append(instrs, instr)
	}
	if len(instrs) == 0 || instrs[len(instrs)-1].Op != OpEnd {
		return Function{}, fmt.Errorf("function body must end with an end instruction")
	}
	return Function{Locals: locals, Instrs: instrs}, nil
}

func (p *Parser) parseLocalGroup() ([]ValueKind, error) {
	count, err := p.parseUleb32()
	if err != nil {
		return nil, err
	}
	kind, err := p.parseValueKind()
	if err != nil {
		return nil, err
	}
	group := make([]ValueKind, count)
	for i := range group {
		group[i] = kind
	}
	return group, nil
}

// parseConstExpression decodes a constant expression, dropping the trailing
// end.
func (p *Parser) parseConstExpression() ([]Instruction, error) {
	var instrs []Instruction
	for {
		instr, err := p.parseInstruction()
		if err != nil {
			return nil, err
		}
		if instr.Op == OpEnd {
			return instrs, nil
		}
		instrs = append(instrs, instr)
	}
}

func (p *Parser) parseInstruction() (Instruction, error) {
	opByte, err := p.reader.ReadByte()
	if err != nil {
		return Instruction{}, err
	}
	op := Opcode(opByte)
	if _, known := opcodeNames[op]; !known {
		return Instruction{}, fmt.Errorf("unsupported opcode 0x%02x", opByte)
	}

	switch op {
	case OpBlock, OpLoop, OpIf:
		blockType, err := p.reader.ReadByte()
		if err != nil {
			return Instruction{}, err
		}
		switch {
		case blockType == blockTypeEmpty:
		case ValueKind(blockType) == I32 || ValueKind(blockType) == I64 ||
			ValueKind(blockType) == F32 || ValueKind(blockType) == F64:
		default:
			return Instruction{}, fmt.Errorf("unsupported block type 0x%02x", blockType)
		}
		return Instruction{Op: op, Imm: []uint64{uint64(blockType)}}, nil

	case OpBr, OpBrIf, OpCall, OpLocalGet, OpLocalSet, OpLocalTee,
		OpGlobalGet, OpGlobalSet:
		index, err := p.parseIndex()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Op: op, Imm: []uint64{uint64(index)}}, nil

	case OpBrTable:
		targets, err := parseVector(p, p.parseIndex)
		if err != nil {
			return Instruction{}, err
		}
		defaultTarget, err := p.parseIndex()
		if err != nil {
			return Instruction{}, err
		}
		imm := make([]uint64, 0, len(targets)+1)
		for _, t := range targets {
			imm = append(imm, uint64(t))
		}
		imm = append(imm, uint64(defaultTarget))
		return Instruction{Op: op, Imm: imm}, nil

	case OpCallIndirect:
		typeIndex, err := p.parseIndex()
		if err != nil {
			return Instruction{}, err
		}
		tableIndex, err := p.parseIndex()
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Op: op, Imm: []uint64{uint64(typeIndex), uint64(tableIndex)}}, nil

	case OpMemorySize, OpMemoryGrow:
		reserved, err := p.reader.ReadByte()
		if err != nil {
			return Instruction{}, err
		}
		if reserved != 0 {
			return Instruction{}, fmt.Errorf("non-zero reserved byte in memory instruction")
		}
		return Instruction{Op: op}, nil

	case OpI32Const:
		raw, err := readSleb128(p.reader.ReadByte, maxUleb32Bytes)
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Op: op, Imm: []uint64{uint64(uint32(raw))}}, nil

	case OpI64Const:
		raw, err := readSleb128(p.reader.ReadByte, maxUleb64Bytes)
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Op: op, Imm: []uint64{raw}}, nil

	case OpF32Const:
		buf := make([]byte, 4)
		if _, err := io.ReadFull(p.reader, buf); err != nil {
			return Instruction{}, err
		}
		bits := uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
		return Instruction{Op: op, Imm: []uint64{uint64(bits)}}, nil

	case OpF64Const:
		buf := make([]byte, 8)
		if _, err := io.ReadFull(p.reader, buf); err != nil {
			return Instruction{}, err
		}
		var bits uint64
		for i, b := range buf {
			bits |= uint64(b) << (8 * i)
		}
		return Instruction{Op: op, Imm: []uint64{bits}}, nil

	default:
		if op >= OpI32Load && op <= OpI64Store32 {
			align, err := p.parseIndex()
			if err != nil {
				return Instruction{}, err
			}
			offset, err := p.parseIndex()
			if err != nil {
				return Instruction{}, err
			}
			return Instruction{Op: op, Imm: []uint64{uint64(align), uint64(offset)}}, nil
		}
		return Instruction{Op: op}, nil
	}
}

func parseVector[T any](parser *Parser, parse func() (T, error)) ([]T, error) {
	count, err := parser.parseUleb32()
	if err != nil {
		return nil, err
	}
	if count > math.MaxInt32 {
		return nil, fmt.Errorf("too many items in vector")
	}
	items := make([]T, count)
	for i := 0; i < int(count); i++ {
		parsed, err := parse()
		if err != nil {
			return nil, err
		}
		items[i] = parsed
	}
	return items, nil
}

func (p *Parser) parseIndex() (uint32, error) {
	val, err := readUleb128(p.reader.ReadByte, maxUleb32Bytes)
	if err != nil {
		return 0, err
	}
	if val > math.MaxUint32 {
		return 0, errIntegerTooLarge
	}
	return uint32(val), nil
}

func (p *Parser) parseUleb32() (uint32, error) {
	return p.parseIndex()
}

func (p *Parser) parseUtf8String() (string, error) {
	length, err := p.parseUleb32()
	if err != nil {
		return "", err
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(p.reader, buf); err != nil {
		return "", fmt.Errorf("failed to read string bytes: %w", err)
	}
	return string(buf), nil
}
