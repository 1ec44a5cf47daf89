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
	"io"
)

const nameSectionName = "name"

const (
	moduleNameSubsection   = 0
	functionNameSubsection = 1
	localNameSubsection    = 2
)

// DebugInfo holds the symbol names decoded from the module's "name" custom
// section. All lookups on a zero DebugInfo report absence.
type DebugInfo struct {
	moduleName string
	funcNames  map[uint32]string
	localNames map[uint32]map[uint32]string
}

// ModuleName returns the module's name, or the empty string when the module
// carries none.
func (d *DebugInfo) ModuleName() string { return d.moduleName }

// FunctionName returns the symbol name of the given function index.
func (d *DebugInfo) FunctionName(funcIndex uint32) (string, bool) {
	name, ok := d.funcNames[funcIndex]
	return name, ok
}

// LocalName returns the symbol name of a local (parameters included) of the
// given function.
func (d *DebugInfo) LocalName(funcIndex, localIndex uint32) (string, bool) {
	locals, ok := d.localNames[funcIndex]
	if !ok {
		return "", false
	}
	name, ok := locals[localIndex]
	return name, ok
}

// parseDebugInfo decodes the first "name" custom section it finds. Debug info
// is advisory, so a malformed section yields whatever decoded cleanly before
// the damage rather than an error.
func parseDebugInfo(sections []CustomSection) *DebugInfo {
	info := &DebugInfo{}
	for _, section := range sections {
		if section.Name != nameSectionName {
			continue
		}
		decodeNameSection(section.Data, info)
		break
	}
	return info
}

func decodeNameSection(data []byte, info *DebugInfo) {
	r := bufio.NewReader(bytes.NewReader(data))
	for {
		subsectionID, err := r.ReadByte()
		if err != nil {
			return
		}
		size, err := readUleb128(r.ReadByte, maxUleb32Bytes)
		if err != nil {
			return
		}
		payload := make([]byte, size)
		if _, err := io.ReadFull(r, payload); err != nil {
			return
		}

		sub := bufio.NewReader(bytes.NewReader(payload))
		switch subsectionID {
		case moduleNameSubsection:
			name, err := readNameString(sub)
			if err != nil {
				return
			}
			info.moduleName = name
		case functionNameSubsection:
			names, err := readNameMap(sub)
			if err != nil {
				return
			}
			info.funcNames = names
		case localNameSubsection:
			count, err := readUleb128(sub.ReadByte, maxUleb32Bytes)
			if err != nil {
				return
			}
			info.localNames = make(map[uint32]map[uint32]string, count)
			for j := uint64(0); j < count; j++ {
				funcIndex, err := readUleb128(sub.ReadByte, maxUleb32Bytes)
				if err != nil {
					return
				}
				names, err := readNameMap(sub)
				if err != nil {
					return
				}
				info.localNames[uint32(funcIndex)] = names
			}
		}
	}
}

func readNameMap(r *bufio.Reader) (map[uint32]string, error) {
	count, err := readUleb128(r.ReadByte, maxUleb32Bytes)
	if err != nil {
		return nil, err
	}
	names := make(map[uint32]string, count)
	for j := uint64(0); j < count; j++ {
		index, err := readUleb128(r.ReadByte, maxUleb32Bytes)
		if err != nil {
			return nil, err
		}
		name, err := readNameString(r)
		if err != nil {
			return nil, err
		}
		names[uint32(index)] = name
	}
	return names, nil
}

func readNameString(r *bufio.Reader) (string, error) {
	length, err := readUleb128(r.ReadByte, maxUleb32Bytes)
	if err != nil {
		return "", err
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
