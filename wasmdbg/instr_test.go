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
	"fmt"
	"testing"
)

func TestOpcodeString(t *testing.T) {
	cases := []struct {
		op   Opcode
		want string
	}{
		{OpI32Const, "i32.const"},
		{OpCallIndirect, "call_indirect"},
		{OpI32TruncF64U, "i32.trunc_f64_u"},
		{Opcode(0xff), "op(0xff)"},
	}
	for _, c := range cases {
		if got := c.op.String(); got != c.want {
			t.Errorf("Opcode(0x%02x).String() = %q, want %q", byte(c.op), got, c.want)
		}
	}
	// The mnemonic has to survive a %s verb; disassembly output relies on it.
	if got := fmt.Sprintf("%s", OpLocalGet); got != "local.get" {
		t.Errorf("%%s on OpLocalGet = %q, want %q", got, "local.get")
	}
}

func TestInstructionString(t *testing.T) {
	cases := []struct {
		instr Instruction
		want  string
	}{
		{ins(OpI32Const, 0xffffffff), "i32.const -1"},
		{ins(OpLocalGet, 3), "local.get 3"},
		{ins(OpNop), "nop"},
		{ins(OpBrTable, 0, 1, 2), "br_table 0 1 2"},
	}
	for _, c := range cases {
		if got := c.instr.String(); got != c.want {
			t.Errorf("Instruction.String() = %q, want %q", got, c.want)
		}
	}
}
