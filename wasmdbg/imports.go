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

import "errors"

// ErrImportUnsupported is the canonical failure an ImportHandler returns when
// it cannot fulfill a call. Any handler error faults the VM the same way.
var ErrImportUnsupported = errors.New("import function not supported")

// ImportResult is what a fulfilled import call produced. Return is nil for
// void imports. Globals and Memory, when non-nil, replace the instance's
// global values and linear memory contents wholesale; nil leaves the
// corresponding state untouched.
type ImportResult struct {
	Return  *Value
	Globals []Value
	Memory  []byte
}

// ImportHandler fulfills calls to imported functions on behalf of the host.
//
// The VM calls Fulfill with the callee's function index, its arguments, and
// snapshots of the instance's globals and default linear memory. The handler
// may mutate its copies freely; only the ImportResult decides what is written
// back. A non-nil error faults the VM with an unsupported-import trap while
// keeping it inspectable.
type ImportHandler interface {
	Fulfill(funcIndex uint32, args []Value, globals []Value, memory []byte) (*ImportResult, error)
}

// UnsupportedImportHandler rejects every import call. It is the handler a VM
// uses when no bridge is attached.
type UnsupportedImportHandler struct{}

func (UnsupportedImportHandler) Fulfill(uint32, []Value, []Value, []byte) (*ImportResult, error) {
	return nil, ErrImportUnsupported
}

// ImportHandlerFunc adapts a plain function to the ImportHandler interface.
type ImportHandlerFunc func(funcIndex uint32, args []Value, globals []Value, memory []byte) (*ImportResult, error)

func (f ImportHandlerFunc) Fulfill(
	funcIndex uint32,
	args []Value,
	globals []Value,
	memory []byte,
) (*ImportResult, error) {
	return f(funcIndex, args, globals, memory)
}
