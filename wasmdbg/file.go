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
	"bytes"
	"fmt"
	"os"
)

// File is a loaded module together with where it came from. Path is empty for
// modules loaded from memory.
type File struct {
	Path   string
	module *Module
}

func (f *File) Module() *Module { return f.module }

// LoadFile reads and parses a binary module from disk.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	module, err := NewParser(bytes.NewReader(data)).Parse()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &File{Path: path, module: module}, nil
}

// LoadBytes parses a binary module from memory.
func LoadBytes(data []byte) (*File, error) {
	module, err := NewParser(bytes.NewReader(data)).Parse()
	if err != nil {
		return nil, fmt.Errorf("failed to parse module: %w", err)
	}
	return &File{module: module}, nil
}
