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

// Package server exposes a debug session over gRPC and bridges the
// debuggee's import calls back to a remote host process.
//
// The wire schema lives in proto/debugger.proto and is parsed at startup with
// protoparse; services are registered from runtime-built descriptors and
// messages travel as dynamic messages, so no generated code is checked in.
package server

import (
	"embed"
	"fmt"
	"io"
	"sync"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/desc/protoparse"
)

//go:embed proto/debugger.proto
var protoFS embed.FS

const (
	protoFileName            = "proto/debugger.proto"
	debuggerServiceName      = "wasmdbg.v1.Debugger"
	importHandlerServiceName = "wasmdbg.v1.ImportHandler"
	handleImportCallMethod   = "/wasmdbg.v1.ImportHandler/HandleImportCall"
)

var (
	descriptorOnce sync.Once
	fileDescriptor *desc.FileDescriptor
	descriptorErr  error
)

// fileDesc parses the embedded schema once and returns its descriptor.
func fileDesc() (*desc.FileDescriptor, error) {
	descriptorOnce.Do(func() {
		parser := protoparse.Parser{
			Accessor: func(filename string) (io.ReadCloser, error) {
				return protoFS.Open(filename)
			},
		}
		fds, err := parser.ParseFiles(protoFileName)
		if err != nil {
			descriptorErr = fmt.Errorf("failed to parse embedded schema: %w", err)
			return
		}
		fileDescriptor = fds[0]
	})
	return fileDescriptor, descriptorErr
}

func serviceDesc(name string) (*desc.ServiceDescriptor, error) {
	fd, err := fileDesc()
	if err != nil {
		return nil, err
	}
	sd := fd.FindService(name)
	if sd == nil {
		return nil, fmt.Errorf("service %s not found in embedded schema", name)
	}
	return sd, nil
}

func messageDesc(name string) (*desc.MessageDescriptor, error) {
	fd, err := fileDesc()
	if err != nil {
		return nil, err
	}
	md := fd.FindMessage(name)
	if md == nil {
		return nil, fmt.Errorf("message %s not found in embedded schema", name)
	}
	return md, nil
}
