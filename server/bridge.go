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

package server

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jhump/protoreflect/dynamic"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/wasmdbg/wasmdbg/wasmdbg"
)

// Bridge forwards the debuggee's import calls to a remote host process
// implementing the ImportHandler service. It satisfies wasmdbg.ImportHandler,
// so attaching it to a session makes every imported function a remote call.
//
// The VM blocks while a call is in flight; the timeout turns a dead host
// into an unsupported-import fault instead of a hang.
type Bridge struct {
	conn    *grpc.ClientConn
	timeout time.Duration
	logger  *log.Logger
}

// NewBridge connects to the host process at target. The connection is lazy;
// a bad address only surfaces when the first import call is made.
func NewBridge(target string, timeout time.Duration, logger *log.Logger) (*Bridge, error) {
	if timeout <= 0 {
		timeout = DefaultImportTimeout
	}
	if logger == nil {
		logger = log.Default()
	}
	conn, err := grpc.NewClient(
		target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to import handler at %s: %w", target, err)
	}
	return &Bridge{conn: conn, timeout: timeout, logger: logger}, nil
}

// Close tears down the connection to the host process.
func (b *Bridge) Close() error {
	return b.conn.Close()
}

// Fulfill implements wasmdbg.ImportHandler by forwarding the call over gRPC.
func (b *Bridge) Fulfill(
	funcIndex uint32,
	args []wasmdbg.Value,
	globals []wasmdbg.Value,
	memory []byte,
) (*wasmdbg.ImportResult, error) {
	reqMD, err := messageDesc("wasmdbg.v1.ImportCallRequest")
	if err != nil {
		return nil, err
	}
	respMD, err := messageDesc("wasmdbg.v1.ImportCallResponse")
	if err != nil {
		return nil, err
	}

	req := dynamic.NewMessage(reqMD)
	req.SetFieldByName("func_index", funcIndex)
	argMsgs, err := valuesToMessages(args)
	if err != nil {
		return nil, err
	}
	req.SetFieldByName("args", argMsgs)
	globalMsgs, err := valuesToMessages(globals)
	if err != nil {
		return nil, err
	}
	req.SetFieldByName("globals", globalMsgs)
	req.SetFieldByName("memory", memory)

	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	resp := dynamic.NewMessage(respMD)
	if err := b.conn.Invoke(ctx, handleImportCallMethod, req, resp); err != nil {
		b.logger.Printf("import call for function %d failed: %v", funcIndex, err)
		return nil, fmt.Errorf("import call failed: %w", err)
	}

	if status := resp.GetFieldByName("status").(int32); status != statusOK {
		message, _ := resp.GetFieldByName("message").(string)
		return nil, fmt.Errorf("import handler rejected function %d: %s", funcIndex, message)
	}

	result := &wasmdbg.ImportResult{}
	if resp.HasFieldName("return_value") {
		retMsg, err := fieldAsMessage(resp, "return_value")
		if err != nil {
			return nil, err
		}
		ret, err := valueFromMessage(retMsg)
		if err != nil {
			return nil, err
		}
		result.Return = &ret
	}
	newGlobals, err := valuesFromField(resp, "globals")
	if err != nil {
		return nil, err
	}
	if len(newGlobals) > 0 {
		result.Globals = newGlobals
	}
	if newMemory, ok := resp.GetFieldByName("memory").([]byte); ok && len(newMemory) > 0 {
		result.Memory = newMemory
	}
	return result, nil
}
