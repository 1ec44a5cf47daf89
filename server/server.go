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
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/dynamic"
	"google.golang.org/grpc"

	"github.com/wasmdbg/wasmdbg/wasmdbg"
)

// Server exposes debug sessions over gRPC. Each session is an independent
// wasmdbg.Debugger addressed by the session id LoadModule hands out.
type Server struct {
	cfg    *Config
	logger *log.Logger
	bridge *Bridge

	grpcServer *grpc.Server

	mu       sync.Mutex
	sessions map[string]*wasmdbg.Debugger
}

// NewServer builds a server from the given configuration. When the config
// names an import handler target, every session's import calls are bridged
// to it.
func NewServer(cfg *Config, logger *log.Logger) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[string]*wasmdbg.Debugger),
	}
	if cfg.ImportHandler.Target != "" {
		bridge, err := NewBridge(cfg.ImportHandler.Target, cfg.ImportHandler.ImportTimeout(), logger)
		if err != nil {
			return nil, err
		}
		s.bridge = bridge
	}
	return s, nil
}

// Serve listens on the configured address and blocks until Stop is called or
// the listener fails.
func (s *Server) Serve() error {
	sd, err := s.buildServiceDesc()
	if err != nil {
		return err
	}

	lis, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddr, err)
	}

	s.grpcServer = grpc.NewServer()
	s.grpcServer.RegisterService(sd, s)
	s.logger.Printf("debug server listening on %s", lis.Addr())
	return s.grpcServer.Serve(lis)
}

// Stop drains in-flight calls and shuts the server down.
func (s *Server) Stop() {
	if s.grpcServer != nil {
		s.grpcServer.GracefulStop()
	}
	if s.bridge != nil {
		s.bridge.Close()
	}
}

// buildServiceDesc constructs the Debugger service description from the
// embedded schema, with one dynamic-message handler per method.
func (s *Server) buildServiceDesc() (*grpc.ServiceDesc, error) {
	svc, err := serviceDesc(debuggerServiceName)
	if err != nil {
		return nil, err
	}

	sd := &grpc.ServiceDesc{
		ServiceName: debuggerServiceName,
		HandlerType: (*any)(nil),
		Metadata:    svc.GetFile().GetName(),
	}
	for _, method := range svc.GetMethods() {
		md := method
		sd.Methods = append(sd.Methods, grpc.MethodDesc{
			MethodName: md.GetName(),
			Handler: func(
				srv any,
				ctx context.Context,
				dec func(any) error,
				interceptor grpc.UnaryServerInterceptor,
			) (any, error) {
				return srv.(*Server).handleUnary(ctx, md, dec)
			},
		})
	}
	return sd, nil
}

func (s *Server) handleUnary(
	_ context.Context,
	md *desc.MethodDescriptor,
	dec func(any) error,
) (any, error) {
	in := dynamic.NewMessage(md.GetInputType())
	if err := dec(in); err != nil {
		return nil, err
	}

	out := dynamic.NewMessage(md.GetOutputType())
	switch md.GetName() {
	case "LoadModule":
		s.handleLoadModule(in, out)
	case "RunCode":
		s.handleRunCode(in, out)
	case "GetLocal":
		s.handleGetLocal(in, out)
	case "GetGlobal":
		s.handleGetGlobal(in, out)
	case "GetValueStack":
		s.handleGetValueStack(in, out)
	case "GetCallStack":
		s.handleGetCallStack(in, out)
	case "AddBreakpoint":
		s.handleAddBreakpoint(in, out)
	case "DeleteBreakpoint":
		s.handleDeleteBreakpoint(in, out)
	default:
		return nil, fmt.Errorf("method %s not implemented", md.GetName())
	}
	return out, nil
}

// session resolves a session id, failing on unknown ids.
func (s *Server) session(id string) (*wasmdbg.Debugger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("unknown session %q", id)
	}
	return d, nil
}

// sessionOrNew resolves a session id, creating a fresh session when the id is
// empty.
func (s *Server) sessionOrNew(id string) (string, *wasmdbg.Debugger, error) {
	if id == "" {
		s.mu.Lock()
		defer s.mu.Unlock()
		id = uuid.NewString()
		var handler wasmdbg.ImportHandler
		if s.bridge != nil {
			handler = s.bridge
		}
		d := wasmdbg.NewDebugger(handler)
		s.sessions[id] = d
		s.logger.Printf("created session %s", id)
		return id, d, nil
	}
	d, err := s.session(id)
	return id, d, err
}

func setError(out *dynamic.Message, err error) {
	setNOK(out, err.Error())
}

func setNOK(out *dynamic.Message, message string) {
	out.SetFieldByName("status", statusNOK)
	out.SetFieldByName("message", message)
}

func setOK(out *dynamic.Message) {
	out.SetFieldByName("status", statusOK)
}

func (s *Server) handleLoadModule(in, out *dynamic.Message) {
	id, d, err := s.sessionOrNew(in.GetFieldByName("session_id").(string))
	if err != nil {
		setError(out, err)
		return
	}
	out.SetFieldByName("session_id", id)

	if module, ok := in.GetFieldByName("module").([]byte); ok && len(module) > 0 {
		err = d.LoadBytes(module)
	} else if path, ok := in.GetFieldByName("path").(string); ok && path != "" {
		err = d.LoadFile(path)
	} else {
		err = fmt.Errorf("request carries neither a path nor a module")
	}
	if err != nil {
		setError(out, err)
		return
	}
	s.logger.Printf("session %s: module loaded", id)
	setOK(out)
}

func (s *Server) handleRunCode(in, out *dynamic.Message) {
	d, err := s.session(in.GetFieldByName("session_id").(string))
	if err != nil {
		setError(out, err)
		return
	}

	var trap *wasmdbg.Trap
	switch mode := in.GetFieldByName("mode").(int32); mode {
	case runModeStart:
		err = d.Start()
	case runModeStep:
		trap, err = d.Step()
	case runModeStepOver:
		trap, err = d.StepOver()
	case runModeStepOut:
		trap, err = d.StepOut()
	case runModeContinue:
		trap, err = d.Continue()
	default:
		err = fmt.Errorf("unknown run mode %d", mode)
	}
	if err != nil {
		setError(out, err)
		return
	}

	if trap != nil {
		out.SetFieldByName("message", trap.String())
		switch {
		case trap.Kind == wasmdbg.ExecutionFinished:
			out.SetFieldByName("status", statusFinish)
			return
		case trap.IsFault():
			out.SetFieldByName("status", statusNOK)
		default:
			setOK(out)
		}
	} else {
		setOK(out)
	}

	if pos, err := d.IP(); err == nil {
		posMsg, err := positionToMessage(pos)
		if err == nil {
			out.SetFieldByName("position", posMsg)
		}
	}
}

func (s *Server) handleGetLocal(in, out *dynamic.Message) {
	d, err := s.session(in.GetFieldByName("session_id").(string))
	if err != nil {
		setError(out, err)
		return
	}
	level := in.GetFieldByName("level").(int32)
	index := in.GetFieldByName("index").(uint32)

	locals, err := d.Locals(int(level))
	if err != nil {
		setError(out, err)
		return
	}
	if int(index) >= len(locals) {
		setError(out, fmt.Errorf("no local with index %d at level %d", index, level))
		return
	}
	valueMsg, err := valueToMessage(locals[index])
	if err != nil {
		setError(out, err)
		return
	}
	setOK(out)
	out.SetFieldByName("value", valueMsg)
}

func (s *Server) handleGetGlobal(in, out *dynamic.Message) {
	d, err := s.session(in.GetFieldByName("session_id").(string))
	if err != nil {
		setError(out, err)
		return
	}
	value, err := d.GlobalValue(in.GetFieldByName("index").(uint32))
	if err != nil {
		setError(out, err)
		return
	}
	valueMsg, err := valueToMessage(value)
	if err != nil {
		setError(out, err)
		return
	}
	setOK(out)
	out.SetFieldByName("value", valueMsg)
}

func (s *Server) handleGetValueStack(in, out *dynamic.Message) {
	d, err := s.session(in.GetFieldByName("session_id").(string))
	if err != nil {
		setError(out, err)
		return
	}
	values, err := d.ValueStack()
	if err != nil {
		setError(out, err)
		return
	}
	msgs, err := valuesToMessages(values)
	if err != nil {
		setError(out, err)
		return
	}
	setOK(out)
	out.SetFieldByName("values", msgs)
}

func (s *Server) handleGetCallStack(in, out *dynamic.Message) {
	d, err := s.session(in.GetFieldByName("session_id").(string))
	if err != nil {
		setError(out, err)
		return
	}
	frames, err := d.Backtrace()
	if err != nil {
		setError(out, err)
		return
	}
	msgs := make([]any, 0, len(frames))
	for _, frame := range frames {
		posMsg, err := positionToMessage(frame)
		if err != nil {
			setError(out, err)
			return
		}
		msgs = append(msgs, posMsg)
	}
	setOK(out)
	out.SetFieldByName("frames", msgs)
}

func (s *Server) handleAddBreakpoint(in, out *dynamic.Message) {
	d, err := s.session(in.GetFieldByName("session_id").(string))
	if err != nil {
		setError(out, err)
		return
	}
	posMsg, err := fieldAsMessage(in, "position")
	if err != nil {
		setError(out, err)
		return
	}
	index, err := d.AddBreakpoint(positionFromMessage(posMsg))
	if err != nil {
		setError(out, err)
		return
	}
	setOK(out)
	out.SetFieldByName("index", index)
}

func (s *Server) handleDeleteBreakpoint(in, out *dynamic.Message) {
	d, err := s.session(in.GetFieldByName("session_id").(string))
	if err != nil {
		setError(out, err)
		return
	}
	index := in.GetFieldByName("index").(uint32)
	deleted, err := d.DeleteBreakpoint(index)
	if err != nil {
		setError(out, err)
		return
	}
	if !deleted {
		setNOK(out, fmt.Sprintf("no breakpoint with index %d", index))
		return
	}
	setOK(out)
}
