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
	"fmt"

	"github.com/jhump/protoreflect/dynamic"

	"github.com/wasmdbg/wasmdbg/wasmdbg"
)

// Wire values of the Status and RunMode enums.
const (
	statusOK     int32 = 0
	statusNOK    int32 = 1
	statusFinish int32 = 2

	runModeStart    int32 = 0
	runModeStep     int32 = 1
	runModeStepOver int32 = 2
	runModeStepOut  int32 = 3
	runModeContinue int32 = 4
)

const (
	valueMessageName    = "wasmdbg.v1.Value"
	positionMessageName = "wasmdbg.v1.Position"
)

// valueToMessage encodes a Value into its wire message.
func valueToMessage(v wasmdbg.Value) (*dynamic.Message, error) {
	md, err := messageDesc(valueMessageName)
	if err != nil {
		return nil, err
	}
	msg := dynamic.NewMessage(md)
	switch v.Kind() {
	case wasmdbg.I32:
		i, _ := v.AsI32()
		msg.SetFieldByName("i32", i)
	case wasmdbg.I64:
		i, _ := v.AsI64()
		msg.SetFieldByName("i64", i)
	case wasmdbg.F32:
		f, _ := v.AsF32()
		msg.SetFieldByName("f32", f)
	case wasmdbg.F64:
		f, _ := v.AsF64()
		msg.SetFieldByName("f64", f)
	default:
		return nil, fmt.Errorf("value has unknown kind %s", v.Kind())
	}
	return msg, nil
}

// valueFromMessage decodes a wire Value. Exactly one oneof arm must be set.
func valueFromMessage(msg *dynamic.Message) (wasmdbg.Value, error) {
	switch {
	case msg.HasFieldName("i32"):
		return wasmdbg.I32Value(msg.GetFieldByName("i32").(int32)), nil
	case msg.HasFieldName("i64"):
		return wasmdbg.I64Value(msg.GetFieldByName("i64").(int64)), nil
	case msg.HasFieldName("f32"):
		return wasmdbg.F32Value(msg.GetFieldByName("f32").(float32)), nil
	case msg.HasFieldName("f64"):
		return wasmdbg.F64Value(msg.GetFieldByName("f64").(float64)), nil
	default:
		return wasmdbg.Value{}, fmt.Errorf("value message has no kind set")
	}
}

// fieldAsMessage extracts a nested message field, tolerating the different
// dynamic representations the decoder may produce.
func fieldAsMessage(parent *dynamic.Message, name string) (*dynamic.Message, error) {
	raw := parent.GetFieldByName(name)
	if raw == nil {
		return nil, fmt.Errorf("field %s is not set", name)
	}
	msg, ok := raw.(*dynamic.Message)
	if !ok {
		return nil, fmt.Errorf("field %s has unexpected type %T", name, raw)
	}
	return msg, nil
}

func positionToMessage(pos wasmdbg.CodePosition) (*dynamic.Message, error) {
	md, err := messageDesc(positionMessageName)
	if err != nil {
		return nil, err
	}
	msg := dynamic.NewMessage(md)
	msg.SetFieldByName("func_index", pos.FuncIndex)
	msg.SetFieldByName("instr_index", pos.InstrIndex)
	return msg, nil
}

func positionFromMessage(msg *dynamic.Message) wasmdbg.CodePosition {
	return wasmdbg.CodePosition{
		FuncIndex:  msg.GetFieldByName("func_index").(uint32),
		InstrIndex: msg.GetFieldByName("instr_index").(uint32),
	}
}

// valuesToMessages encodes a slice of Values for a repeated field.
func valuesToMessages(values []wasmdbg.Value) ([]any, error) {
	out := make([]any, 0, len(values))
	for _, v := range values {
		msg, err := valueToMessage(v)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}

// valuesFromField decodes a repeated Value field.
func valuesFromField(parent *dynamic.Message, name string) ([]wasmdbg.Value, error) {
	raw := parent.GetFieldByName(name)
	if raw == nil {
		return nil, nil
	}
	slice, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("field %s has unexpected type %T", name, raw)
	}
	values := make([]wasmdbg.Value, 0, len(slice))
	for i, item := range slice {
		msg, ok := item.(*dynamic.Message)
		if !ok {
			return nil, fmt.Errorf("field %s[%d] has unexpected type %T", name, i, item)
		}
		v, err := valueFromMessage(msg)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}
