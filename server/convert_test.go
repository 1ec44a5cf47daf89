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
	"testing"

	"github.com/jhump/protoreflect/dynamic"

	"github.com/wasmdbg/wasmdbg/wasmdbg"
)

func TestValueMessageRoundTrip(t *testing.T) {
	values := []wasmdbg.Value{
		wasmdbg.I32Value(-5),
		wasmdbg.I64Value(1 << 40),
		wasmdbg.F32Value(1.5),
		wasmdbg.F64Value(-2.25),
	}
	oneofArms := []string{"i32", "i64", "f32", "f64"}

	for i, want := range values {
		msg, err := valueToMessage(want)
		if err != nil {
			t.Fatalf("valueToMessage(%v) failed: %v", want, err)
		}
		if !msg.HasFieldName(oneofArms[i]) {
			t.Errorf("valueToMessage(%v) did not set the %s arm", want, oneofArms[i])
		}
		got, err := valueFromMessage(msg)
		if err != nil {
			t.Fatalf("valueFromMessage failed: %v", err)
		}
		if got != want {
			t.Errorf("round trip = %v, want %v", got, want)
		}
	}
}

func TestValueFromMessageWithoutKind(t *testing.T) {
	md, err := messageDesc(valueMessageName)
	if err != nil {
		t.Fatalf("messageDesc failed: %v", err)
	}
	if _, err := valueFromMessage(dynamic.NewMessage(md)); err == nil {
		t.Fatalf("valueFromMessage accepted a message with no arm set")
	}
}

func TestPositionMessageRoundTrip(t *testing.T) {
	want := wasmdbg.CodePosition{FuncIndex: 3, InstrIndex: 17}
	msg, err := positionToMessage(want)
	if err != nil {
		t.Fatalf("positionToMessage failed: %v", err)
	}
	if got := positionFromMessage(msg); got != want {
		t.Errorf("round trip = %v, want %v", got, want)
	}
}

func TestRepeatedValueField(t *testing.T) {
	want := []wasmdbg.Value{
		wasmdbg.I32Value(1),
		wasmdbg.F64Value(2.5),
	}
	msgs, err := valuesToMessages(want)
	if err != nil {
		t.Fatalf("valuesToMessages failed: %v", err)
	}

	md, err := messageDesc("wasmdbg.v1.GetValueStackResponse")
	if err != nil {
		t.Fatalf("messageDesc failed: %v", err)
	}
	parent := dynamic.NewMessage(md)
	parent.SetFieldByName("values", msgs)

	got, err := valuesFromField(parent, "values")
	if err != nil {
		t.Fatalf("valuesFromField failed: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("decoded %d values, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("values[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestRepeatedValueFieldEmpty(t *testing.T) {
	md, err := messageDesc("wasmdbg.v1.GetValueStackResponse")
	if err != nil {
		t.Fatalf("messageDesc failed: %v", err)
	}
	got, err := valuesFromField(dynamic.NewMessage(md), "values")
	if err != nil {
		t.Fatalf("valuesFromField failed: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("decoded %d values from an unset field, want 0", len(got))
	}
}
