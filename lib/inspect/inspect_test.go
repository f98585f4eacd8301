// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

package inspect

import (
	"bytes"
	"encoding/hex"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/keel-rpc/keel/lib/codec"
	"github.com/keel-rpc/keel/lib/protocol"
	"github.com/keel-rpc/keel/lib/wire"
	"github.com/keel-rpc/keel/transport"
)

// capture writes a calculate call and an exception reply and returns
// the raw stream.
func capture(t *testing.T) []byte {
	t.Helper()
	memory := transport.NewMemoryBuffer(nil)
	p := protocol.NewBinary(memory, protocol.BinaryConfig{StrictWrite: true})
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}

	must(p.WriteMessageBegin("calculate", wire.Call, 7))
	must(p.WriteStructBegin("calculate_args"))
	must(p.WriteFieldBegin("logid", wire.I32, 1))
	must(p.WriteI32(1))
	must(p.WriteFieldEnd())
	must(p.WriteFieldBegin("w", wire.Struct, 2))
	must(p.WriteStructBegin("Work"))
	must(p.WriteFieldBegin("num1", wire.I32, 1))
	must(p.WriteI32(15))
	must(p.WriteFieldEnd())
	must(p.WriteFieldBegin("tags", wire.List, 5))
	must(p.WriteListBegin(wire.String, 2))
	must(p.WriteString("a"))
	must(p.WriteString("b"))
	must(p.WriteListEnd())
	must(p.WriteFieldEnd())
	must(p.WriteFieldBegin("weights", wire.Map, 6))
	must(p.WriteMapBegin(wire.I16, wire.Double, 1))
	must(p.WriteI16(3))
	must(p.WriteDouble(0.5))
	must(p.WriteMapEnd())
	must(p.WriteFieldEnd())
	must(p.WriteFieldBegin("raw", wire.String, 7))
	must(p.WriteBinary([]byte{0xff, 0x00}))
	must(p.WriteFieldEnd())
	must(p.WriteFieldStop())
	must(p.WriteStructEnd())
	must(p.WriteFieldEnd())
	must(p.WriteFieldStop())
	must(p.WriteStructEnd())
	must(p.WriteMessageEnd())

	must(p.WriteMessageBegin("calculate", wire.Exception, 7))
	must(p.WriteStructBegin("ApplicationException"))
	must(p.WriteFieldBegin("message", wire.String, 1))
	must(p.WriteString("Cannot divide by 0"))
	must(p.WriteFieldEnd())
	must(p.WriteFieldBegin("type", wire.I32, 2))
	must(p.WriteI32(6))
	must(p.WriteFieldEnd())
	must(p.WriteFieldBegin("ok", wire.Bool, 3))
	must(p.WriteBool(true))
	must(p.WriteFieldEnd())
	must(p.WriteFieldStop())
	must(p.WriteStructEnd())
	must(p.WriteMessageEnd())
	must(p.Flush())

	return bytes.Clone(memory.Bytes())
}

func decode(data []byte) ([]Message, error) {
	return ReadAll(protocol.NewBinary(transport.NewMemoryBuffer(data), protocol.BinaryConfig{}))
}

func TestReadAll(t *testing.T) {
	messages, err := decode(capture(t))
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}

	want := []Message{
		{
			Name: "calculate", Type: "CALL", SeqID: 7,
			Body: []Field{
				{ID: 1, Type: "i32", Value: int64(1)},
				{ID: 2, Type: "struct", Value: []Field{
					{ID: 1, Type: "i32", Value: int64(15)},
					{ID: 5, Type: "list", Value: &List{ElementType: "string", Elements: []any{"a", "b"}}},
					{ID: 6, Type: "map", Value: &Map{KeyType: "i16", ValueType: "double", Entries: []Entry{{Key: int64(3), Value: 0.5}}}},
					{ID: 7, Type: "binary", Value: "ff00"},
				}},
			},
		},
		{
			Name: "calculate", Type: "EXCEPTION", SeqID: 7,
			Body: []Field{
				{ID: 1, Type: "string", Value: "Cannot divide by 0"},
				{ID: 2, Type: "i32", Value: int64(6)},
				{ID: 3, Type: "bool", Value: true},
			},
		},
	}
	if !reflect.DeepEqual(messages, want) {
		t.Errorf("ReadAll =\n%#v\nwant\n%#v", messages, want)
	}
}

func TestReadAllEmptyStream(t *testing.T) {
	messages, err := decode(nil)
	if err != nil || len(messages) != 0 {
		t.Errorf("ReadAll(empty) = %v, %v", messages, err)
	}
}

func TestReadAllTruncated(t *testing.T) {
	data := capture(t)
	messages, err := decode(data[:len(data)-3])
	if !errors.Is(err, protocol.ErrInvalidData) {
		t.Fatalf("ReadAll(truncated) error = %v, want InvalidData", err)
	}
	if len(messages) != 1 || messages[0].Type != "CALL" {
		t.Errorf("messages before the truncation = %v", messages)
	}
}

func TestReadMessageDepthLimit(t *testing.T) {
	memory := transport.NewMemoryBuffer(nil)
	p := protocol.NewBinary(memory, protocol.BinaryConfig{})
	p.WriteMessageBegin("deep", wire.Call, 1)
	p.WriteStructBegin("")
	p.WriteFieldBegin("", wire.List, 1)
	for range protocol.MaxSkipDepth + 5 {
		p.WriteListBegin(wire.List, 1)
	}
	p.WriteListBegin(wire.I32, 0)

	_, err := ReadMessage(protocol.NewBinary(memory, protocol.BinaryConfig{}))
	if !errors.Is(err, protocol.ErrDepthLimit) {
		t.Errorf("ReadMessage = %v, want DepthLimit", err)
	}
}

func TestRender(t *testing.T) {
	messages, err := decode(capture(t))
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}

	render := func(format Format) string {
		t.Helper()
		var buffer bytes.Buffer
		if err := Render(&buffer, messages, format); err != nil {
			t.Fatalf("Render(%s): %v", format, err)
		}
		return buffer.String()
	}

	jsonOutput := render(FormatJSON)
	for _, want := range []string{`"name": "calculate"`, `"seq_id": 7`, `"type": "binary"`, `"value": "ff00"`, `"element_type": "string"`} {
		if !strings.Contains(jsonOutput, want) {
			t.Errorf("json output lacks %s:\n%s", want, jsonOutput)
		}
	}

	yamlOutput := render(FormatYAML)
	for _, want := range []string{"name: calculate", "type: EXCEPTION", "value: Cannot divide by 0"} {
		if !strings.Contains(yamlOutput, want) {
			t.Errorf("yaml output lacks %q:\n%s", want, yamlOutput)
		}
	}

	hexOutput := strings.TrimSpace(render(FormatCBOR))
	data, err := hex.DecodeString(hexOutput)
	if err != nil {
		t.Fatalf("cbor output is not hex: %v", err)
	}
	decoded, err := codec.Diagnose(data)
	if err != nil {
		t.Fatalf("cbor output does not decode: %v", err)
	}
	if !strings.HasPrefix(decoded, "[") || !strings.Contains(decoded, `"type": "EXCEPTION"`) {
		t.Errorf("decoded cbor = %s", decoded)
	}

	if diag := render(FormatDiag); !strings.Contains(diag, `"calculate"`) {
		t.Errorf("diagnostic output lacks the method name:\n%s", diag)
	}

	treeOutput := render(FormatTree)
	for _, want := range []string{"CALL calculate", "seq=7", `"Cannot divide by 0"`, "ff00", "0.5"} {
		if !strings.Contains(treeOutput, want) {
			t.Errorf("tree output lacks %q:\n%s", want, treeOutput)
		}
	}
}

func TestParseFormat(t *testing.T) {
	for _, format := range Formats {
		parsed, err := ParseFormat(string(format))
		if err != nil || parsed != format {
			t.Errorf("ParseFormat(%q) = %q, %v", format, parsed, err)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("ParseFormat(\"xml\") succeeded")
	}
}
