// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

package inspect

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/keel-rpc/keel/lib/protocol"
	"github.com/keel-rpc/keel/lib/wire"
)

// Message is one decoded message: its header and the fields of its
// body struct.
type Message struct {
	Name  string  `json:"name" yaml:"name" cbor:"name"`
	Type  string  `json:"type" yaml:"type" cbor:"type"`
	SeqID int32   `json:"seq_id" yaml:"seq_id" cbor:"seq_id"`
	Body  []Field `json:"body" yaml:"body" cbor:"body"`
}

// Field is one struct field, known only by id and wire type.
//
// Value holds a bool, an int64 (every integer width), a float64, a
// string, a []Field (nested struct), a *List (list and set), or a *Map.
// Strings that are not valid UTF-8 are reported with type "binary" and
// a hex string value; inside containers they appear as bare hex.
type Field struct {
	ID    int16  `json:"id" yaml:"id" cbor:"id"`
	Type  string `json:"type" yaml:"type" cbor:"type"`
	Value any    `json:"value" yaml:"value" cbor:"value"`
}

// List is a decoded list or set.
type List struct {
	ElementType string `json:"element_type" yaml:"element_type" cbor:"element_type"`
	Elements    []any  `json:"elements" yaml:"elements" cbor:"elements"`
}

// Map is a decoded map.
type Map struct {
	KeyType   string  `json:"key_type" yaml:"key_type" cbor:"key_type"`
	ValueType string  `json:"value_type" yaml:"value_type" cbor:"value_type"`
	Entries   []Entry `json:"entries" yaml:"entries" cbor:"entries"`
}

// Entry is one map entry.
type Entry struct {
	Key   any `json:"key" yaml:"key" cbor:"key"`
	Value any `json:"value" yaml:"value" cbor:"value"`
}

// ReadMessage decodes the next message from p. At a clean end of
// stream, between messages, it returns io.EOF.
func ReadMessage(p protocol.Protocol) (Message, error) {
	name, messageType, seqID, err := p.ReadMessageBegin()
	if err != nil {
		return Message{}, err
	}
	message := Message{Name: name, Type: messageType.String(), SeqID: seqID}
	if message.Body, err = readStruct(p, protocol.MaxSkipDepth); err != nil {
		return message, fmt.Errorf("decoding body of %s: %w", name, err)
	}
	if err := p.ReadMessageEnd(); err != nil {
		return message, err
	}
	return message, nil
}

// ReadAll decodes messages until the stream ends. It returns the
// messages decoded before any error.
func ReadAll(p protocol.Protocol) ([]Message, error) {
	var messages []Message
	for {
		message, err := ReadMessage(p)
		if errors.Is(err, io.EOF) {
			return messages, nil
		}
		if err != nil {
			return messages, err
		}
		messages = append(messages, message)
	}
}

func readStruct(p protocol.Protocol, depth int) ([]Field, error) {
	if _, err := p.ReadStructBegin(); err != nil {
		return nil, err
	}
	fields := []Field{}
	for {
		_, fieldType, id, err := p.ReadFieldBegin()
		if err != nil {
			return nil, err
		}
		if fieldType == wire.Stop {
			break
		}
		value, err := readValue(p, fieldType, depth-1)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", id, err)
		}
		fields = append(fields, Field{ID: id, Type: typeName(fieldType, value), Value: plain(value)})
		if err := p.ReadFieldEnd(); err != nil {
			return nil, err
		}
	}
	return fields, p.ReadStructEnd()
}

func readValue(p protocol.Protocol, valueType wire.Type, depth int) (any, error) {
	if depth <= 0 {
		return nil, &protocol.Error{Kind: protocol.DepthLimit, Err: fmt.Errorf("value nested deeper than %d levels", protocol.MaxSkipDepth)}
	}

	switch valueType {
	case wire.Bool:
		return p.ReadBool()
	case wire.I8:
		v, err := p.ReadI8()
		return int64(v), err
	case wire.I16:
		v, err := p.ReadI16()
		return int64(v), err
	case wire.I32:
		v, err := p.ReadI32()
		return int64(v), err
	case wire.I64:
		return p.ReadI64()
	case wire.Double:
		return p.ReadDouble()
	case wire.String:
		data, err := p.ReadBinary()
		if err != nil {
			return nil, err
		}
		if !utf8.Valid(data) {
			return binary(hex.EncodeToString(data)), nil
		}
		return string(data), nil
	case wire.Struct:
		return readStruct(p, depth)

	case wire.List, wire.Set:
		var elementType wire.Type
		var size int
		var err error
		if valueType == wire.List {
			elementType, size, err = p.ReadListBegin()
		} else {
			elementType, size, err = p.ReadSetBegin()
		}
		if err != nil {
			return nil, err
		}
		list := &List{ElementType: elementType.String(), Elements: make([]any, 0, min(size, preallocate))}
		for range size {
			element, err := readValue(p, elementType, depth-1)
			if err != nil {
				return nil, err
			}
			list.Elements = append(list.Elements, plain(element))
		}
		if valueType == wire.List {
			return list, p.ReadListEnd()
		}
		return list, p.ReadSetEnd()

	case wire.Map:
		keyType, elementType, size, err := p.ReadMapBegin()
		if err != nil {
			return nil, err
		}
		result := &Map{KeyType: keyType.String(), ValueType: elementType.String(), Entries: make([]Entry, 0, min(size, preallocate))}
		for range size {
			key, err := readValue(p, keyType, depth-1)
			if err != nil {
				return nil, err
			}
			value, err := readValue(p, elementType, depth-1)
			if err != nil {
				return nil, err
			}
			result.Entries = append(result.Entries, Entry{Key: plain(key), Value: plain(value)})
		}
		return result, p.ReadMapEnd()

	default:
		return nil, &protocol.Error{Kind: protocol.InvalidData, Err: fmt.Errorf("cannot decode type %s", valueType)}
	}
}

// preallocate caps the capacity reserved from an untrusted container
// size.
const preallocate = 1024

// binary marks a string value that is not valid UTF-8. It never
// escapes the package: Field.Type records the distinction instead.
type binary string

// typeName returns the reported type of a field.
func typeName(valueType wire.Type, value any) string {
	if _, ok := value.(binary); ok {
		return "binary"
	}
	return valueType.String()
}

// plain converts internal markers to their reported form.
func plain(value any) any {
	if b, ok := value.(binary); ok {
		return string(b)
	}
	return value
}
