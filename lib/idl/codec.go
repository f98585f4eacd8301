// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

package idl

import (
	"errors"
	"fmt"

	"github.com/keel-rpc/keel/lib/protocol"
	"github.com/keel-rpc/keel/lib/wire"
)

// ErrUnrepresentable is returned when asked to encode or decode a type
// with no wire form, such as void. It always indicates a schema or
// binding bug, never bad input.
var ErrUnrepresentable = errors.New("idl: type has no wire representation")

// ValidationError reports a struct that breaks its declaration: a
// required field with no value, a value of the wrong type, or a
// required enum field holding an undeclared ordinal.
type ValidationError struct {
	Struct string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("idl: %s.%s: %s", e.Struct, e.Field, e.Reason)
}

// maxDecodeDepth bounds how deeply ReadValue follows nested structs and
// containers, so a recursive schema cannot be used to exhaust the stack.
const maxDecodeDepth = protocol.MaxSkipDepth

// WriteValue encodes v as a value of type t.
func WriteValue(p protocol.Protocol, t *TypeDescriptor, v Value) error {
	return writeValue(p, t, v)
}

func writeValue(p protocol.Protocol, t *TypeDescriptor, v Value) error {
	if !t.Wire.Valid() {
		return fmt.Errorf("%w: %s", ErrUnrepresentable, t)
	}
	if v.Type() != t.Wire {
		return fmt.Errorf("idl: cannot write %s value as %s", v.Type(), t)
	}

	switch t.Wire {
	case wire.Bool:
		return p.WriteBool(v.Bool())
	case wire.I8:
		return p.WriteI8(v.I8())
	case wire.I16:
		return p.WriteI16(v.I16())
	case wire.I32:
		return p.WriteI32(v.I32())
	case wire.I64:
		return p.WriteI64(v.I64())
	case wire.Double:
		return p.WriteDouble(v.Double())
	case wire.String:
		return p.WriteBinary(v.Binary())

	case wire.Struct:
		if v.Struct() == nil {
			return fmt.Errorf("idl: nil %s value", t)
		}
		return writeStruct(p, v.Struct())

	case wire.List, wire.Set:
		elements := v.elements
		var err error
		if t.Wire == wire.List {
			err = p.WriteListBegin(t.Element.Wire, len(elements))
		} else {
			err = p.WriteSetBegin(t.Element.Wire, len(elements))
		}
		if err != nil {
			return err
		}
		for _, element := range elements {
			if err := writeValue(p, t.Element, element); err != nil {
				return err
			}
		}
		if t.Wire == wire.List {
			return p.WriteListEnd()
		}
		return p.WriteSetEnd()

	case wire.Map:
		pairs := v.Map()
		if err := p.WriteMapBegin(t.Key.Wire, t.Element.Wire, len(pairs)); err != nil {
			return err
		}
		for _, pair := range pairs {
			if err := writeValue(p, t.Key, pair.Key); err != nil {
				return err
			}
			if err := writeValue(p, t.Element, pair.Value); err != nil {
				return err
			}
		}
		return p.WriteMapEnd()

	default:
		return fmt.Errorf("%w: %s", ErrUnrepresentable, t)
	}
}

// ReadValue decodes one value of type t. Struct-typed values are
// decoded into instances created by the struct descriptor's factory.
// A container whose header announces elements of a different wire type
// than t declares is rejected with protocol.InvalidData.
func ReadValue(p protocol.Protocol, t *TypeDescriptor) (Value, error) {
	return readValue(p, t, maxDecodeDepth)
}

func readValue(p protocol.Protocol, t *TypeDescriptor, depth int) (Value, error) {
	if !t.Wire.Valid() {
		return Value{}, fmt.Errorf("%w: %s", ErrUnrepresentable, t)
	}
	if depth <= 0 {
		return Value{}, &protocol.Error{Kind: protocol.DepthLimit, Err: fmt.Errorf("value nested deeper than %d levels", maxDecodeDepth)}
	}

	switch t.Wire {
	case wire.Bool:
		value, err := p.ReadBool()
		return Bool(value), err
	case wire.I8:
		value, err := p.ReadI8()
		return I8(value), err
	case wire.I16:
		value, err := p.ReadI16()
		return I16(value), err
	case wire.I32:
		value, err := p.ReadI32()
		return I32(value), err
	case wire.I64:
		value, err := p.ReadI64()
		return I64(value), err
	case wire.Double:
		value, err := p.ReadDouble()
		return Double(value), err
	case wire.String:
		value, err := p.ReadBinary()
		return Binary(value), err

	case wire.Struct:
		instance := t.Struct.New()
		if err := readStruct(p, instance, depth-1); err != nil {
			return Value{}, err
		}
		return StructValue(instance), nil

	case wire.List, wire.Set:
		var elementType wire.Type
		var size int
		var err error
		if t.Wire == wire.List {
			elementType, size, err = p.ReadListBegin()
		} else {
			elementType, size, err = p.ReadSetBegin()
		}
		if err != nil {
			return Value{}, err
		}
		if size > 0 && elementType != t.Element.Wire {
			return Value{}, elementMismatch(t, elementType)
		}
		elements := make([]Value, 0, min(size, preallocateLimit))
		for range size {
			element, err := readValue(p, t.Element, depth-1)
			if err != nil {
				return Value{}, err
			}
			elements = append(elements, element)
		}
		if t.Wire == wire.List {
			return List(elements...), p.ReadListEnd()
		}
		return Set(elements...), p.ReadSetEnd()

	case wire.Map:
		keyType, valueType, size, err := p.ReadMapBegin()
		if err != nil {
			return Value{}, err
		}
		if size > 0 && (keyType != t.Key.Wire || valueType != t.Element.Wire) {
			return Value{}, &protocol.Error{Kind: protocol.InvalidData, Err: fmt.Errorf("%s announced as map<%s, %s>", t, keyType, valueType)}
		}
		pairs := make([]Pair, 0, min(size, preallocateLimit))
		for range size {
			key, err := readValue(p, t.Key, depth-1)
			if err != nil {
				return Value{}, err
			}
			value, err := readValue(p, t.Element, depth-1)
			if err != nil {
				return Value{}, err
			}
			pairs = append(pairs, Pair{Key: key, Value: value})
		}
		return Map(pairs...), p.ReadMapEnd()

	default:
		return Value{}, fmt.Errorf("%w: %s", ErrUnrepresentable, t)
	}
}

// preallocateLimit caps the capacity reserved from a container size
// read off the wire before any element has arrived.
const preallocateLimit = 1024

func elementMismatch(t *TypeDescriptor, announced wire.Type) error {
	return &protocol.Error{Kind: protocol.InvalidData, Err: fmt.Errorf("%s announced with %s elements", t, announced)}
}

// WriteStruct validates s and then writes every set field in ascending
// id order, followed by the stop marker. Nothing is written when
// validation fails.
func WriteStruct(p protocol.Protocol, s Struct) error {
	if err := Validate(s); err != nil {
		return err
	}
	return writeStruct(p, s)
}

func writeStruct(p protocol.Protocol, s Struct) error {
	descriptor := s.StructDescriptor()
	if err := p.WriteStructBegin(descriptor.Name); err != nil {
		return err
	}
	for _, field := range descriptor.fields {
		value, ok := s.Field(field.ID)
		if !ok {
			continue
		}
		if err := writeField(p, field, value); err != nil {
			return err
		}
	}
	if err := p.WriteFieldStop(); err != nil {
		return err
	}
	return p.WriteStructEnd()
}

func writeField(p protocol.Protocol, field *FieldDescriptor, value Value) error {
	if err := p.WriteFieldBegin(field.Name, field.Type.Wire, field.ID); err != nil {
		return err
	}
	if err := writeValue(p, field.Type, value); err != nil {
		return err
	}
	return p.WriteFieldEnd()
}

// WriteResult writes a result struct: only the first set field in id
// order goes on the wire, since a result holds exactly one of the
// success value and the declared exceptions. A result with no field set
// is written as an empty struct. Nothing is written when ValidateResult
// fails.
func WriteResult(p protocol.Protocol, s Struct) error {
	if err := ValidateResult(s); err != nil {
		return err
	}
	descriptor := s.StructDescriptor()
	if err := p.WriteStructBegin(descriptor.Name); err != nil {
		return err
	}
	if field, value := firstSet(s); field != nil {
		if err := writeField(p, field, value); err != nil {
			return err
		}
	}
	if err := p.WriteFieldStop(); err != nil {
		return err
	}
	return p.WriteStructEnd()
}

// ValidateResult validates the one field WriteResult would write.
func ValidateResult(s Struct) error {
	field, value := firstSet(s)
	if field == nil {
		return nil
	}
	return validateField(s.StructDescriptor(), field, value, true)
}

func firstSet(s Struct) (*FieldDescriptor, Value) {
	for _, field := range s.StructDescriptor().fields {
		if value, ok := s.Field(field.ID); ok {
			return field, value
		}
	}
	return nil, Value{}
}

// ReadStruct decodes a struct body into s. Fields with undeclared ids,
// and declared fields arriving with a different wire type, are skipped.
// After the stop marker every required field must have been seen, and
// the result must pass Validate.
func ReadStruct(p protocol.Protocol, s Struct) error {
	return readStruct(p, s, maxDecodeDepth)
}

func readStruct(p protocol.Protocol, s Struct, depth int) error {
	descriptor := s.StructDescriptor()
	if _, err := p.ReadStructBegin(); err != nil {
		return err
	}

	// seen is transient: required fields have no isset flag of their
	// own, so presence on the wire is tracked here.
	seen := make([]bool, len(descriptor.fields))
	for {
		_, fieldType, id, err := p.ReadFieldBegin()
		if err != nil {
			return err
		}
		if fieldType == wire.Stop {
			break
		}

		position := descriptor.position(id)
		if position >= 0 && descriptor.fields[position].Type.Wire == fieldType {
			field := descriptor.fields[position]
			value, err := readValue(p, field.Type, depth)
			if err != nil {
				return err
			}
			if err := s.SetField(id, value); err != nil {
				return fmt.Errorf("decoding %s.%s: %w", descriptor.Name, field.Name, err)
			}
			seen[position] = true
		} else if err := protocol.Skip(p, fieldType); err != nil {
			return err
		}

		if err := p.ReadFieldEnd(); err != nil {
			return err
		}
	}
	if err := p.ReadStructEnd(); err != nil {
		return err
	}

	for position, field := range descriptor.fields {
		if field.Required && !seen[position] {
			return &ValidationError{Struct: descriptor.Name, Field: field.Name, Reason: "required field missing from input"}
		}
	}
	// Nested structs validated themselves as they were read.
	return validateStruct(s, false)
}

// Validate checks s against its descriptor: every required field is
// set, every set field holds a value of its declared wire type, and
// every required enum field holds a declared ordinal. Nested struct
// values, including those inside containers, are validated too.
func Validate(s Struct) error {
	return validateStruct(s, true)
}

func validateStruct(s Struct, deep bool) error {
	descriptor := s.StructDescriptor()
	for _, field := range descriptor.fields {
		value, ok := s.Field(field.ID)
		if !ok {
			if field.Required {
				return &ValidationError{Struct: descriptor.Name, Field: field.Name, Reason: "required field is unset"}
			}
			continue
		}
		if err := validateField(descriptor, field, value, deep); err != nil {
			return err
		}
	}
	return nil
}

func validateField(descriptor *StructDescriptor, field *FieldDescriptor, value Value, deep bool) error {
	if value.Type() != field.Type.Wire {
		return &ValidationError{
			Struct: descriptor.Name,
			Field:  field.Name,
			Reason: fmt.Sprintf("holds a %s value, declared %s", value.Type(), field.Type),
		}
	}
	if field.Required && field.Type.Enum != nil && !field.Type.Enum.Contains(value.I32()) {
		return &ValidationError{
			Struct: descriptor.Name,
			Field:  field.Name,
			Reason: fmt.Sprintf("%d is not a declared %s value", value.I32(), field.Type.Enum.Name),
		}
	}
	if !deep {
		return nil
	}
	return validateNested(descriptor, field, field.Type, value)
}

// validateNested checks container elements against their declared
// types and validates struct values wherever they appear.
func validateNested(descriptor *StructDescriptor, field *FieldDescriptor, t *TypeDescriptor, value Value) error {
	mismatch := func(element Value, declared *TypeDescriptor) error {
		return &ValidationError{
			Struct: descriptor.Name,
			Field:  field.Name,
			Reason: fmt.Sprintf("element holds a %s value, declared %s", element.Type(), declared),
		}
	}

	switch t.Wire {
	case wire.Struct:
		if value.Struct() == nil {
			return &ValidationError{Struct: descriptor.Name, Field: field.Name, Reason: "nil struct value"}
		}
		return validateStruct(value.Struct(), true)

	case wire.List, wire.Set:
		for _, element := range value.elements {
			if element.Type() != t.Element.Wire {
				return mismatch(element, t.Element)
			}
			if err := validateNested(descriptor, field, t.Element, element); err != nil {
				return err
			}
		}

	case wire.Map:
		for _, pair := range value.pairs {
			if pair.Key.Type() != t.Key.Wire {
				return mismatch(pair.Key, t.Key)
			}
			if pair.Value.Type() != t.Element.Wire {
				return mismatch(pair.Value, t.Element)
			}
			if err := validateNested(descriptor, field, t.Key, pair.Key); err != nil {
				return err
			}
			if err := validateNested(descriptor, field, t.Element, pair.Value); err != nil {
				return err
			}
		}
	}
	return nil
}
