// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

package idl

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/keel-rpc/keel/lib/wire"
)

// TypeDescriptor describes the declared type of a field, container
// element, or method result. Descriptors are built once at package
// initialization and never mutated.
type TypeDescriptor struct {
	// Wire is the on-wire type code. Enums use wire.I32.
	Wire wire.Type

	// Key is the key type of a map.
	Key *TypeDescriptor

	// Element is the element type of a list or set, or the value type
	// of a map.
	Element *TypeDescriptor

	// Struct is the descriptor of a struct-typed value.
	Struct *StructDescriptor

	// Enum is the descriptor of an enum-typed value.
	Enum *EnumDescriptor

	// Binary marks a wire.String declared as binary rather than text.
	// The encoding is identical; only the IDL spelling differs.
	Binary bool
}

// Base types.
var (
	VoidType   = &TypeDescriptor{Wire: wire.Void}
	BoolType   = &TypeDescriptor{Wire: wire.Bool}
	I8Type     = &TypeDescriptor{Wire: wire.I8}
	I16Type    = &TypeDescriptor{Wire: wire.I16}
	I32Type    = &TypeDescriptor{Wire: wire.I32}
	I64Type    = &TypeDescriptor{Wire: wire.I64}
	DoubleType = &TypeDescriptor{Wire: wire.Double}
	StringType = &TypeDescriptor{Wire: wire.String}
	BinaryType = &TypeDescriptor{Wire: wire.String, Binary: true}
)

// ListOf returns the type list<element>.
func ListOf(element *TypeDescriptor) *TypeDescriptor {
	return &TypeDescriptor{Wire: wire.List, Element: element}
}

// SetOf returns the type set<element>.
func SetOf(element *TypeDescriptor) *TypeDescriptor {
	return &TypeDescriptor{Wire: wire.Set, Element: element}
}

// MapOf returns the type map<key, value>.
func MapOf(key, value *TypeDescriptor) *TypeDescriptor {
	return &TypeDescriptor{Wire: wire.Map, Key: key, Element: value}
}

// StructOf returns the type of values of the given struct.
func StructOf(descriptor *StructDescriptor) *TypeDescriptor {
	return &TypeDescriptor{Wire: wire.Struct, Struct: descriptor}
}

// EnumOf returns the type of values of the given enum.
func EnumOf(descriptor *EnumDescriptor) *TypeDescriptor {
	return &TypeDescriptor{Wire: wire.I32, Enum: descriptor}
}

// String returns the IDL spelling of the type, such as
// "map<string, list<Work>>".
func (t *TypeDescriptor) String() string {
	switch {
	case t == nil:
		return "<nil>"
	case t.Enum != nil:
		return t.Enum.Name
	case t.Struct != nil:
		return t.Struct.Name
	case t.Binary:
		return "binary"
	}
	switch t.Wire {
	case wire.List:
		return "list<" + t.Element.String() + ">"
	case wire.Set:
		return "set<" + t.Element.String() + ">"
	case wire.Map:
		return "map<" + t.Key.String() + ", " + t.Element.String() + ">"
	default:
		return t.Wire.String()
	}
}

// EnumDescriptor names the declared ordinals of an enum. On the wire an
// enum is an i32; the descriptor is consulted only by validation and by
// display code.
type EnumDescriptor struct {
	Name   string
	values map[int32]string
	names  map[string]int32
}

// EnumValue is one declared ordinal of an enum.
type EnumValue struct {
	Name  string
	Value int32
}

// NewEnumDescriptor builds an enum descriptor. It panics on duplicate
// names or ordinals: descriptors are constructed at init time from
// schema definitions and a duplicate is a bug in the bindings.
func NewEnumDescriptor(name string, values ...EnumValue) *EnumDescriptor {
	descriptor := &EnumDescriptor{
		Name:   name,
		values: make(map[int32]string, len(values)),
		names:  make(map[string]int32, len(values)),
	}
	for _, value := range values {
		if _, exists := descriptor.values[value.Value]; exists {
			panic(fmt.Sprintf("idl: enum %s declares ordinal %d twice", name, value.Value))
		}
		if _, exists := descriptor.names[value.Name]; exists {
			panic(fmt.Sprintf("idl: enum %s declares %s twice", name, value.Name))
		}
		descriptor.values[value.Value] = value.Name
		descriptor.names[value.Name] = value.Value
	}
	return descriptor
}

// NameOf returns the declared name of ordinal, and whether it is declared.
func (e *EnumDescriptor) NameOf(ordinal int32) (string, bool) {
	name, ok := e.values[ordinal]
	return name, ok
}

// Parse returns the ordinal declared with the given name.
func (e *EnumDescriptor) Parse(name string) (int32, bool) {
	ordinal, ok := e.names[name]
	return ordinal, ok
}

// Contains reports whether ordinal is declared.
func (e *EnumDescriptor) Contains(ordinal int32) bool {
	_, ok := e.values[ordinal]
	return ok
}

// Values returns the declared ordinals in ascending order.
func (e *EnumDescriptor) Values() []EnumValue {
	values := make([]EnumValue, 0, len(e.values))
	for ordinal, name := range e.values {
		values = append(values, EnumValue{Name: name, Value: ordinal})
	}
	slices.SortFunc(values, func(a, b EnumValue) int { return cmp.Compare(a.Value, b.Value) })
	return values
}
