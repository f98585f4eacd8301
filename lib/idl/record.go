// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

package idl

import (
	"fmt"
	"math/bits"
)

// Struct is an instance of a described struct type. Typed bindings
// implement it over ordinary Go fields; Record implements it for any
// descriptor.
type Struct interface {
	// StructDescriptor returns the type's field table.
	StructDescriptor() *StructDescriptor

	// Field returns the value of the field with the given id and
	// whether it is set. Unset optional fields and nil references
	// report false.
	Field(id int16) (Value, bool)

	// SetField assigns a field. It fails for undeclared ids and for
	// values whose wire type differs from the declaration.
	SetField(id int16, value Value) error
}

// Record is a Struct backed directly by its descriptor. It is what the
// decoder builds for struct types without typed bindings, and what
// tools use to handle arbitrary schemas.
type Record struct {
	descriptor *StructDescriptor

	// values is parallel to descriptor.Fields(); an unset field holds
	// the zero Value.
	values []Value
}

var _ Struct = (*Record)(nil)

// NewRecord returns an empty record of the given struct type.
func NewRecord(descriptor *StructDescriptor) *Record {
	return &Record{descriptor: descriptor, values: make([]Value, len(descriptor.fields))}
}

func (r *Record) StructDescriptor() *StructDescriptor { return r.descriptor }

func (r *Record) Field(id int16) (Value, bool) {
	position := r.descriptor.position(id)
	if position < 0 || !r.values[position].IsSet() {
		return Value{}, false
	}
	return r.values[position], true
}

func (r *Record) SetField(id int16, value Value) error {
	position := r.descriptor.position(id)
	if position < 0 {
		return fmt.Errorf("idl: %s has no field with id %d", r.descriptor.Name, id)
	}
	field := r.descriptor.fields[position]
	if value.IsSet() && value.Type() != field.Type.Wire {
		return fmt.Errorf("idl: %s.%s is %s, cannot hold a %s value", r.descriptor.Name, field.Name, field.Type, value.Type())
	}
	r.values[position] = value
	return nil
}

// Set assigns a field by name and returns the record, for building
// records in literals and tests. It panics where SetField would fail.
func (r *Record) Set(name string, value Value) *Record {
	field := r.descriptor.FieldByName(name)
	if field == nil {
		panic(fmt.Sprintf("idl: %s has no field %s", r.descriptor.Name, name))
	}
	if err := r.SetField(field.ID, value); err != nil {
		panic(err.Error())
	}
	return r
}

// Get returns a field by name, or the zero Value when unset.
func (r *Record) Get(name string) Value {
	field := r.descriptor.FieldByName(name)
	if field == nil {
		return Value{}
	}
	value, _ := r.Field(field.ID)
	return value
}

// Unset clears a field.
func (r *Record) Unset(id int16) {
	if position := r.descriptor.position(id); position >= 0 {
		r.values[position] = Value{}
	}
}

func (r *Record) String() string {
	return StructValue(r).String()
}

// IssetState records which non-required fields of a typed struct have
// been assigned. Typed bindings keep one per instance, indexed by a
// per-type constant for each field, so that a zero-valued primitive can
// be told apart from an unset one. It is never written to the wire.
type IssetState struct {
	words []uint64
}

// Set marks field index as assigned.
func (s *IssetState) Set(index int) {
	word := index / 64
	for len(s.words) <= word {
		s.words = append(s.words, 0)
	}
	s.words[word] |= 1 << (index % 64)
}

// Clear marks field index as unassigned.
func (s *IssetState) Clear(index int) {
	if word := index / 64; word < len(s.words) {
		s.words[word] &^= 1 << (index % 64)
	}
}

// Has reports whether field index is assigned.
func (s *IssetState) Has(index int) bool {
	word := index / 64
	return word < len(s.words) && s.words[word]&(1<<(index%64)) != 0
}

// Count returns the number of assigned fields.
func (s *IssetState) Count() int {
	count := 0
	for _, word := range s.words {
		count += bits.OnesCount64(word)
	}
	return count
}

// Reset clears every flag.
func (s *IssetState) Reset() {
	clear(s.words)
}
