// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

package idl

import (
	"encoding/hex"
	"fmt"
	"slices"

	"github.com/zeebo/blake3"

	"github.com/keel-rpc/keel/lib/codec"
	"github.com/keel-rpc/keel/lib/wire"
)

// FieldDescriptor describes one declared field of a struct.
type FieldDescriptor struct {
	ID   int16
	Name string
	Type *TypeDescriptor

	// Required fields must hold a value before the struct is written
	// and must appear on the wire when it is read. All other fields
	// are written only when set.
	Required bool
}

// StructDescriptor is the immutable field table of one struct type. It
// drives the generic read and write loops; there is no per-type codec.
type StructDescriptor struct {
	Name string

	// fields is sorted by ascending id, which is also the write order.
	fields []*FieldDescriptor

	// index maps a field id to its position in fields.
	index map[int16]int

	// factory creates empty instances when a value of this struct type
	// is decoded. Nil means Record.
	factory func() Struct
}

// NewStructDescriptor builds the descriptor for a struct with the given
// fields, in any order. It panics on duplicate ids or names and on a
// field of void type: descriptors are constructed at init time and
// either is a bug in the bindings. Id 0 is legal; method result structs
// use it for the success value.
func NewStructDescriptor(name string, fields ...FieldDescriptor) *StructDescriptor {
	descriptor := &StructDescriptor{
		Name:   name,
		fields: make([]*FieldDescriptor, 0, len(fields)),
		index:  make(map[int16]int, len(fields)),
	}
	names := make(map[string]bool, len(fields))
	for i := range fields {
		field := fields[i]
		if field.Type == nil || field.Type.Wire == wire.Stop || field.Type.Wire == wire.Void {
			panic(fmt.Sprintf("idl: %s.%s has no representable type", name, field.Name))
		}
		if names[field.Name] {
			panic(fmt.Sprintf("idl: %s declares field %s twice", name, field.Name))
		}
		names[field.Name] = true
		descriptor.fields = append(descriptor.fields, &field)
	}
	slices.SortFunc(descriptor.fields, func(a, b *FieldDescriptor) int { return int(a.ID) - int(b.ID) })
	for position, field := range descriptor.fields {
		if _, exists := descriptor.index[field.ID]; exists {
			panic(fmt.Sprintf("idl: %s declares field id %d twice", name, field.ID))
		}
		descriptor.index[field.ID] = position
	}
	return descriptor
}

// WithFactory sets the constructor used when a value of this struct
// type is decoded, and returns the descriptor. Typed bindings call it
// once during package initialization.
func (d *StructDescriptor) WithFactory(factory func() Struct) *StructDescriptor {
	d.factory = factory
	return d
}

// New returns an empty instance of the struct: the typed binding when a
// factory is registered, otherwise a Record.
func (d *StructDescriptor) New() Struct {
	if d.factory != nil {
		return d.factory()
	}
	return NewRecord(d)
}

// Fields returns the declared fields in ascending id order. The slice
// is shared and must not be modified.
func (d *StructDescriptor) Fields() []*FieldDescriptor {
	return d.fields
}

// Field returns the field with the given id, or nil when none is
// declared.
func (d *StructDescriptor) Field(id int16) *FieldDescriptor {
	position, ok := d.index[id]
	if !ok {
		return nil
	}
	return d.fields[position]
}

// FieldByName returns the field with the given name, or nil.
func (d *StructDescriptor) FieldByName(name string) *FieldDescriptor {
	for _, field := range d.fields {
		if field.Name == name {
			return field
		}
	}
	return nil
}

// position returns the index of id in Fields, or -1.
func (d *StructDescriptor) position(id int16) int {
	position, ok := d.index[id]
	if !ok {
		return -1
	}
	return position
}

// Fingerprint is a 32-byte keyed BLAKE3 digest identifying a schema
// shape. Two peers whose descriptors have equal fingerprints agree on
// every field id, name, type, and requiredness.
type Fingerprint [32]byte

// String returns the fingerprint as lower-case hex.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// Short returns the first 12 hex digits, enough to tell schemas apart
// in log lines.
func (f Fingerprint) Short() string {
	return hex.EncodeToString(f[:6])
}

// DomainKey is a 32-byte BLAKE3 key separating fingerprint domains, so
// that a struct and a service with identical canonical bytes never
// share a fingerprint. Keys are ASCII domain names zero-padded to 32
// bytes, readable in hex dumps.
type DomainKey [32]byte

// structDomainKey is the fingerprint domain of struct descriptors.
// Changing it changes every struct fingerprint.
var structDomainKey = DomainKey{
	'k', 'e', 'e', 'l', '.', 'i', 'd', 'l', '.', 's', 't', 'r', 'u', 'c', 't', 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Digest returns the keyed BLAKE3 hash of the deterministic CBOR
// encoding of value.
func Digest(key DomainKey, value any) (Fingerprint, error) {
	data, err := codec.Marshal(value)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("encoding canonical form: %w", err)
	}
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		return Fingerprint{}, fmt.Errorf("initializing keyed hash: %w", err)
	}
	hasher.Write(data)
	var fingerprint Fingerprint
	copy(fingerprint[:], hasher.Sum(nil))
	return fingerprint, nil
}

// FieldSummary is the canonical, serializable form of a field
// descriptor. Nested struct and enum types are identified by name.
type FieldSummary struct {
	ID       int16  `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required,omitempty"`
}

// StructSummary is the canonical, serializable form of a struct
// descriptor, used for fingerprints and by keel dump.
type StructSummary struct {
	Name   string         `json:"name"`
	Fields []FieldSummary `json:"fields"`
}

// Summary returns the canonical form of the descriptor.
func (d *StructDescriptor) Summary() StructSummary {
	summary := StructSummary{Name: d.Name, Fields: make([]FieldSummary, len(d.fields))}
	for i, field := range d.fields {
		summary.Fields[i] = FieldSummary{
			ID:       field.ID,
			Name:     field.Name,
			Type:     field.Type.String(),
			Required: field.Required,
		}
	}
	return summary
}

// Fingerprint returns the struct-domain digest of the descriptor's
// canonical form.
func (d *StructDescriptor) Fingerprint() Fingerprint {
	fingerprint, err := Digest(structDomainKey, d.Summary())
	if err != nil {
		// Summary holds only strings, integers, and booleans.
		panic("idl: fingerprinting " + d.Name + ": " + err.Error())
	}
	return fingerprint
}
