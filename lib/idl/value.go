// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

package idl

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/keel-rpc/keel/lib/wire"
)

// Value is a decoded value of any wire type: a tagged union over the
// base types, lists, sets, maps, and struct instances. Containers own
// their elements. The zero Value holds nothing and reports IsSet false.
//
// Accessors panic when called on a value of a different type, the same
// way reflect.Value does; check Type first when the type is not known
// statically.
type Value struct {
	kind wire.Type

	// scalar holds bool, integer, and double payloads (doubles as their
	// IEEE-754 bits).
	scalar uint64

	data     []byte
	elements []Value
	pairs    []Pair
	record   Struct
}

// Pair is one entry of a map value.
type Pair struct {
	Key   Value
	Value Value
}

func Bool(v bool) Value {
	if v {
		return Value{kind: wire.Bool, scalar: 1}
	}
	return Value{kind: wire.Bool}
}

func I8(v int8) Value        { return Value{kind: wire.I8, scalar: uint64(v)} }
func I16(v int16) Value      { return Value{kind: wire.I16, scalar: uint64(v)} }
func I32(v int32) Value      { return Value{kind: wire.I32, scalar: uint64(v)} }
func I64(v int64) Value      { return Value{kind: wire.I64, scalar: uint64(v)} }
func Double(v float64) Value { return Value{kind: wire.Double, scalar: math.Float64bits(v)} }
func String(v string) Value  { return Value{kind: wire.String, data: []byte(v)} }
func Binary(v []byte) Value  { return Value{kind: wire.String, data: v} }

// List returns a list value with the given elements in order.
func List(elements ...Value) Value { return Value{kind: wire.List, elements: elements} }

// Set returns a set value. Element order carries no meaning and is not
// preserved by every peer.
func Set(elements ...Value) Value { return Value{kind: wire.Set, elements: elements} }

// Map returns a map value. Entry order carries no meaning.
func Map(pairs ...Pair) Value { return Value{kind: wire.Map, pairs: pairs} }

// StructValue wraps a struct instance.
func StructValue(s Struct) Value { return Value{kind: wire.Struct, record: s} }

// Type returns the wire type of the value, or wire.Stop for the zero
// Value.
func (v Value) Type() wire.Type { return v.kind }

// IsSet reports whether v holds a value.
func (v Value) IsSet() bool { return v.kind != wire.Stop }

func (v Value) must(kind wire.Type) {
	if v.kind != kind {
		panic(fmt.Sprintf("idl: %s accessor called on %s value", kind, v.kind))
	}
}

func (v Value) Bool() bool      { v.must(wire.Bool); return v.scalar != 0 }
func (v Value) I8() int8        { v.must(wire.I8); return int8(v.scalar) }
func (v Value) I16() int16      { v.must(wire.I16); return int16(v.scalar) }
func (v Value) I32() int32      { v.must(wire.I32); return int32(v.scalar) }
func (v Value) I64() int64      { v.must(wire.I64); return int64(v.scalar) }
func (v Value) Double() float64 { v.must(wire.Double); return math.Float64frombits(v.scalar) }
func (v Value) Binary() []byte  { v.must(wire.String); return v.data }
func (v Value) List() []Value   { v.must(wire.List); return v.elements }
func (v Value) Set() []Value    { v.must(wire.Set); return v.elements }
func (v Value) Map() []Pair     { v.must(wire.Map); return v.pairs }
func (v Value) Struct() Struct  { v.must(wire.Struct); return v.record }

// Len returns the number of elements of a list, set, or map, the byte
// length of a string, and zero otherwise.
func (v Value) Len() int {
	switch v.kind {
	case wire.List, wire.Set:
		return len(v.elements)
	case wire.Map:
		return len(v.pairs)
	case wire.String:
		return len(v.data)
	default:
		return 0
	}
}

// String returns the text of a string value. For any other type it
// returns a readable rendering of the value, like reflect.Value.String.
func (v Value) String() string {
	if v.kind == wire.String {
		return string(v.data)
	}
	var builder strings.Builder
	v.format(&builder)
	return builder.String()
}

func (v Value) format(builder *strings.Builder) {
	switch v.kind {
	case wire.Stop:
		builder.WriteString("<unset>")
	case wire.Bool:
		builder.WriteString(strconv.FormatBool(v.scalar != 0))
	case wire.I8, wire.I16, wire.I32, wire.I64:
		builder.WriteString(strconv.FormatInt(v.signed(), 10))
	case wire.Double:
		builder.WriteString(strconv.FormatFloat(v.Double(), 'g', -1, 64))
	case wire.String:
		builder.WriteString(strconv.Quote(string(v.data)))
	case wire.List, wire.Set:
		opening, closing := "[", "]"
		if v.kind == wire.Set {
			opening, closing = "{", "}"
		}
		builder.WriteString(opening)
		for i, element := range v.elements {
			if i > 0 {
				builder.WriteString(", ")
			}
			element.format(builder)
		}
		builder.WriteString(closing)
	case wire.Map:
		builder.WriteString("{")
		for i, pair := range v.pairs {
			if i > 0 {
				builder.WriteString(", ")
			}
			pair.Key.format(builder)
			builder.WriteString(": ")
			pair.Value.format(builder)
		}
		builder.WriteString("}")
	case wire.Struct:
		if v.record == nil {
			builder.WriteString("<nil struct>")
			return
		}
		descriptor := v.record.StructDescriptor()
		builder.WriteString(descriptor.Name)
		builder.WriteString("(")
		first := true
		for _, field := range descriptor.Fields() {
			fieldValue, ok := v.record.Field(field.ID)
			if !ok {
				continue
			}
			if !first {
				builder.WriteString(", ")
			}
			first = false
			builder.WriteString(field.Name)
			builder.WriteString("=")
			fieldValue.format(builder)
		}
		builder.WriteString(")")
	default:
		fmt.Fprintf(builder, "<%s>", v.kind)
	}
}

// signed returns any integer payload sign-extended to 64 bits.
func (v Value) signed() int64 {
	switch v.kind {
	case wire.I8:
		return int64(int8(v.scalar))
	case wire.I16:
		return int64(int16(v.scalar))
	case wire.I32:
		return int64(int32(v.scalar))
	default:
		return int64(v.scalar)
	}
}

// Equal reports whether v and other hold the same value. Lists compare
// in order; sets and maps compare as unordered collections. Struct
// values are equal when they share a descriptor and every field
// compares equal.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case wire.Stop:
		return true
	case wire.Bool, wire.I8, wire.I16, wire.I32, wire.I64, wire.Double:
		return v.scalar == other.scalar
	case wire.String:
		return bytes.Equal(v.data, other.data)
	case wire.List:
		if len(v.elements) != len(other.elements) {
			return false
		}
		for i := range v.elements {
			if !v.elements[i].Equal(other.elements[i]) {
				return false
			}
		}
		return true
	case wire.Set:
		return unorderedEqual(v.elements, other.elements, func(a, b Value) bool { return a.Equal(b) })
	case wire.Map:
		return unorderedEqual(v.pairs, other.pairs, func(a, b Pair) bool {
			return a.Key.Equal(b.Key) && a.Value.Equal(b.Value)
		})
	case wire.Struct:
		return StructsEqual(v.record, other.record)
	default:
		return false
	}
}

// unorderedEqual reports whether a and b are equal as multisets. It is
// quadratic, which is fine for the sizes compared in tests and tools.
func unorderedEqual[T any](a, b []T, equal func(T, T) bool) bool {
	if len(a) != len(b) {
		return false
	}
	matched := make([]bool, len(b))
	for _, left := range a {
		found := false
		for j, right := range b {
			if !matched[j] && equal(left, right) {
				matched[j] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// StructsEqual reports whether two struct instances share a descriptor
// and hold equal values in the same set of fields.
func StructsEqual(a, b Struct) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	descriptor := a.StructDescriptor()
	if descriptor != b.StructDescriptor() {
		return false
	}
	for _, field := range descriptor.Fields() {
		left, leftSet := a.Field(field.ID)
		right, rightSet := b.Field(field.ID)
		if leftSet != rightSet {
			return false
		}
		if leftSet && !left.Equal(right) {
			return false
		}
	}
	return true
}
