// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import "fmt"

// Type is the on-wire type code of a value.
type Type byte

const (
	// Stop terminates a struct's field loop. It never carries a value.
	Stop Type = 0

	// Void marks the absence of a value (void method results). It has
	// no encoding; attempting to encode or decode it is a schema error.
	Void Type = 1

	Bool   Type = 2
	I8     Type = 3
	Double Type = 4
	I16    Type = 6
	I32    Type = 8
	I64    Type = 10

	// String covers both UTF-8 text and opaque binary: the wire
	// encoding is identical (a length-prefixed byte blob).
	String Type = 11

	Struct Type = 12
	Map    Type = 13
	Set    Type = 14
	List   Type = 15
)

// String returns the IDL spelling of the type code.
func (t Type) String() string {
	switch t {
	case Stop:
		return "stop"
	case Void:
		return "void"
	case Bool:
		return "bool"
	case I8:
		return "i8"
	case Double:
		return "double"
	case I16:
		return "i16"
	case I32:
		return "i32"
	case I64:
		return "i64"
	case String:
		return "string"
	case Struct:
		return "struct"
	case Map:
		return "map"
	case Set:
		return "set"
	case List:
		return "list"
	default:
		return fmt.Sprintf("unknown(%d)", byte(t))
	}
}

// Valid reports whether t is a type code a value can be encoded with.
// Stop and Void are not value types.
func (t Type) Valid() bool {
	switch t {
	case Bool, I8, Double, I16, I32, I64, String, Struct, Map, Set, List:
		return true
	default:
		return false
	}
}

// IsContainer reports whether t is a map, set, or list.
func (t Type) IsContainer() bool {
	return t == Map || t == Set || t == List
}

// ParseType parses the IDL spelling of a type code. "byte" and
// "binary" are accepted as aliases for i8 and string.
func ParseType(name string) (Type, error) {
	switch name {
	case "bool":
		return Bool, nil
	case "i8", "byte":
		return I8, nil
	case "double":
		return Double, nil
	case "i16":
		return I16, nil
	case "i32":
		return I32, nil
	case "i64":
		return I64, nil
	case "string", "binary":
		return String, nil
	case "struct":
		return Struct, nil
	case "map":
		return Map, nil
	case "set":
		return Set, nil
	case "list":
		return List, nil
	default:
		return 0, fmt.Errorf("unknown wire type %q", name)
	}
}

// MessageType identifies the kind of an RPC message.
type MessageType int8

const (
	Call      MessageType = 1
	Reply     MessageType = 2
	Exception MessageType = 3
	Oneway    MessageType = 4
)

// String returns the conventional upper-case name of the message type.
func (m MessageType) String() string {
	switch m {
	case Call:
		return "CALL"
	case Reply:
		return "REPLY"
	case Exception:
		return "EXCEPTION"
	case Oneway:
		return "ONEWAY"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int8(m))
	}
}

// Valid reports whether m is one of the four defined message types.
func (m MessageType) Valid() bool {
	return m >= Call && m <= Oneway
}
