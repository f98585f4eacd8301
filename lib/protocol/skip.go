// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import "github.com/keel-rpc/keel/lib/wire"

// MaxSkipDepth is how deeply nested structs and containers Skip will
// follow before giving up with a DepthLimit error.
const MaxSkipDepth = 64

// Skip reads and discards exactly one value of the given wire type.
// Structs and containers are skipped by walking their own headers, so
// the value's shape never needs to be known in advance.
func Skip(p Protocol, valueType wire.Type) error {
	return skip(p, valueType, MaxSkipDepth)
}

func skip(p Protocol, valueType wire.Type, depth int) error {
	if depth <= 0 {
		return errorf(DepthLimit, "value nested deeper than %d levels", MaxSkipDepth)
	}

	switch valueType {
	case wire.Bool:
		_, err := p.ReadBool()
		return err
	case wire.I8:
		_, err := p.ReadI8()
		return err
	case wire.I16:
		_, err := p.ReadI16()
		return err
	case wire.I32:
		_, err := p.ReadI32()
		return err
	case wire.I64:
		_, err := p.ReadI64()
		return err
	case wire.Double:
		_, err := p.ReadDouble()
		return err
	case wire.String:
		_, err := p.ReadBinary()
		return err

	case wire.Struct:
		if _, err := p.ReadStructBegin(); err != nil {
			return err
		}
		for {
			_, fieldType, _, err := p.ReadFieldBegin()
			if err != nil {
				return err
			}
			if fieldType == wire.Stop {
				break
			}
			if err := skip(p, fieldType, depth-1); err != nil {
				return err
			}
			if err := p.ReadFieldEnd(); err != nil {
				return err
			}
		}
		return p.ReadStructEnd()

	case wire.Map:
		keyType, elementType, size, err := p.ReadMapBegin()
		if err != nil {
			return err
		}
		for range size {
			if err := skip(p, keyType, depth-1); err != nil {
				return err
			}
			if err := skip(p, elementType, depth-1); err != nil {
				return err
			}
		}
		return p.ReadMapEnd()

	case wire.Set:
		elementType, size, err := p.ReadSetBegin()
		if err != nil {
			return err
		}
		for range size {
			if err := skip(p, elementType, depth-1); err != nil {
				return err
			}
		}
		return p.ReadSetEnd()

	case wire.List:
		elementType, size, err := p.ReadListBegin()
		if err != nil {
			return err
		}
		for range size {
			if err := skip(p, elementType, depth-1); err != nil {
				return err
			}
		}
		return p.ReadListEnd()

	default:
		return errorf(InvalidData, "cannot skip value of wire type %s", valueType)
	}
}
