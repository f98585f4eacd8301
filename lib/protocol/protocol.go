// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"fmt"

	"github.com/keel-rpc/keel/lib/wire"
	"github.com/keel-rpc/keel/transport"
)

// Protocol reads and writes typed values on a transport. A Protocol is
// bound to one transport for its lifetime. Its read and write halves
// may each be driven by a different goroutine, provided the transport
// allows the same; two readers or two writers need a lock.
type Protocol interface {
	WriteMessageBegin(name string, messageType wire.MessageType, seqID int32) error
	WriteMessageEnd() error
	WriteStructBegin(name string) error
	WriteStructEnd() error
	WriteFieldBegin(name string, fieldType wire.Type, id int16) error
	WriteFieldEnd() error
	WriteFieldStop() error
	WriteMapBegin(keyType, valueType wire.Type, size int) error
	WriteMapEnd() error
	WriteListBegin(elementType wire.Type, size int) error
	WriteListEnd() error
	WriteSetBegin(elementType wire.Type, size int) error
	WriteSetEnd() error
	WriteBool(value bool) error
	WriteI8(value int8) error
	WriteI16(value int16) error
	WriteI32(value int32) error
	WriteI64(value int64) error
	WriteDouble(value float64) error
	WriteString(value string) error
	WriteBinary(value []byte) error

	ReadMessageBegin() (name string, messageType wire.MessageType, seqID int32, err error)
	ReadMessageEnd() error
	ReadStructBegin() (name string, err error)
	ReadStructEnd() error

	// ReadFieldBegin returns wire.Stop as the field type at the end of
	// a struct's field loop. Field names are not on the wire; name is
	// always empty for the binary protocol.
	ReadFieldBegin() (name string, fieldType wire.Type, id int16, err error)
	ReadFieldEnd() error
	ReadMapBegin() (keyType, valueType wire.Type, size int, err error)
	ReadMapEnd() error
	ReadListBegin() (elementType wire.Type, size int, err error)
	ReadListEnd() error
	ReadSetBegin() (elementType wire.Type, size int, err error)
	ReadSetEnd() error
	ReadBool() (bool, error)
	ReadI8() (int8, error)
	ReadI16() (int16, error)
	ReadI32() (int32, error)
	ReadI64() (int64, error)
	ReadDouble() (float64, error)
	ReadString() (string, error)
	ReadBinary() ([]byte, error)

	// Flush flushes the underlying transport. Writers call it once per
	// message, after WriteMessageEnd.
	Flush() error

	// Transport returns the transport this protocol reads and writes.
	Transport() transport.Transport
}

// Factory creates a Protocol bound to a transport. Servers call it once
// per accepted connection.
type Factory func(transport.Transport) Protocol

// ErrorKind classifies protocol failures.
type ErrorKind int

const (
	// Unknown is a protocol failure with no more specific kind.
	Unknown ErrorKind = iota

	// InvalidData is malformed input: a value cut short by the end of
	// the stream, an unskippable type code, or a container whose
	// declared element types contradict what the reader expects.
	InvalidData

	// NegativeSize is a string or container length below zero.
	NegativeSize

	// SizeLimit is a string or container length above the configured
	// maximum.
	SizeLimit

	// BadVersion is a strict message header with an unknown version, or
	// a non-strict header when strict reads are required.
	BadVersion

	// DepthLimit is nesting deeper than Skip is willing to follow.
	DepthLimit

	// NotImplemented is an operation the protocol does not support.
	NotImplemented
)

func (kind ErrorKind) String() string {
	switch kind {
	case InvalidData:
		return "invalid data"
	case NegativeSize:
		return "negative size"
	case SizeLimit:
		return "size limit"
	case BadVersion:
		return "bad version"
	case DepthLimit:
		return "depth limit"
	case NotImplemented:
		return "not implemented"
	default:
		return "unknown"
	}
}

// Error is a classified protocol failure.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "protocol: " + e.Kind.String()
	}
	return fmt.Sprintf("protocol: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches a target *Error of the same kind that carries no cause.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return other.Err == nil && other.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrInvalidData    = &Error{Kind: InvalidData}
	ErrNegativeSize   = &Error{Kind: NegativeSize}
	ErrSizeLimit      = &Error{Kind: SizeLimit}
	ErrBadVersion     = &Error{Kind: BadVersion}
	ErrDepthLimit     = &Error{Kind: DepthLimit}
	ErrNotImplemented = &Error{Kind: NotImplemented}
)

// errorf builds an *Error of the given kind with a formatted cause.
func errorf(kind ErrorKind, format string, args ...any) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}
