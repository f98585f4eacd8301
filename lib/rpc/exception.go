// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"fmt"

	"github.com/keel-rpc/keel/lib/idl"
)

// ExceptionKind is the error code carried by an ApplicationException.
// The numeric values are part of the wire contract.
type ExceptionKind int32

const (
	Unknown ExceptionKind = iota
	UnknownMethod
	InvalidMessageType
	WrongMethodName
	BadSequenceID
	MissingResult
	InternalError
	ProtocolError
)

var exceptionKindNames = [...]string{
	Unknown:            "UNKNOWN",
	UnknownMethod:      "UNKNOWN_METHOD",
	InvalidMessageType: "INVALID_MESSAGE_TYPE",
	WrongMethodName:    "WRONG_METHOD_NAME",
	BadSequenceID:      "BAD_SEQUENCE_ID",
	MissingResult:      "MISSING_RESULT",
	InternalError:      "INTERNAL_ERROR",
	ProtocolError:      "PROTOCOL_ERROR",
}

func (kind ExceptionKind) String() string {
	if kind >= 0 && int(kind) < len(exceptionKindNames) {
		return exceptionKindNames[kind]
	}
	return fmt.Sprintf("ExceptionKind(%d)", int32(kind))
}

// ExceptionKindEnum describes ExceptionKind for display code.
var ExceptionKindEnum = func() *idl.EnumDescriptor {
	values := make([]idl.EnumValue, len(exceptionKindNames))
	for ordinal, name := range exceptionKindNames {
		values[ordinal] = idl.EnumValue{Name: name, Value: int32(ordinal)}
	}
	return idl.NewEnumDescriptor("ApplicationExceptionType", values...)
}()

// ApplicationExceptionDescriptor is the wire layout of ApplicationException.
var ApplicationExceptionDescriptor = idl.NewStructDescriptor("ApplicationException",
	idl.FieldDescriptor{ID: 1, Name: "message", Type: idl.StringType},
	idl.FieldDescriptor{ID: 2, Name: "type", Type: idl.EnumOf(ExceptionKindEnum)},
).WithFactory(func() idl.Struct { return new(ApplicationException) })

// ApplicationException is a protocol-level failure: an unknown method,
// a malformed call, or a handler error that the method does not
// declare. It travels as the body of an EXCEPTION message, never inside
// a result struct.
type ApplicationException struct {
	Kind    ExceptionKind
	Message string
}

var (
	_ error      = (*ApplicationException)(nil)
	_ idl.Struct = (*ApplicationException)(nil)
)

// NewApplicationException returns an exception of the given kind with a
// formatted message.
func NewApplicationException(kind ExceptionKind, format string, args ...any) *ApplicationException {
	return &ApplicationException{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *ApplicationException) Error() string {
	if e.Message == "" {
		return "application exception: " + e.Kind.String()
	}
	return fmt.Sprintf("application exception %s: %s", e.Kind, e.Message)
}

// Is matches another *ApplicationException of the same kind that
// carries no message, so errors.Is(err, &rpc.ApplicationException{Kind:
// rpc.UnknownMethod}) tests the kind alone.
func (e *ApplicationException) Is(target error) bool {
	other, ok := target.(*ApplicationException)
	if !ok {
		return false
	}
	return other.Message == "" && other.Kind == e.Kind
}

func (e *ApplicationException) StructDescriptor() *idl.StructDescriptor {
	return ApplicationExceptionDescriptor
}

func (e *ApplicationException) Field(id int16) (idl.Value, bool) {
	switch id {
	case 1:
		return idl.String(e.Message), true
	case 2:
		return idl.I32(int32(e.Kind)), true
	default:
		return idl.Value{}, false
	}
}

func (e *ApplicationException) SetField(id int16, value idl.Value) error {
	switch {
	case id == 1 && value.Type() == idl.StringType.Wire:
		e.Message = value.String()
	case id == 2 && value.Type() == idl.I32Type.Wire:
		e.Kind = ExceptionKind(value.I32())
	default:
		return fmt.Errorf("rpc: ApplicationException cannot hold %v in field %d", value, id)
	}
	return nil
}
