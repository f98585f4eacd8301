// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/keel-rpc/keel/lib/idl"
)

// SuccessFieldID is the result-struct field id holding a method's
// return value. Declared exceptions use ids from 1 upward.
const SuccessFieldID int16 = 0

// Method describes one service method. Clients and processors share
// the same Method values, so both ends agree on the argument and result
// layouts.
type Method struct {
	Name string

	// Oneway methods get no reply: the server sends nothing back and
	// the client returns as soon as the call is flushed.
	Oneway bool

	// Args is the argument struct.
	Args *idl.StructDescriptor

	// Result is the result struct: an optional success field with id 0
	// (absent for void methods) followed by one struct-typed field per
	// declared exception. Nil for oneway methods.
	Result *idl.StructDescriptor
}

// NewResultDescriptor builds the result struct of a method named name.
// returns is nil or idl.VoidType for void methods. Each exception field
// must be struct-typed.
func NewResultDescriptor(name string, returns *idl.TypeDescriptor, exceptions ...idl.FieldDescriptor) *idl.StructDescriptor {
	fields := make([]idl.FieldDescriptor, 0, len(exceptions)+1)
	if returns != nil && returns != idl.VoidType {
		fields = append(fields, idl.FieldDescriptor{ID: SuccessFieldID, Name: "success", Type: returns})
	}
	for _, exception := range exceptions {
		if exception.ID == SuccessFieldID || exception.Type == nil || exception.Type.Struct == nil {
			panic(fmt.Sprintf("rpc: %s exception %s must be a struct field with a non-zero id", name, exception.Name))
		}
		fields = append(fields, exception)
	}
	return idl.NewStructDescriptor(name+"_result", fields...)
}

// Void reports whether the method returns no value.
func (m *Method) Void() bool {
	return m.Result == nil || m.Result.Field(SuccessFieldID) == nil
}

// Unpack turns a decoded result struct into the method's return value or
// error. A set exception field is returned as the error; exception types
// without typed bindings come back as *DeclaredException. A non-void
// result with no field set is a MissingResult ApplicationException.
func (m *Method) Unpack(result idl.Struct) (idl.Value, error) {
	if value, ok := result.Field(SuccessFieldID); ok {
		return value, nil
	}
	for _, field := range m.Result.Fields() {
		if field.ID == SuccessFieldID {
			continue
		}
		value, ok := result.Field(field.ID)
		if !ok {
			continue
		}
		if err, ok := value.Struct().(error); ok {
			return idl.Value{}, err
		}
		return idl.Value{}, &DeclaredException{Struct: value.Struct()}
	}
	if m.Void() {
		return idl.Value{}, nil
	}
	return idl.Value{}, NewApplicationException(MissingResult, "%s failed: unknown result", m.Name)
}

// exceptionField returns the result field declared for err, or nil when
// err is not one of the method's declared exceptions.
func (m *Method) exceptionField(err error) (*idl.FieldDescriptor, idl.Struct) {
	if m.Result == nil {
		return nil, nil
	}
	var exception idl.Struct
	var declared *DeclaredException
	if errors.As(err, &declared) {
		exception = declared.Struct
	} else if !errors.As(err, &exception) {
		return nil, nil
	}
	for _, field := range m.Result.Fields() {
		if field.ID != SuccessFieldID && field.Type.Struct == exception.StructDescriptor() {
			return field, exception
		}
	}
	return nil, nil
}

// DeclaredException carries a declared exception whose struct type has
// no typed binding implementing error.
type DeclaredException struct {
	Struct idl.Struct
}

func (e *DeclaredException) Error() string {
	return "declared exception " + idl.StructValue(e.Struct).String()
}

// HandlerFunc implements one method on the server. It receives the
// decoded argument struct and returns the success value (the zero
// idl.Value for void methods) or an error. Returning a declared
// exception puts it in the result struct; any other error becomes an
// INTERNAL_ERROR ApplicationException, except an *ApplicationException,
// which is sent as is.
type HandlerFunc func(ctx context.Context, args idl.Struct) (idl.Value, error)

// Caller sends calls to a service. Client and ConcurrentClient
// implement it; typed service bindings are written against it.
type Caller interface {
	// Call invokes method with the given arguments and returns the
	// unpacked result (see Method.Unpack). Oneway calls return once
	// the request is flushed.
	Call(ctx context.Context, method *Method, args idl.Struct) (idl.Value, error)
}
