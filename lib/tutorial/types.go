// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

package tutorial

import (
	"fmt"
	"strings"

	"github.com/keel-rpc/keel/lib/idl"
)

// Operation is the arithmetic a Work item asks for.
type Operation int32

const (
	Add      Operation = 1
	Subtract Operation = 2
	Multiply Operation = 3
	Divide   Operation = 4
)

// OperationEnum describes Operation.
var OperationEnum = idl.NewEnumDescriptor("Operation",
	idl.EnumValue{Name: "ADD", Value: int32(Add)},
	idl.EnumValue{Name: "SUBTRACT", Value: int32(Subtract)},
	idl.EnumValue{Name: "MULTIPLY", Value: int32(Multiply)},
	idl.EnumValue{Name: "DIVIDE", Value: int32(Divide)},
)

func (op Operation) String() string {
	if name, ok := OperationEnum.NameOf(int32(op)); ok {
		return name
	}
	return fmt.Sprintf("Operation(%d)", int32(op))
}

// ParseOperation parses an operation name in any case ("add", "DIVIDE").
func ParseOperation(name string) (Operation, error) {
	ordinal, ok := OperationEnum.Parse(strings.ToUpper(name))
	if !ok {
		return 0, fmt.Errorf("unknown operation %q", name)
	}
	return Operation(ordinal), nil
}

// WorkDescriptor is the wire layout of Work.
var WorkDescriptor = idl.NewStructDescriptor("Work",
	idl.FieldDescriptor{ID: 1, Name: "num1", Type: idl.I32Type},
	idl.FieldDescriptor{ID: 2, Name: "num2", Type: idl.I32Type},
	idl.FieldDescriptor{ID: 3, Name: "op", Type: idl.EnumOf(OperationEnum)},
	idl.FieldDescriptor{ID: 4, Name: "comment", Type: idl.StringType},
).WithFactory(func() idl.Struct { return new(Work) })

// Work is one calculation: two operands and an operation. Comment is
// optional; use SetComment and HasComment to tell an empty comment
// from none.
type Work struct {
	Num1    int32
	Num2    int32
	Op      Operation
	Comment string

	isset idl.IssetState
}

// Isset indices of Work.
const workComment = 0

var _ idl.Struct = (*Work)(nil)

// SetComment sets the optional comment.
func (w *Work) SetComment(comment string) {
	w.Comment = comment
	w.isset.Set(workComment)
}

// HasComment reports whether the comment is set.
func (w *Work) HasComment() bool { return w.isset.Has(workComment) }

func (w *Work) StructDescriptor() *idl.StructDescriptor { return WorkDescriptor }

func (w *Work) Field(id int16) (idl.Value, bool) {
	switch id {
	case 1:
		return idl.I32(w.Num1), true
	case 2:
		return idl.I32(w.Num2), true
	case 3:
		return idl.I32(int32(w.Op)), true
	case 4:
		if !w.HasComment() {
			return idl.Value{}, false
		}
		return idl.String(w.Comment), true
	}
	return idl.Value{}, false
}

func (w *Work) SetField(id int16, value idl.Value) error {
	if err := checkField(WorkDescriptor, id, value); err != nil {
		return err
	}
	switch id {
	case 1:
		w.Num1 = int32Of(value)
	case 2:
		w.Num2 = int32Of(value)
	case 3:
		w.Op = Operation(int32Of(value))
	case 4:
		w.Comment = stringOf(value)
		if value.IsSet() {
			w.isset.Set(workComment)
		} else {
			w.isset.Clear(workComment)
		}
	}
	return nil
}

func (w *Work) String() string { return idl.StructValue(w).String() }

// InvalidOperationDescriptor is the wire layout of InvalidOperation.
var InvalidOperationDescriptor = idl.NewStructDescriptor("InvalidOperation",
	idl.FieldDescriptor{ID: 1, Name: "whatOp", Type: idl.I32Type},
	idl.FieldDescriptor{ID: 2, Name: "why", Type: idl.StringType},
).WithFactory(func() idl.Struct { return new(InvalidOperation) })

// InvalidOperation is the declared exception of Calculator.calculate.
type InvalidOperation struct {
	WhatOp int32
	Why    string
}

var (
	_ error      = (*InvalidOperation)(nil)
	_ idl.Struct = (*InvalidOperation)(nil)
)

func (e *InvalidOperation) Error() string {
	return fmt.Sprintf("invalid operation %s: %s", Operation(e.WhatOp), e.Why)
}

func (e *InvalidOperation) StructDescriptor() *idl.StructDescriptor {
	return InvalidOperationDescriptor
}

func (e *InvalidOperation) Field(id int16) (idl.Value, bool) {
	switch id {
	case 1:
		return idl.I32(e.WhatOp), true
	case 2:
		return idl.String(e.Why), true
	}
	return idl.Value{}, false
}

func (e *InvalidOperation) SetField(id int16, value idl.Value) error {
	if err := checkField(InvalidOperationDescriptor, id, value); err != nil {
		return err
	}
	switch id {
	case 1:
		e.WhatOp = int32Of(value)
	case 2:
		e.Why = stringOf(value)
	}
	return nil
}

// SharedStructDescriptor is the wire layout of SharedStruct.
var SharedStructDescriptor = idl.NewStructDescriptor("SharedStruct",
	idl.FieldDescriptor{ID: 1, Name: "key", Type: idl.I32Type},
	idl.FieldDescriptor{ID: 2, Name: "value", Type: idl.StringType},
).WithFactory(func() idl.Struct { return new(SharedStruct) })

// SharedStruct is a logged calculation result.
type SharedStruct struct {
	Key   int32
	Value string
}

var _ idl.Struct = (*SharedStruct)(nil)

func (s *SharedStruct) StructDescriptor() *idl.StructDescriptor { return SharedStructDescriptor }

func (s *SharedStruct) Field(id int16) (idl.Value, bool) {
	switch id {
	case 1:
		return idl.I32(s.Key), true
	case 2:
		return idl.String(s.Value), true
	}
	return idl.Value{}, false
}

func (s *SharedStruct) SetField(id int16, value idl.Value) error {
	if err := checkField(SharedStructDescriptor, id, value); err != nil {
		return err
	}
	switch id {
	case 1:
		s.Key = int32Of(value)
	case 2:
		s.Value = stringOf(value)
	}
	return nil
}

// checkField rejects ids the descriptor does not declare and values of
// the wrong wire type. An unset value is accepted and resets the field.
func checkField(descriptor *idl.StructDescriptor, id int16, value idl.Value) error {
	field := descriptor.Field(id)
	if field == nil {
		return fmt.Errorf("tutorial: %s has no field with id %d", descriptor.Name, id)
	}
	if value.IsSet() && value.Type() != field.Type.Wire {
		return fmt.Errorf("tutorial: %s.%s is %s, cannot hold a %s value", descriptor.Name, field.Name, field.Type, value.Type())
	}
	return nil
}

func int32Of(value idl.Value) int32 {
	if !value.IsSet() {
		return 0
	}
	return value.I32()
}

func stringOf(value idl.Value) string {
	if !value.IsSet() {
		return ""
	}
	return value.String()
}
