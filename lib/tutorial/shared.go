// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

package tutorial

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/keel-rpc/keel/lib/idl"
	"github.com/keel-rpc/keel/lib/rpc"
)

// GetStructMethod is SharedService.getStruct.
var GetStructMethod = &rpc.Method{
	Name: "getStruct",
	Args: idl.NewStructDescriptor("getStruct_args",
		idl.FieldDescriptor{ID: 1, Name: "key", Type: idl.I32Type},
	),
	Result: rpc.NewResultDescriptor("getStruct", idl.StructOf(SharedStructDescriptor)),
}

// SharedService is the base service every tutorial service extends.
type SharedService interface {
	GetStruct(ctx context.Context, key int32) (*SharedStruct, error)
}

// SharedServiceClient calls a SharedService.
type SharedServiceClient struct {
	caller rpc.Caller
}

var _ SharedService = (*SharedServiceClient)(nil)

func NewSharedServiceClient(caller rpc.Caller) *SharedServiceClient {
	return &SharedServiceClient{caller: caller}
}

func (c *SharedServiceClient) GetStruct(ctx context.Context, key int32) (*SharedStruct, error) {
	args := idl.NewRecord(GetStructMethod.Args).Set("key", idl.I32(key))
	value, err := c.caller.Call(ctx, GetStructMethod, args)
	if err != nil {
		return nil, err
	}
	return structResult[*SharedStruct](GetStructMethod, value)
}

// RegisterSharedService registers the SharedService methods of handler.
func RegisterSharedService(processor *rpc.Processor, handler SharedService) {
	processor.Register(GetStructMethod, func(ctx context.Context, args idl.Struct) (idl.Value, error) {
		shared, err := handler.GetStruct(ctx, argInt32(args, 1))
		if err != nil {
			return idl.Value{}, err
		}
		if shared == nil {
			return idl.Value{}, nil
		}
		return idl.StructValue(shared), nil
	})
}

// NewSharedServiceProcessor returns a processor serving handler.
func NewSharedServiceProcessor(handler SharedService, logger *slog.Logger) *rpc.Processor {
	processor := rpc.NewProcessor(nil, logger)
	RegisterSharedService(processor, handler)
	return processor
}

// structResult converts a struct-typed success value to its typed
// binding.
func structResult[T idl.Struct](method *rpc.Method, value idl.Value) (T, error) {
	typed, ok := value.Struct().(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("tutorial: %s returned %T, want %T", method.Name, value.Struct(), zero)
	}
	return typed, nil
}

// argInt32 returns an i32 argument, or zero when the caller left it
// unset.
func argInt32(args idl.Struct, id int16) int32 {
	value, _ := args.Field(id)
	return int32Of(value)
}
