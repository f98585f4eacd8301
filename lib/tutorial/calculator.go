// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

package tutorial

import (
	"context"
	"log/slog"

	"github.com/keel-rpc/keel/lib/idl"
	"github.com/keel-rpc/keel/lib/rpc"
)

// Calculator methods.
var (
	PingMethod = &rpc.Method{
		Name:   "ping",
		Args:   idl.NewStructDescriptor("ping_args"),
		Result: rpc.NewResultDescriptor("ping", idl.VoidType),
	}

	AddMethod = &rpc.Method{
		Name: "add",
		Args: idl.NewStructDescriptor("add_args",
			idl.FieldDescriptor{ID: 1, Name: "num1", Type: idl.I32Type},
			idl.FieldDescriptor{ID: 2, Name: "num2", Type: idl.I32Type},
		),
		Result: rpc.NewResultDescriptor("add", idl.I32Type),
	}

	CalculateMethod = &rpc.Method{
		Name: "calculate",
		Args: idl.NewStructDescriptor("calculate_args",
			idl.FieldDescriptor{ID: 1, Name: "logid", Type: idl.I32Type},
			idl.FieldDescriptor{ID: 2, Name: "w", Type: idl.StructOf(WorkDescriptor)},
		),
		Result: rpc.NewResultDescriptor("calculate", idl.I32Type,
			idl.FieldDescriptor{ID: 1, Name: "ouch", Type: idl.StructOf(InvalidOperationDescriptor)},
		),
	}

	ZipMethod = &rpc.Method{
		Name:   "zip",
		Oneway: true,
		Args:   idl.NewStructDescriptor("zip_args"),
	}
)

// Calculator extends SharedService with arithmetic.
type Calculator interface {
	SharedService

	Ping(ctx context.Context) error
	Add(ctx context.Context, num1, num2 int32) (int32, error)

	// Calculate performs work and logs the result under logID. It
	// fails with *InvalidOperation for unknown operations and division
	// by zero.
	Calculate(ctx context.Context, logID int32, work *Work) (int32, error)

	// Zip is oneway: the client does not wait for it to run.
	Zip(ctx context.Context) error
}

// CalculatorClient calls a Calculator.
type CalculatorClient struct {
	*SharedServiceClient
	caller rpc.Caller
}

var _ Calculator = (*CalculatorClient)(nil)

func NewCalculatorClient(caller rpc.Caller) *CalculatorClient {
	return &CalculatorClient{SharedServiceClient: NewSharedServiceClient(caller), caller: caller}
}

func (c *CalculatorClient) Ping(ctx context.Context) error {
	_, err := c.caller.Call(ctx, PingMethod, idl.NewRecord(PingMethod.Args))
	return err
}

func (c *CalculatorClient) Add(ctx context.Context, num1, num2 int32) (int32, error) {
	args := idl.NewRecord(AddMethod.Args).
		Set("num1", idl.I32(num1)).
		Set("num2", idl.I32(num2))
	value, err := c.caller.Call(ctx, AddMethod, args)
	if err != nil {
		return 0, err
	}
	return value.I32(), nil
}

func (c *CalculatorClient) Calculate(ctx context.Context, logID int32, work *Work) (int32, error) {
	args := idl.NewRecord(CalculateMethod.Args).Set("logid", idl.I32(logID))
	if work != nil {
		args.Set("w", idl.StructValue(work))
	}
	value, err := c.caller.Call(ctx, CalculateMethod, args)
	if err != nil {
		return 0, err
	}
	return value.I32(), nil
}

func (c *CalculatorClient) Zip(ctx context.Context) error {
	_, err := c.caller.Call(ctx, ZipMethod, idl.NewRecord(ZipMethod.Args))
	return err
}

// NewCalculatorProcessor returns a processor serving handler. The
// SharedService methods are served by a parent processor, so a
// SharedService client can talk to a Calculator server.
func NewCalculatorProcessor(handler Calculator, logger *slog.Logger) *rpc.Processor {
	processor := rpc.NewProcessor(NewSharedServiceProcessor(handler, logger), logger)

	processor.Register(PingMethod, func(ctx context.Context, args idl.Struct) (idl.Value, error) {
		return idl.Value{}, handler.Ping(ctx)
	})
	processor.Register(AddMethod, func(ctx context.Context, args idl.Struct) (idl.Value, error) {
		sum, err := handler.Add(ctx, argInt32(args, 1), argInt32(args, 2))
		if err != nil {
			return idl.Value{}, err
		}
		return idl.I32(sum), nil
	})
	processor.Register(CalculateMethod, func(ctx context.Context, args idl.Struct) (idl.Value, error) {
		work := new(Work)
		if value, ok := args.Field(2); ok {
			work = value.Struct().(*Work)
		}
		result, err := handler.Calculate(ctx, argInt32(args, 1), work)
		if err != nil {
			return idl.Value{}, err
		}
		return idl.I32(result), nil
	})
	processor.Register(ZipMethod, func(ctx context.Context, args idl.Struct) (idl.Value, error) {
		return idl.Value{}, handler.Zip(ctx)
	})

	return processor
}
