// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

package tutorial

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/keel-rpc/keel/lib/idl"
	"github.com/keel-rpc/keel/lib/protocol"
	"github.com/keel-rpc/keel/lib/rpc"
	"github.com/keel-rpc/keel/lib/testutil"
	"github.com/keel-rpc/keel/transport"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// serveCalculator starts a Calculator server on a framed unix socket
// and returns its path.
func serveCalculator(t *testing.T) string {
	t.Helper()
	path := testutil.SocketPath(t, "calculator")
	listener := transport.NewServerSocket("unix", path, transport.SocketConfig{})
	if err := listener.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	logger := discardLogger()
	processor := NewCalculatorProcessor(NewCalculatorHandler(logger), logger)
	server := rpc.NewServer(listener, processor, rpc.ServerConfig{Transport: transport.FramedWrapper()}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := testutil.RequireReceive(t, done, 5*time.Second, "calculator server shutting down"); err != nil {
			t.Errorf("Serve: %v", err)
		}
	})
	return path
}

func dialCalculator(t *testing.T, path string) *protocol.Binary {
	t.Helper()
	socket := transport.NewSocket("unix", path, transport.SocketConfig{ConnectTimeout: 5 * time.Second})
	if err := socket.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { socket.Close() })
	return protocol.NewBinary(transport.NewFramed(socket), protocol.BinaryConfig{})
}

func TestCalculator(t *testing.T) {
	p := dialCalculator(t, serveCalculator(t))
	client := NewCalculatorClient(rpc.NewClient(p, p))
	ctx := context.Background()

	if err := client.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	sum, err := client.Add(ctx, 1, 1)
	if err != nil || sum != 2 {
		t.Fatalf("add(1, 1) = %d, %v; want 2", sum, err)
	}

	_, err = client.Calculate(ctx, 1, &Work{Num1: 1, Num2: 0, Op: Divide})
	var invalid *InvalidOperation
	if !errors.As(err, &invalid) {
		t.Fatalf("calculate 1/0 = %v, want *InvalidOperation", err)
	}
	if invalid.WhatOp != int32(Divide) || invalid.Why != "Cannot divide by 0" {
		t.Errorf("InvalidOperation = %+v", invalid)
	}

	difference, err := client.Calculate(ctx, 1, &Work{Num1: 15, Num2: 10, Op: Subtract})
	if err != nil || difference != 5 {
		t.Fatalf("calculate 15-10 = %d, %v; want 5", difference, err)
	}

	logged, err := client.GetStruct(ctx, 1)
	if err != nil {
		t.Fatalf("getStruct(1): %v", err)
	}
	if logged.Key != 1 || logged.Value != "5" {
		t.Errorf("getStruct(1) = %+v, want {1 5}", logged)
	}

	if err := client.Zip(ctx); err != nil {
		t.Errorf("zip: %v", err)
	}

	// Nothing was logged under 99, so the server sends an empty result.
	if _, err := client.GetStruct(ctx, 99); !errors.Is(err, &rpc.ApplicationException{Kind: rpc.MissingResult}) {
		t.Errorf("getStruct(99) = %v, want MISSING_RESULT", err)
	}

	// The connection survives every exception above.
	if sum, err := client.Add(ctx, 40, 2); err != nil || sum != 42 {
		t.Errorf("add(40, 2) = %d, %v; want 42", sum, err)
	}
}

func TestCalculateRejectsUnknownOperation(t *testing.T) {
	handler := NewCalculatorHandler(discardLogger())
	_, err := handler.Calculate(context.Background(), 1, &Work{Num1: 1, Num2: 2, Op: Operation(9)})
	var invalid *InvalidOperation
	if !errors.As(err, &invalid) || invalid.Why != "Invalid operation" || invalid.WhatOp != 9 {
		t.Fatalf("Calculate with op 9 = %v", err)
	}
	if err.Error() != "invalid operation Operation(9): Invalid operation" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestSharedClientReachesInheritedMethod(t *testing.T) {
	path := serveCalculator(t)
	p := dialCalculator(t, path)
	ctx := context.Background()

	calculator := NewCalculatorClient(rpc.NewClient(p, p))
	if _, err := calculator.Calculate(ctx, 7, &Work{Num1: 6, Num2: 7, Op: Multiply}); err != nil {
		t.Fatalf("calculate: %v", err)
	}

	other := dialCalculator(t, path)
	shared := NewSharedServiceClient(rpc.NewClient(other, other))
	logged, err := shared.GetStruct(ctx, 7)
	if err != nil || logged.Value != "42" {
		t.Fatalf("getStruct(7) = %+v, %v; want value 42", logged, err)
	}
}

func TestCalculatorConcurrentClient(t *testing.T) {
	p := dialCalculator(t, serveCalculator(t))
	caller := rpc.NewConcurrentClient(p, p, discardLogger())
	t.Cleanup(func() { caller.Close() })
	client := NewCalculatorClient(caller)

	const callers = 16
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := range int32(callers) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sum, err := client.Add(context.Background(), i, 100)
			if err == nil && sum != i+100 {
				err = errors.New("wrong sum")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("concurrent add: %v", err)
		}
	}
}

func TestWorkComment(t *testing.T) {
	encode := func(work *Work) *transport.MemoryBuffer {
		t.Helper()
		memory := transport.NewMemoryBuffer(nil)
		if err := idl.WriteStruct(protocol.NewBinary(memory, protocol.BinaryConfig{}), work); err != nil {
			t.Fatalf("WriteStruct: %v", err)
		}
		return memory
	}

	work := &Work{Num1: 1, Num2: 2, Op: Add}
	if work.HasComment() {
		t.Fatal("new Work reports a comment")
	}
	// Three i32 fields and the stop byte.
	if got := encode(work).Len(); got != 22 {
		t.Errorf("Work without comment encodes to %d bytes, want 22", got)
	}

	work.SetComment("")
	memory := encode(work)
	if got := memory.Len(); got != 29 {
		t.Errorf("Work with empty comment encodes to %d bytes, want 29", got)
	}

	decoded := WorkDescriptor.New()
	if err := idl.ReadStruct(protocol.NewBinary(memory, protocol.BinaryConfig{}), decoded); err != nil {
		t.Fatalf("ReadStruct: %v", err)
	}
	typed, ok := decoded.(*Work)
	if !ok {
		t.Fatalf("decoded %T, want *Work", decoded)
	}
	if !typed.HasComment() || typed.Num2 != 2 || typed.Op != Add {
		t.Errorf("decoded %v", typed)
	}
	if !idl.StructsEqual(work, typed) {
		t.Errorf("decoded %v, want %v", typed, work)
	}

	if err := typed.SetField(4, idl.Value{}); err != nil || typed.HasComment() {
		t.Errorf("clearing the comment: %v, HasComment=%v", err, typed.HasComment())
	}
	if err := typed.SetField(1, idl.String("one")); err == nil {
		t.Error("SetField accepted a string for num1")
	}
	if err := typed.SetField(9, idl.I32(1)); err == nil {
		t.Error("SetField accepted an undeclared id")
	}
}

func TestParseOperation(t *testing.T) {
	for _, test := range []struct {
		name string
		want Operation
	}{
		{"add", Add},
		{"SUBTRACT", Subtract},
		{"Multiply", Multiply},
		{"divide", Divide},
	} {
		got, err := ParseOperation(test.name)
		if err != nil || got != test.want {
			t.Errorf("ParseOperation(%q) = %v, %v; want %v", test.name, got, err, test.want)
		}
	}
	if _, err := ParseOperation("modulo"); err == nil {
		t.Error("ParseOperation(\"modulo\") succeeded")
	}
	if Divide.String() != "DIVIDE" {
		t.Errorf("Divide.String() = %q", Divide.String())
	}
}
