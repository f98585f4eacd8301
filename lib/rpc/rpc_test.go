// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/keel-rpc/keel/lib/idl"
	"github.com/keel-rpc/keel/lib/protocol"
	"github.com/keel-rpc/keel/lib/wire"
	"github.com/keel-rpc/keel/transport"
)

var (
	echoArgs = idl.NewStructDescriptor("echo_args",
		idl.FieldDescriptor{ID: 1, Name: "text", Type: idl.StringType, Required: true},
	)

	failureDescriptor = idl.NewStructDescriptor("Failure",
		idl.FieldDescriptor{ID: 1, Name: "reason", Type: idl.StringType},
	)

	echoMethod = &Method{
		Name: "echo",
		Args: echoArgs,
		Result: NewResultDescriptor("echo", idl.StringType,
			idl.FieldDescriptor{ID: 1, Name: "failure", Type: idl.StructOf(failureDescriptor)},
		),
	}

	resetMethod = &Method{
		Name:   "reset",
		Args:   idl.NewStructDescriptor("reset_args"),
		Result: NewResultDescriptor("reset", nil),
	}

	touchMethod = &Method{
		Name:   "touch",
		Oneway: true,
		Args:   echoArgs,
	}
)

func echoRequest(text string) idl.Struct {
	return idl.NewRecord(echoArgs).Set("text", idl.String(text))
}

func failure(reason string) *DeclaredException {
	return &DeclaredException{Struct: idl.NewRecord(failureDescriptor).Set("reason", idl.String(reason))}
}

// echo returns its argument, except for a few trigger words that
// exercise each way a handler can fail.
func echo(ctx context.Context, args idl.Struct) (idl.Value, error) {
	text := args.(*idl.Record).Get("text").String()
	switch text {
	case "fail":
		return idl.Value{}, errors.New("disk on fire")
	case "declared":
		return idl.Value{}, failure("refused")
	case "panic":
		panic("handler exploded")
	case "wrong type":
		return idl.I32(1), nil
	case "nothing":
		return idl.Value{}, nil
	case "application":
		return idl.Value{}, NewApplicationException(ProtocolError, "handler says no")
	default:
		return idl.String(text), nil
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError + 1,
	}))
}

func newMemoryProtocol() (*protocol.Binary, *transport.MemoryBuffer) {
	memory := transport.NewMemoryBuffer(nil)
	return protocol.NewBinary(memory, protocol.BinaryConfig{}), memory
}

// readException decodes an EXCEPTION message from p.
func readException(t *testing.T, p protocol.Protocol) (MessageHeader, *ApplicationException) {
	t.Helper()
	header, err := ReadMessageHeader(p)
	if err != nil {
		t.Fatalf("ReadMessageHeader: %v", err)
	}
	if header.Type != wire.Exception {
		t.Fatalf("message type = %s, want EXCEPTION", header.Type)
	}
	exception := new(ApplicationException)
	if err := readBody(p, exception); err != nil {
		t.Fatalf("reading exception body: %v", err)
	}
	return header, exception
}
