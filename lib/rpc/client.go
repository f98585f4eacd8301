// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/keel-rpc/keel/lib/idl"
	"github.com/keel-rpc/keel/lib/protocol"
	"github.com/keel-rpc/keel/lib/wire"
	"github.com/keel-rpc/keel/transport"
)

// ErrClientClosed is returned by calls on a client after Close.
var ErrClientClosed = errors.New("rpc: client closed")

// Client is a synchronous Caller: one call is in flight at a time, and
// concurrent calls queue on a mutex. Use ConcurrentClient to share one
// connection between concurrent callers without head-of-line blocking.
//
// The context is checked before each call is sent. A blocked read is
// bounded only by the socket timeout of the underlying transport.
type Client struct {
	in, out protocol.Protocol

	mu     sync.Mutex
	seqID  int32
	closed bool
}

var _ Caller = (*Client)(nil)

// NewClient returns a client reading replies from in and writing calls
// to out. Both are usually the same protocol over one transport.
func NewClient(in, out protocol.Protocol) *Client {
	return &Client{in: in, out: out}
}

func (c *Client) Call(ctx context.Context, method *Method, args idl.Struct) (idl.Value, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return idl.Value{}, ErrClientClosed
	}
	if err := ctx.Err(); err != nil {
		return idl.Value{}, err
	}

	c.seqID++
	header := MessageHeader{Name: method.Name, Type: wire.Call, SeqID: c.seqID}
	if method.Oneway {
		header.Type = wire.Oneway
	}
	if err := WriteMessage(c.out, header, args); err != nil {
		return idl.Value{}, fmt.Errorf("sending %s: %w", method.Name, err)
	}
	if method.Oneway {
		return idl.Value{}, nil
	}

	reply, err := ReadMessageHeader(c.in)
	if err != nil {
		return idl.Value{}, fmt.Errorf("receiving %s: %w", method.Name, unexpectedEOF(err))
	}
	if reply.Type == wire.Reply && reply.Name == method.Name && reply.SeqID != header.SeqID {
		if err := skipBody(c.in); err != nil {
			return idl.Value{}, fmt.Errorf("receiving %s: %w", method.Name, unexpectedEOF(err))
		}
		return idl.Value{}, NewApplicationException(BadSequenceID, "%s failed: out of sequence response", method.Name)
	}
	return readReply(c.in, method, reply)
}

// Close closes the transports beneath the client.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return closeTransports(c.in, c.out)
}

// readReply consumes the body of reply, a message answering method,
// and unpacks it. The body is always consumed, so any error other than
// a connection error leaves the stream positioned at the next message.
func readReply(in protocol.Protocol, method *Method, reply MessageHeader) (idl.Value, error) {
	switch {
	case reply.Type == wire.Exception:
		exception := new(ApplicationException)
		if err := readBody(in, exception); err != nil {
			return idl.Value{}, fmt.Errorf("receiving %s: %w", method.Name, unexpectedEOF(err))
		}
		return idl.Value{}, exception

	case reply.Type != wire.Reply:
		if err := skipBody(in); err != nil {
			return idl.Value{}, fmt.Errorf("receiving %s: %w", method.Name, unexpectedEOF(err))
		}
		return idl.Value{}, NewApplicationException(InvalidMessageType, "%s failed: invalid message type %s", method.Name, reply.Type)

	case reply.Name != method.Name:
		if err := skipBody(in); err != nil {
			return idl.Value{}, fmt.Errorf("receiving %s: %w", method.Name, unexpectedEOF(err))
		}
		return idl.Value{}, NewApplicationException(WrongMethodName, "%s failed: wrong method name %q", method.Name, reply.Name)
	}

	result := method.Result.New()
	if err := readBody(in, result); err != nil {
		return idl.Value{}, fmt.Errorf("receiving %s: %w", method.Name, unexpectedEOF(err))
	}
	return method.Unpack(result)
}

// unexpectedEOF reports a clean end of stream in the middle of a call
// as truncation: the server hung up before replying.
func unexpectedEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

func closeTransports(in, out protocol.Protocol) error {
	err := in.Transport().Close()
	if out.Transport() != in.Transport() {
		err = errors.Join(err, out.Transport().Close())
	}
	return err
}

// IsConnectionError reports whether err leaves the connection unusable:
// transport failures, protocol decode failures, truncated streams, and
// calls on a closed client. ApplicationExceptions, declared exceptions,
// and validation errors are answered in step with the stream, so the
// connection can carry further calls after them.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var transportError *transport.Error
	var protocolError *protocol.Error
	return errors.As(err, &transportError) ||
		errors.As(err, &protocolError) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, ErrClientClosed)
}
