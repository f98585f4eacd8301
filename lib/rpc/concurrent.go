// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/keel-rpc/keel/lib/idl"
	"github.com/keel-rpc/keel/lib/protocol"
	"github.com/keel-rpc/keel/lib/wire"
)

// ConcurrentClient is a Caller that lets many goroutines share one
// connection. Calls are written whole under a write lock; replies may
// come back in any order and are routed to their callers by sequence
// id.
//
// There is no dedicated reader goroutine. Whichever waiting caller
// finds the read half free reads the next message header. If the reply
// is its own, it reads the body and releases the read half. If it
// belongs to another caller, the header goes to that caller, who
// thereby takes over the read half and reads its own body from the
// stream. A caller whose reply was already routed to it never touches
// the transport to find it.
//
// Cancelling the context of a waiting call returns immediately; the
// reply, when it arrives, is read and discarded. A header with a
// sequence id no caller is waiting for means the stream is out of step,
// and the client fails every pending and future call with that error.
type ConcurrentClient struct {
	in, out protocol.Protocol
	logger  *slog.Logger

	writeMu sync.Mutex

	mu        sync.Mutex
	lastSeqID int32
	pending   map[int32]*pendingCall

	// reading is true while some caller owns the read half.
	reading bool

	// wake is closed and replaced whenever the read half is released
	// or the client fails.
	wake chan struct{}

	// err is the first connection error; once set the client is dead.
	err error
}

type pendingCall struct {
	// header receives the reply header, handing read ownership to the
	// waiting caller. Buffered so the routing reader never blocks.
	header chan MessageHeader

	// abandoned is set when the caller gave up; its reply is skipped.
	abandoned bool
}

var _ Caller = (*ConcurrentClient)(nil)

// NewConcurrentClient returns a client reading replies from in and
// writing calls to out. in and out may be the same Protocol: a call is
// written while another caller reads a reply. A nil logger means
// slog.Default().
func NewConcurrentClient(in, out protocol.Protocol, logger *slog.Logger) *ConcurrentClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConcurrentClient{
		in:      in,
		out:     out,
		logger:  logger,
		pending: make(map[int32]*pendingCall),
		wake:    make(chan struct{}),
	}
}

func (c *ConcurrentClient) Call(ctx context.Context, method *Method, args idl.Struct) (idl.Value, error) {
	if err := ctx.Err(); err != nil {
		return idl.Value{}, err
	}

	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return idl.Value{}, c.err
	}
	seqID := c.nextSeqID()
	var call *pendingCall
	if !method.Oneway {
		call = &pendingCall{header: make(chan MessageHeader, 1)}
		c.pending[seqID] = call
	}
	c.mu.Unlock()

	header := MessageHeader{Name: method.Name, Type: wire.Call, SeqID: seqID}
	if method.Oneway {
		header.Type = wire.Oneway
	}
	c.writeMu.Lock()
	err := WriteMessage(c.out, header, args)
	c.writeMu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, seqID)
		c.mu.Unlock()
		err = fmt.Errorf("sending %s: %w", method.Name, err)
		if IsConnectionError(err) {
			c.fail(err)
		}
		return idl.Value{}, err
	}
	if method.Oneway {
		return idl.Value{}, nil
	}

	reply, err := c.await(ctx, seqID, call)
	if err != nil {
		return idl.Value{}, err
	}
	value, err := readReply(c.in, method, reply)
	if IsConnectionError(err) {
		c.fail(err)
		return idl.Value{}, err
	}
	c.release()
	return value, err
}

// nextSeqID returns a sequence id not held by any pending call. Called
// with mu held.
func (c *ConcurrentClient) nextSeqID() int32 {
	for {
		c.lastSeqID++
		if _, taken := c.pending[c.lastSeqID]; !taken {
			return c.lastSeqID
		}
	}
}

// await returns the reply header for seqID. On a nil error the caller
// owns the read half and must consume the body and then call release
// (or fail).
func (c *ConcurrentClient) await(ctx context.Context, seqID int32, call *pendingCall) (MessageHeader, error) {
	for {
		c.mu.Lock()
		if c.err != nil {
			c.mu.Unlock()
			return MessageHeader{}, c.err
		}
		select {
		case header := <-call.header:
			c.mu.Unlock()
			return header, nil
		default:
		}

		if !c.reading {
			c.reading = true
			c.mu.Unlock()
			header, err := ReadMessageHeader(c.in)
			if err != nil {
				err = fmt.Errorf("receiving reply: %w", unexpectedEOF(err))
				c.fail(err)
				return MessageHeader{}, err
			}
			if done, err := c.route(header, seqID); done || err != nil {
				return header, err
			}
			continue
		}

		wake := c.wake
		c.mu.Unlock()
		select {
		case header := <-call.header:
			return header, nil
		case <-wake:
		case <-ctx.Done():
			return MessageHeader{}, c.abandon(seqID, call, ctx.Err())
		}
	}
}

// route delivers a header read by the caller waiting on seqID. It
// reports done when the header is that caller's own reply. Otherwise
// the header has been handed to its owner, or its body skipped when
// the owner abandoned the call, and the reading caller goes back to
// waiting.
func (c *ConcurrentClient) route(header MessageHeader, seqID int32) (done bool, err error) {
	c.mu.Lock()
	owner, ok := c.pending[header.SeqID]
	if ok {
		delete(c.pending, header.SeqID)
	}
	if ok && header.SeqID != seqID && !owner.abandoned {
		// Sent under mu so that abandon sees either the header or
		// nothing, never a header still in transit.
		owner.header <- header
		c.mu.Unlock()
		return false, nil
	}
	c.mu.Unlock()

	switch {
	case header.SeqID == seqID:
		return true, nil

	case !ok:
		exception := NewApplicationException(BadSequenceID,
			"reply %s with sequence id %d matches no pending call", header.Name, header.SeqID)
		err := fmt.Errorf("rpc: stream out of step: %w", &protocol.Error{Kind: protocol.InvalidData, Err: exception})
		c.fail(err)
		return false, err

	default:
		if err := skipBody(c.in); err != nil {
			err = fmt.Errorf("discarding reply %s: %w", header.Name, unexpectedEOF(err))
			c.fail(err)
			return false, err
		}
		c.logger.Debug("discarded reply to abandoned call", "method", header.Name, "seq_id", header.SeqID)
		c.release()
		return false, nil
	}
}

// abandon gives up waiting for seqID. If the header was handed over
// while the context fired, this caller owns the read half and drains
// the body before returning.
func (c *ConcurrentClient) abandon(seqID int32, call *pendingCall, cause error) error {
	c.mu.Lock()
	select {
	case header := <-call.header:
		c.mu.Unlock()
		if err := skipBody(c.in); err != nil {
			err = fmt.Errorf("discarding reply %s: %w", header.Name, unexpectedEOF(err))
			c.fail(err)
			return err
		}
		c.release()
		return cause
	default:
	}
	call.abandoned = true
	c.mu.Unlock()
	return cause
}

// release gives up the read half and wakes every waiter.
func (c *ConcurrentClient) release() {
	c.mu.Lock()
	c.reading = false
	close(c.wake)
	c.wake = make(chan struct{})
	c.mu.Unlock()
}

// fail records the first connection error and wakes every waiter so
// that each returns it.
func (c *ConcurrentClient) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return
	}
	c.err = err
	c.reading = false
	clear(c.pending)
	close(c.wake)
	c.wake = make(chan struct{})
}

// Err returns the error that stopped the client, or nil while it is
// usable.
func (c *ConcurrentClient) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close fails every pending call with ErrClientClosed and closes the
// transports beneath the client.
func (c *ConcurrentClient) Close() error {
	c.mu.Lock()
	closed := c.err == ErrClientClosed
	c.mu.Unlock()
	if closed {
		return nil
	}
	c.fail(ErrClientClosed)
	return closeTransports(c.in, c.out)
}
