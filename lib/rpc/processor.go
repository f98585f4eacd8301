// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"runtime/debug"
	"slices"
	"sync"

	"github.com/keel-rpc/keel/lib/idl"
	"github.com/keel-rpc/keel/lib/protocol"
	"github.com/keel-rpc/keel/lib/wire"
)

// Processor dispatches inbound calls to registered handlers by method
// name. A processor built with a parent consults its own methods first
// and then the parent's, which is how a service that extends another
// inherits the base service's methods.
//
// Register methods before serving. Process is safe for concurrent use
// by many connections.
type Processor struct {
	parent *Processor
	logger *slog.Logger

	mu      sync.RWMutex
	methods map[string]registration
}

type registration struct {
	method  *Method
	handler HandlerFunc
}

// NewProcessor returns a processor with no methods of its own. parent
// may be nil. A nil logger means slog.Default().
func NewProcessor(parent *Processor, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{parent: parent, logger: logger, methods: make(map[string]registration)}
}

// Register binds handler to method. It panics if this processor already
// has a method of that name; a method of the parent's may be overridden.
func (p *Processor) Register(method *Method, handler HandlerFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.methods[method.Name]; exists {
		panic(fmt.Sprintf("rpc.Processor: duplicate handler for method %q", method.Name))
	}
	if !method.Oneway && method.Result == nil {
		panic(fmt.Sprintf("rpc.Processor: method %q has no result struct", method.Name))
	}
	p.methods[method.Name] = registration{method: method, handler: handler}
}

func (p *Processor) lookup(name string) (registration, bool) {
	for processor := p; processor != nil; processor = processor.parent {
		processor.mu.RLock()
		entry, ok := processor.methods[name]
		processor.mu.RUnlock()
		if ok {
			return entry, true
		}
	}
	return registration{}, false
}

// Methods returns the names of every method the processor serves,
// including inherited ones, sorted.
func (p *Processor) Methods() []string {
	names := make(map[string]bool)
	for processor := p; processor != nil; processor = processor.parent {
		processor.mu.RLock()
		for name := range processor.methods {
			names[name] = true
		}
		processor.mu.RUnlock()
	}
	return slices.Sorted(maps.Keys(names))
}

// serviceDomainKey is the fingerprint domain of method sets.
var serviceDomainKey = idl.DomainKey{
	'k', 'e', 'e', 'l', '.', 'r', 'p', 'c', '.', 's', 'e', 'r', 'v', 'i', 'c', 'e',
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

type methodSummary struct {
	Name   string             `json:"name"`
	Oneway bool               `json:"oneway,omitempty"`
	Args   idl.StructSummary  `json:"args"`
	Result *idl.StructSummary `json:"result,omitempty"`
}

// Fingerprint hashes the served method set: every method's name,
// oneway flag, and argument and result layouts. Clients and servers
// built from the same schema report the same fingerprint.
func (p *Processor) Fingerprint() idl.Fingerprint {
	names := p.Methods()
	summaries := make([]methodSummary, len(names))
	for i, name := range names {
		entry, _ := p.lookup(name)
		summaries[i] = methodSummary{
			Name:   name,
			Oneway: entry.method.Oneway,
			Args:   entry.method.Args.Summary(),
		}
		if entry.method.Result != nil {
			result := entry.method.Result.Summary()
			summaries[i].Result = &result
		}
	}
	fingerprint, err := idl.Digest(serviceDomainKey, summaries)
	if err != nil {
		panic("rpc: fingerprinting method set: " + err.Error())
	}
	return fingerprint
}

// Process reads one message from in, dispatches it, and writes the
// reply (if any) to out. A nil return means the connection can carry
// the next message, including after unknown methods, handler failures,
// and argument validation failures, all of which are answered with an
// EXCEPTION message. A non-nil return means the stream can no longer
// be trusted and the connection should be closed; a peer that hung up
// between messages yields io.EOF.
func (p *Processor) Process(ctx context.Context, in, out protocol.Protocol) error {
	header, err := ReadMessageHeader(in)
	if err != nil {
		return err
	}
	reply := MessageHeader{Name: header.Name, Type: wire.Reply, SeqID: header.SeqID}
	logger := p.logger.With("method", header.Name, "seq_id", header.SeqID)

	if header.Type != wire.Call && header.Type != wire.Oneway {
		if err := skipBody(in); err != nil {
			return err
		}
		logger.Warn("unexpected message type", "type", header.Type)
		return p.writeException(out, reply, NewApplicationException(InvalidMessageType,
			"Unexpected message type %s for %s", header.Type, header.Name))
	}

	entry, ok := p.lookup(header.Name)
	if !ok {
		if err := skipBody(in); err != nil {
			return err
		}
		// Unknown names are answered even when sent as ONEWAY.
		logger.Warn("unknown method", "type", header.Type)
		return p.writeException(out, reply, NewApplicationException(UnknownMethod, "Unknown function %s", header.Name))
	}
	method := entry.method
	oneway := method.Oneway || header.Type == wire.Oneway

	args := method.Args.New()
	if err := readBody(in, args); err != nil {
		var validation *idl.ValidationError
		if errors.As(err, &validation) {
			// The whole body was consumed, so the stream is still in step.
			logger.Warn("invalid arguments", "error", err)
			if oneway {
				return nil
			}
			return p.writeException(out, reply, NewApplicationException(ProtocolError, "%v", err))
		}
		if !oneway {
			// Best effort: the peer may still be listening.
			if writeErr := p.writeException(out, reply, NewApplicationException(ProtocolError, "%v", err)); writeErr != nil {
				logger.Debug("reporting unreadable arguments failed", "error", writeErr, "read_error", err)
			}
		}
		return fmt.Errorf("reading arguments of %s: %w", header.Name, err)
	}

	value, err := p.invoke(ctx, entry, args)
	if oneway {
		if err != nil {
			logger.Error("oneway handler failed", "error", err)
		}
		return nil
	}

	if err != nil {
		var exception *ApplicationException
		if errors.As(err, &exception) {
			return p.writeException(out, reply, exception)
		}
		field, declared := method.exceptionField(err)
		if field == nil {
			logger.Error("handler failed", "error", err)
			return p.writeException(out, reply, NewApplicationException(InternalError,
				"Internal error processing %s: %v", header.Name, err))
		}
		result := method.Result.New()
		if err := result.SetField(field.ID, idl.StructValue(declared)); err != nil {
			return p.writeException(out, reply, NewApplicationException(InternalError,
				"Internal error processing %s: %v", header.Name, err))
		}
		return p.reply(out, reply, result, logger)
	}

	result := method.Result.New()
	if value.IsSet() && !method.Void() {
		if err := result.SetField(SuccessFieldID, value); err != nil {
			logger.Error("handler returned a value of the wrong type", "error", err)
			return p.writeException(out, reply, NewApplicationException(InternalError,
				"Internal error processing %s: %v", header.Name, err))
		}
	}
	return p.reply(out, reply, result, logger)
}

// invoke calls the handler, converting a panic into an error.
func (p *Processor) invoke(ctx context.Context, entry registration, args idl.Struct) (value idl.Value, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			p.logger.Error("handler panicked",
				"method", entry.method.Name,
				"panic", recovered,
				"stack", string(debug.Stack()),
			)
			value, err = idl.Value{}, fmt.Errorf("panic: %v", recovered)
		}
	}()
	return entry.handler(ctx, args)
}

// reply writes a REPLY, falling back to an INTERNAL_ERROR exception
// when the result does not validate.
func (p *Processor) reply(out protocol.Protocol, header MessageHeader, result idl.Struct, logger *slog.Logger) error {
	err := writeReply(out, header, result)
	var validation *idl.ValidationError
	if errors.As(err, &validation) {
		logger.Error("handler result failed validation", "error", err)
		return p.writeException(out, header, NewApplicationException(InternalError,
			"Internal error processing %s: %v", header.Name, err))
	}
	return err
}

func (p *Processor) writeException(out protocol.Protocol, header MessageHeader, exception *ApplicationException) error {
	header.Type = wire.Exception
	return writeMessage(out, header, exception, idl.WriteStruct)
}
