// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"github.com/keel-rpc/keel/lib/idl"
	"github.com/keel-rpc/keel/lib/protocol"
	"github.com/keel-rpc/keel/lib/wire"
)

// MessageHeader is the envelope in front of every message body.
type MessageHeader struct {
	Name  string
	Type  wire.MessageType
	SeqID int32
}

// WriteMessage writes header followed by body and flushes. The body is
// validated before the header is written, so a validation failure
// leaves the stream untouched.
func WriteMessage(p protocol.Protocol, header MessageHeader, body idl.Struct) error {
	if err := idl.Validate(body); err != nil {
		return err
	}
	return writeMessage(p, header, body, idl.WriteStruct)
}

// writeReply is WriteMessage for result structs, which carry at most
// one field.
func writeReply(p protocol.Protocol, header MessageHeader, result idl.Struct) error {
	if err := idl.ValidateResult(result); err != nil {
		return err
	}
	return writeMessage(p, header, result, idl.WriteResult)
}

func writeMessage(p protocol.Protocol, header MessageHeader, body idl.Struct, write func(protocol.Protocol, idl.Struct) error) error {
	if err := p.WriteMessageBegin(header.Name, header.Type, header.SeqID); err != nil {
		return err
	}
	if err := write(p, body); err != nil {
		return err
	}
	if err := p.WriteMessageEnd(); err != nil {
		return err
	}
	return p.Flush()
}

// ReadMessageHeader reads the next envelope. The caller must then
// consume the body: an ApplicationException when Type is Exception,
// otherwise the struct the message name implies.
func ReadMessageHeader(p protocol.Protocol) (MessageHeader, error) {
	name, messageType, seqID, err := p.ReadMessageBegin()
	if err != nil {
		return MessageHeader{}, err
	}
	return MessageHeader{Name: name, Type: messageType, SeqID: seqID}, nil
}

// readBody decodes a message body into s and consumes the message end.
func readBody(p protocol.Protocol, s idl.Struct) error {
	if err := idl.ReadStruct(p, s); err != nil {
		return err
	}
	return p.ReadMessageEnd()
}

// skipBody discards a message body.
func skipBody(p protocol.Protocol) error {
	if err := protocol.Skip(p, wire.Struct); err != nil {
		return err
	}
	return p.ReadMessageEnd()
}
