// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

// Package protocol turns typed values into bytes on a transport and
// back.
//
// [Protocol] is the boundary the struct codec and the message envelope
// are written against: paired Begin/End calls for messages, structs,
// fields, and containers, plus one read and one write method per base
// type. [Binary] is the only implementation, and the one every Keel
// peer speaks. All integers are big-endian, strings and binary blobs
// carry an i32 length prefix, and End calls emit nothing. The Begin/End
// structure exists so that protocols with explicit delimiters could
// implement the same interface.
//
// Message headers come in two forms. The non-strict form (the default
// on write) is the method name, an i8 message type, and an i32
// sequence id. The strict form leads with an i32 carrying a version
// marker in its high half and the message type in its low byte. Readers
// accept both forms unless [BinaryConfig.StrictRead] is set.
//
// [Skip] discards one value of a given wire type without interpreting
// it. The struct codec uses it for unknown field ids and for known ids
// whose wire type does not match the declaration, which is what keeps
// old readers working against newer writers.
//
// Decode failures are reported as [*Error] values whose [ErrorKind]
// separates malformed input (bad sizes, unknown versions, runaway
// nesting) from transport failures, which pass through unchanged. A
// stream that ends cleanly before a message header yields io.EOF; a
// stream that ends anywhere inside a value yields an [InvalidData]
// error wrapping io.ErrUnexpectedEOF.
package protocol
