// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

// Package rpc carries calls between Keel clients and services.
//
// Every message is a [MessageHeader] (method name, message type,
// sequence id) followed by a struct body. Calls carry the method's
// argument struct. Replies carry its result struct, which holds either
// the success value (field 0) or one declared exception. Faults outside
// the schema, such as unknown methods or handler errors the method does
// not declare, come back as EXCEPTION messages whose body is an
// [ApplicationException].
//
// A [Method] names the argument and result layouts; clients and
// servers share the same Method values. On the server, a [Processor]
// maps method names to [HandlerFunc]s and [Server] runs a processor on
// every accepted connection. On the client, [Client] sends one call at
// a time, while [ConcurrentClient] multiplexes concurrent calls over one
// connection and routes each reply to its caller by sequence id.
//
// Errors fall into two groups. ApplicationExceptions, declared
// exceptions, and validation failures leave the connection in step and
// usable. Transport and protocol errors do not;
// [IsConnectionError] tells them apart.
package rpc
