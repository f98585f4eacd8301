// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport provides the byte-stream layer beneath Keel's wire
// protocol.
//
// Every implementation satisfies [Transport]: an io.ReadWriteCloser with
// Open, IsOpen, and Flush. Bytes written to a transport are not
// guaranteed to leave the process until Flush returns. Transports stack:
// each wrapper owns the transport it wraps and delegates Open, IsOpen,
// and Close to it.
//
// The endpoints are [Socket], a net.Conn-backed transport used by both
// clients and servers, and [MemoryBuffer], an in-process buffer for
// tests and for decoding captured bytes. [ServerSocket] listens on tcp
// or unix addresses and yields a Socket per accepted connection.
// [SocketDialer] opens client connections.
//
// [Framed] is the length-prefixed framing layer. Each Flush emits
// exactly one frame: a 4-byte big-endian payload length followed by
// every byte written since the previous Flush. Reads are served from
// the current frame's buffer when it holds enough bytes (the fast path)
// and otherwise pull further frames from the wrapped transport until
// the request is satisfied (the slow path). A read returns fewer bytes
// than requested only when the wrapped transport reports an error or
// end of stream.
//
// [Buffered] adds unframed read and write buffering. [Compressed] is an
// optional block transform (LZ4 or zstd) placed beneath framing; it is
// not part of the core wire contract and both peers must agree to use
// it.
//
// End of stream is reported as a plain io.EOF so transports compose with
// the io package. All other failures are [*Error] values whose [ErrorKind]
// callers inspect with errors.Is against the exported sentinels: a
// stream that closes inside a frame header is [ErrShortFrameHeader], one
// that closes inside a frame payload is [ErrShortFramePayload].
//
// A transport instance and its buffers belong to one goroutine at a time.
// Callers that share a transport across goroutines must serialize access
// themselves.
package transport
