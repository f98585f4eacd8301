// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire defines the on-wire type codes and message types shared
// by every Keel encoder and decoder.
//
// A [Type] is the single byte that precedes every field on the wire and
// that names the element, key, and value shapes in container headers.
// A [MessageType] distinguishes calls, replies, exceptions, and oneway
// calls in the message envelope.
//
// These values are protocol constants. Changing any of them breaks
// compatibility with every peer that speaks the binary protocol.
package wire
