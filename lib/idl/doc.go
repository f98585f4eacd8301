// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

// Package idl holds the type model of Keel schemas and the codec that
// encodes values of those types.
//
// A [StructDescriptor] is the immutable field table of one struct type:
// field ids, names, declared [TypeDescriptor]s, and requiredness. It is
// built once, at package initialization, by hand-written or generated
// bindings. Everything that encodes or decodes a struct walks this table
// with one generic loop, so there is no per-type codec to keep in sync
// with the schema.
//
// Values travel as [Value], a tagged union over every wire type.
// Struct instances are anything implementing [Struct]: typed bindings
// over plain Go fields (with an [IssetState] to tell unset optional
// fields from zero values), or a [Record] when no bindings exist.
//
// The codec:
//
//   - [WriteStruct] validates first and writes nothing if validation
//     fails. Set fields go on the wire in ascending id order, then the
//     stop marker.
//   - [ReadStruct] is driven entirely by the input. Unknown field ids,
//     and known ids carrying an unexpected wire type, are skipped with
//     protocol.Skip. A required field that never appears fails the read
//     with a [*ValidationError] naming it.
//   - [WriteResult] writes at most one field, the first set one: a
//     method result holds either the success value or one declared
//     exception.
//   - [Validate] is the check both directions share. Required enum
//     fields must hold a declared ordinal; optional enum fields may
//     carry ordinals this build does not know, so newer peers can add
//     enum values without breaking older ones.
//
// [StructDescriptor.Fingerprint] hashes a descriptor's canonical form
// with keyed BLAKE3, giving peers a cheap way to confirm they were built
// from the same schema.
package idl
