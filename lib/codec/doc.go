// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Keel's standard CBOR encoding configuration.
//
// CBOR never travels in an RPC message; the wire format is the binary
// protocol. It is used where Keel needs a canonical byte form of a Go
// value:
//
//   - Descriptor fingerprints. Struct descriptors and processor method
//     tables are reduced to plain Go values, encoded here, and hashed.
//     Core Deterministic Encoding (RFC 8949 §4.2: sorted map keys,
//     smallest integer encoding, no indefinite-length items) means the
//     same schema always produces the same fingerprint.
//   - keel dump output in cbor and diagnostic-notation form.
//
// Nothing in Keel reads CBOR back, so the package only encodes.
// [Diagnose] renders encoded bytes in RFC 8949 diagnostic notation for
// people to read.
//
// Types that are only ever CBOR-encoded use `cbor` struct tags. Types
// that are also rendered as JSON or YAML by keel dump use `json` tags,
// which fxamacker/cbor reads as a fallback.
package codec
