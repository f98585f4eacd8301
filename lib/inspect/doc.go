// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

// Package inspect decodes captured message streams without a schema.
//
// The binary protocol carries a wire type with every field and
// container, so any well-formed stream can be walked and printed even
// when the IDL that produced it is unavailable. Field names cannot be
// recovered; fields are reported by id and wire type. Decoding follows
// the same nesting limit as protocol.Skip.
//
// [Render] prints decoded messages as JSON, YAML, hex CBOR, CBOR
// diagnostic notation, or a lipgloss tree. keel dump is the command
// line front end.
package inspect
