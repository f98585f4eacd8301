// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads configuration for Keel servers and clients.
//
// Configuration is loaded from a single file specified by either the
// KEEL_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There is no discovery and no search path. Files
// may be YAML or JSON with comments (.json, .jsonc); both spell fields
// the same way, and unknown fields are rejected.
//
// [Default] supplies every value; the file only needs to name what it
// changes. Server and client addresses may reference environment
// variables as ${VAR} or ${VAR:-default}, which is how unix socket
// paths under $XDG_RUNTIME_DIR are usually written.
//
// [TransportConfig.Wrap] and [ProtocolConfig.Factory] turn the loaded
// values into the transport stack and protocol factory that
// rpc.Server and the clients are built from.
package config
