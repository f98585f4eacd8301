// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for Keel packages.
//
// [SocketDir] creates a temporary directory in /tmp suitable for Unix
// domain sockets, and [SocketPath] returns a unique socket path inside
// one. Unix domain sockets have a 108-byte path limit (sun_path in
// sockaddr_un), which nested TMPDIR paths can exceed. Directories are
// removed when the test completes.
//
// [WriteFile] drops a fixture file into t.TempDir() for tests that load
// configuration from disk.
//
// [RequireReceive], [RequireSend], and [RequireClosed] encapsulate the
// timeout safety valve pattern (a select with a timer fallback) so
// that individual tests never block forever on a channel. Tests of
// the concurrent client and the server use them to bound every wait on
// a goroutine.
//
// [UniqueID] generates monotonically increasing identifiers for test
// disambiguation.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no Keel-internal dependencies.
package testutil
