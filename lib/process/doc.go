// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides entrypoint helpers for Keel binaries: the
// raw stderr reporting and exit paths main() needs before a structured
// logger exists or after run() has failed.
package process
