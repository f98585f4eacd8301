// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build version information for Keel binaries.
//
// Release builds inject the values with -ldflags, for example:
//
//	go build -ldflags "-X github.com/keel-rpc/keel/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// Builds without ldflags fall back to the VCS stamp the Go toolchain
// records in the binary.
package version
