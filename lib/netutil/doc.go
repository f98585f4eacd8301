// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil holds connection helpers shared by servers and tools:
// classifying the errors a normal hang-up produces, and bridging two
// connections for proxies such as keel tap.
package netutil
