// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the small command framework behind the keel binary: a
// tree of [Command] values dispatched by name, with pflag flag sets,
// generated help, and "did you mean" suggestions for mistyped commands
// and flags.
package cli
