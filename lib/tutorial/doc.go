// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

// Package tutorial holds typed bindings for the tutorial schema: a
// SharedService with one method, and a Calculator service extending it.
//
// The bindings are what a code generator would emit. Each struct type
// has a descriptor registered with a factory, so the decoder builds the
// typed value directly. Each service has an interface, a client written
// against [rpc.Caller] (so it works over both rpc.Client and
// rpc.ConcurrentClient), and a processor constructor. Calculator's
// processor has the SharedService processor as its parent.
//
// [CalculatorHandler] is the reference implementation served by
// keel-calculator.
package tutorial
