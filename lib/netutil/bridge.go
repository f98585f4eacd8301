// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"io"
	"net"
)

// BridgeStats counts the bytes a bridge copied in each direction.
type BridgeStats struct {
	// AToB is the number of bytes read from a's side and written to b.
	AToB int64
	// BToA is the number of bytes read from b's side and written to a.
	BToA int64
}

type bridgeResult struct {
	fromA  bool
	copied int64
	err    error
}

// Bridge copies bytes both ways between two connections until either
// direction ends. fromA and fromB are the readers for each side; they
// differ from the connections themselves when the caller wants to
// observe the traffic, for example through an io.TeeReader.
//
// Both connections are closed before Bridge returns, which also
// unblocks the surviving direction. The error is that of the direction
// that ended first, or nil when it ended with a normal close.
func Bridge(a net.Conn, fromA io.Reader, b net.Conn, fromB io.Reader) (BridgeStats, error) {
	done := make(chan bridgeResult, 2)
	go func() {
		copied, err := io.Copy(b, fromA)
		done <- bridgeResult{fromA: true, copied: copied, err: err}
	}()
	go func() {
		copied, err := io.Copy(a, fromB)
		done <- bridgeResult{fromA: false, copied: copied, err: err}
	}()

	first := <-done
	a.Close()
	b.Close()
	second := <-done

	var stats BridgeStats
	for _, result := range []bridgeResult{first, second} {
		if result.fromA {
			stats.AToB = result.copied
		} else {
			stats.BToA = result.copied
		}
	}
	if first.err != nil && !IsExpectedCloseError(first.err) {
		return stats, first.err
	}
	return stats, nil
}
