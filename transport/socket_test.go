// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"testing"
	"time"

	"github.com/keel-rpc/keel/lib/testutil"
)

// acceptOne accepts a single connection on server in the background and
// delivers it on the returned channel.
func acceptOne(t *testing.T, server *ServerSocket) <-chan *Socket {
	t.Helper()
	accepted := make(chan *Socket, 1)
	go func() {
		socket, err := server.Accept()
		if err != nil {
			t.Errorf("Accept: %v", err)
			close(accepted)
			return
		}
		accepted <- socket
	}()
	return accepted
}

func TestSocketRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		network string
		address func(t *testing.T) string
	}{
		{"tcp", "tcp", func(*testing.T) string { return "127.0.0.1:0" }},
		{"unix", "unix", func(t *testing.T) string { return testutil.SocketPath(t, "socket") }},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			server := NewServerSocket(test.network, test.address(t), SocketConfig{})
			if err := server.Listen(); err != nil {
				t.Fatalf("Listen: %v", err)
			}
			defer server.Close()
			accepted := acceptOne(t, server)

			client := NewSocket(test.network, server.Addr().String(), SocketConfig{ConnectTimeout: 5 * time.Second})
			if client.IsOpen() {
				t.Fatal("IsOpen() = true before Open")
			}
			if err := client.Open(); err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer client.Close()
			if err := client.Open(); !errors.Is(err, ErrAlreadyOpen) {
				t.Errorf("second Open = %v, want ErrAlreadyOpen", err)
			}

			peer := testutil.RequireReceive(t, accepted, 5*time.Second, "accepting connection")
			defer peer.Close()

			// Frame the server side so the test also covers a full stack
			// over a real connection.
			serverStack := NewFramed(peer)
			clientStack := NewFramed(NewBuffered(client, 0))

			clientStack.Write([]byte("ping"))
			if err := clientStack.Flush(); err != nil {
				t.Fatalf("client Flush: %v", err)
			}
			request := make([]byte, 4)
			if _, err := serverStack.Read(request); err != nil {
				t.Fatalf("server Read: %v", err)
			}
			if string(request) != "ping" {
				t.Errorf("server got %q, want \"ping\"", request)
			}

			serverStack.Write([]byte("pong!"))
			if err := serverStack.Flush(); err != nil {
				t.Fatalf("server Flush: %v", err)
			}
			reply := make([]byte, 5)
			if _, err := clientStack.Read(reply); err != nil {
				t.Fatalf("client Read: %v", err)
			}
			if string(reply) != "pong!" {
				t.Errorf("client got %q, want \"pong!\"", reply)
			}
		})
	}
}

func TestSocketReadTimeout(t *testing.T) {
	server := NewServerSocket("tcp", "127.0.0.1:0", SocketConfig{})
	if err := server.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer server.Close()
	accepted := acceptOne(t, server)

	client, err := (&SocketDialer{Config: SocketConfig{SocketTimeout: 50 * time.Millisecond}}).
		DialContext(context.Background(), "tcp", server.Addr().String())
	if err != nil {
		t.Fatalf("DialContext: %v", err)
	}
	defer client.Close()
	peer := testutil.RequireReceive(t, accepted, 5*time.Second, "accepting connection")
	defer peer.Close()

	_, err = client.Read(make([]byte, 1))
	if !errors.Is(err, ErrTimedOut) {
		t.Fatalf("Read error = %v, want ErrTimedOut", err)
	}
	if !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Errorf("timeout should wrap os.ErrDeadlineExceeded: %v", err)
	}
}

func TestSocketInterruptReads(t *testing.T) {
	near, far := net.Pipe()
	defer far.Close()
	// A socket timeout far longer than the test: only the interrupt
	// can end these reads.
	socket := NewSocketConn(near, SocketConfig{SocketTimeout: time.Hour})
	defer socket.Close()

	blocked := make(chan error, 1)
	go func() {
		_, err := socket.Read(make([]byte, 1))
		blocked <- err
	}()
	// Give the read time to block, then interrupt it.
	time.Sleep(10 * time.Millisecond)
	socket.InterruptReads()
	if err := testutil.RequireReceive(t, blocked, 5*time.Second, "blocked read returning"); !errors.Is(err, ErrTimedOut) {
		t.Fatalf("blocked Read error = %v, want ErrTimedOut", err)
	}

	// A read that starts after the interrupt must not arm a fresh
	// SocketTimeout deadline.
	later := make(chan error, 1)
	go func() {
		_, err := socket.Read(make([]byte, 1))
		later <- err
	}()
	if err := testutil.RequireReceive(t, later, 5*time.Second, "read after interrupt"); !errors.Is(err, ErrTimedOut) {
		t.Fatalf("later Read error = %v, want ErrTimedOut", err)
	}

	// Writes still reach the peer.
	go socket.Write([]byte{7})
	received := make([]byte, 1)
	far.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := io.ReadFull(far, received); err != nil || received[0] != 7 {
		t.Fatalf("peer read %v, %v; want the written byte", received, err)
	}
}

func TestSocketPeerCloseIsEOF(t *testing.T) {
	clientEnd, serverEnd := net.Pipe()
	client := NewSocketConn(clientEnd, SocketConfig{})
	defer client.Close()

	serverEnd.Close()
	if _, err := client.Read(make([]byte, 1)); !errors.Is(err, io.EOF) {
		t.Errorf("Read after peer close = %v, want io.EOF", err)
	}
}

func TestSocketClosed(t *testing.T) {
	clientEnd, serverEnd := net.Pipe()
	defer serverEnd.Close()

	client := NewSocketConn(clientEnd, SocketConfig{})
	if !client.IsOpen() {
		t.Fatal("socket from an established connection should be open")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}

	if _, err := client.Read(make([]byte, 1)); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Read after Close = %v, want ErrNotOpen", err)
	}
	if _, err := client.Write([]byte{1}); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Write after Close = %v, want ErrNotOpen", err)
	}
	if err := client.Flush(); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Flush after Close = %v, want ErrNotOpen", err)
	}
}

func TestSocketDialFailure(t *testing.T) {
	path := testutil.SocketPath(t, "missing")
	socket := NewSocket("unix", path, SocketConfig{})
	err := socket.Open()
	if err == nil {
		t.Fatal("Open of a missing socket succeeded")
	}
	var transportError *Error
	if !errors.As(err, &transportError) {
		t.Errorf("Open error %v is not a *transport.Error", err)
	}
	if socket.IsOpen() {
		t.Error("socket reports open after a failed dial")
	}
}

func TestServerSocketCloseUnblocksAccept(t *testing.T) {
	path := testutil.SocketPath(t, "accept")
	server := NewServerSocket("unix", path, SocketConfig{})
	if err := server.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := server.Accept()
		done <- err
	}()

	if err := server.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	err := testutil.RequireReceive(t, done, 5*time.Second, "waiting for Accept to return")
	// Accept may run before or after Close detaches the listener.
	if !errors.Is(err, net.ErrClosed) && !errors.Is(err, ErrNotOpen) {
		t.Errorf("Accept after Close = %v, want net.ErrClosed or ErrNotOpen", err)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Errorf("socket file still present after Close: %v", statErr)
	}
}

func TestServerSocketRemovesStaleFile(t *testing.T) {
	path := testutil.SocketPath(t, "stale")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatalf("creating stale file: %v", err)
	}
	server := NewServerSocket("unix", path, SocketConfig{})
	if err := server.Listen(); err != nil {
		t.Fatalf("Listen over stale file: %v", err)
	}
	server.Close()
}
