// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"
)

// Compile-time interface checks.
var (
	_ Transport = (*Socket)(nil)
	_ Transport = (*MemoryBuffer)(nil)
	_ Transport = (*Buffered)(nil)
	_ Transport = (*Framed)(nil)
	_ Transport = (*Compressed)(nil)
)

// SocketConfig holds the timeouts applied at the socket layer. This is
// the only layer of the stack where timeouts exist: a blocked read in
// any wrapper above a Socket blocks until the Socket returns.
type SocketConfig struct {
	// ConnectTimeout bounds how long Open waits for the connection to
	// be established. Zero means only the context deadline (if any)
	// applies.
	ConnectTimeout time.Duration

	// SocketTimeout, when positive, sets a deadline of now+SocketTimeout
	// before every Read and Write. An expired deadline surfaces as an
	// error of kind TimedOut.
	SocketTimeout time.Duration
}

// Socket is a Transport backed by a net.Conn. Writes go straight to the
// connection; Flush is a no-op because the Socket holds no buffer of its
// own.
type Socket struct {
	network string
	address string
	config  SocketConfig

	mu   sync.Mutex
	conn net.Conn

	// interrupted is set by InterruptReads. Reads check it and arm
	// their deadline while holding mu, so a per-read SocketTimeout
	// deadline never replaces the expired one.
	interrupted bool
}

// NewSocket returns an unopened client socket for the given network
// ("tcp" or "unix") and address. Call Open or OpenContext to connect.
func NewSocket(network, address string, config SocketConfig) *Socket {
	return &Socket{network: network, address: address, config: config}
}

// NewSocketConn wraps an established connection, such as one returned by
// a listener. The socket is already open.
func NewSocketConn(conn net.Conn, config SocketConfig) *Socket {
	socket := &Socket{config: config, conn: conn}
	if address := conn.RemoteAddr(); address != nil {
		socket.network = address.Network()
		socket.address = address.String()
	}
	return socket
}

// Open connects the socket using a background context.
func (s *Socket) Open() error {
	return s.OpenContext(context.Background())
}

// OpenContext connects the socket. The context bounds the dial only; it
// has no effect on later reads and writes.
func (s *Socket) OpenContext(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return ErrAlreadyOpen
	}
	if s.address == "" {
		return &Error{Kind: NotOpen, Err: errors.New("socket has no address")}
	}
	dialer := &net.Dialer{Timeout: s.config.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, s.network, s.address)
	if err != nil {
		return classify(fmt.Errorf("dialing %s %s: %w", s.network, s.address, err))
	}
	s.conn = conn
	return nil
}

// IsOpen reports whether the socket holds a connection.
func (s *Socket) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Conn returns the underlying connection, or nil when closed.
func (s *Socket) Conn() net.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// Address returns the remote address the socket dials or is connected to.
func (s *Socket) Address() string {
	return s.address
}

func (s *Socket) Read(buffer []byte) (int, error) {
	s.mu.Lock()
	conn := s.conn
	switch {
	case conn == nil:
		s.mu.Unlock()
		return 0, ErrNotOpen
	case s.interrupted:
		s.mu.Unlock()
		return 0, &Error{Kind: TimedOut, Err: os.ErrDeadlineExceeded}
	case s.config.SocketTimeout > 0:
		conn.SetReadDeadline(time.Now().Add(s.config.SocketTimeout))
	}
	s.mu.Unlock()

	n, err := conn.Read(buffer)
	return n, classify(err)
}

// InterruptReads makes the blocked Read, if any, and every later Read
// fail with an error of kind TimedOut. Writes are unaffected, so a
// reply already being written still goes out. It is how a server stops
// connections that are waiting for their next call.
func (s *Socket) InterruptReads() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interrupted = true
	if s.conn != nil {
		s.conn.SetReadDeadline(time.Now())
	}
}

func (s *Socket) Write(buffer []byte) (int, error) {
	conn := s.Conn()
	if conn == nil {
		return 0, ErrNotOpen
	}
	if s.config.SocketTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(s.config.SocketTimeout))
	}
	n, err := conn.Write(buffer)
	return n, classify(err)
}

// Flush is a no-op: every Write already reached the connection.
func (s *Socket) Flush() error {
	if !s.IsOpen() {
		return ErrNotOpen
	}
	return nil
}

// Close closes the connection. Closing a closed socket is a no-op.
func (s *Socket) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// SocketDialer opens client sockets.
type SocketDialer struct {
	Config SocketConfig
}

// DialContext opens a socket to the given network and address.
func (d *SocketDialer) DialContext(ctx context.Context, network, address string) (*Socket, error) {
	socket := NewSocket(network, address, d.Config)
	if err := socket.OpenContext(ctx); err != nil {
		return nil, err
	}
	return socket, nil
}

// ServerSocket accepts inbound connections on a tcp or unix address and
// yields one Socket per connection.
type ServerSocket struct {
	network string
	address string
	config  SocketConfig

	mu       sync.Mutex
	listener net.Listener
}

// NewServerSocket returns a server socket for the given network and
// address (e.g., "tcp", ":9090" or "unix", "/run/keel/calc.sock"). Use
// "127.0.0.1:0" for a random available port. Call Listen before Accept.
func NewServerSocket(network, address string, config SocketConfig) *ServerSocket {
	return &ServerSocket{network: network, address: address, config: config}
}

// Listen binds the address. For unix sockets any stale socket file at
// the path is removed first.
func (s *ServerSocket) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return ErrAlreadyOpen
	}
	if s.network == "unix" {
		if err := os.Remove(s.address); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing stale socket %s: %w", s.address, err)
		}
	}
	listener, err := net.Listen(s.network, s.address)
	if err != nil {
		return fmt.Errorf("listening on %s %s: %w", s.network, s.address, err)
	}
	s.listener = listener
	return nil
}

// Accept blocks until a connection arrives. After Close it returns an
// error wrapping net.ErrClosed.
func (s *ServerSocket) Accept() (*Socket, error) {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener == nil {
		return nil, ErrNotOpen
	}
	conn, err := listener.Accept()
	if err != nil {
		return nil, err
	}
	return NewSocketConn(conn, s.config), nil
}

// Addr returns the bound address, or nil before Listen. With port 0
// this reports the port the kernel chose.
func (s *ServerSocket) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close stops accepting connections, unblocking any pending Accept.
// For unix sockets the socket file is removed.
func (s *ServerSocket) Close() error {
	s.mu.Lock()
	listener := s.listener
	s.listener = nil
	s.mu.Unlock()
	if listener == nil {
		return nil
	}
	err := listener.Close()
	if s.network == "unix" {
		os.Remove(s.address)
	}
	return err
}
