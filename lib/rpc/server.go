// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"

	"github.com/keel-rpc/keel/lib/netutil"
	"github.com/keel-rpc/keel/lib/protocol"
	"github.com/keel-rpc/keel/transport"
)

// ServerConfig selects the stack each accepted connection is served
// with.
type ServerConfig struct {
	// Transport wraps every accepted socket, for example with
	// transport.FramedWrapper. Nil serves the raw socket.
	Transport transport.Wrapper

	// Protocol builds the protocol over the wrapped transport. Nil
	// means the binary protocol with default settings.
	Protocol protocol.Factory

	// MaxConnections, when positive, caps concurrently served
	// connections. Accepting pauses while the cap is reached.
	MaxConnections int
}

// Server serves a Processor on a ServerSocket. Each connection runs in
// its own goroutine and processes messages one after another until the
// peer disconnects or the stream breaks.
type Server struct {
	listener  *transport.ServerSocket
	processor *Processor
	config    ServerConfig
	logger    *slog.Logger

	mu          sync.Mutex
	connections map[*transport.Socket]struct{}

	// activeConnections tracks connection goroutines for graceful
	// shutdown. Serve waits for all of them before returning.
	activeConnections sync.WaitGroup
}

// NewServer returns a server for processor on listener. A nil logger
// means slog.Default().
func NewServer(listener *transport.ServerSocket, processor *Processor, config ServerConfig, logger *slog.Logger) *Server {
	if config.Protocol == nil {
		config.Protocol = protocol.BinaryFactory(protocol.BinaryConfig{})
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		listener:    listener,
		processor:   processor,
		config:      config,
		logger:      logger,
		connections: make(map[*transport.Socket]struct{}),
	}
}

// Serve accepts connections until ctx is cancelled, then stops
// accepting, lets in-flight calls finish, and returns once every
// connection has closed. The listener is bound first if it is not
// already listening, and closed on return.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener.Addr() == nil {
		if err := s.listener.Listen(); err != nil {
			return err
		}
	}
	defer s.listener.Close()

	// Unblock Accept and idle connections when the context is
	// cancelled.
	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			s.listener.Close()
			s.interruptReads()
		case <-stopped:
		}
	}()

	var slots chan struct{}
	if s.config.MaxConnections > 0 {
		slots = make(chan struct{}, s.config.MaxConnections)
	}

	s.logger.Info("server listening",
		"address", s.listener.Addr().String(),
		"methods", len(s.processor.Methods()),
		"fingerprint", s.processor.Fingerprint().Short(),
	)

	for {
		if slots != nil {
			select {
			case slots <- struct{}{}:
			case <-ctx.Done():
			}
		}
		if ctx.Err() != nil {
			break
		}

		socket, err := s.listener.Accept()
		if err != nil {
			if slots != nil {
				<-slots
			}
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) || errors.Is(err, transport.ErrNotOpen) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.track(socket, true)
		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			defer func() {
				if slots != nil {
					<-slots
				}
			}()
			defer s.track(socket, false)
			s.handleConnection(ctx, socket)
		}()
	}

	s.activeConnections.Wait()
	return nil
}

// Addr returns the listener's bound address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

func (s *Server) track(socket *transport.Socket, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if active {
		s.connections[socket] = struct{}{}
	} else {
		delete(s.connections, socket)
	}
}

// interruptReads stops reads on every connection, so a connection
// blocked waiting for its next call returns. Calls already being
// handled still write their replies.
func (s *Server) interruptReads() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for socket := range s.connections {
		socket.InterruptReads()
	}
}

func (s *Server) handleConnection(ctx context.Context, socket *transport.Socket) {
	var stack transport.Transport = socket
	if s.config.Transport != nil {
		stack = s.config.Transport(socket)
	}
	defer stack.Close()

	remote := "unknown"
	if conn := socket.Conn(); conn != nil && conn.RemoteAddr() != nil {
		remote = conn.RemoteAddr().String()
	}
	logger := s.logger.With("remote", remote)
	logger.Debug("connection accepted")

	p := s.config.Protocol(stack)
	for ctx.Err() == nil {
		if err := s.processor.Process(ctx, p, p); err != nil {
			if netutil.IsExpectedCloseError(err) || ctx.Err() != nil {
				logger.Debug("connection closed", "error", err)
			} else {
				logger.Warn("connection closed on error", "error", err)
			}
			return
		}
	}
}
