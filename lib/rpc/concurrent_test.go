// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/keel-rpc/keel/lib/idl"
	"github.com/keel-rpc/keel/lib/protocol"
	"github.com/keel-rpc/keel/lib/testutil"
	"github.com/keel-rpc/keel/lib/wire"
	"github.com/keel-rpc/keel/transport"
)

// framedPipe returns framed binary protocols over the two ends of an
// in-memory connection.
func framedPipe(t *testing.T) (client, server *protocol.Binary) {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	t.Cleanup(func() {
		clientConn.Close()
		serverConn.Close()
	})
	wrap := func(conn net.Conn) *protocol.Binary {
		return protocol.NewBinary(transport.NewFramed(transport.NewSocketConn(conn, transport.SocketConfig{})), protocol.BinaryConfig{})
	}
	return wrap(clientConn), wrap(serverConn)
}

type receivedCall struct {
	header MessageHeader
	text   string
}

// receiveCalls reads n echo calls from p.
func receiveCalls(p protocol.Protocol, n int) ([]receivedCall, error) {
	calls := make([]receivedCall, 0, n)
	for range n {
		header, err := ReadMessageHeader(p)
		if err != nil {
			return nil, err
		}
		args := echoArgs.New()
		if err := readBody(p, args); err != nil {
			return nil, err
		}
		calls = append(calls, receivedCall{header: header, text: args.(*idl.Record).Get("text").String()})
	}
	return calls, nil
}

func replyTo(p protocol.Protocol, call receivedCall) error {
	return writeReply(p, MessageHeader{Name: call.header.Name, Type: wire.Reply, SeqID: call.header.SeqID}, echoResult(call.text))
}

// waitFor polls condition until it holds or the test times out.
func waitFor(t *testing.T, condition func() bool, message string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !condition() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", message)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestConcurrentClientOutOfOrderReplies(t *testing.T) {
	clientProtocol, serverProtocol := framedPipe(t)
	client := NewConcurrentClient(clientProtocol, clientProtocol, testLogger())

	const callers = 8

	// The server answers only after every call has arrived, and then
	// in reverse order, so most replies reach a caller that did not
	// read them.
	serverErr := make(chan error, 1)
	go func() {
		calls, err := receiveCalls(serverProtocol, callers)
		if err != nil {
			serverErr <- err
			return
		}
		for _, call := range slices.Backward(calls) {
			if err := replyTo(serverProtocol, call); err != nil {
				serverErr <- err
				return
			}
		}
		serverErr <- nil
	}()

	var wait sync.WaitGroup
	results := make([]string, callers)
	errs := make([]error, callers)
	for i := range callers {
		wait.Add(1)
		go func() {
			defer wait.Done()
			value, err := client.Call(context.Background(), echoMethod, echoRequest(fmt.Sprintf("caller-%d", i)))
			if err == nil {
				results[i] = value.String()
			}
			errs[i] = err
		}()
	}
	wait.Wait()

	if err := testutil.RequireReceive(t, serverErr, 5*time.Second, "server finishing"); err != nil {
		t.Fatalf("server: %v", err)
	}
	for i := range callers {
		if errs[i] != nil {
			t.Errorf("caller %d: %v", i, errs[i])
			continue
		}
		if want := fmt.Sprintf("caller-%d", i); results[i] != want {
			t.Errorf("caller %d received %q, want %q", i, results[i], want)
		}
	}
	if err := client.Err(); err != nil {
		t.Errorf("client failed: %v", err)
	}
}

// Callers write their calls while another caller is decoding a reply
// from the same Protocol, so its read and write halves are in use at
// once. Run with -race to check that they share no state.
func TestConcurrentClientOverlappingCallsOnOneProtocol(t *testing.T) {
	clientProtocol, serverProtocol := framedPipe(t)
	client := NewConcurrentClient(clientProtocol, clientProtocol, testLogger())

	processor := NewProcessor(nil, testLogger())
	processor.Register(echoMethod, echo)
	served := make(chan error, 1)
	go func() {
		for {
			if err := processor.Process(context.Background(), serverProtocol, serverProtocol); err != nil {
				served <- err
				return
			}
		}
	}()

	const (
		callers = 16
		calls   = 100
	)
	var wait sync.WaitGroup
	failures := make(chan error, callers)
	for i := range callers {
		wait.Add(1)
		go func() {
			defer wait.Done()
			for j := range calls {
				text := fmt.Sprintf("caller-%d-call-%d", i, j)
				value, err := client.Call(context.Background(), echoMethod, echoRequest(text))
				if err != nil {
					failures <- fmt.Errorf("%s: %w", text, err)
					return
				}
				if value.String() != text {
					failures <- fmt.Errorf("%s: received %q", text, value.String())
					return
				}
			}
		}()
	}
	wait.Wait()
	close(failures)
	for err := range failures {
		t.Error(err)
	}

	client.Close()
	if err := testutil.RequireReceive(t, served, 5*time.Second, "processor loop ending"); err == nil {
		t.Error("processor loop ended without an error")
	}
}

func TestConcurrentClientAbandonedCall(t *testing.T) {
	clientProtocol, serverProtocol := framedPipe(t)
	client := NewConcurrentClient(clientProtocol, clientProtocol, testLogger())

	received := make(chan []receivedCall, 1)
	go func() {
		calls, err := receiveCalls(serverProtocol, 2)
		if err == nil {
			received <- calls
		}
	}()

	// The first caller becomes the reader, blocked on the transport.
	type outcome struct {
		value idl.Value
		err   error
	}
	reader := make(chan outcome, 1)
	go func() {
		value, err := client.Call(context.Background(), echoMethod, echoRequest("kept"))
		reader <- outcome{value, err}
	}()
	waitFor(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return client.reading
	}, "the first call to take the read half")

	// The second caller waits behind it and gives up.
	ctx, cancel := context.WithCancel(context.Background())
	abandoned := make(chan error, 1)
	go func() {
		_, err := client.Call(ctx, echoMethod, echoRequest("abandoned"))
		abandoned <- err
	}()
	calls := testutil.RequireReceive(t, received, 5*time.Second, "both calls reaching the server")
	cancel()
	if err := testutil.RequireReceive(t, abandoned, 5*time.Second, "abandoned call returning"); !errors.Is(err, context.Canceled) {
		t.Fatalf("abandoned call = %v, want context.Canceled", err)
	}

	// The abandoned reply arrives first and must be skipped whole.
	slices.SortFunc(calls, func(a, b receivedCall) int {
		if a.text == "abandoned" {
			return -1
		}
		if b.text == "abandoned" {
			return 1
		}
		return 0
	})
	for _, call := range calls {
		if err := replyTo(serverProtocol, call); err != nil {
			t.Fatalf("replying: %v", err)
		}
	}

	result := testutil.RequireReceive(t, reader, 5*time.Second, "surviving call returning")
	if result.err != nil || result.value.String() != "kept" {
		t.Errorf("surviving call = %v, %v; want \"kept\"", result.value, result.err)
	}
	if err := client.Err(); err != nil {
		t.Errorf("client failed: %v", err)
	}
	client.mu.Lock()
	pending := len(client.pending)
	client.mu.Unlock()
	if pending != 0 {
		t.Errorf("%d calls still pending", pending)
	}
}

func TestConcurrentClientUnknownSequenceIDIsFatal(t *testing.T) {
	clientProtocol, serverProtocol := framedPipe(t)
	client := NewConcurrentClient(clientProtocol, clientProtocol, testLogger())

	go func() {
		calls, err := receiveCalls(serverProtocol, 1)
		if err != nil {
			return
		}
		calls[0].header.SeqID += 100
		replyTo(serverProtocol, calls[0])
	}()

	_, err := client.Call(context.Background(), echoMethod, echoRequest("x"))
	if !IsConnectionError(err) {
		t.Fatalf("Call = %v, want a connection error", err)
	}
	if !errors.Is(err, &ApplicationException{Kind: BadSequenceID}) {
		t.Errorf("Call = %v, want it to carry BAD_SEQUENCE_ID", err)
	}
	if _, again := client.Call(context.Background(), echoMethod, echoRequest("y")); again != err {
		t.Errorf("call after failure = %v, want the original error %v", again, err)
	}
}

func TestConcurrentClientOnewayAndSequenceIDs(t *testing.T) {
	clientProtocol, serverProtocol := framedPipe(t)
	client := NewConcurrentClient(clientProtocol, clientProtocol, testLogger())

	headers := make(chan MessageHeader, 2)
	go func() {
		for range 2 {
			header, err := ReadMessageHeader(serverProtocol)
			if err != nil {
				return
			}
			readBody(serverProtocol, echoArgs.New())
			headers <- header
			if header.Type == wire.Call {
				replyTo(serverProtocol, receivedCall{header: header, text: "ok"})
			}
		}
	}()

	if _, err := client.Call(context.Background(), touchMethod, echoRequest("poke")); err != nil {
		t.Fatalf("oneway Call: %v", err)
	}
	if _, err := client.Call(context.Background(), echoMethod, echoRequest("ok")); err != nil {
		t.Fatalf("Call: %v", err)
	}
	first := testutil.RequireReceive(t, headers, 5*time.Second, "oneway call")
	second := testutil.RequireReceive(t, headers, 5*time.Second, "echo call")
	if first.Type != wire.Oneway || second.Type != wire.Call {
		t.Errorf("message types = %s, %s; want ONEWAY, CALL", first.Type, second.Type)
	}
	if second.SeqID <= first.SeqID {
		t.Errorf("sequence ids %d then %d are not increasing", first.SeqID, second.SeqID)
	}
}

func TestConcurrentClientClose(t *testing.T) {
	clientProtocol, _ := framedPipe(t)
	client := NewConcurrentClient(clientProtocol, clientProtocol, testLogger())

	waiting := make(chan error, 1)
	go func() {
		_, err := client.Call(context.Background(), echoMethod, echoRequest("x"))
		waiting <- err
	}()
	// The call blocks in its write until Close tears down the pipe.
	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := testutil.RequireReceive(t, waiting, 5*time.Second, "pending call returning"); err == nil {
		t.Error("pending call succeeded after Close")
	}
	if _, err := client.Call(context.Background(), echoMethod, echoRequest("y")); !errors.Is(err, ErrClientClosed) {
		t.Errorf("Call after Close = %v, want ErrClientClosed", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
