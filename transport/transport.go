// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
)

// Transport is a fallible, flushable byte stream. Read and Write follow
// io.Reader and io.Writer semantics; Flush pushes buffered writes to the
// next layer down and, at the bottom of the stack, onto the network.
// Every transport in this package keeps separate read and write state,
// so one reader and one writer may use it at the same time.
type Transport interface {
	io.ReadWriteCloser

	// Open prepares the transport for use. Wrappers delegate to the
	// wrapped transport. Opening an already open transport returns an
	// error of kind AlreadyOpen.
	Open() error

	// IsOpen reports whether the transport can currently carry bytes.
	IsOpen() bool

	// Flush sends every byte written since the previous Flush.
	Flush() error
}

// Wrapper builds one layer of a transport stack on top of an existing
// transport. Servers apply a Wrapper to every accepted connection.
type Wrapper func(Transport) Transport

// Chain composes wrappers so that the first wrapper is applied first
// (and therefore sits lowest in the stack).
func Chain(wrappers ...Wrapper) Wrapper {
	return func(t Transport) Transport {
		for _, wrap := range wrappers {
			if wrap != nil {
				t = wrap(t)
			}
		}
		return t
	}
}

// ErrorKind classifies transport failures.
type ErrorKind int

const (
	// Unknown is any failure reported by the underlying stream that
	// does not fall into a more specific kind.
	Unknown ErrorKind = iota

	// NotOpen is returned by operations on a transport that has not
	// been opened or has been closed.
	NotOpen

	// AlreadyOpen is returned by Open on an open transport.
	AlreadyOpen

	// TimedOut is returned when a socket deadline expires.
	TimedOut

	// ShortFrameHeader is returned when the stream ends after some
	// but not all of a frame's 4 length bytes.
	ShortFrameHeader

	// ShortFramePayload is returned when the stream ends before a
	// frame's declared payload length has been read.
	ShortFramePayload

	// FrameTooLarge is returned when a frame's length exceeds the
	// configured maximum, on either the read or the write path.
	FrameTooLarge
)

// String returns a short name for the kind.
func (kind ErrorKind) String() string {
	switch kind {
	case NotOpen:
		return "not open"
	case AlreadyOpen:
		return "already open"
	case TimedOut:
		return "timed out"
	case ShortFrameHeader:
		return "short frame header"
	case ShortFramePayload:
		return "short frame payload"
	case FrameTooLarge:
		return "frame too large"
	default:
		return "unknown"
	}
}

// Error is a classified transport failure. Err, when set, is the
// underlying cause and is reachable through errors.Unwrap.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "transport: " + e.Kind.String()
	}
	return fmt.Sprintf("transport: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind when the target carries no
// cause of its own. This lets callers test errors.Is(err,
// transport.ErrShortFrameHeader) regardless of the wrapped cause.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return other.Err == nil && other.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrNotOpen           = &Error{Kind: NotOpen}
	ErrAlreadyOpen       = &Error{Kind: AlreadyOpen}
	ErrTimedOut          = &Error{Kind: TimedOut}
	ErrShortFrameHeader  = &Error{Kind: ShortFrameHeader}
	ErrShortFramePayload = &Error{Kind: ShortFramePayload}
	ErrFrameTooLarge     = &Error{Kind: FrameTooLarge}
)

// classify converts a raw stream error into the package's error
// vocabulary. io.EOF passes through untouched; already-classified
// errors are returned as is.
func classify(err error) error {
	if err == nil || errors.Is(err, io.EOF) {
		return err
	}
	var transportError *Error
	if errors.As(err, &transportError) {
		return err
	}
	if errors.Is(err, net.ErrClosed) {
		return &Error{Kind: NotOpen, Err: err}
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return &Error{Kind: TimedOut, Err: err}
	}
	var netError net.Error
	if errors.As(err, &netError) && netError.Timeout() {
		return &Error{Kind: TimedOut, Err: err}
	}
	return &Error{Kind: Unknown, Err: err}
}

// readFull reads exactly len(buffer) bytes. Unlike io.ReadFull it
// recognizes io.EOF through wrapping, and it reports how many bytes
// were read alongside the error so callers can distinguish a clean end
// of stream (zero bytes) from a truncated read.
func readFull(reader io.Reader, buffer []byte) (int, error) {
	total := 0
	empty := 0
	for total < len(buffer) {
		n, err := reader.Read(buffer[total:])
		total += n
		if err != nil {
			if total == len(buffer) && errors.Is(err, io.EOF) {
				return total, nil
			}
			return total, err
		}
		if n > 0 {
			empty = 0
			continue
		}
		empty++
		if empty >= maxConsecutiveEmptyReads {
			return total, io.ErrNoProgress
		}
	}
	return total, nil
}

// maxConsecutiveEmptyReads bounds how many (0, nil) reads readFull
// tolerates before giving up, matching bufio.
const maxConsecutiveEmptyReads = 100

// writeOnce writes buffer with a single Write call to the wrapped
// transport. A short write without an error is reported as
// io.ErrShortWrite.
func writeOnce(writer io.Writer, buffer []byte) error {
	n, err := writer.Write(buffer)
	if err != nil {
		return err
	}
	if n != len(buffer) {
		return io.ErrShortWrite
	}
	return nil
}
