// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// DefaultMaxFrameSize is the largest frame payload a Framed transport
// accepts or emits unless configured otherwise.
const DefaultMaxFrameSize = 16384000

// frameHeaderSize is the width of the big-endian length prefix.
const frameHeaderSize = 4

// Framed is the length-prefixed framing layer. It owns one read buffer
// and one write buffer, both initially empty. The two halves share no
// state, so one goroutine may read while another writes and flushes;
// neither half is safe for concurrent use on its own.
//
// Write appends to the write buffer and never sends anything on its
// own. Flush emits the whole buffer as one frame in a single Write to
// the wrapped transport, flushes the wrapped transport, and empties the
// buffer. Read serves bytes from the current frame and pulls further
// frames as needed until the request is satisfied.
type Framed struct {
	transport    Transport
	maxFrameSize int

	// readBuffer[readOffset:] holds the unread remainder of the most
	// recent frame.
	readBuffer []byte
	readOffset int

	// writeBuffer[:frameHeaderSize] is reserved for the length prefix
	// so Flush can send header and payload in one Write without
	// copying. The payload is writeBuffer[frameHeaderSize:].
	writeBuffer []byte
}

// FramedOption configures a Framed transport.
type FramedOption func(*Framed)

// WithMaxFrameSize sets the maximum frame payload length. Frames larger
// than this fail with ErrFrameTooLarge when read or flushed.
func WithMaxFrameSize(size int) FramedOption {
	return func(f *Framed) {
		if size > 0 {
			f.maxFrameSize = size
		}
	}
}

// WithWriteBufferSize sets the initial capacity of the write buffer.
// The size is a capacity hint only: the buffer grows as needed and
// reaching the size does not trigger a flush.
func WithWriteBufferSize(size int) FramedOption {
	return func(f *Framed) {
		if size > 0 {
			f.writeBuffer = make([]byte, frameHeaderSize, frameHeaderSize+size)
		}
	}
}

// NewFramed wraps t with length-prefixed framing.
func NewFramed(t Transport, options ...FramedOption) *Framed {
	framed := &Framed{
		transport:    t,
		maxFrameSize: DefaultMaxFrameSize,
		writeBuffer:  make([]byte, frameHeaderSize, frameHeaderSize+DefaultBufferSize),
	}
	for _, option := range options {
		option(framed)
	}
	return framed
}

// FramedWrapper returns a Wrapper that applies NewFramed with options.
func FramedWrapper(options ...FramedOption) Wrapper {
	return func(t Transport) Transport { return NewFramed(t, options...) }
}

func (f *Framed) Open() error  { return f.transport.Open() }
func (f *Framed) IsOpen() bool { return f.transport.IsOpen() }

// Close closes the wrapped transport. Buffered bytes are dropped. It
// leaves the wrapper's own state alone, so it may be called to unblock
// another goroutine's Read or Write.
func (f *Framed) Close() error {
	return f.transport.Close()
}

// Buffered returns the number of bytes of the current frame that have
// not yet been read.
func (f *Framed) Buffered() int {
	return len(f.readBuffer) - f.readOffset
}

// Pending returns the number of bytes written since the last Flush.
func (f *Framed) Pending() int {
	return len(f.writeBuffer) - frameHeaderSize
}

// Read fills buffer from the current frame and, when that runs short,
// from as many further frames as needed. It returns fewer than
// len(buffer) bytes only together with a non-nil error.
//
// A stream that ends exactly at a frame boundary yields io.EOF. A stream
// that ends inside a length prefix yields ErrShortFrameHeader, and one
// that ends inside a payload yields ErrShortFramePayload. On any error
// the read buffer is left as it was before the failed frame read began.
func (f *Framed) Read(buffer []byte) (int, error) {
	// Fast path: the current frame already holds the whole request.
	if len(buffer) <= f.Buffered() {
		n := copy(buffer, f.readBuffer[f.readOffset:])
		f.readOffset += n
		return n, nil
	}

	// Slow path: hand over what remains, then pull frames until the
	// request is satisfied. Zero-length frames are legal and simply
	// contribute nothing.
	copied := copy(buffer, f.readBuffer[f.readOffset:])
	f.readOffset += copied
	for copied < len(buffer) {
		if err := f.readFrame(); err != nil {
			return copied, err
		}
		n := copy(buffer[copied:], f.readBuffer[f.readOffset:])
		f.readOffset += n
		copied += n
	}
	return copied, nil
}

// readFrame replaces the (fully consumed) read buffer with the payload
// of the next frame. The buffer is only replaced once the entire frame
// has arrived.
func (f *Framed) readFrame() error {
	var header [frameHeaderSize]byte
	n, err := readFull(f.transport, header[:])
	if err != nil {
		if n == 0 && errors.Is(err, io.EOF) {
			return io.EOF
		}
		if errors.Is(err, io.EOF) {
			return &Error{Kind: ShortFrameHeader, Err: io.ErrUnexpectedEOF}
		}
		return err
	}

	size := binary.BigEndian.Uint32(header[:])
	if uint64(size) > uint64(f.maxFrameSize) {
		return &Error{Kind: FrameTooLarge, Err: fmt.Errorf("frame of %d bytes exceeds maximum %d", size, f.maxFrameSize)}
	}

	// Reuse the consumed buffer's storage when it is large enough.
	payload := f.readBuffer[:0]
	if cap(payload) < int(size) {
		payload = make([]byte, size)
	} else {
		payload = payload[:size]
	}
	if size > 0 {
		if _, err := readFull(f.transport, payload); err != nil {
			if errors.Is(err, io.EOF) {
				return &Error{Kind: ShortFramePayload, Err: io.ErrUnexpectedEOF}
			}
			return err
		}
	}

	f.readBuffer = payload
	f.readOffset = 0
	return nil
}

// Write appends buffer to the pending frame. It never fails and never
// sends bytes; only Flush does.
func (f *Framed) Write(buffer []byte) (int, error) {
	f.writeBuffer = append(f.writeBuffer, buffer...)
	return len(buffer), nil
}

// Flush sends the pending bytes as exactly one frame, even when nothing
// has been written (a zero-length frame), then flushes the wrapped
// transport. The write buffer is emptied only when both succeed.
func (f *Framed) Flush() error {
	size := len(f.writeBuffer) - frameHeaderSize
	if size > f.maxFrameSize {
		return &Error{Kind: FrameTooLarge, Err: fmt.Errorf("frame of %d bytes exceeds maximum %d", size, f.maxFrameSize)}
	}
	binary.BigEndian.PutUint32(f.writeBuffer[:frameHeaderSize], uint32(size))
	if err := writeOnce(f.transport, f.writeBuffer); err != nil {
		return err
	}
	if err := f.transport.Flush(); err != nil {
		return err
	}
	f.writeBuffer = f.writeBuffer[:frameHeaderSize]
	return nil
}
