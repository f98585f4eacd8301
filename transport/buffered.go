// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import "bufio"

// DefaultBufferSize is the read and write buffer size used by Buffered
// when none is configured.
const DefaultBufferSize = 4096

// Buffered adds read and write buffering to an unframed stream. Unlike
// Framed it adds no bytes of its own: the peer sees exactly what was
// written.
type Buffered struct {
	transport Transport
	reader    *bufio.Reader
	writer    *bufio.Writer
}

// NewBuffered wraps t with buffers of the given size (DefaultBufferSize
// when size is not positive).
func NewBuffered(t Transport, size int) *Buffered {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Buffered{
		transport: t,
		reader:    bufio.NewReaderSize(t, size),
		writer:    bufio.NewWriterSize(t, size),
	}
}

// BufferedWrapper returns a Wrapper that applies NewBuffered.
func BufferedWrapper(size int) Wrapper {
	return func(t Transport) Transport { return NewBuffered(t, size) }
}

func (b *Buffered) Open() error  { return b.transport.Open() }
func (b *Buffered) IsOpen() bool { return b.transport.IsOpen() }

// Close closes the wrapped transport, dropping unflushed bytes.
func (b *Buffered) Close() error {
	return b.transport.Close()
}

func (b *Buffered) Read(buffer []byte) (int, error) {
	return b.reader.Read(buffer)
}

func (b *Buffered) Write(buffer []byte) (int, error) {
	return b.writer.Write(buffer)
}

// Flush writes any buffered bytes and flushes the wrapped transport.
func (b *Buffered) Flush() error {
	if err := b.writer.Flush(); err != nil {
		return classify(err)
	}
	return b.transport.Flush()
}
