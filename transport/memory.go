// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bytes"
	"io"
)

// MemoryBuffer is an in-process Transport over a byte buffer. Writes
// append; reads consume from the front. It is always open and Flush
// does nothing. Reading an empty buffer returns io.EOF.
type MemoryBuffer struct {
	buffer bytes.Buffer

	// flushes counts Flush calls so tests can assert how many times a
	// wrapper pushed data down.
	flushes int

	// writes counts Write calls, for the same reason.
	writes int
}

// NewMemoryBuffer returns a buffer pre-loaded with data (which may be
// nil). The buffer takes ownership of data.
func NewMemoryBuffer(data []byte) *MemoryBuffer {
	memory := &MemoryBuffer{}
	memory.buffer.Write(data)
	return memory
}

func (m *MemoryBuffer) Open() error  { return nil }
func (m *MemoryBuffer) IsOpen() bool { return true }
func (m *MemoryBuffer) Close() error { return nil }

func (m *MemoryBuffer) Read(buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}
	if m.buffer.Len() == 0 {
		return 0, io.EOF
	}
	return m.buffer.Read(buffer)
}

func (m *MemoryBuffer) Write(buffer []byte) (int, error) {
	m.writes++
	return m.buffer.Write(buffer)
}

func (m *MemoryBuffer) Flush() error {
	m.flushes++
	return nil
}

// Bytes returns the unread contents without consuming them.
func (m *MemoryBuffer) Bytes() []byte { return m.buffer.Bytes() }

// Len returns the number of unread bytes.
func (m *MemoryBuffer) Len() int { return m.buffer.Len() }

// Reset discards all contents.
func (m *MemoryBuffer) Reset() { m.buffer.Reset() }

// Flushes returns how many times Flush has been called.
func (m *MemoryBuffer) Flushes() int { return m.flushes }

// Writes returns how many times Write has been called.
func (m *MemoryBuffer) Writes() int { return m.writes }
