// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"strings"
	"testing"

	"github.com/keel-rpc/keel/lib/wire"
	"github.com/keel-rpc/keel/transport"
)

func newBinary(data []byte, config BinaryConfig) (*Binary, *transport.MemoryBuffer) {
	memory := transport.NewMemoryBuffer(data)
	return NewBinary(memory, config), memory
}

func TestBinaryEncodings(t *testing.T) {
	tests := []struct {
		name  string
		write func(*Binary) error
		want  []byte
	}{
		{"bool true", func(p *Binary) error { return p.WriteBool(true) }, []byte{1}},
		{"bool false", func(p *Binary) error { return p.WriteBool(false) }, []byte{0}},
		{"i8", func(p *Binary) error { return p.WriteI8(-2) }, []byte{0xfe}},
		{"i16", func(p *Binary) error { return p.WriteI16(0x0102) }, []byte{1, 2}},
		{"i32", func(p *Binary) error { return p.WriteI32(-1) }, []byte{0xff, 0xff, 0xff, 0xff}},
		{"i64", func(p *Binary) error { return p.WriteI64(1) }, []byte{0, 0, 0, 0, 0, 0, 0, 1}},
		{"double", func(p *Binary) error { return p.WriteDouble(1.0) }, []byte{0x3f, 0xf0, 0, 0, 0, 0, 0, 0}},
		{"string", func(p *Binary) error { return p.WriteString("hi") }, []byte{0, 0, 0, 2, 'h', 'i'}},
		{"empty string", func(p *Binary) error { return p.WriteString("") }, []byte{0, 0, 0, 0}},
		{"binary", func(p *Binary) error { return p.WriteBinary([]byte{9}) }, []byte{0, 0, 0, 1, 9}},
		{"field header", func(p *Binary) error { return p.WriteFieldBegin("num1", wire.I32, 3) }, []byte{8, 0, 3}},
		{"field stop", func(p *Binary) error { return p.WriteFieldStop() }, []byte{0}},
		{"map header", func(p *Binary) error { return p.WriteMapBegin(wire.String, wire.I64, 2) }, []byte{11, 10, 0, 0, 0, 2}},
		{"list header", func(p *Binary) error { return p.WriteListBegin(wire.Struct, 1) }, []byte{12, 0, 0, 0, 1}},
		{"set header", func(p *Binary) error { return p.WriteSetBegin(wire.I16, 0) }, []byte{6, 0, 0, 0, 0}},
		{"ends emit nothing", func(p *Binary) error {
			for _, end := range []func() error{p.WriteStructEnd, p.WriteFieldEnd, p.WriteMapEnd, p.WriteListEnd, p.WriteSetEnd, p.WriteMessageEnd} {
				if err := end(); err != nil {
					return err
				}
			}
			return p.WriteStructBegin("Work")
		}, nil},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			protocol, memory := newBinary(nil, BinaryConfig{})
			if err := test.write(protocol); err != nil {
				t.Fatalf("write: %v", err)
			}
			if !bytes.Equal(memory.Bytes(), test.want) {
				t.Errorf("wire = %x, want %x", memory.Bytes(), test.want)
			}
		})
	}
}

func TestBinaryBaseRoundTrip(t *testing.T) {
	protocol, _ := newBinary(nil, BinaryConfig{})
	protocol.WriteBool(true)
	protocol.WriteI8(math.MinInt8)
	protocol.WriteI16(math.MaxInt16)
	protocol.WriteI32(math.MinInt32)
	protocol.WriteI64(math.MaxInt64)
	protocol.WriteDouble(-0.125)
	protocol.WriteString("héllo")
	protocol.WriteBinary([]byte{0, 1, 2})

	if value, err := protocol.ReadBool(); err != nil || !value {
		t.Errorf("ReadBool = %v, %v", value, err)
	}
	if value, err := protocol.ReadI8(); err != nil || value != math.MinInt8 {
		t.Errorf("ReadI8 = %v, %v", value, err)
	}
	if value, err := protocol.ReadI16(); err != nil || value != math.MaxInt16 {
		t.Errorf("ReadI16 = %v, %v", value, err)
	}
	if value, err := protocol.ReadI32(); err != nil || value != math.MinInt32 {
		t.Errorf("ReadI32 = %v, %v", value, err)
	}
	if value, err := protocol.ReadI64(); err != nil || value != math.MaxInt64 {
		t.Errorf("ReadI64 = %v, %v", value, err)
	}
	if value, err := protocol.ReadDouble(); err != nil || value != -0.125 {
		t.Errorf("ReadDouble = %v, %v", value, err)
	}
	if value, err := protocol.ReadString(); err != nil || value != "héllo" {
		t.Errorf("ReadString = %q, %v", value, err)
	}
	if value, err := protocol.ReadBinary(); err != nil || !bytes.Equal(value, []byte{0, 1, 2}) {
		t.Errorf("ReadBinary = %x, %v", value, err)
	}
}

func TestBinaryLargeBlob(t *testing.T) {
	large := strings.Repeat("x", 3*readChunkSize+17)
	protocol, _ := newBinary(nil, BinaryConfig{})
	if err := protocol.WriteString(large); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	got, err := protocol.ReadString()
	if err != nil {
		t.Fatalf("ReadString: %v", err)
	}
	if got != large {
		t.Errorf("large string round trip: got %d bytes, want %d", len(got), len(large))
	}
}

func TestBinaryMessageHeader(t *testing.T) {
	t.Run("non-strict layout", func(t *testing.T) {
		protocol, memory := newBinary(nil, BinaryConfig{})
		if err := protocol.WriteMessageBegin("add", wire.Call, 7); err != nil {
			t.Fatalf("WriteMessageBegin: %v", err)
		}
		want := []byte{0, 0, 0, 3, 'a', 'd', 'd', 1, 0, 0, 0, 7}
		if !bytes.Equal(memory.Bytes(), want) {
			t.Errorf("wire = %x, want %x", memory.Bytes(), want)
		}
	})

	t.Run("strict layout", func(t *testing.T) {
		protocol, memory := newBinary(nil, BinaryConfig{StrictWrite: true})
		if err := protocol.WriteMessageBegin("add", wire.Reply, 7); err != nil {
			t.Fatalf("WriteMessageBegin: %v", err)
		}
		want := []byte{0x80, 0x01, 0x00, 0x02, 0, 0, 0, 3, 'a', 'd', 'd', 0, 0, 0, 7}
		if !bytes.Equal(memory.Bytes(), want) {
			t.Errorf("wire = %x, want %x", memory.Bytes(), want)
		}
	})

	for _, strictWrite := range []bool{false, true} {
		writer, memory := newBinary(nil, BinaryConfig{StrictWrite: strictWrite})
		writer.WriteMessageBegin("calculate", wire.Exception, -5)
		reader, _ := newBinary(memory.Bytes(), BinaryConfig{})
		name, messageType, seqID, err := reader.ReadMessageBegin()
		if err != nil {
			t.Fatalf("strict=%v: ReadMessageBegin: %v", strictWrite, err)
		}
		if name != "calculate" || messageType != wire.Exception || seqID != -5 {
			t.Errorf("strict=%v: got (%q, %v, %d), want (\"calculate\", EXCEPTION, -5)", strictWrite, name, messageType, seqID)
		}
	}
}

func TestBinaryMessageHeaderErrors(t *testing.T) {
	t.Run("strict read rejects non-strict header", func(t *testing.T) {
		writer, memory := newBinary(nil, BinaryConfig{})
		writer.WriteMessageBegin("ping", wire.Call, 1)
		reader, _ := newBinary(memory.Bytes(), BinaryConfig{StrictRead: true})
		if _, _, _, err := reader.ReadMessageBegin(); !errors.Is(err, ErrBadVersion) {
			t.Errorf("ReadMessageBegin = %v, want ErrBadVersion", err)
		}
	})

	t.Run("unknown version", func(t *testing.T) {
		reader, _ := newBinary([]byte{0x80, 0x02, 0x00, 0x01, 0, 0, 0, 0, 0, 0, 0, 0}, BinaryConfig{})
		if _, _, _, err := reader.ReadMessageBegin(); !errors.Is(err, ErrBadVersion) {
			t.Errorf("ReadMessageBegin = %v, want ErrBadVersion", err)
		}
	})

	t.Run("clean end of stream", func(t *testing.T) {
		reader, _ := newBinary(nil, BinaryConfig{})
		if _, _, _, err := reader.ReadMessageBegin(); err != io.EOF {
			t.Errorf("ReadMessageBegin = %v, want io.EOF", err)
		}
	})

	t.Run("stream ends inside header", func(t *testing.T) {
		reader, _ := newBinary([]byte{0, 0, 0, 4, 'p', 'i'}, BinaryConfig{})
		_, _, _, err := reader.ReadMessageBegin()
		if !errors.Is(err, ErrInvalidData) || !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Errorf("ReadMessageBegin = %v, want InvalidData wrapping io.ErrUnexpectedEOF", err)
		}
	})
}

func TestBinaryTransportErrorsPassThrough(t *testing.T) {
	// A frame header cut short is a transport problem, not malformed
	// protocol data.
	reader := NewBinary(transport.NewFramed(transport.NewMemoryBuffer([]byte{0, 0})), BinaryConfig{})
	_, _, _, err := reader.ReadMessageBegin()
	if !errors.Is(err, transport.ErrShortFrameHeader) {
		t.Errorf("ReadMessageBegin = %v, want transport.ErrShortFrameHeader", err)
	}
	if errors.Is(err, ErrInvalidData) {
		t.Errorf("transport error reclassified as protocol error: %v", err)
	}
}

func TestBinarySizeChecks(t *testing.T) {
	tests := []struct {
		name    string
		wire    []byte
		config  BinaryConfig
		read    func(*Binary) error
		wantErr error
	}{
		{
			name:    "negative string length",
			wire:    []byte{0xff, 0xff, 0xff, 0xfe},
			read:    func(p *Binary) error { _, err := p.ReadString(); return err },
			wantErr: ErrNegativeSize,
		},
		{
			name:    "string above limit",
			wire:    []byte{0, 0, 0, 5, 'a', 'b', 'c', 'd', 'e'},
			config:  BinaryConfig{MaxStringSize: 4},
			read:    func(p *Binary) error { _, err := p.ReadString(); return err },
			wantErr: ErrSizeLimit,
		},
		{
			name:    "negative list size",
			wire:    []byte{8, 0x80, 0, 0, 0},
			read:    func(p *Binary) error { _, _, err := p.ReadListBegin(); return err },
			wantErr: ErrNegativeSize,
		},
		{
			name:    "map above limit",
			wire:    []byte{8, 8, 0, 0, 1, 0},
			config:  BinaryConfig{MaxContainerSize: 255},
			read:    func(p *Binary) error { _, _, _, err := p.ReadMapBegin(); return err },
			wantErr: ErrSizeLimit,
		},
		{
			name:    "truncated string body",
			wire:    []byte{0, 0, 0, 5, 'a'},
			read:    func(p *Binary) error { _, err := p.ReadString(); return err },
			wantErr: io.ErrUnexpectedEOF,
		},
		{
			name:    "truncated large blob",
			wire:    append([]byte{0, 1, 0, 1}, make([]byte, readChunkSize)...),
			read:    func(p *Binary) error { _, err := p.ReadBinary(); return err },
			wantErr: ErrInvalidData,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			protocol, _ := newBinary(test.wire, test.config)
			if err := test.read(protocol); !errors.Is(err, test.wantErr) {
				t.Errorf("got %v, want %v", err, test.wantErr)
			}
		})
	}
}

func TestBinaryFieldBegin(t *testing.T) {
	protocol, _ := newBinary([]byte{11, 0x7f, 0xff, 0}, BinaryConfig{})
	_, fieldType, id, err := protocol.ReadFieldBegin()
	if err != nil || fieldType != wire.String || id != math.MaxInt16 {
		t.Errorf("ReadFieldBegin = (%v, %d, %v), want (string, 32767, nil)", fieldType, id, err)
	}
	_, fieldType, id, err = protocol.ReadFieldBegin()
	if err != nil || fieldType != wire.Stop || id != 0 {
		t.Errorf("ReadFieldBegin at stop = (%v, %d, %v), want (stop, 0, nil)", fieldType, id, err)
	}
}

func TestBinaryReadAndWriteRunConcurrently(t *testing.T) {
	near, far := net.Pipe()
	t.Cleanup(func() {
		near.Close()
		far.Close()
	})
	p := NewBinary(transport.NewSocketConn(near, transport.SocketConfig{}), BinaryConfig{})

	const count = 2000
	errs := make(chan error, 3)

	// One goroutine writes through p while the test reads through it.
	go func() {
		for i := range count {
			if err := p.WriteI64(int64(i)); err != nil {
				errs <- err
				return
			}
		}
		errs <- nil
	}()
	go func() {
		var word [8]byte
		for i := range count {
			if _, err := io.ReadFull(far, word[:]); err != nil {
				errs <- err
				return
			}
			if got := int64(binary.BigEndian.Uint64(word[:])); got != int64(i) {
				errs <- fmt.Errorf("peer received %d, want %d", got, i)
				return
			}
		}
		errs <- nil
	}()
	go func() {
		var word [8]byte
		for i := range count {
			binary.BigEndian.PutUint64(word[:], uint64(-i))
			if _, err := far.Write(word[:]); err != nil {
				errs <- err
				return
			}
		}
		errs <- nil
	}()

	for i := range count {
		got, err := p.ReadI64()
		if err != nil {
			t.Fatalf("ReadI64 %d: %v", i, err)
		}
		if got != int64(-i) {
			t.Fatalf("ReadI64 %d = %d, want %d", i, got, -i)
		}
	}
	for range 3 {
		if err := <-errs; err != nil {
			t.Fatal(err)
		}
	}
}
