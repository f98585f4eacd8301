// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"

	"github.com/keel-rpc/keel/lib/wire"
	"github.com/keel-rpc/keel/transport"
)

const (
	// version1 is the marker in the high half of a strict message
	// header's first i32.
	version1 uint32 = 0x80010000

	versionMask uint32 = 0xffff0000
	typeMask    uint32 = 0x000000ff
)

// readChunkSize bounds the single allocation made for a length-prefixed
// blob. Longer blobs are read incrementally so that a corrupt length
// costs only as much memory as the bytes that actually arrive.
const readChunkSize = 64 * 1024

// BinaryConfig controls the binary protocol's header form and input
// limits. The zero value writes non-strict headers, accepts either
// header form, and imposes no size limits.
type BinaryConfig struct {
	// StrictRead rejects message headers without a version marker.
	StrictRead bool

	// StrictWrite emits versioned message headers.
	StrictWrite bool

	// MaxStringSize, when positive, caps the length of strings and
	// binary blobs accepted on read.
	MaxStringSize int

	// MaxContainerSize, when positive, caps the element count of maps,
	// sets, and lists accepted on read.
	MaxContainerSize int
}

// Binary is the fixed-width big-endian protocol.
type Binary struct {
	transport transport.Transport
	config    BinaryConfig

	// Each direction encodes base values in its own buffer, so one
	// goroutine may write a call while another reads a reply. Two
	// goroutines using the same direction still need a lock.
	readScratch  [8]byte
	writeScratch [8]byte
}

var _ Protocol = (*Binary)(nil)

// NewBinary returns a binary protocol over t.
func NewBinary(t transport.Transport, config BinaryConfig) *Binary {
	return &Binary{transport: t, config: config}
}

// BinaryFactory returns a Factory producing binary protocols that share
// config.
func BinaryFactory(config BinaryConfig) Factory {
	return func(t transport.Transport) Protocol { return NewBinary(t, config) }
}

func (p *Binary) Transport() transport.Transport { return p.transport }
func (p *Binary) Flush() error                   { return p.transport.Flush() }

// --- Write path ---

func (p *Binary) WriteMessageBegin(name string, messageType wire.MessageType, seqID int32) error {
	if p.config.StrictWrite {
		if err := p.WriteI32(int32(version1 | uint32(uint8(messageType)))); err != nil {
			return err
		}
		if err := p.WriteString(name); err != nil {
			return err
		}
		return p.WriteI32(seqID)
	}
	if err := p.WriteString(name); err != nil {
		return err
	}
	if err := p.WriteI8(int8(messageType)); err != nil {
		return err
	}
	return p.WriteI32(seqID)
}

func (p *Binary) WriteMessageEnd() error        { return nil }
func (p *Binary) WriteStructBegin(string) error { return nil }
func (p *Binary) WriteStructEnd() error         { return nil }

func (p *Binary) WriteFieldBegin(_ string, fieldType wire.Type, id int16) error {
	if err := p.WriteI8(int8(fieldType)); err != nil {
		return err
	}
	return p.WriteI16(id)
}

func (p *Binary) WriteFieldEnd() error { return nil }

func (p *Binary) WriteFieldStop() error {
	return p.WriteI8(int8(wire.Stop))
}

func (p *Binary) WriteMapBegin(keyType, valueType wire.Type, size int) error {
	if err := p.WriteI8(int8(keyType)); err != nil {
		return err
	}
	if err := p.WriteI8(int8(valueType)); err != nil {
		return err
	}
	return p.writeSize(size)
}

func (p *Binary) WriteMapEnd() error { return nil }

func (p *Binary) WriteListBegin(elementType wire.Type, size int) error {
	if err := p.WriteI8(int8(elementType)); err != nil {
		return err
	}
	return p.writeSize(size)
}

func (p *Binary) WriteListEnd() error { return nil }

func (p *Binary) WriteSetBegin(elementType wire.Type, size int) error {
	return p.WriteListBegin(elementType, size)
}

func (p *Binary) WriteSetEnd() error { return nil }

func (p *Binary) WriteBool(value bool) error {
	if value {
		return p.WriteI8(1)
	}
	return p.WriteI8(0)
}

func (p *Binary) WriteI8(value int8) error {
	p.writeScratch[0] = byte(value)
	return p.write(p.writeScratch[:1])
}

func (p *Binary) WriteI16(value int16) error {
	binary.BigEndian.PutUint16(p.writeScratch[:2], uint16(value))
	return p.write(p.writeScratch[:2])
}

func (p *Binary) WriteI32(value int32) error {
	binary.BigEndian.PutUint32(p.writeScratch[:4], uint32(value))
	return p.write(p.writeScratch[:4])
}

func (p *Binary) WriteI64(value int64) error {
	binary.BigEndian.PutUint64(p.writeScratch[:8], uint64(value))
	return p.write(p.writeScratch[:8])
}

func (p *Binary) WriteDouble(value float64) error {
	return p.WriteI64(int64(math.Float64bits(value)))
}

func (p *Binary) WriteString(value string) error {
	if err := p.writeSize(len(value)); err != nil {
		return err
	}
	if len(value) == 0 {
		return nil
	}
	_, err := io.WriteString(p.transport, value)
	return err
}

func (p *Binary) WriteBinary(value []byte) error {
	if err := p.writeSize(len(value)); err != nil {
		return err
	}
	return p.write(value)
}

func (p *Binary) writeSize(size int) error {
	if size < 0 {
		return errorf(NegativeSize, "cannot write size %d", size)
	}
	if size > math.MaxInt32 {
		return errorf(SizeLimit, "size %d does not fit in an i32", size)
	}
	return p.WriteI32(int32(size))
}

func (p *Binary) write(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	_, err := p.transport.Write(data)
	return err
}

// --- Read path ---

// ReadMessageBegin reads either header form. A stream that ends before
// the first byte of the header returns io.EOF unwrapped, which is how a
// server recognizes that its peer hung up between calls.
func (p *Binary) ReadMessageBegin() (name string, messageType wire.MessageType, seqID int32, err error) {
	if _, err = io.ReadFull(p.transport, p.readScratch[:4]); err != nil {
		if errors.Is(err, io.EOF) {
			return "", 0, 0, io.EOF
		}
		return "", 0, 0, unexpectedEOF(err)
	}
	first := binary.BigEndian.Uint32(p.readScratch[:4])

	if int32(first) < 0 {
		if version := first & versionMask; version != version1 {
			return "", 0, 0, errorf(BadVersion, "message header version %#x", version)
		}
		messageType = wire.MessageType(first & typeMask)
		if name, err = p.ReadString(); err != nil {
			return "", 0, 0, err
		}
		if seqID, err = p.ReadI32(); err != nil {
			return "", 0, 0, err
		}
		return name, messageType, seqID, nil
	}

	if p.config.StrictRead {
		return "", 0, 0, errorf(BadVersion, "message header has no version marker")
	}
	if name, err = p.readStringBody(int32(first)); err != nil {
		return "", 0, 0, err
	}
	typeByte, err := p.ReadI8()
	if err != nil {
		return "", 0, 0, err
	}
	if seqID, err = p.ReadI32(); err != nil {
		return "", 0, 0, err
	}
	return name, wire.MessageType(typeByte), seqID, nil
}

func (p *Binary) ReadMessageEnd() error            { return nil }
func (p *Binary) ReadStructBegin() (string, error) { return "", nil }
func (p *Binary) ReadStructEnd() error             { return nil }

func (p *Binary) ReadFieldBegin() (name string, fieldType wire.Type, id int16, err error) {
	typeByte, err := p.ReadI8()
	if err != nil {
		return "", 0, 0, err
	}
	fieldType = wire.Type(typeByte)
	if fieldType == wire.Stop {
		return "", wire.Stop, 0, nil
	}
	id, err = p.ReadI16()
	return "", fieldType, id, err
}

func (p *Binary) ReadFieldEnd() error { return nil }

func (p *Binary) ReadMapBegin() (keyType, valueType wire.Type, size int, err error) {
	keyByte, err := p.ReadI8()
	if err != nil {
		return 0, 0, 0, err
	}
	valueByte, err := p.ReadI8()
	if err != nil {
		return 0, 0, 0, err
	}
	size, err = p.readContainerSize()
	return wire.Type(keyByte), wire.Type(valueByte), size, err
}

func (p *Binary) ReadMapEnd() error { return nil }

func (p *Binary) ReadListBegin() (elementType wire.Type, size int, err error) {
	elementByte, err := p.ReadI8()
	if err != nil {
		return 0, 0, err
	}
	size, err = p.readContainerSize()
	return wire.Type(elementByte), size, err
}

func (p *Binary) ReadListEnd() error { return nil }

func (p *Binary) ReadSetBegin() (elementType wire.Type, size int, err error) {
	return p.ReadListBegin()
}

func (p *Binary) ReadSetEnd() error { return nil }

func (p *Binary) ReadBool() (bool, error) {
	value, err := p.ReadI8()
	return value != 0, err
}

func (p *Binary) ReadI8() (int8, error) {
	if err := p.read(p.readScratch[:1]); err != nil {
		return 0, err
	}
	return int8(p.readScratch[0]), nil
}

func (p *Binary) ReadI16() (int16, error) {
	if err := p.read(p.readScratch[:2]); err != nil {
		return 0, err
	}
	return int16(binary.BigEndian.Uint16(p.readScratch[:2])), nil
}

func (p *Binary) ReadI32() (int32, error) {
	if err := p.read(p.readScratch[:4]); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(p.readScratch[:4])), nil
}

func (p *Binary) ReadI64() (int64, error) {
	if err := p.read(p.readScratch[:8]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(p.readScratch[:8])), nil
}

func (p *Binary) ReadDouble() (float64, error) {
	bits, err := p.ReadI64()
	return math.Float64frombits(uint64(bits)), err
}

func (p *Binary) ReadString() (string, error) {
	size, err := p.ReadI32()
	if err != nil {
		return "", err
	}
	return p.readStringBody(size)
}

func (p *Binary) ReadBinary() ([]byte, error) {
	size, err := p.ReadI32()
	if err != nil {
		return nil, err
	}
	return p.readBytes(size)
}

func (p *Binary) readStringBody(size int32) (string, error) {
	data, err := p.readBytes(size)
	return string(data), err
}

// readBytes reads a length-prefixed blob body after checking size
// against the configured limit.
func (p *Binary) readBytes(size int32) ([]byte, error) {
	if size < 0 {
		return nil, errorf(NegativeSize, "string length %d", size)
	}
	if p.config.MaxStringSize > 0 && int(size) > p.config.MaxStringSize {
		return nil, errorf(SizeLimit, "string length %d exceeds maximum %d", size, p.config.MaxStringSize)
	}
	if size == 0 {
		return []byte{}, nil
	}
	if size <= readChunkSize {
		data := make([]byte, size)
		if err := p.read(data); err != nil {
			return nil, err
		}
		return data, nil
	}
	var buffer bytes.Buffer
	buffer.Grow(readChunkSize)
	if _, err := io.CopyN(&buffer, p.transport, int64(size)); err != nil {
		return nil, unexpectedEOF(err)
	}
	return buffer.Bytes(), nil
}

func (p *Binary) readContainerSize() (int, error) {
	size, err := p.ReadI32()
	if err != nil {
		return 0, err
	}
	if size < 0 {
		return 0, errorf(NegativeSize, "container size %d", size)
	}
	if p.config.MaxContainerSize > 0 && int(size) > p.config.MaxContainerSize {
		return 0, errorf(SizeLimit, "container size %d exceeds maximum %d", size, p.config.MaxContainerSize)
	}
	return int(size), nil
}

// read fills data from the transport. Running out of input here is
// always a truncated value.
func (p *Binary) read(data []byte) error {
	if _, err := io.ReadFull(p.transport, data); err != nil {
		return unexpectedEOF(err)
	}
	return nil
}

// unexpectedEOF reports an end of stream inside a value as InvalidData.
// Other errors belong to the transport and pass through unchanged.
func unexpectedEOF(err error) error {
	var transportError *transport.Error
	if errors.As(err, &transportError) {
		return err
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &Error{Kind: InvalidData, Err: io.ErrUnexpectedEOF}
	}
	return err
}
