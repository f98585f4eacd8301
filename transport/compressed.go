// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies the algorithm applied to a compressed block.
// Tags are stored in block headers (1 byte each); these values are
// protocol constants.
type Compression uint8

const (
	// CompressionNone stores the block as is. Flush falls back to it
	// whenever compression would not shrink the block.
	CompressionNone Compression = 0

	// CompressionLZ4 is LZ4 block compression: fast, modest ratio.
	CompressionLZ4 Compression = 1

	// CompressionZstd is zstd at the default level: better ratio at
	// higher CPU cost.
	CompressionZstd Compression = 2
)

// String returns the configuration spelling of the algorithm.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCompression parses the configuration spelling of an algorithm.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", name)
	}
}

// compressedHeaderSize is tag (1) + raw length (4) + block length (4).
const compressedHeaderSize = 9

// zstdEncoder and zstdDecoder are shared by every Compressed transport.
// Both are safe for concurrent use through EncodeAll and DecodeAll.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("transport: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("transport: zstd decoder initialization failed: " + err.Error())
	}
}

// Compressed is a block transform over another transport. Each Flush
// compresses everything written since the previous Flush into one block:
//
//	[1 byte tag][4 byte raw length][4 byte block length][block]
//
// with both lengths big-endian. Reads decompress one block at a time.
// Place it beneath Framed so that each frame travels as one block.
type Compressed struct {
	transport    Transport
	compression  Compression
	maxBlockSize int

	readBuffer  []byte
	readOffset  int
	writeBuffer []byte
}

// NewCompressed wraps t, compressing flushed blocks with compression.
// Blocks (raw or compressed) larger than maxBlockSize are rejected;
// DefaultMaxFrameSize is used when maxBlockSize is not positive.
func NewCompressed(t Transport, compression Compression, maxBlockSize int) *Compressed {
	if maxBlockSize <= 0 {
		maxBlockSize = DefaultMaxFrameSize
	}
	return &Compressed{
		transport:    t,
		compression:  compression,
		maxBlockSize: maxBlockSize,
	}
}

// CompressedWrapper returns a Wrapper that applies NewCompressed.
func CompressedWrapper(compression Compression, maxBlockSize int) Wrapper {
	return func(t Transport) Transport { return NewCompressed(t, compression, maxBlockSize) }
}

func (c *Compressed) Open() error  { return c.transport.Open() }
func (c *Compressed) IsOpen() bool { return c.transport.IsOpen() }

// Close closes the wrapped transport, dropping unflushed bytes.
func (c *Compressed) Close() error {
	return c.transport.Close()
}

func (c *Compressed) Write(buffer []byte) (int, error) {
	c.writeBuffer = append(c.writeBuffer, buffer...)
	return len(buffer), nil
}

// Flush emits the pending bytes as one block and flushes the wrapped
// transport. With nothing pending it only flushes the wrapped transport.
func (c *Compressed) Flush() error {
	if len(c.writeBuffer) == 0 {
		return c.transport.Flush()
	}
	if len(c.writeBuffer) > c.maxBlockSize {
		return &Error{Kind: FrameTooLarge, Err: fmt.Errorf("block of %d bytes exceeds maximum %d", len(c.writeBuffer), c.maxBlockSize)}
	}

	block, tag, err := compressBlock(c.writeBuffer, c.compression)
	if err != nil {
		return err
	}

	message := make([]byte, compressedHeaderSize, compressedHeaderSize+len(block))
	message[0] = byte(tag)
	binary.BigEndian.PutUint32(message[1:5], uint32(len(c.writeBuffer)))
	binary.BigEndian.PutUint32(message[5:9], uint32(len(block)))
	message = append(message, block...)

	if err := writeOnce(c.transport, message); err != nil {
		return err
	}
	if err := c.transport.Flush(); err != nil {
		return err
	}
	c.writeBuffer = c.writeBuffer[:0]
	return nil
}

func (c *Compressed) Read(buffer []byte) (int, error) {
	copied := copy(buffer, c.readBuffer[c.readOffset:])
	c.readOffset += copied
	for copied < len(buffer) {
		if err := c.readBlock(); err != nil {
			return copied, err
		}
		n := copy(buffer[copied:], c.readBuffer[c.readOffset:])
		c.readOffset += n
		copied += n
	}
	return copied, nil
}

func (c *Compressed) readBlock() error {
	var header [compressedHeaderSize]byte
	n, err := readFull(c.transport, header[:])
	if err != nil {
		if n == 0 && errors.Is(err, io.EOF) {
			return io.EOF
		}
		if errors.Is(err, io.EOF) {
			return &Error{Kind: ShortFrameHeader, Err: io.ErrUnexpectedEOF}
		}
		return err
	}

	tag := Compression(header[0])
	rawSize := binary.BigEndian.Uint32(header[1:5])
	blockSize := binary.BigEndian.Uint32(header[5:9])
	if uint64(rawSize) > uint64(c.maxBlockSize) || uint64(blockSize) > uint64(c.maxBlockSize) {
		return &Error{Kind: FrameTooLarge, Err: fmt.Errorf("block of %d (%d raw) bytes exceeds maximum %d", blockSize, rawSize, c.maxBlockSize)}
	}

	block := make([]byte, blockSize)
	if _, err := readFull(c.transport, block); err != nil {
		if errors.Is(err, io.EOF) {
			return &Error{Kind: ShortFramePayload, Err: io.ErrUnexpectedEOF}
		}
		return err
	}

	raw, err := decompressBlock(block, tag, int(rawSize))
	if err != nil {
		return err
	}
	c.readBuffer = raw
	c.readOffset = 0
	return nil
}

// compressBlock compresses data, falling back to CompressionNone when
// the result would not be smaller than the input.
func compressBlock(data []byte, compression Compression) ([]byte, Compression, error) {
	switch compression {
	case CompressionNone:
		return data, CompressionNone, nil

	case CompressionLZ4:
		destination := make([]byte, lz4.CompressBlockBound(len(data)))
		written, err := lz4.CompressBlock(data, destination, nil)
		if err != nil {
			return nil, 0, fmt.Errorf("lz4 compress: %w", err)
		}
		// CompressBlock returns 0 for incompressible input.
		if written == 0 || written >= len(data) {
			return data, CompressionNone, nil
		}
		return destination[:written], CompressionLZ4, nil

	case CompressionZstd:
		compressed := zstdEncoder.EncodeAll(data, nil)
		if len(compressed) >= len(data) {
			return data, CompressionNone, nil
		}
		return compressed, CompressionZstd, nil

	default:
		return nil, 0, fmt.Errorf("unsupported compression %s", compression)
	}
}

// decompressBlock reverses compressBlock and verifies the result has
// exactly rawSize bytes.
func decompressBlock(block []byte, tag Compression, rawSize int) ([]byte, error) {
	switch tag {
	case CompressionNone:
		if len(block) != rawSize {
			return nil, fmt.Errorf("uncompressed block: size %d does not match expected %d", len(block), rawSize)
		}
		return block, nil

	case CompressionLZ4:
		destination := make([]byte, rawSize)
		read, err := lz4.UncompressBlock(block, destination)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if read != rawSize {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, rawSize)
		}
		return destination, nil

	case CompressionZstd:
		result, err := zstdDecoder.DecodeAll(block, make([]byte, 0, rawSize))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(result) != rawSize {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), rawSize)
		}
		return result, nil

	default:
		return nil, fmt.Errorf("unsupported compression tag %d", uint8(tag))
	}
}
