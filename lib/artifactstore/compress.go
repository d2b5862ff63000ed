// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifactstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionTag identifies the codec applied to a stored value. The tag
// is the first byte of every value written through [Compressed]; these
// values are format constants.
type CompressionTag uint8

const (
	// CompressionNone stores the value as-is. Used for layer blobs that
	// are already gzip or zstd compressed.
	CompressionNone CompressionTag = 0

	// CompressionLZ4 is LZ4 block compression.
	CompressionLZ4 CompressionTag = 1

	// CompressionZstd is zstd at the default level. Manifests and
	// descriptors are JSON and bencode, which compress well.
	CompressionZstd CompressionTag = 2
)

// CompressionAuto is a pseudo-tag for [NewCompressed]: probe each value
// and pick the codec with [SelectCompression]. It is never written.
const CompressionAuto CompressionTag = 0xFF

// String returns the configuration name of a compression tag.
func (tag CompressionTag) String() string {
	switch tag {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	case CompressionAuto:
		return "auto"
	default:
		return fmt.Sprintf("unknown(%d)", tag)
	}
}

// ParseCompressionTag parses a compression tag from its configuration
// name.
func ParseCompressionTag(name string) (CompressionTag, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	case "auto":
		return CompressionAuto, nil
	default:
		return 0, fmt.Errorf("unknown compression %q (want none, lz4, zstd, or auto)", name)
	}
}

// Compressed wraps a Store and compresses values at rest. Each stored
// value is framed as:
//
//	[tag: 1 byte] [uncompressed size: uvarint] [payload]
//
// Values that do not shrink are stored with CompressionNone, so Load
// never pays decompression cost for incompressible content.
type Compressed struct {
	inner Store
	codec CompressionTag
}

// NewCompressed wraps inner. codec selects the algorithm for new writes;
// values written with any codec are readable regardless of codec.
func NewCompressed(inner Store, codec CompressionTag) *Compressed {
	return &Compressed{inner: inner, codec: codec}
}

func (c *Compressed) Save(ctx context.Context, key string, data []byte) error {
	codec := c.codec
	if codec == CompressionAuto {
		codec = SelectCompression(data)
	}

	payload, tag, err := compressWithFallback(data, codec)
	if err != nil {
		return fmt.Errorf("compressing %s: %w", key, err)
	}

	framed := make([]byte, 0, 1+binary.MaxVarintLen64+len(payload))
	framed = append(framed, byte(tag))
	framed = binary.AppendUvarint(framed, uint64(len(data)))
	framed = append(framed, payload...)
	return c.inner.Save(ctx, key, framed)
}

func (c *Compressed) Load(ctx context.Context, key string) ([]byte, error) {
	framed, err := c.inner.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(framed) < 2 {
		return nil, fmt.Errorf("decompressing %s: value is %d bytes, too short for a header", key, len(framed))
	}

	tag := CompressionTag(framed[0])
	size, headerLength := binary.Uvarint(framed[1:])
	if headerLength <= 0 {
		return nil, fmt.Errorf("decompressing %s: malformed size header", key)
	}
	if size > uint64(maxDecompressedSize) {
		return nil, fmt.Errorf("decompressing %s: declared size %d exceeds limit", key, size)
	}

	data, err := decompress(framed[1+headerLength:], tag, int(size))
	if err != nil {
		return nil, fmt.Errorf("decompressing %s: %w", key, err)
	}
	return data, nil
}

func (c *Compressed) Exists(ctx context.Context, key string) (bool, error) {
	return c.inner.Exists(ctx, key)
}

func (c *Compressed) Delete(ctx context.Context, key string) error {
	return c.inner.Delete(ctx, key)
}

// maxDecompressedSize bounds the allocation made for a declared size so a
// corrupt header cannot request an arbitrary buffer.
const maxDecompressedSize = 1 << 34

func compressWithFallback(data []byte, tag CompressionTag) ([]byte, CompressionTag, error) {
	var (
		compressed []byte
		err        error
	)
	switch tag {
	case CompressionNone:
		return data, CompressionNone, nil
	case CompressionLZ4:
		compressed, err = compressLZ4(data)
	case CompressionZstd:
		compressed, err = compressZstd(data)
	default:
		return nil, 0, fmt.Errorf("unsupported compression tag: %d", tag)
	}
	if errors.Is(err, errIncompressible) {
		return data, CompressionNone, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return compressed, tag, nil
}

func decompress(payload []byte, tag CompressionTag, uncompressedSize int) ([]byte, error) {
	switch tag {
	case CompressionNone:
		if len(payload) != uncompressedSize {
			return nil, fmt.Errorf("uncompressed value: size %d does not match header %d",
				len(payload), uncompressedSize)
		}
		return payload, nil
	case CompressionLZ4:
		return decompressLZ4(payload, uncompressedSize)
	case CompressionZstd:
		return decompressZstd(payload, uncompressedSize)
	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(data)))

	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// CompressBlock returns 0 for incompressible input.
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}

func decompressLZ4(compressed []byte, uncompressedSize int) ([]byte, error) {
	destination := make([]byte, uncompressedSize)
	read, err := lz4.UncompressBlock(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if read != uncompressedSize {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, uncompressedSize)
	}
	return destination, nil
}

// zstd.Encoder and zstd.Decoder are safe for concurrent use with
// EncodeAll/DecodeAll.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("artifactstore: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("artifactstore: zstd decoder initialization failed: " + err.Error())
	}
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func decompressZstd(compressed []byte, uncompressedSize int) ([]byte, error) {
	result, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, uncompressedSize))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if len(result) != uncompressedSize {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), uncompressedSize)
	}
	return result, nil
}

// errIncompressible means the codec output was not smaller than its
// input. Callers fall back to CompressionNone.
var errIncompressible = errors.New("data is incompressible")

// probeSize is how much of a value [SelectCompression] compresses to
// estimate the ratio.
const probeSize = 64 * 1024

// SelectCompression picks a codec by compressing a prefix of data with
// zstd: a ratio of at least 1.5 selects zstd, at least 1.1 selects LZ4,
// anything lower stores the value uncompressed.
func SelectCompression(data []byte) CompressionTag {
	if len(data) == 0 {
		return CompressionNone
	}

	probe := data[:min(len(data), probeSize)]
	compressed := zstdEncoder.EncodeAll(probe, nil)
	ratio := float64(len(probe)) / float64(len(compressed))

	switch {
	case ratio >= 1.5:
		return CompressionZstd
	case ratio >= 1.1:
		return CompressionLZ4
	default:
		return CompressionNone
	}
}
