// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package torrent

import (
	"bytes"
	"context"
	"fmt"

	"github.com/opencontainers/go-digest"

	"github.com/bureau-foundation/swarmreg/lib/contentaddr"
)

// Descriptor is a built transfer descriptor.
type Descriptor struct {
	// Info is the content-describing metadata covered by InfoHash.
	Info Info

	// InfoHash is the digest of the canonical info encoding. It is the
	// descriptor's swarm identity.
	InfoHash digest.Digest

	// Algorithm is the digest algorithm used for piece hashes and the
	// info hash.
	Algorithm contentaddr.Algorithm

	// Announce lists tracker URLs. Empty for trackerless descriptors.
	Announce []string

	// Encoded is the complete serialized descriptor file.
	Encoded []byte
}

// PieceCount returns the number of pieces the descriptor describes.
func (d *Descriptor) PieceCount() int {
	return len(d.Info.PieceHashes)
}

// VerifyContent reports whether content matches the descriptor: same
// total length and every piece hash equal.
func (d *Descriptor) VerifyContent(content []byte) error {
	addressor, err := contentaddr.New(d.Algorithm)
	if err != nil {
		return err
	}
	if int64(len(content)) != d.Info.Length {
		return fmt.Errorf("content is %d bytes, descriptor says %d", len(content), d.Info.Length)
	}
	pieces, err := Segment(addressor, content, d.Info.PieceLength)
	if err != nil {
		return err
	}
	for index, piece := range pieces {
		if !bytes.Equal(piece.Hash, d.Info.PieceHashes[index]) {
			return fmt.Errorf("piece %d (offset %d, %d bytes) does not match", index, piece.Offset, piece.Length())
		}
	}
	return nil
}

// BuilderConfig configures a [Builder].
type BuilderConfig struct {
	// Addressor computes piece hashes and the info hash. Required.
	Addressor *contentaddr.Addressor

	// Announce lists tracker URLs to embed. The first URL is written
	// as "announce"; when there is more than one, all of them are also
	// written as single-URL tiers under "announce-list".
	Announce []string

	// ParallelThreshold is the content size in bytes at or above which
	// pieces are hashed concurrently. Zero disables parallel hashing.
	ParallelThreshold int64

	// Workers bounds concurrent piece hashing. Values below 1 mean 1.
	Workers int
}

// Builder builds descriptors. It holds no mutable state and is safe for
// concurrent use.
type Builder struct {
	addressor         *contentaddr.Addressor
	announce          []string
	parallelThreshold int64
	workers           int
}

// NewBuilder creates a Builder. A nil Addressor is a programming error.
func NewBuilder(config BuilderConfig) *Builder {
	if config.Addressor == nil {
		panic("torrent: BuilderConfig.Addressor is nil")
	}
	return &Builder{
		addressor:         config.Addressor,
		announce:          append([]string(nil), config.Announce...),
		parallelThreshold: config.ParallelThreshold,
		workers:           max(config.Workers, 1),
	}
}

// Algorithm returns the digest algorithm the builder hashes with.
func (b *Builder) Algorithm() contentaddr.Algorithm {
	return b.addressor.Algorithm()
}

// Build segments content, hashes each piece, and produces the encoded
// descriptor for artifactPath. The result depends only on the inputs and
// the builder's configuration.
func (b *Builder) Build(ctx context.Context, artifactPath string, content []byte, pieceLength uint32) (*Descriptor, error) {
	if pieceLength == 0 {
		return nil, fmt.Errorf("%w: piece length must be positive", ErrInvalidPieceLength)
	}
	if err := ValidateName(artifactPath); err != nil {
		return nil, err
	}

	var pieces []Piece
	var err error
	if b.parallelThreshold > 0 && int64(len(content)) >= b.parallelThreshold && b.workers > 1 {
		pieces, err = SegmentParallel(ctx, b.addressor, content, pieceLength, b.workers)
	} else {
		pieces, err = Segment(b.addressor, content, pieceLength)
	}
	if err != nil {
		return nil, err
	}

	info := Info{
		Name:        artifactPath,
		Length:      int64(len(content)),
		PieceLength: pieceLength,
		PieceHashes: make([][]byte, len(pieces)),
	}
	for index, piece := range pieces {
		info.PieceHashes[index] = piece.Hash
	}

	encodedInfo, err := EncodeInfo(info)
	if err != nil {
		return nil, err
	}

	return &Descriptor{
		Info:      info,
		InfoHash:  b.addressor.Digest(encodedInfo),
		Algorithm: b.addressor.Algorithm(),
		Announce:  append([]string(nil), b.announce...),
		Encoded:   encodeFile(encodedInfo, b.addressor.Algorithm(), b.announce),
	}, nil
}

// encodeFile wraps an encoded info dictionary in the outer descriptor
// dictionary. Keys in byte order: "announce", "announce-list",
// "hash algorithm", "info".
func encodeFile(encodedInfo []byte, algorithm contentaddr.Algorithm, announce []string) []byte {
	var encoder bencoder
	encoder.dictStart()
	if len(announce) > 0 {
		encoder.string("announce")
		encoder.string(announce[0])
	}
	if len(announce) > 1 {
		encoder.string("announce-list")
		encoder.listStart()
		for _, url := range announce {
			encoder.listStart()
			encoder.string(url)
			encoder.end()
		}
		encoder.end()
	}
	encoder.string("hash algorithm")
	encoder.string(string(algorithm))
	encoder.string("info")
	encoder.raw(encodedInfo)
	encoder.end()
	return encoder.buffer.Bytes()
}

// Decode parses an encoded descriptor file and recomputes its info hash.
// Only canonical encodings produced by [Builder.Build] are accepted.
func Decode(data []byte) (*Descriptor, error) {
	root, err := decodeBencode(data)
	if err != nil {
		return nil, err
	}
	if root.kind != 'd' {
		return nil, fmt.Errorf("%w: descriptor is not a dictionary", ErrEncoding)
	}
	for key := range root.dict {
		switch key {
		case "announce", "announce-list", "hash algorithm", "info":
		default:
			return nil, fmt.Errorf("%w: unknown descriptor key %q", ErrEncoding, key)
		}
	}

	algorithmName, err := dictString(root.dict, "hash algorithm")
	if err != nil {
		return nil, err
	}
	addressor, err := contentaddr.New(contentaddr.Algorithm(algorithmName))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}

	infoValue, ok := root.dict["info"]
	if !ok {
		return nil, fmt.Errorf("%w: missing %q", ErrEncoding, "info")
	}
	info, err := decodeInfo(infoValue)
	if err != nil {
		return nil, err
	}

	announce, err := decodeAnnounce(root.dict)
	if err != nil {
		return nil, err
	}

	if reencoded := encodeFile(infoValue.raw, addressor.Algorithm(), announce); !bytes.Equal(reencoded, data) {
		return nil, fmt.Errorf("%w: descriptor is not in canonical form", ErrEncoding)
	}

	return &Descriptor{
		Info:      info,
		InfoHash:  addressor.Digest(infoValue.raw),
		Algorithm: addressor.Algorithm(),
		Announce:  announce,
		Encoded:   bytes.Clone(data),
	}, nil
}

func decodeAnnounce(dict map[string]bvalue) ([]string, error) {
	if list, ok := dict["announce-list"]; ok {
		if list.kind != 'l' {
			return nil, fmt.Errorf("%w: announce-list is not a list", ErrEncoding)
		}
		var urls []string
		for _, tier := range list.list {
			if tier.kind != 'l' {
				return nil, fmt.Errorf("%w: announce-list tier is not a list", ErrEncoding)
			}
			for _, url := range tier.list {
				if url.kind != 's' {
					return nil, fmt.Errorf("%w: announce URL is not a string", ErrEncoding)
				}
				urls = append(urls, string(url.str))
			}
		}
		return urls, nil
	}
	if _, ok := dict["announce"]; ok {
		url, err := dictString(dict, "announce")
		if err != nil {
			return nil, err
		}
		return []string{string(url)}, nil
	}
	return nil, nil
}
