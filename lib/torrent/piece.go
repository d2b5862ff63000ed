// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package torrent

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/swarmreg/lib/contentaddr"
)

// DefaultPieceLength is the piece length used when none is configured.
const DefaultPieceLength = 256 * 1024 // 256 KiB

// ErrInvalidPieceLength is returned when a piece length of zero is
// requested.
var ErrInvalidPieceLength = errors.New("invalid piece length")

// Piece is one contiguous byte range of an artifact with its digest.
type Piece struct {
	// Index is the zero-based position of the piece.
	Index int

	// Offset is the byte offset of the piece within the artifact.
	Offset int64

	// Data is the piece's bytes. It is a slice into the segmented
	// content and is only valid while that buffer is unmodified.
	Data []byte

	// Hash is the raw digest of Data alone.
	Hash []byte
}

// Length returns the piece's byte length.
func (p Piece) Length() int {
	return len(p.Data)
}

// Segmenter splits content into fixed-length pieces. Create one with
// [NewSegmenter] and call [Segmenter.Next] until it returns nil.
type Segmenter struct {
	addressor   *contentaddr.Addressor
	data        []byte
	pieceLength int
	position    int
	index       int
}

// NewSegmenter creates a segmenter over content. The content slice is
// not copied; the caller must not modify it while iterating.
func NewSegmenter(addressor *contentaddr.Addressor, content []byte, pieceLength uint32) (*Segmenter, error) {
	if pieceLength == 0 {
		return nil, fmt.Errorf("%w: piece length must be positive", ErrInvalidPieceLength)
	}
	return &Segmenter{
		addressor:   addressor,
		data:        content,
		pieceLength: int(pieceLength),
	}, nil
}

// Next returns the next piece, or nil when all content has been
// consumed.
func (s *Segmenter) Next() *Piece {
	if s.position >= len(s.data) {
		return nil
	}

	end := min(s.position+s.pieceLength, len(s.data))
	piece := pieceAt(s.addressor, s.data, s.index, s.position, end)

	s.position = end
	s.index++
	return &piece
}

// Segment splits content into pieces of pieceLength bytes and hashes
// each one. The last piece holds the remainder when the content length
// is not a multiple of pieceLength. Empty content yields an empty,
// non-nil slice.
func Segment(addressor *contentaddr.Addressor, content []byte, pieceLength uint32) ([]Piece, error) {
	segmenter, err := NewSegmenter(addressor, content, pieceLength)
	if err != nil {
		return nil, err
	}

	pieces := make([]Piece, 0, PieceCount(int64(len(content)), pieceLength))
	for {
		piece := segmenter.Next()
		if piece == nil {
			break
		}
		pieces = append(pieces, *piece)
	}
	return pieces, nil
}

// SegmentParallel produces the same pieces as [Segment] but hashes up
// to workers pieces concurrently. Pieces are written into their index
// slot, so the result order does not depend on scheduling.
func SegmentParallel(ctx context.Context, addressor *contentaddr.Addressor, content []byte, pieceLength uint32, workers int) ([]Piece, error) {
	if pieceLength == 0 {
		return nil, fmt.Errorf("%w: piece length must be positive", ErrInvalidPieceLength)
	}
	if workers < 1 {
		workers = 1
	}

	count := PieceCount(int64(len(content)), pieceLength)
	pieces := make([]Piece, count)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)
	for index := range count {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			start := index * int(pieceLength)
			end := min(start+int(pieceLength), len(content))
			pieces[index] = pieceAt(addressor, content, index, start, end)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("hashing pieces: %w", err)
	}
	return pieces, nil
}

// PieceCount returns ceil(length / pieceLength), the number of pieces
// [Segment] produces for content of the given length.
func PieceCount(length int64, pieceLength uint32) int {
	if pieceLength == 0 || length <= 0 {
		return 0
	}
	return int((length + int64(pieceLength) - 1) / int64(pieceLength))
}

func pieceAt(addressor *contentaddr.Addressor, content []byte, index, start, end int) Piece {
	data := content[start:end]
	return Piece{
		Index:  index,
		Offset: int64(start),
		Data:   data,
		Hash:   addressor.Sum(data),
	}
}
