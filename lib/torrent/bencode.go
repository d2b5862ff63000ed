// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package torrent

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/bureau-foundation/swarmreg/lib/contentaddr"
)

// ErrEncoding is returned when descriptor metadata cannot be encoded
// canonically, or when an encoded descriptor is malformed.
var ErrEncoding = errors.New("descriptor encoding error")

// Info is the content-describing part of a descriptor. Its canonical
// encoding is what the info hash covers.
type Info struct {
	// Name is the artifact path: "<repository>/<reference>" for
	// manifests, the digest string for blobs.
	Name string

	// Length is the total artifact size in bytes.
	Length int64

	// PieceLength is the nominal size of every piece but the last.
	PieceLength uint32

	// PieceHashes holds one raw digest per piece, in piece order.
	PieceHashes [][]byte
}

// ValidateName checks that name is usable as an artifact path: non-empty
// valid UTF-8, relative, with no NUL bytes and no empty, "." or ".."
// components.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty artifact path", ErrEncoding)
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("%w: artifact path %q is not valid UTF-8", ErrEncoding, name)
	}
	if strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: artifact path contains NUL", ErrEncoding)
	}
	if strings.HasPrefix(name, "/") {
		return fmt.Errorf("%w: artifact path %q is absolute", ErrEncoding, name)
	}
	for component := range strings.SplitSeq(name, "/") {
		switch component {
		case "", ".", "..":
			return fmt.Errorf("%w: artifact path %q has component %q", ErrEncoding, name, component)
		}
	}
	return nil
}

// EncodeInfo returns the canonical bencoding of info. The dictionary keys
// are emitted in byte order: "length", "name", "piece length", "pieces".
// The piece count must match the length and piece length, and every hash
// must be [contentaddr.Size] bytes.
func EncodeInfo(info Info) ([]byte, error) {
	if err := ValidateName(info.Name); err != nil {
		return nil, err
	}
	if info.Length < 0 {
		return nil, fmt.Errorf("%w: negative length %d", ErrEncoding, info.Length)
	}
	if info.PieceLength == 0 {
		return nil, fmt.Errorf("%w: piece length must be positive", ErrInvalidPieceLength)
	}
	if want := PieceCount(info.Length, info.PieceLength); len(info.PieceHashes) != want {
		return nil, fmt.Errorf("%w: %d piece hashes for length %d at piece length %d, want %d",
			ErrEncoding, len(info.PieceHashes), info.Length, info.PieceLength, want)
	}

	pieces := make([]byte, 0, len(info.PieceHashes)*contentaddr.Size)
	for index, hash := range info.PieceHashes {
		if len(hash) != contentaddr.Size {
			return nil, fmt.Errorf("%w: piece %d hash is %d bytes, want %d",
				ErrEncoding, index, len(hash), contentaddr.Size)
		}
		pieces = append(pieces, hash...)
	}

	var encoder bencoder
	encoder.dictStart()
	encoder.string("length")
	encoder.integer(info.Length)
	encoder.string("name")
	encoder.string(info.Name)
	encoder.string("piece length")
	encoder.integer(int64(info.PieceLength))
	encoder.string("pieces")
	encoder.bytes(pieces)
	encoder.end()
	return encoder.buffer.Bytes(), nil
}

// bencoder appends bencode tokens to a buffer. Callers are responsible
// for emitting dictionary keys in sorted order.
type bencoder struct {
	buffer bytes.Buffer
}

func (e *bencoder) integer(value int64) {
	e.buffer.WriteByte('i')
	e.buffer.WriteString(strconv.FormatInt(value, 10))
	e.buffer.WriteByte('e')
}

func (e *bencoder) bytes(value []byte) {
	e.buffer.WriteString(strconv.Itoa(len(value)))
	e.buffer.WriteByte(':')
	e.buffer.Write(value)
}

func (e *bencoder) string(value string) {
	e.buffer.WriteString(strconv.Itoa(len(value)))
	e.buffer.WriteByte(':')
	e.buffer.WriteString(value)
}

func (e *bencoder) raw(value []byte) {
	e.buffer.Write(value)
}

func (e *bencoder) listStart() { e.buffer.WriteByte('l') }
func (e *bencoder) dictStart() { e.buffer.WriteByte('d') }
func (e *bencoder) end()       { e.buffer.WriteByte('e') }

// bvalue is a decoded bencode value. Exactly one of the typed fields is
// meaningful, selected by kind. raw is the value's exact encoded span.
type bvalue struct {
	kind    byte // 'i', 's', 'l', 'd'
	integer int64
	str     []byte
	list    []bvalue
	dict    map[string]bvalue
	raw     []byte
}

// maxDepth bounds list/dict nesting in decoded input.
const maxDepth = 32

// decodeBencode parses exactly one value from data. Trailing bytes are
// an error. Integers and string lengths must be in canonical form and
// dictionary keys must be strictly ascending, so any successfully decoded
// input re-encodes to the same bytes.
func decodeBencode(data []byte) (bvalue, error) {
	value, end, err := decodeAt(data, 0, 0)
	if err != nil {
		return bvalue{}, err
	}
	if end != len(data) {
		return bvalue{}, fmt.Errorf("%w: %d trailing bytes", ErrEncoding, len(data)-end)
	}
	return value, nil
}

func decodeAt(data []byte, position, depth int) (bvalue, int, error) {
	if position >= len(data) {
		return bvalue{}, 0, fmt.Errorf("%w: unexpected end of input", ErrEncoding)
	}
	if depth > maxDepth {
		return bvalue{}, 0, fmt.Errorf("%w: nesting deeper than %d", ErrEncoding, maxDepth)
	}

	start := position
	switch tag := data[position]; {
	case tag == 'i':
		terminator := bytes.IndexByte(data[position+1:], 'e')
		if terminator < 0 {
			return bvalue{}, 0, fmt.Errorf("%w: unterminated integer at offset %d", ErrEncoding, start)
		}
		text := string(data[position+1 : position+1+terminator])
		value, err := parseCanonicalInt(text)
		if err != nil {
			return bvalue{}, 0, fmt.Errorf("%w: integer at offset %d: %v", ErrEncoding, start, err)
		}
		end := position + 1 + terminator + 1
		return bvalue{kind: 'i', integer: value, raw: data[start:end]}, end, nil

	case tag >= '0' && tag <= '9':
		colon := bytes.IndexByte(data[position:], ':')
		if colon < 0 {
			return bvalue{}, 0, fmt.Errorf("%w: unterminated string length at offset %d", ErrEncoding, start)
		}
		length, err := parseCanonicalInt(string(data[position : position+colon]))
		if err != nil || length < 0 {
			return bvalue{}, 0, fmt.Errorf("%w: bad string length at offset %d", ErrEncoding, start)
		}
		begin := position + colon + 1
		if int64(len(data)-begin) < length {
			return bvalue{}, 0, fmt.Errorf("%w: string at offset %d overruns input", ErrEncoding, start)
		}
		end := begin + int(length)
		return bvalue{kind: 's', str: data[begin:end], raw: data[start:end]}, end, nil

	case tag == 'l':
		position++
		var list []bvalue
		for {
			if position >= len(data) {
				return bvalue{}, 0, fmt.Errorf("%w: unterminated list at offset %d", ErrEncoding, start)
			}
			if data[position] == 'e' {
				position++
				break
			}
			element, next, err := decodeAt(data, position, depth+1)
			if err != nil {
				return bvalue{}, 0, err
			}
			list = append(list, element)
			position = next
		}
		return bvalue{kind: 'l', list: list, raw: data[start:position]}, position, nil

	case tag == 'd':
		position++
		dict := make(map[string]bvalue)
		previous := ""
		first := true
		for {
			if position >= len(data) {
				return bvalue{}, 0, fmt.Errorf("%w: unterminated dictionary at offset %d", ErrEncoding, start)
			}
			if data[position] == 'e' {
				position++
				break
			}
			key, next, err := decodeAt(data, position, depth+1)
			if err != nil {
				return bvalue{}, 0, err
			}
			if key.kind != 's' {
				return bvalue{}, 0, fmt.Errorf("%w: dictionary key at offset %d is not a string", ErrEncoding, position)
			}
			name := string(key.str)
			if !first && name <= previous {
				return bvalue{}, 0, fmt.Errorf("%w: dictionary key %q out of order after %q", ErrEncoding, name, previous)
			}
			value, afterValue, err := decodeAt(data, next, depth+1)
			if err != nil {
				return bvalue{}, 0, err
			}
			dict[name] = value
			previous, first = name, false
			position = afterValue
		}
		return bvalue{kind: 'd', dict: dict, raw: data[start:position]}, position, nil

	default:
		return bvalue{}, 0, fmt.Errorf("%w: unexpected byte %q at offset %d", ErrEncoding, tag, start)
	}
}

// parseCanonicalInt rejects leading zeros, "-0", and empty input, which
// strconv would otherwise accept.
func parseCanonicalInt(text string) (int64, error) {
	if text == "" {
		return 0, errors.New("empty")
	}
	digits := strings.TrimPrefix(text, "-")
	if digits == "" || (len(digits) > 1 && digits[0] == '0') || text == "-0" {
		return 0, fmt.Errorf("non-canonical %q", text)
	}
	for _, character := range digits {
		if character < '0' || character > '9' {
			return 0, fmt.Errorf("non-digit in %q", text)
		}
	}
	return strconv.ParseInt(text, 10, 64)
}

// decodeInfo converts a decoded info dictionary back into an [Info] and
// checks that re-encoding it reproduces the original bytes.
func decodeInfo(value bvalue) (Info, error) {
	if value.kind != 'd' {
		return Info{}, fmt.Errorf("%w: info is not a dictionary", ErrEncoding)
	}
	if len(value.dict) != 4 {
		return Info{}, fmt.Errorf("%w: info has %d keys, want 4", ErrEncoding, len(value.dict))
	}

	length, err := dictInteger(value.dict, "length")
	if err != nil {
		return Info{}, err
	}
	name, err := dictString(value.dict, "name")
	if err != nil {
		return Info{}, err
	}
	pieceLength, err := dictInteger(value.dict, "piece length")
	if err != nil {
		return Info{}, err
	}
	if pieceLength <= 0 || pieceLength > int64(^uint32(0)) {
		return Info{}, fmt.Errorf("%w: piece length %d out of range", ErrEncoding, pieceLength)
	}
	pieces, err := dictString(value.dict, "pieces")
	if err != nil {
		return Info{}, err
	}
	if len(pieces)%contentaddr.Size != 0 {
		return Info{}, fmt.Errorf("%w: pieces field is %d bytes, not a multiple of %d",
			ErrEncoding, len(pieces), contentaddr.Size)
	}

	info := Info{
		Name:        string(name),
		Length:      length,
		PieceLength: uint32(pieceLength),
	}
	for offset := 0; offset < len(pieces); offset += contentaddr.Size {
		info.PieceHashes = append(info.PieceHashes, bytes.Clone(pieces[offset:offset+contentaddr.Size]))
	}

	reencoded, err := EncodeInfo(info)
	if err != nil {
		return Info{}, err
	}
	if !bytes.Equal(reencoded, value.raw) {
		return Info{}, fmt.Errorf("%w: info dictionary is not in canonical form", ErrEncoding)
	}
	return info, nil
}

func dictInteger(dict map[string]bvalue, key string) (int64, error) {
	value, ok := dict[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing %q", ErrEncoding, key)
	}
	if value.kind != 'i' {
		return 0, fmt.Errorf("%w: %q is not an integer", ErrEncoding, key)
	}
	return value.integer, nil
}

func dictString(dict map[string]bvalue, key string) ([]byte, error) {
	value, ok := dict[key]
	if !ok {
		return nil, fmt.Errorf("%w: missing %q", ErrEncoding, key)
	}
	if value.kind != 's' {
		return nil, fmt.Errorf("%w: %q is not a string", ErrEncoding, key)
	}
	return value.str, nil
}
