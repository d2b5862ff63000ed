// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package contentaddr

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/opencontainers/go-digest"
	"github.com/zeebo/blake3"
)

// Algorithm names a supported digest algorithm. The string value is the
// prefix used in the textual digest form.
type Algorithm string

const (
	// SHA256 is the OCI default and the registry default.
	SHA256 Algorithm = "sha256"

	// BLAKE3 is BLAKE3 with the default 32-byte output.
	BLAKE3 Algorithm = "blake3"
)

// Size is the raw digest length in bytes for every supported algorithm.
const Size = 32

// ErrInvalidDigest is returned by [Addressor.Parse] for strings that are
// not well-formed digests of the configured algorithm.
var ErrInvalidDigest = errors.New("invalid digest")

// ParseAlgorithm validates an algorithm name from configuration.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch Algorithm(name) {
	case SHA256, BLAKE3:
		return Algorithm(name), nil
	default:
		return "", fmt.Errorf("unsupported digest algorithm %q (want %q or %q)", name, SHA256, BLAKE3)
	}
}

// Addressor computes digests with a fixed algorithm. It holds no mutable
// state and is safe for concurrent use.
type Addressor struct {
	algorithm Algorithm
}

// New returns an Addressor for the given algorithm.
func New(algorithm Algorithm) (*Addressor, error) {
	if _, err := ParseAlgorithm(string(algorithm)); err != nil {
		return nil, err
	}
	return &Addressor{algorithm: algorithm}, nil
}

// Default returns a SHA-256 Addressor.
func Default() *Addressor {
	return &Addressor{algorithm: SHA256}
}

// Algorithm returns the configured algorithm.
func (a *Addressor) Algorithm() Algorithm {
	return a.algorithm
}

// Sum returns the raw digest bytes of content. This is the form
// concatenated into a transfer descriptor's piece table.
func (a *Addressor) Sum(content []byte) []byte {
	var sum [Size]byte
	switch a.algorithm {
	case BLAKE3:
		sum = blake3.Sum256(content)
	default:
		sum = sha256.Sum256(content)
	}
	return sum[:]
}

// Digest returns the textual digest of content. It is always derived
// from [Addressor.Sum].
func (a *Addressor) Digest(content []byte) digest.Digest {
	return digest.NewDigestFromEncoded(digest.Algorithm(a.algorithm), hex.EncodeToString(a.Sum(content)))
}

// Verify reports whether content hashes to expected. A digest of a
// different algorithm never verifies.
func (a *Addressor) Verify(expected digest.Digest, content []byte) bool {
	if Algorithm(expected.Algorithm()) != a.algorithm {
		return false
	}
	return a.Digest(content) == expected
}

// Parse validates a textual digest and returns it. Only digests of the
// configured algorithm are accepted; hex must be lowercase and exactly
// [Size] bytes long.
func (a *Addressor) Parse(value string) (digest.Digest, error) {
	algorithm, encoded, found := strings.Cut(value, ":")
	if !found {
		return "", fmt.Errorf("%w: %q has no algorithm prefix", ErrInvalidDigest, value)
	}
	if Algorithm(algorithm) != a.algorithm {
		return "", fmt.Errorf("%w: algorithm %q, registry uses %q", ErrInvalidDigest, algorithm, a.algorithm)
	}

	switch a.algorithm {
	case SHA256:
		parsed, err := digest.Parse(value)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidDigest, err)
		}
		return parsed, nil
	default:
		if len(encoded) != hex.EncodedLen(Size) {
			return "", fmt.Errorf("%w: %q has %d hex characters, want %d",
				ErrInvalidDigest, value, len(encoded), hex.EncodedLen(Size))
		}
		if strings.ToLower(encoded) != encoded {
			return "", fmt.Errorf("%w: %q is not lowercase hex", ErrInvalidDigest, value)
		}
		if _, err := hex.DecodeString(encoded); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidDigest, err)
		}
		return digest.Digest(value), nil
	}
}

// IsDigest reports whether value looks like a digest reference rather
// than a tag. Tags cannot contain ':', so the presence of an algorithm
// separator is sufficient to classify the reference; whether the digest
// is actually valid is decided by [Addressor.Parse].
func IsDigest(value string) bool {
	return strings.Contains(value, ":")
}
