// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifactstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned by Load for keys with no stored value.
	ErrNotFound = errors.New("key not found")

	// ErrInvalidKey is returned for keys that are not clean relative
	// paths.
	ErrInvalidKey = errors.New("invalid storage key")
)

// Store persists opaque values under path-like keys. Implementations are
// safe for concurrent use.
type Store interface {
	// Save stores data under key, replacing any previous value.
	Save(ctx context.Context, key string, data []byte) error

	// Load returns the value stored under key.
	Load(ctx context.Context, key string) ([]byte, error)

	// Exists reports whether a value is stored under key.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes the value stored under key.
	Delete(ctx context.Context, key string) error
}

// ValidateKey checks that key is a non-empty relative path with no
// empty, "." or ".." components and no NUL or backslash characters.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	if strings.HasPrefix(key, "/") {
		return fmt.Errorf("%w: %q is absolute", ErrInvalidKey, key)
	}
	if strings.ContainsAny(key, "\x00\\") {
		return fmt.Errorf("%w: %q contains a forbidden character", ErrInvalidKey, key)
	}
	for component := range strings.SplitSeq(key, "/") {
		switch component {
		case "", ".", "..":
			return fmt.Errorf("%w: %q has component %q", ErrInvalidKey, key, component)
		}
	}
	return nil
}
