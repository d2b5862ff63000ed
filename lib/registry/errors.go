// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"errors"
	"fmt"
)

// Error categories returned by [Coordinator] operations. Every error
// wraps exactly one of these, so callers classify with errors.Is.
var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrDigestMismatch = errors.New("digest mismatch")
	ErrParse          = errors.New("parse error")
	ErrIntegrity      = errors.New("integrity check failed")
	ErrIOFailure      = errors.New("storage failure")
	ErrInvalidName    = errors.New("invalid name")
	ErrTooLarge       = errors.New("payload too large")
)

// ioFailure wraps a store error as ErrIOFailure while keeping the cause
// matchable (context.Canceled in particular).
func ioFailure(err error, format string, args ...any) error {
	return fmt.Errorf("%s: %w: %w", fmt.Sprintf(format, args...), ErrIOFailure, err)
}
