// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Code that stamps records with the current time takes a [Clock] instead
// of calling time.Now directly. Production wiring passes [Real]; tests
// pass [Fake] so timestamps in stored records are fixed and assertable:
//
//	c := clock.Fake(time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC))
//	coordinator := registry.New(registry.Config{Clock: c, ...})
//	c.Advance(time.Hour)
package clock
