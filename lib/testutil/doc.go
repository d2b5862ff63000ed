// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for swarmreg packages.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-timeout
// pattern for asynchronous assertions (seed queue deliveries, server
// readiness) so individual tests do not call time.After directly.
//
// [UniqueID] returns monotonically increasing identifiers for tests that
// need distinct repository names or tags within one process.
//
// [Content] returns deterministic pseudo-random payloads of a given size
// for tests that need multi-piece blobs.
//
// All helpers call t.Fatalf on failure rather than returning errors.
package testutil
