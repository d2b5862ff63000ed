// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package registry coordinates manifest, blob, and repository operations
// over an [artifactstore.Store] and derives a transfer descriptor for
// every artifact it accepts.
//
// # Storage layout
//
// The coordinator is the only writer of these keys:
//
//	blobs/<digest>                          blob bytes
//	manifests/<name>/<reference>.json       manifest bytes (digest and tag references)
//	torrents/<digest>.torrent               blob descriptor
//	torrents/<name>/<reference>.torrent     manifest descriptor
//	repositories/<name>/_repository.cbor    repository record
//
// Digest-keyed values are write-once: a key is only ever written with
// bytes that hash to it, so concurrent writers race harmlessly. Tag
// bindings live in the repository record and change under a
// per-repository lock, with optional compare-and-swap against the
// previous binding.
//
// # Reads
//
// Everything read back by digest is re-verified. A stored value whose
// digest no longer matches is reported as [ErrIntegrity], never as
// [ErrNotFound]. Verified manifest bodies are cached for a configurable
// TTL.
//
// # Seeding
//
// After a write commits, the coordinator hands the content and its
// descriptor to a [Seeder]. [SeedQueue] makes that hand-off
// asynchronous; seeding failures are logged and never undo a write.
package registry
