// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package artifactstore is the key/value persistence layer beneath the
// registry. Keys are slash-separated relative paths such as
// "blobs/sha256:..." or "torrents/library/app/latest.torrent"; values
// are opaque byte strings.
//
// Every [Store] implementation guarantees:
//
//   - Save is atomic: a concurrent or later Load sees either the previous
//     value or the new one, never a partial write. An interrupted Save
//     leaves the previous value intact.
//   - Save of identical bytes is idempotent. Save unconditionally
//     replaces; write-once and last-writer-wins decisions belong to the
//     caller.
//   - Load of an absent key returns an error wrapping [ErrNotFound].
//   - Delete of an absent key succeeds.
//
// [Filesystem] is the production backend. [Memory] backs tests and
// ephemeral registries. [Compressed] and [Encrypted] wrap any Store to
// transform values at rest; they can be stacked (compress, then encrypt)
// and are transparent to the caller.
package artifactstore
