// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package contentaddr computes the content digests that identify every
// object in the registry: blobs, manifests, individual transfer pieces,
// and transfer descriptor info hashes.
//
// A registry uses exactly one [Algorithm] for its whole lifetime. All
// digests flow through a single [Addressor] so that any two parties
// configured with the same algorithm compute bit-identical digests for
// the same bytes. Switching algorithms on an existing store orphans every
// key written under the old one.
//
// Digests use the OCI textual form "<algorithm>:<lowercase hex>" and are
// represented as [digest.Digest] from github.com/opencontainers/go-digest
// so they interoperate with the image-spec types. SHA-256 is the default
// and its textual form is validated by go-digest. BLAKE3 (256-bit output)
// is computed with github.com/zeebo/blake3; go-digest has no registered
// BLAKE3 digester, so parsing for that algorithm is done here.
package contentaddr
