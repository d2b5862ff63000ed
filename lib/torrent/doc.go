// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package torrent derives transfer descriptors: piece-hashed,
// swarm-distributable descriptions of registry artifacts, analogous to
// BitTorrent metainfo files.
//
// The package is organized in three layers:
//
//   - Segmentation: content is split into fixed-size pieces starting at
//     offset zero. Only the final piece may be shorter. Each piece is
//     hashed independently with the registry's [contentaddr.Addressor].
//     Empty content has no pieces.
//
//   - Canonical encoding: descriptor metadata is serialized with bencode
//     (BEP 3). Dictionary keys are written in a fixed, byte-sorted order
//     by hand rather than by iterating a map, so any implementation that
//     follows the same layout produces identical bytes. The info
//     dictionary has exactly four keys: "length", "name",
//     "piece length", and "pieces".
//
//   - Building: [Builder.Build] composes the two and computes the info
//     hash, the digest of the encoded info dictionary. A descriptor is
//     fully determined by (artifact path, content, piece length): the
//     encoded file has no timestamps or other ambient values, so
//     rebuilding yields byte-identical output.
//
// Piece hashes use the same algorithm as every other digest in the
// registry. The algorithm name is recorded in the outer dictionary under
// "hash algorithm" so readers can tell SHA-256 and BLAKE3 descriptors
// apart; it is deliberately outside the info dictionary and does not
// affect the info hash.
package torrent
