// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the registry's CBOR encoding configuration.
//
// The registry uses three serialization formats with a clear boundary:
//
//   - JSON for the HTTP API: manifests (stored byte-for-byte as
//     uploaded), repository listings, and error envelopes.
//   - Bencode for transfer descriptors, which must be readable by
//     BitTorrent tooling.
//   - CBOR for internal on-disk records, currently the repository
//     record holding tag bindings.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2), so the
// same logical record always produces identical bytes:
//
//	data, err := codec.Marshal(record)
//	err = codec.Unmarshal(data, &record)
//
// Types that are both stored and served over HTTP carry `json` tags
// only; fxamacker/cbor reads `json` tags when `cbor` tags are absent,
// so one tag controls field naming in both formats. Types that never
// leave the disk use `cbor` tags. Never put both on one field.
package codec
