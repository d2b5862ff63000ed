// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Swarmreg is a content-addressable artifact registry speaking a subset
// of the OCI distribution API. Every manifest and blob it accepts gets a
// transfer descriptor (a BitTorrent-style .torrent file) so clients can
// fetch artifacts from a swarm instead of only from the registry.
//
// # API
//
//	GET       /v2/                                     version check
//	GET, PUT  /v2/<name>                               repository record
//	GET, HEAD /v2/<name>/manifests/<reference>         manifest
//	PUT       /v2/<name>/manifests/<reference>         store manifest (If-Match for compare-and-swap)
//	GET, HEAD /v2/<name>/blobs/<digest>                blob
//	PUT       /v2/<name>/blobs/<digest>                store blob (monolithic upload)
//	GET       /v2/<name>/manifests/<reference>/torrent manifest descriptor
//	GET       /v2/<name>/blobs/<digest>/torrent        blob descriptor
//
// Successful writes return Docker-Content-Digest, Location, and
// X-Swarm-Info-Hash. Errors use the distribution error envelope.
//
// # Configuration
//
// Configuration is read from the file named by --config or
// SWARMREG_CONFIG (YAML, or JSON with comments). With neither set,
// built-in defaults apply. --listen and --store-dir override the file.
package main
