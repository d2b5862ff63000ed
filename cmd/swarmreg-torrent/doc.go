// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Command swarmreg-torrent builds and inspects transfer descriptors
// without a running registry.
//
// The build subcommand produces the same bytes the registry derives for
// a blob or manifest with the same artifact path, piece length, digest
// algorithm and tracker list, so a descriptor built offline for
// "library/app/latest" has the info hash the registry reports in
// X-Swarm-Info-Hash:
//
//	swarmreg-torrent build manifest.json --name library/app/latest --piece-length 262144
//	swarmreg-torrent inspect --pieces manifest.json.torrent
package main
