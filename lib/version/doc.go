// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for the swarmreg binaries.
//
// [GitCommit], [GitDirty], [BuildTime] and [Version] are injected with
// -ldflags -X:
//
//	go build -ldflags "-X github.com/bureau-foundation/swarmreg/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// When they are not injected (go install, test runs) the commit and
// build time fall back to the VCS stamp the Go toolchain embeds, if any.
//
// [Info] is the --version line. [Full] adds the Go toolchain and
// platform. [UserAgent] is the value the registry sends in its
// Server header.
package version
