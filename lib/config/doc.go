// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the swarmreg daemon.
//
// Configuration is loaded from a single file specified by either the
// SWARMREG_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There is no automatic file search. When neither is
// given the daemon runs on [Default].
//
// YAML is the primary format. Files named *.json or *.jsonc are accepted
// too: comments and trailing commas are stripped with tidwall/jsonc and
// the result is decoded by the same YAML decoder, so field names are
// identical across formats. Durations use Go syntax ("10s", "5m").
//
// The file may contain environment-specific sections (development,
// staging, production) that override base values when
// [Config].Environment matches. Production without an explicit section
// gets warn-level logging and automatic storage compression.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${SWARMREG_ROOT} (the resolved storage root), and
// ${VAR:-default} patterns. No other environment variables override
// config values.
//
// This package depends on no other swarmreg packages.
package config
