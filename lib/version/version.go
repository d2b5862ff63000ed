// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
)

// Set via -ldflags at build time.
var (
	GitCommit = "unknown"
	GitDirty  = "false"
	BuildTime = "unknown"
	Version   = "0.1.0-dev"
)

var stampOnce sync.Once

// applyBuildStamp fills unset ldflags variables from the embedded VCS
// settings.
func applyBuildStamp() {
	stampOnce.Do(func() {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				if GitCommit == "unknown" && setting.Value != "" {
					GitCommit = setting.Value[:min(len(setting.Value), 12)]
				}
			case "vcs.time":
				if BuildTime == "unknown" && setting.Value != "" {
					BuildTime = setting.Value
				}
			case "vcs.modified":
				if setting.Value == "true" {
					GitDirty = "true"
				}
			}
		}
	})
}

// Info returns "0.1.0-dev (abc1234, 2026-02-10T...)".
func Info() string {
	applyBuildStamp()
	dirty := ""
	if GitDirty == "true" {
		dirty = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s)", Version, GitCommit, dirty, BuildTime)
}

// Full returns [Info] plus the Go version and platform.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// UserAgent returns "swarmreg/<version>".
func UserAgent() string {
	return "swarmreg/" + Version
}
