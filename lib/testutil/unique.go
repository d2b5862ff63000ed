// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"math/rand/v2"
	"sync/atomic"
)

var uniqueCounter atomic.Uint64

// UniqueID returns a string of the form "prefix-N" where N increases
// on every call. The result is a valid repository path component and
// tag when prefix is lowercase alphanumeric.
//
//	repository := testutil.UniqueID("app") // "app-1", "app-2", ...
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, uniqueCounter.Add(1))
}

// Content returns size bytes derived from seed. The same (seed, size)
// always yields the same bytes.
func Content(seed uint64, size int) []byte {
	source := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	content := make([]byte, size)
	for index := range content {
		content[index] = byte(source.Uint32())
	}
	return content
}
