// Copyright (c) 2025 Fitbit, Inc. All rights reserved.
// Use of this source code is governed by the Golden Gate License
// that can be found in the LICENSE file.

// Package version holds build-time identification for the CLI binaries,
// overridden via -ldflags at release build time.
package version

var (
	Version   = "dev"
	GitCommit = "none"
	BuildTime = "unknown"
)
