// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Version is the semantic version, set at link time for releases.
var Version = "0.1.0-dev"

// Build describes the running binary.
type Build struct {
	Version   string `json:"version"`
	Revision  string `json:"revision,omitempty"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Current reads the build description.
func Current() Build {
	build := Build{
		Version:   Version,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		build.fill(info.Settings)
	}
	return build
}

func (b *Build) fill(settings []debug.BuildSetting) {
	for _, setting := range settings {
		switch setting.Key {
		case "vcs.revision":
			b.Revision = setting.Value
			if len(b.Revision) > 12 {
				b.Revision = b.Revision[:12]
			}
		case "vcs.modified":
			b.Modified = setting.Value == "true"
		}
	}
}

// String formats the build as "0.1.0-dev (1a2b3c4d5e6f-dirty, go1.25.6 linux/amd64)".
func (b Build) String() string {
	revision := b.Revision
	if revision == "" {
		revision = "unknown"
	}
	if b.Modified {
		revision += "-dirty"
	}
	return fmt.Sprintf("%s (%s, %s %s)", b.Version, revision, b.GoVersion, b.Platform)
}

// UserAgent is the product token napp sends to relays.
func UserAgent() string {
	return "napp/" + Version
}
