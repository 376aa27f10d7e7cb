// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"runtime/debug"
	"strings"
	"testing"
)

func TestBuildString(t *testing.T) {
	build := Build{Version: "1.2.0", GoVersion: "go1.25.6", Platform: "linux/amd64"}
	build.fill([]debug.BuildSetting{
		{Key: "vcs.revision", Value: "0123456789abcdef0123"},
		{Key: "vcs.modified", Value: "true"},
		{Key: "GOARCH", Value: "amd64"},
	})
	if got, want := build.String(), "1.2.0 (0123456789ab-dirty, go1.25.6 linux/amd64)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestBuildStringWithoutVCS(t *testing.T) {
	build := Build{Version: "0.1.0-dev", GoVersion: "go1.25.6", Platform: "darwin/arm64"}
	if got := build.String(); !strings.Contains(got, "(unknown, ") {
		t.Errorf("String() = %q", got)
	}
}

func TestCurrent(t *testing.T) {
	build := Current()
	if build.Version != Version || build.GoVersion == "" || !strings.Contains(build.Platform, "/") {
		t.Errorf("Current() = %+v", build)
	}
	if UserAgent() != "napp/"+Version {
		t.Errorf("UserAgent() = %q", UserAgent())
	}
}
