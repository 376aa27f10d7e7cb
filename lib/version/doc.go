// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports the napp build's version.
//
// Release builds set Version with -ldflags:
//
//	go build -ldflags "-X github.com/bureau-foundation/napp/lib/version.Version=1.2.0" ./cmd/napp
//
// The VCS revision and dirty flag come from the module build info the
// Go toolchain embeds, so they need no flags.
package version
