// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the small command framework behind the napp binary: a
// tree of [Command] values dispatched by name, flags declared as tagged
// params structs ([FlagsFromParams]), optional --json output
// ([JSONOutput]), and typo suggestions for unknown commands and flags.
//
// Errors returned from a command's Run carry their exit status.
// [ExitError] exits quietly with a code; [Validation], [NotFound], and
// [Transient] wrap an error with a category the main function maps to
// an exit code via [ExitCodeFor].
package cli
