// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Command napp publishes web apps to Nostr relays as chunked,
// Merkle-verified events and fetches them back.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bureau-foundation/napp/cmd/napp/cli"
	"github.com/bureau-foundation/napp/cmd/napp/commands"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := commands.Root().Execute(ctx, os.Args[1:])
	code, printed := cli.ExitCodeFor(err)
	if printed {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	return code
}
