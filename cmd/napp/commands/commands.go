// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the napp command tree.
package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/napp/cmd/napp/cli"
	"github.com/bureau-foundation/napp/lib/version"
)

// Root returns the complete napp command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "napp",
		Description: `napp: publish and fetch web apps on Nostr relays.

Files are split into fixed-size chunks, each published as a signed,
Merkle-verifiable event. A manifest event lists an app's files and a
listing event describes the app to people browsing for it.

Configuration comes from --config, the NAPP_CONFIG environment
variable, or built-in defaults, in that order.`,
		Subcommands: []*cli.Command{
			uploadCommand(),
			fetchCommand(),
			appsCommand(),
			filesCommand(),
			exportCommand(),
			listingCommand(),
			keyCommand(),
			versionCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "Create a key, then publish the app in ./calc",
				Command:     "napp key generate && napp upload ./calc",
			},
			{
				Description: "Download someone's app into a directory",
				Command:     "napp fetch app 0blls6z --author <pubkey> -o ./app",
			},
		},
	}
}

type versionParams struct {
	cli.JSONOutput
}

func versionCommand() *cli.Command {
	var params versionParams
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("version", &params) },
		Run: func(_ context.Context, _ []string, _ *slog.Logger) error {
			build := version.Current()
			if done, err := params.EmitJSON(stdout, build); done {
				return err
			}
			fmt.Fprintf(stdout, "napp %s\n", build)
			return nil
		},
	}
}
