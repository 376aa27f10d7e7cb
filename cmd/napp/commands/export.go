// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/napp/cmd/napp/cli"
	"github.com/bureau-foundation/napp/lib/bundle"
)

type exportParams struct {
	Connection
	Author      string `flag:"author,a" desc:"publisher's hex public key (default: the local key)"`
	Output      string `flag:"output,o" desc:"archive path (default: <app-id>.tar.zst)"`
	Compression string `flag:"compression,c" default:"zstd" desc:"archive compression: zstd, lz4, or none"`
}

func exportCommand() *cli.Command {
	var params exportParams
	return &cli.Command{
		Name:    "export",
		Summary: "Save an app to a compressed tar archive",
		Usage:   "napp export <app-id> [flags]",
		Description: `Fetch the newest version of an app and write it to one archive.

The archive holds every file under its manifest name plus a receipt
(.napp-receipt.cbor) recording the app id, author, manifest time, and
each file's Merkle root.`,
		Examples: []cli.Example{
			{Description: "Export with lz4 to a chosen path", Command: "napp export calc -a <pubkey> -c lz4 -o calc.tar.lz4"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("export", &params) },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return cli.Validation("export takes exactly one app id")
			}
			appID := args[0]
			compression, err := bundle.ParseCompression(params.Compression)
			if err != nil {
				return cli.Validation("%w", err)
			}
			session, err := params.open(logger)
			if err != nil {
				return err
			}
			author, err := session.author(params.Author)
			if err != nil {
				return err
			}
			output := params.Output
			if output == "" {
				output = appID + compression.Extension()
			}

			fetcher := session.fetcher()
			manifest, err := fetcher.Manifest(ctx, author, appID, session.config.Relays)
			if err != nil {
				return categorize(err)
			}

			file, err := os.Create(output)
			if err != nil {
				return err
			}
			writer, err := bundle.NewWriter(file, compression, manifest, clk.Now())
			if err != nil {
				file.Close()
				return err
			}
			err = fetcher.App(ctx, manifest, session.config.Relays, writer.Add)
			if err == nil {
				err = writer.Close()
			}
			if closeErr := file.Close(); err == nil {
				err = closeErr
			}
			if err != nil {
				os.Remove(output)
				return categorize(err)
			}

			info, err := os.Stat(output)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "%s: %d files, %s\n", output, len(manifest.Files), humanize.IBytes(uint64(info.Size())))
			return nil
		},
	}
}
