// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/napp/cmd/napp/cli"
	"github.com/bureau-foundation/napp/lib/chunk"
	"github.com/bureau-foundation/napp/lib/record"
)

func fetchCommand() *cli.Command {
	return &cli.Command{
		Name:    "fetch",
		Summary: "Download a file or a whole app",
		Subcommands: []*cli.Command{
			fetchFileCommand(),
			fetchAppCommand(),
		},
	}
}

type fetchFileParams struct {
	Connection
	Author string       `flag:"author,a" desc:"publisher's hex public key (default: the local key)"`
	Output string       `flag:"output,o" desc:"write to this file instead of stdout"`
	Cap    cli.ByteSize `flag:"cap" desc:"refuse files larger than this (e.g. 10MiB; default from config)"`
}

func fetchFileCommand() *cli.Command {
	var params fetchFileParams
	return &cli.Command{
		Name:    "file",
		Summary: "Download one file by its Merkle root",
		Usage:   "napp fetch file <root> [flags]",
		Description: `Reconstruct a file from its chunk events.

Every chunk is checked against the root with its Merkle proof before
it is decoded. A missing, duplicated, or corrupt chunk fails the fetch
and nothing is written.`,
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("file", &params) },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return cli.Validation("fetch file takes exactly one root")
			}
			root, err := chunk.ParseHash(args[0])
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
			sizeCap := session.config.Fetch.SizeCap
			if params.Cap > 0 {
				sizeCap = int64(params.Cap)
			}

			data, err := session.fetcher().File(ctx, author, root, session.config.Relays, sizeCap)
			if err != nil {
				return categorize(err)
			}
			if params.Output == "" || params.Output == "-" {
				_, err := stdout.Write(data)
				return err
			}
			if err := os.WriteFile(params.Output, data, 0o644); err != nil {
				return err
			}
			logger.Info("fetched file", "root", root, "size", humanize.IBytes(uint64(len(data))), "output", params.Output)
			return nil
		},
	}
}

type fetchAppParams struct {
	Connection
	Author string `flag:"author,a" desc:"publisher's hex public key (default: the local key)"`
	Output string `flag:"output,o" desc:"directory to write the app into (default: the app id)"`
}

func fetchAppCommand() *cli.Command {
	var params fetchAppParams
	return &cli.Command{
		Name:    "app",
		Summary: "Download every file of an app",
		Usage:   "napp fetch app <app-id> [flags]",
		Description: `Download the newest version of an app into a directory.

Files are written under the output directory by their manifest names.
Names that would escape the directory are refused.`,
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("app", &params) },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return cli.Validation("fetch app takes exactly one app id")
			}
			appID := args[0]
			session, err := params.open(logger)
			if err != nil {
				return err
			}
			author, err := session.author(params.Author)
			if err != nil {
				return err
			}
			directory := params.Output
			if directory == "" {
				directory = appID
			}

			fetcher := session.fetcher()
			manifest, err := fetcher.Manifest(ctx, author, appID, session.config.Relays)
			if err != nil {
				return categorize(err)
			}
			var total int64
			err = fetcher.App(ctx, manifest, session.config.Relays, func(file record.File, data []byte) error {
				total += int64(len(data))
				return writeAppFile(directory, file.Name, data)
			})
			if err != nil {
				return categorize(err)
			}
			fmt.Fprintf(stdout, "%d files, %s written to %s\n", len(manifest.Files), humanize.IBytes(uint64(total)), directory)
			return nil
		},
	}
}

// writeAppFile writes data to name under directory, creating parent
// directories.
func writeAppFile(directory, name string, data []byte) error {
	local, err := filepath.Localize(name)
	if err != nil || !filepath.IsLocal(local) {
		return fmt.Errorf("refusing to write %q outside %s", name, directory)
	}
	target := filepath.Join(directory, local)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	return os.WriteFile(target, data, 0o644)
}
