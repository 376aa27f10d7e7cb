// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/napp/cmd/napp/cli"
)

type filesParams struct {
	Connection
	cli.JSONOutput
	Author string `flag:"author,a" desc:"publisher's hex public key (default: the local key)"`
}

type ledgerFile struct {
	Name     string `json:"name"`
	Root     string `json:"root"`
	MimeType string `json:"mime_type,omitempty"`
	Chunks   int    `json:"chunks"`
	Size     int64  `json:"size"`
}

func filesCommand() *cli.Command {
	var params filesParams
	return &cli.Command{
		Name:    "files",
		Summary: "List files published from this machine",
		Description: `List the files recorded in the local publish ledger, newest first.
Only uploads made from this machine appear; use "napp apps" to see
what relays hold.`,
		Usage: "napp files [flags]",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("files", &params) },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 0 {
				return cli.Validation("files takes no arguments")
			}
			session, err := params.open(logger)
			if err != nil {
				return err
			}
			author, err := session.author(params.Author)
			if err != nil {
				return err
			}
			store, err := session.openLedger()
			if err != nil {
				return err
			}
			if store == nil {
				return cli.Validation("the publish ledger is disabled (paths.ledger is empty)")
			}
			defer store.Close()

			published, err := store.Files(ctx, author)
			if err != nil {
				return err
			}
			entries := make([]ledgerFile, len(published))
			for i, file := range published {
				entries[i] = ledgerFile{
					Name:     file.Name,
					Root:     file.Root.String(),
					MimeType: file.MimeType,
					Chunks:   file.Chunks,
					Size:     file.Size,
				}
			}

			if done, err := params.EmitJSON(stdout, entries); done {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(stdout, "no files published from this machine")
				return nil
			}
			table := tabwriter.NewWriter(stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(table, "NAME\tSIZE\tCHUNKS\tROOT")
			for _, entry := range entries {
				fmt.Fprintf(table, "%s\t%s\t%d\t%s\n", entry.Name, humanize.IBytes(uint64(entry.Size)), entry.Chunks, entry.Root)
			}
			return table.Flush()
		},
	}
}
