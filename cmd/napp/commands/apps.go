// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/napp/cmd/napp/cli"
)

type appsParams struct {
	Connection
	cli.JSONOutput
	Author   string `flag:"author,a" desc:"publisher's hex public key (default: the local key)"`
	Metadata bool   `flag:"metadata,m" desc:"also fetch each app's title and description"`
}

type appEntry struct {
	AppID       string `json:"app_id"`
	Files       int    `json:"files"`
	CreatedAt   int64  `json:"created_at"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

func appsCommand() *cli.Command {
	var params appsParams
	return &cli.Command{
		Name:    "apps",
		Summary: "List an author's published apps",
		Usage:   "napp apps [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("apps", &params) },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 0 {
				return cli.Validation("apps takes no arguments")
			}
			session, err := params.open(logger)
			if err != nil {
				return err
			}
			author, err := session.author(params.Author)
			if err != nil {
				return err
			}
			fetcher := session.fetcher()
			manifests, err := fetcher.Apps(ctx, author, session.config.Relays)
			if err != nil {
				return categorize(err)
			}

			entries := make([]appEntry, 0, len(manifests))
			for _, manifest := range manifests {
				entry := appEntry{AppID: manifest.AppID, Files: len(manifest.Files), CreatedAt: manifest.CreatedAt}
				if params.Metadata {
					metadata, err := fetcher.AppMetadata(ctx, manifest, session.config.Relays)
					if err != nil {
						return err
					}
					entry.Name = metadata.Name
					entry.Description = metadata.Description
				}
				entries = append(entries, entry)
			}

			if done, err := params.EmitJSON(stdout, entries); done {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintf(stdout, "no apps published by %s\n", author)
				return nil
			}
			table := tabwriter.NewWriter(stdout, 2, 0, 3, ' ', 0)
			if params.Metadata {
				fmt.Fprintln(table, "APP\tFILES\tPUBLISHED\tNAME")
			} else {
				fmt.Fprintln(table, "APP\tFILES\tPUBLISHED")
			}
			for _, entry := range entries {
				published := humanize.Time(time.Unix(entry.CreatedAt, 0))
				if params.Metadata {
					fmt.Fprintf(table, "%s\t%d\t%s\t%s\n", entry.AppID, entry.Files, published, entry.Name)
				} else {
					fmt.Fprintf(table, "%s\t%d\t%s\n", entry.AppID, entry.Files, published)
				}
			}
			return table.Flush()
		},
	}
}
