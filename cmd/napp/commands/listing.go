// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/napp/cmd/napp/cli"
	"github.com/bureau-foundation/napp/lib/record"
)

func listingCommand() *cli.Command {
	return &cli.Command{
		Name:        "listing",
		Summary:     "Inspect app listings",
		Subcommands: []*cli.Command{listingShowCommand()},
	}
}

type listingShowParams struct {
	Connection
	cli.JSONOutput
	Author string `flag:"author,a" desc:"publisher's hex public key (default: the local key)"`
}

type listingOutput struct {
	record.Listing
	CreatedAt int64 `json:"created_at"`
}

func listingShowCommand() *cli.Command {
	var params listingShowParams
	return &cli.Command{
		Name:    "show",
		Summary: "Show an app's current listing",
		Usage:   "napp listing show <app-id> [flags]",
		Description: `Print the newest listing for an app.

Fields marked (auto) were derived from the app's files and are
refreshed by the next upload. Unmarked fields were set by hand and are
kept.`,
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("show", &params) },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return cli.Validation("listing show takes exactly one app id")
			}
			session, err := params.open(logger)
			if err != nil {
				return err
			}
			author, err := session.author(params.Author)
			if err != nil {
				return err
			}
			reconciler := session.reconciler(nil, nil)
			current, createdAt, found, err := reconciler.Latest(ctx, author, args[0], session.config.Relays)
			if err != nil {
				return categorize(err)
			}
			if !found {
				return cli.NotFound("no listing for app %s by %s", args[0], author)
			}

			if done, err := params.EmitJSON(stdout, listingOutput{Listing: current, CreatedAt: createdAt}); done {
				return err
			}
			fmt.Fprintf(stdout, "app:        %s\n", current.AppID)
			fmt.Fprintf(stdout, "updated:    %s\n", time.Unix(createdAt, 0).UTC().Format(time.RFC3339))
			field := func(label string, name record.Field, value string) {
				if value == "" {
					return
				}
				marker := ""
				if current.IsAuto(name) {
					marker = " (auto)"
				}
				fmt.Fprintf(stdout, "%-11s %s%s\n", label+":", value, marker)
			}
			field("name", record.FieldName, current.Name)
			field("summary", record.FieldSummary, current.Summary)
			if current.Icon != nil {
				field("icon", record.FieldIcon, current.Icon.Root.String()+" "+current.Icon.MimeType)
			}
			field("categories", record.FieldCategories, strings.Join(current.Categories, ", "))
			field("hashtags", record.FieldHashtags, strings.Join(current.Hashtags, ", "))
			field("countries", record.FieldCountries, strings.Join(current.Countries, ", "))
			return nil
		},
	}
}
