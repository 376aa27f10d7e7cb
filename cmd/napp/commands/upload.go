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
	"github.com/bureau-foundation/napp/lib/publish"
)

type uploadParams struct {
	Connection
	cli.JSONOutput
	Name  string `flag:"name" desc:"app name used to derive the app id (default: the directory name)"`
	Quiet bool   `flag:"quiet,q" desc:"do not report progress"`
}

// uploadSummary is the --json output of upload.
type uploadSummary struct {
	AppID     string           `json:"app_id"`
	Author    string           `json:"author"`
	Manifest  string           `json:"manifest_event_id"`
	Relays    []string         `json:"relays"`
	Files     []uploadedFile   `json:"files"`
	Published int              `json:"published_chunks"`
	Skipped   int              `json:"skipped_chunks"`
	Listing   *uploadedListing `json:"listing,omitempty"`
}

type uploadedFile struct {
	Name      string `json:"name"`
	Root      string `json:"root"`
	MimeType  string `json:"mime_type"`
	Size      int64  `json:"size"`
	Chunks    int    `json:"chunks"`
	Published int    `json:"published_chunks"`
}

type uploadedListing struct {
	Name      string `json:"name"`
	Published bool   `json:"published"`
	EventID   string `json:"event_id,omitempty"`
}

func uploadCommand() *cli.Command {
	var params uploadParams
	return &cli.Command{
		Name:    "upload",
		Summary: "Publish an app directory",
		Usage:   "napp upload <dir> [flags]",
		Description: `Publish every file of an app directory, then its manifest and listing.

The directory must contain index.html (or index.htm) and a favicon at
its root. Files and directories starting with "." are skipped, as is
napp.jsonc, which may set the app id and listing fields:

  {
    "id": "calc",          // base36, at most 7 characters
    "name": "Calculator",
    "summary": "Adds things up",
    "categories": ["tools"]
  }

Listing fields set in napp.jsonc are marked as edited by hand and are
never overwritten by later uploads; fields derived from index.html are
refreshed on every upload unless someone edited them since.

Chunks already stored on the relays (or recorded in the local ledger)
are not sent again, so re-uploading an unchanged app publishes only the
manifest.`,
		Examples: []cli.Example{
			{Description: "Publish ./calc to the configured relays", Command: "napp upload ./calc"},
			{Description: "Publish to one relay only", Command: "napp upload ./calc --relay wss://relay.example"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("upload", &params) },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return cli.Validation("upload takes exactly one directory")
			}
			directory, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			if info, err := os.Stat(directory); err != nil || !info.IsDir() {
				return cli.Validation("%s is not a directory", args[0])
			}
			name := params.Name
			if name == "" {
				name = filepath.Base(directory)
			}

			session, err := params.open(logger)
			if err != nil {
				return err
			}
			key, err := session.key()
			if err != nil {
				return err
			}
			store, err := session.openLedger()
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close()
			}

			uploader := session.uploader(key, store)
			if !params.Quiet && !params.OutputJSON && cli.IsTerminal(os.Stderr) {
				uploader.Progress = printProgress
			}

			logger.Info("uploading app", "directory", directory, "name", name, "relays", len(session.config.Relays))
			result, err := uploader.UploadApp(ctx, os.DirFS(directory), publish.AppOptions{
				Name:   name,
				Relays: session.config.Relays,
			})
			if uploader.Progress != nil {
				fmt.Fprintln(os.Stderr)
			}
			if err != nil {
				return categorize(err)
			}

			summary := summarizeUpload(key.PublicKey(), result)
			if done, err := params.EmitJSON(stdout, summary); done {
				return err
			}
			var total int64
			for _, file := range summary.Files {
				total += file.Size
			}
			fmt.Fprintf(stdout, "app %s by %s\n", summary.AppID, summary.Author)
			fmt.Fprintf(stdout, "%d files, %s, %d chunks published, %d already present\n",
				len(summary.Files), humanize.IBytes(uint64(total)), summary.Published, summary.Skipped)
			fmt.Fprintf(stdout, "manifest %s on %d relays\n", summary.Manifest, len(summary.Relays))
			if summary.Listing != nil {
				state := "unchanged"
				if summary.Listing.Published {
					state = "updated"
				}
				fmt.Fprintf(stdout, "listing %q %s\n", summary.Listing.Name, state)
			}
			return nil
		},
	}
}

func summarizeUpload(author string, result publish.AppResult) uploadSummary {
	summary := uploadSummary{
		AppID:     result.AppID,
		Author:    author,
		Manifest:  result.ManifestEventID,
		Relays:    result.Relays,
		Published: result.Published(),
		Skipped:   result.Skipped(),
	}
	for _, file := range result.Files {
		summary.Files = append(summary.Files, uploadedFile{
			Name:      file.File.Name,
			Root:      file.File.Root.String(),
			MimeType:  file.File.MimeType,
			Size:      file.File.Size,
			Chunks:    file.File.Chunks,
			Published: file.Published,
		})
	}
	if result.Listing != nil {
		summary.Listing = &uploadedListing{
			Name:      result.Listing.Listing.Name,
			Published: result.Listing.Published,
			EventID:   result.Listing.EventID,
		}
	}
	return summary
}

func printProgress(progress publish.Progress) {
	fmt.Fprintf(os.Stderr, "\r\033[K[%d/%d] %s chunk %d/%d",
		min(progress.FilesDone+1, progress.FilesTotal), progress.FilesTotal, progress.File, progress.Chunk, progress.ChunkTotal)
}
