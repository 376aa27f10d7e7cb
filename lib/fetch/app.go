// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fetch

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/bureau-foundation/napp/lib/appmeta"
	"github.com/bureau-foundation/napp/lib/event"
	"github.com/bureau-foundation/napp/lib/record"
)

// Manifest returns author's newest manifest for appID.
func (f *Fetcher) Manifest(ctx context.Context, author, appID string, relays []string) (record.Manifest, error) {
	manifests, err := f.manifests(ctx, event.Filter{
		Kinds:   []int{event.KindManifest},
		Authors: []string{author},
		Tags:    map[string][]string{"d": {appID}},
		Limit:   1,
	}, relays)
	if err != nil {
		return record.Manifest{}, err
	}
	for _, manifest := range manifests {
		if manifest.AppID == appID {
			return manifest, nil
		}
	}
	return record.Manifest{}, fmt.Errorf("app %s by %s: %w", appID, author, ErrNotFound)
}

// Apps returns the newest manifest of every app author published,
// newest first.
func (f *Fetcher) Apps(ctx context.Context, author string, relays []string) ([]record.Manifest, error) {
	return f.manifests(ctx, event.Filter{
		Kinds:   []int{event.KindManifest},
		Authors: []string{author},
	}, relays)
}

func (f *Fetcher) manifests(ctx context.Context, filter event.Filter, relays []string) ([]record.Manifest, error) {
	result := f.Client.Query(ctx, filter, relays, f.Timeout)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(result.Events) == 0 && len(result.Errors) >= len(relays) && len(relays) > 0 {
		return nil, fmt.Errorf("querying manifests: %w", result.Errors[0])
	}

	var matching []event.Event
	for _, e := range result.Events {
		if e.Kind == event.KindManifest && slices.Contains(filter.Authors, e.PubKey) {
			matching = append(matching, e)
		}
	}
	var manifests []record.Manifest
	for _, e := range event.Latest(matching) {
		manifest, err := record.ParseManifest(&e)
		if err != nil {
			f.logger().Warn("skipping invalid manifest", "event_id", e.ID, "error", err)
			continue
		}
		manifests = append(manifests, manifest)
	}
	slices.SortStableFunc(manifests, func(a, b record.Manifest) int {
		return cmp.Compare(b.CreatedAt, a.CreatedAt)
	})
	return manifests, nil
}

// App fetches every file of manifest in order and passes each to
// visit. It stops at the first error from either.
func (f *Fetcher) App(ctx context.Context, manifest record.Manifest, relays []string, visit func(record.File, []byte) error) error {
	for _, file := range manifest.Files {
		data, err := f.File(ctx, manifest.Author, file.Root, relays, 0)
		if err != nil {
			return fmt.Errorf("fetching %s: %w", file.Name, err)
		}
		if err := visit(file, data); err != nil {
			return err
		}
	}
	return nil
}

// Metadata is what an app's own files say about it.
type Metadata struct {
	Name        string
	Description string
	Keywords    []string

	// Icon is the favicon's descriptor; IconData its content. Both
	// are empty when there is no favicon or it exceeds IconCap.
	Icon     *record.File
	IconData []byte
}

// AppMetadata reads the name and description from the app's
// index.html and downloads its favicon, bounded by IconCap. Missing or
// unreadable files leave their fields empty; only cancellation is an
// error.
func (f *Fetcher) AppMetadata(ctx context.Context, manifest record.Manifest, relays []string) (Metadata, error) {
	logger := f.logger().With("app_id", manifest.AppID)
	names := make([]string, len(manifest.Files))
	for i, file := range manifest.Files {
		names[i] = file.Name
	}

	var metadata Metadata
	if name, found := appmeta.FindIndex(names); found {
		file, _ := manifest.File(name)
		data, err := f.File(ctx, manifest.Author, file.Root, relays, 0)
		switch {
		case ctx.Err() != nil:
			return Metadata{}, ctx.Err()
		case err != nil:
			logger.Warn("index unavailable", "file", name, "error", err)
		default:
			parsed, err := appmeta.ParseHTML(bytes.NewReader(data))
			if err != nil {
				logger.Warn("index unreadable", "file", name, "error", err)
				break
			}
			metadata.Name = parsed.Title
			metadata.Description = parsed.Description
			metadata.Keywords = parsed.Keywords
		}
	}

	if name, found := appmeta.FindFavicon(names); found {
		file, _ := manifest.File(name)
		data, err := f.File(ctx, manifest.Author, file.Root, relays, f.IconCap)
		switch {
		case ctx.Err() != nil:
			return Metadata{}, ctx.Err()
		case err != nil:
			logger.Warn("icon unavailable", "file", name, "error", err)
		default:
			metadata.Icon = &file
			metadata.IconData = data
		}
	}
	return metadata, nil
}
