// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package publish

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"sync"

	"github.com/bureau-foundation/napp/lib/appmeta"
	"github.com/bureau-foundation/napp/lib/event"
	"github.com/bureau-foundation/napp/lib/listing"
	"github.com/bureau-foundation/napp/lib/record"
	"github.com/bureau-foundation/napp/lib/relay"
)

var (
	// ErrNoIndex is returned for an app without index.html.
	ErrNoIndex = errors.New("app has no index.html")

	// ErrNoIcon is returned for an app without a favicon or a
	// configured icon file.
	ErrNoIcon = errors.New("app has no favicon")
)

// AppOptions describes one app upload.
type AppOptions struct {
	// Name is the app directory's name. The app id is derived from it
	// unless napp.jsonc sets one.
	Name string

	// Relays receive every event of the upload.
	Relays []string
}

// AppResult describes an uploaded app.
type AppResult struct {
	AppID           string
	Relays          []string
	Files           []FileResult
	Manifest        record.Manifest
	ManifestEventID string

	// Listing is nil when the Uploader has no Reconciler.
	Listing *listing.Result
}

// Published sums the chunk events sent for every file.
func (r AppResult) Published() int {
	var total int
	for _, file := range r.Files {
		total += file.Published
	}
	return total
}

// Skipped sums the chunks that were already stored.
func (r AppResult) Skipped() int {
	var total int
	for _, file := range r.Files {
		total += file.Skipped
	}
	return total
}

// UploadApp publishes every file in fsys, then the manifest naming
// them, then reconciles the listing. Entries whose name starts with a
// dot and the root napp.jsonc are not uploaded. The app must have an
// index.html and a favicon (or an icon named in napp.jsonc).
func (u *Uploader) UploadApp(ctx context.Context, fsys fs.FS, options AppOptions) (AppResult, error) {
	config, err := appmeta.ReadConfig(fsys)
	if err != nil {
		return AppResult{}, err
	}
	appID := config.ID
	if appID == "" {
		appID = appmeta.AppID(options.Name)
	}
	logger := u.logger().With("app_id", appID)

	names, err := appFiles(fsys)
	if err != nil {
		return AppResult{}, err
	}
	indexName, found := appmeta.FindIndex(names)
	if !found {
		return AppResult{}, ErrNoIndex
	}
	iconName, err := iconFile(names, config)
	if err != nil {
		return AppResult{}, err
	}

	relays := relay.Dedupe(options.Relays)
	if u.AuthorRelays {
		relays = relay.Dedupe(relays, u.writeRelays(ctx, relays))
	}
	if len(relays) == 0 {
		return AppResult{}, ErrNoRelays
	}
	logger.Info("uploading app", "files", len(names), "relays", len(relays))

	files, err := u.uploadFiles(ctx, fsys, names, relays)
	if err != nil {
		return AppResult{}, err
	}
	result := AppResult{AppID: appID, Relays: relays, Files: files}

	manifest := record.Manifest{AppID: appID, Author: u.Signer.PublicKey()}
	for _, file := range files {
		manifest.Files = append(manifest.Files, file.File)
	}
	manifestEventID, createdAt, err := u.publishManifest(ctx, manifest, relays)
	if err != nil {
		return AppResult{}, err
	}
	manifest.CreatedAt = createdAt
	result.Manifest = manifest
	result.ManifestEventID = manifestEventID
	logger.Info("manifest published", "event_id", manifestEventID)

	if u.Listings != nil {
		indexFile, _ := manifest.File(indexName)
		iconRecord, _ := manifest.File(iconName)
		proposal, err := proposeListing(fsys, appID, options.Name, config, indexFile, iconRecord)
		if err != nil {
			return AppResult{}, err
		}
		reconciled, err := u.Listings.Reconcile(ctx, proposal, relays)
		if err != nil {
			return AppResult{}, fmt.Errorf("reconciling listing: %w", err)
		}
		result.Listing = &reconciled
	}
	return result, nil
}

// appFiles lists the regular files of fsys in lexical order.
func appFiles(fsys fs.FS) ([]string, error) {
	var names []string
	err := fs.WalkDir(fsys, ".", func(name string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if name == "." {
			return nil
		}
		if strings.HasPrefix(entry.Name(), ".") {
			if entry.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if entry.IsDir() || name == appmeta.ConfigFileName || !entry.Type().IsRegular() {
			return nil
		}
		names = append(names, name)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing app files: %w", err)
	}
	return names, nil
}

func iconFile(names []string, config appmeta.AppConfig) (string, error) {
	if config.Icon != nil && *config.Icon != "" {
		if !slices.Contains(names, *config.Icon) {
			return "", fmt.Errorf("icon %q from %s is not an app file", *config.Icon, appmeta.ConfigFileName)
		}
		return *config.Icon, nil
	}
	name, found := appmeta.FindFavicon(names)
	if !found {
		return "", ErrNoIcon
	}
	return name, nil
}

// uploadFiles uploads names with up to FileConcurrency files in
// flight. Results keep the order of names. The first failure cancels
// the rest.
func (u *Uploader) uploadFiles(ctx context.Context, fsys fs.FS, names []string, relays []string) ([]FileResult, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	results := make([]FileResult, len(names))
	slots := make(chan struct{}, max(u.FileConcurrency, 1))
	var progressMutex sync.Mutex
	var filesDone int
	var waitGroup sync.WaitGroup

	for i, name := range names {
		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
		waitGroup.Go(func() {
			defer func() { <-slots }()
			report := func(done, total int) {
				if u.Progress == nil {
					return
				}
				progressMutex.Lock()
				defer progressMutex.Unlock()
				u.Progress(Progress{File: name, FilesDone: filesDone, FilesTotal: len(names), Chunk: done, ChunkTotal: total})
			}
			file, err := fsys.Open(name)
			if err != nil {
				cancel(fmt.Errorf("opening %s: %w", name, err))
				return
			}
			defer file.Close()
			result, err := u.uploadFile(ctx, file, name, appmeta.MimeType(name), relays, report)
			if err != nil {
				cancel(err)
				return
			}
			results[i] = result
			progressMutex.Lock()
			filesDone++
			progressMutex.Unlock()
		})
	}
	waitGroup.Wait()

	if err := context.Cause(ctx); err != nil {
		return nil, err
	}
	return results, nil
}

// writeRelays returns the author's advertised write relays, or nil if
// none can be found.
func (u *Uploader) writeRelays(ctx context.Context, relays []string) []string {
	client := u.Publisher.Client
	result := client.Query(ctx, event.Filter{
		Kinds:   []int{event.KindRelayList},
		Authors: []string{u.Signer.PublicKey()},
		Limit:   1,
	}, relays, u.Publisher.Timeout)
	newest, found := event.LatestOne(result.Events)
	if !found {
		u.logger().Debug("author advertises no relays")
		return nil
	}
	return relay.ParseRelayList(&newest).Write
}

func (u *Uploader) publishManifest(ctx context.Context, manifest record.Manifest, relays []string) (string, int64, error) {
	if err := manifest.Validate(); err != nil {
		return "", 0, err
	}
	unsigned := manifest.Event()
	unsigned.CreatedAt = u.Clock.Now().Unix()
	signed, err := u.Signer.Sign(ctx, unsigned)
	if err != nil {
		return "", 0, fmt.Errorf("signing manifest: %w", err)
	}
	if err := u.checkSize(&signed); err != nil {
		return "", 0, err
	}
	if _, err := u.Publisher.Publish(ctx, signed, relays); err != nil {
		return "", 0, fmt.Errorf("publishing manifest: %w", err)
	}
	return signed.ID, signed.CreatedAt, nil
}

// proposeListing derives listing values from index.html and the icon,
// with napp.jsonc values taking over as explicit ones.
func proposeListing(fsys fs.FS, appID, dirName string, config appmeta.AppConfig, index, icon record.File) (listing.Proposal, error) {
	proposal := listing.Proposal{
		AppID:    appID,
		Icon:     &record.Icon{Root: icon.Root, MimeType: icon.MimeType},
		Explicit: make(map[record.Field]bool),
	}

	file, err := fsys.Open(index.Name)
	if err != nil {
		return listing.Proposal{}, fmt.Errorf("opening %s: %w", index.Name, err)
	}
	defer file.Close()
	metadata, err := appmeta.ParseHTML(file)
	if err != nil {
		return listing.Proposal{}, fmt.Errorf("%s: %w", index.Name, err)
	}
	proposal.Name = metadata.Title
	if proposal.Name == "" {
		proposal.Name = strings.TrimSpace(dirName)
	}
	proposal.Summary = metadata.Description
	proposal.Hashtags = metadata.Keywords

	explicit := func(field record.Field, apply func()) {
		apply()
		proposal.Explicit[field] = true
	}
	if config.Name != nil {
		explicit(record.FieldName, func() { proposal.Name = *config.Name })
	}
	if config.Summary != nil {
		explicit(record.FieldSummary, func() { proposal.Summary = *config.Summary })
	}
	if config.Icon != nil && *config.Icon != "" {
		proposal.Explicit[record.FieldIcon] = true
	}
	if config.Categories != nil {
		explicit(record.FieldCategories, func() { proposal.Categories = *config.Categories })
	}
	if config.Hashtags != nil {
		explicit(record.FieldHashtags, func() { proposal.Hashtags = *config.Hashtags })
	}
	if config.Countries != nil {
		explicit(record.FieldCountries, func() { proposal.Countries = *config.Countries })
	}
	return proposal, nil
}
