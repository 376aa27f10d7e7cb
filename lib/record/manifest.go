// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package record

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/napp/lib/chunk"
	"github.com/bureau-foundation/napp/lib/event"
)

// File describes one published file. Chunks and Size are known to the
// uploader but are not part of the manifest's wire form.
type File struct {
	Root     chunk.Hash `json:"root"`
	Name     string     `json:"name"`
	MimeType string     `json:"mime_type"`
	Chunks   int        `json:"chunks,omitempty"`
	Size     int64      `json:"size,omitempty"`
}

// Manifest lists every file of one published app version.
type Manifest struct {
	AppID     string `json:"app_id"`
	Files     []File `json:"files"`
	Author    string `json:"author,omitempty"`
	CreatedAt int64  `json:"created_at,omitempty"`
}

var (
	// ErrNoAppID is returned for manifests and listings without a "d" tag.
	ErrNoAppID = errors.New("record has no app id")

	// ErrNoFiles is returned for a manifest listing no files.
	ErrNoFiles = errors.New("manifest lists no files")
)

// Validate checks that the manifest names an app and at least one file,
// and that file names are non-empty and unique.
func (m Manifest) Validate() error {
	if m.AppID == "" {
		return ErrNoAppID
	}
	if len(m.Files) == 0 {
		return ErrNoFiles
	}
	names := make(map[string]bool, len(m.Files))
	for _, file := range m.Files {
		if file.Name == "" {
			return fmt.Errorf("manifest %s: file %s has no name", m.AppID, file.Root)
		}
		if names[file.Name] {
			return fmt.Errorf("manifest %s: file %q listed twice", m.AppID, file.Name)
		}
		names[file.Name] = true
	}
	return nil
}

// File returns the file with the given name.
func (m Manifest) File(name string) (File, bool) {
	for _, file := range m.Files {
		if file.Name == name {
			return file, true
		}
	}
	return File{}, false
}

// Event returns the unsigned manifest event.
func (m Manifest) Event() event.Event {
	tags := make(event.Tags, 0, 1+len(m.Files))
	tags = append(tags, event.Tag{"d", m.AppID})
	for _, file := range m.Files {
		tags = append(tags, event.Tag{"file", file.Root.String(), file.Name, file.MimeType})
	}
	return event.Event{Kind: event.KindManifest, Tags: tags}
}

// ParseManifest validates a manifest event.
func ParseManifest(e *event.Event) (Manifest, error) {
	if e.Kind != event.KindManifest {
		return Manifest{}, fmt.Errorf("event %s is kind %d, not a manifest", e.ID, e.Kind)
	}
	manifest := Manifest{AppID: e.Identifier(), Author: e.PubKey, CreatedAt: e.CreatedAt}
	for _, tag := range e.Tags.All("file") {
		if len(tag) < 3 {
			return Manifest{}, fmt.Errorf("manifest %s: file tag %v is too short", manifest.AppID, []string(tag))
		}
		root, err := chunk.ParseHash(tag[1])
		if err != nil {
			return Manifest{}, fmt.Errorf("manifest %s file %q: %w", manifest.AppID, tag[2], err)
		}
		file := File{Root: root, Name: tag[2]}
		if len(tag) > 3 {
			file.MimeType = tag[3]
		}
		manifest.Files = append(manifest.Files, file)
	}
	if err := manifest.Validate(); err != nil {
		return Manifest{}, err
	}
	return manifest, nil
}
