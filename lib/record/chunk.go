// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package record

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bureau-foundation/napp/lib/chunk"
	"github.com/bureau-foundation/napp/lib/event"
)

// Locator places a chunk in one file: the file's root, the chunk's
// index, the file's chunk count, and the inclusion proof.
type Locator struct {
	Root  chunk.Hash
	Index int
	Total int
	Proof []chunk.Hash
}

// LocatorOf returns the locator carried by a built chunk.
func LocatorOf(c chunk.Chunk) Locator {
	return Locator{Root: c.Root, Index: c.Index, Total: c.Total, Proof: c.Proof}
}

// Key returns the "root:index" form used as the locator tag value and
// in relay queries.
func (l Locator) Key() string {
	return LocatorKey(l.Root, l.Index)
}

// LocatorKey formats a root and index as "root:index".
func LocatorKey(root chunk.Hash, index int) string {
	return root.String() + ":" + strconv.Itoa(index)
}

// Tag returns the locator's "c" tag.
func (l Locator) Tag() event.Tag {
	tag := make(event.Tag, 0, 3+len(l.Proof))
	tag = append(tag, "c", l.Key(), strconv.Itoa(l.Total))
	for _, hash := range l.Proof {
		tag = append(tag, hash.String())
	}
	return tag
}

// Verify checks the locator's proof for the chunk whose key is leaf.
func (l Locator) Verify(leaf chunk.Hash) bool {
	return chunk.Verify(l.Root, l.Index, l.Total, leaf, l.Proof)
}

// ParseLocatorKey parses "root:index".
func ParseLocatorKey(key string) (chunk.Hash, int, error) {
	rootText, indexText, found := strings.Cut(key, ":")
	if !found {
		return chunk.Hash{}, 0, fmt.Errorf("locator %q has no index", key)
	}
	root, err := chunk.ParseHash(rootText)
	if err != nil {
		return chunk.Hash{}, 0, fmt.Errorf("locator %q: %w", key, err)
	}
	index, err := parseCount(indexText)
	if err != nil {
		return chunk.Hash{}, 0, fmt.Errorf("locator %q index: %w", key, err)
	}
	return root, index, nil
}

// ParseLocator parses a "c" tag of a chunk record.
func ParseLocator(tag event.Tag) (Locator, error) {
	if tag.Name() != "c" || len(tag) < 3 {
		return Locator{}, fmt.Errorf("locator tag %v: want [\"c\", root:index, total, proof...]", []string(tag))
	}
	root, index, err := ParseLocatorKey(tag[1])
	if err != nil {
		return Locator{}, err
	}
	total, err := parseCount(tag[2])
	if err != nil {
		return Locator{}, fmt.Errorf("locator %s total: %w", tag[1], err)
	}
	if total == 0 || index >= total {
		return Locator{}, fmt.Errorf("locator %s: index outside %d chunks", tag[1], total)
	}
	proof := make([]chunk.Hash, 0, len(tag)-3)
	for _, text := range tag[3:] {
		hash, err := chunk.ParseHash(text)
		if err != nil {
			return Locator{}, fmt.Errorf("locator %s proof: %w", tag[1], err)
		}
		proof = append(proof, hash)
	}
	return Locator{Root: root, Index: index, Total: total, Proof: proof}, nil
}

// parseCount parses a non-negative decimal with no sign or leading
// zeros other than "0" itself.
func parseCount(text string) (int, error) {
	if text == "" || (len(text) > 1 && text[0] == '0') {
		return 0, fmt.Errorf("invalid count %q", text)
	}
	for i := range len(text) {
		if text[i] < '0' || text[i] > '9' {
			return 0, fmt.Errorf("invalid count %q", text)
		}
	}
	return strconv.Atoi(text)
}

// ChunkRecord is a chunk event's content: the chunk key, every locator
// recorded for it, an optional mime type, and the encoded bytes.
type ChunkRecord struct {
	Key      chunk.Hash
	Locators []Locator
	MimeType string
	Content  string
}

// ErrNoLocator is returned when a chunk event carries no valid locator.
var ErrNoLocator = errors.New("chunk record has no valid locator")

// NewChunkRecord builds the record for a freshly built chunk. Previous
// locators recorded under the same key are carried over, except one
// equal to the chunk's own locator key, so a chunk shared by several
// files lists all of them.
func NewChunkRecord(c chunk.Chunk, mimeType, content string, previous []Locator) ChunkRecord {
	own := LocatorOf(c)
	locators := []Locator{own}
	seen := map[string]bool{own.Key(): true}
	for _, locator := range previous {
		if seen[locator.Key()] {
			continue
		}
		seen[locator.Key()] = true
		locators = append(locators, locator)
	}
	return ChunkRecord{Key: c.Hash, Locators: locators, MimeType: mimeType, Content: content}
}

// Event returns the unsigned event for the record.
func (r ChunkRecord) Event() event.Event {
	tags := make(event.Tags, 0, 2+len(r.Locators))
	tags = append(tags, event.Tag{"d", r.Key.String()})
	for _, locator := range r.Locators {
		tags = append(tags, locator.Tag())
	}
	if r.MimeType != "" {
		tags = append(tags, event.Tag{"m", r.MimeType})
	}
	return event.Event{Kind: event.KindChunk, Tags: tags, Content: r.Content}
}

// HasLocator reports whether the record already lists root:index.
func (r ChunkRecord) HasLocator(root chunk.Hash, index int) bool {
	for _, locator := range r.Locators {
		if locator.Root == root && locator.Index == index {
			return true
		}
	}
	return false
}

// LocatorsFor returns the record's locators within the file root. A
// chunk whose bytes repeat inside one file has several.
func (r ChunkRecord) LocatorsFor(root chunk.Hash) []Locator {
	var matching []Locator
	for _, locator := range r.Locators {
		if locator.Root == root {
			matching = append(matching, locator)
		}
	}
	return matching
}

// ParseChunkRecord validates a chunk event. Locator tags that do not
// parse are dropped; at least one must remain.
func ParseChunkRecord(e *event.Event) (ChunkRecord, error) {
	if e.Kind != event.KindChunk {
		return ChunkRecord{}, fmt.Errorf("event %s is kind %d, not a chunk", e.ID, e.Kind)
	}
	key, err := chunk.ParseHash(e.Identifier())
	if err != nil {
		return ChunkRecord{}, fmt.Errorf("chunk event %s key: %w", e.ID, err)
	}
	record := ChunkRecord{Key: key, MimeType: e.Tags.Value("m"), Content: e.Content}
	for _, tag := range e.Tags.All("c") {
		locator, err := ParseLocator(tag)
		if err != nil {
			continue
		}
		record.Locators = append(record.Locators, locator)
	}
	if len(record.Locators) == 0 {
		return ChunkRecord{}, fmt.Errorf("chunk event %s: %w", e.ID, ErrNoLocator)
	}
	return record, nil
}
