// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package fetch rebuilds published files and apps from relays.
//
// A file is addressed by its author and Merkle root. [Fetcher.File]
// asks relays for the chunk events whose locators name the root,
// keeps the newest event per chunk key, and accepts the result only if
// it holds exactly the chunks [0, total) with valid proofs and
// content. Anything less is an [*IncompleteError] and no bytes are
// returned.
//
// With a size cap the first query already asks for one chunk more
// than the cap allows, so an oversized file is refused before the rest
// of it is downloaded. The chunk count is taken only from a locator
// whose proof verifies against the root, and never exceeds MaxChunks.
package fetch

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/bureau-foundation/napp/lib/base93"
	"github.com/bureau-foundation/napp/lib/chunk"
	"github.com/bureau-foundation/napp/lib/event"
	"github.com/bureau-foundation/napp/lib/record"
	"github.com/bureau-foundation/napp/lib/relay"
)

const (
	// DefaultBatchSize bounds the locators in one query when BatchSize
	// is unset.
	DefaultBatchSize = 256

	// DefaultMaxChunks bounds the declared chunk count when MaxChunks
	// is unset.
	DefaultMaxChunks = 1 << 16
)

// Fetcher reads files and apps of any author from relays.
type Fetcher struct {
	Client relay.Client

	// Timeout bounds each relay query.
	Timeout time.Duration

	// ChunkSize is the publisher's chunk size, used to turn a byte
	// cap into a chunk bound. Defaults to chunk.DefaultSize.
	ChunkSize int

	// BatchSize bounds the locators in one follow-up query.
	BatchSize int

	// MaxChunks is the largest chunk count a file may declare.
	MaxChunks int

	// IconCap bounds the icon download in AppMetadata. Zero is
	// unbounded.
	IconCap int64

	Logger *slog.Logger
}

func (f *Fetcher) logger() *slog.Logger {
	if f.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return f.Logger
}

func (f *Fetcher) chunkSize() int {
	if f.ChunkSize <= 0 {
		return chunk.DefaultSize
	}
	return f.ChunkSize
}

func (f *Fetcher) maxChunks() int {
	if f.MaxChunks <= 0 {
		return DefaultMaxChunks
	}
	return f.MaxChunks
}

func (f *Fetcher) batchSize() int {
	if f.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return f.BatchSize
}

// piece is one chunk candidate for a file position.
type piece struct {
	index   int
	key     chunk.Hash
	locator record.Locator
	content string
}

// File rebuilds the file root published by author. A positive
// sizeCap refuses files larger than sizeCap bytes.
func (f *Fetcher) File(ctx context.Context, author string, root chunk.Hash, relays []string, sizeCap int64) ([]byte, error) {
	logger := f.logger().With("root", root)

	var probe []int
	var bound int
	if sizeCap > 0 {
		bound = int(min(sizeCap/int64(f.chunkSize()), int64(f.maxChunks()))) + 1
		probe = indexRange(0, bound)
	} else {
		probe = []int{0}
	}
	events, err := f.queryLocators(ctx, author, root, probe, relays)
	if err != nil {
		return nil, err
	}
	latest := chunkEvents(author, events)

	if bound > 0 && len(latest) >= bound {
		return nil, &IncompleteError{Root: root, Reason: ReasonOverCap,
			Detail: "at least " + strconv.Itoa(len(latest)) + " chunks, cap allows fewer than " + strconv.Itoa(bound)}
	}
	pieces, totals := extract(root, latest)
	if len(totals) == 0 {
		return nil, &IncompleteError{Root: root, Reason: ReasonNotFound}
	}
	if len(totals) > 1 {
		return nil, &IncompleteError{Root: root, Reason: ReasonCountMismatch,
			Detail: "locators disagree on the chunk count: " + formatIndices(totals)}
	}
	total := totals[0]
	if !vouched(pieces, total) {
		return nil, &IncompleteError{Root: root, Reason: ReasonCorrupt,
			Detail: "no proof verifies the declared count of " + strconv.Itoa(total) + " chunks"}
	}
	if total > f.maxChunks() {
		return nil, &IncompleteError{Root: root, Reason: ReasonOverCap, Total: total,
			Detail: "limit is " + strconv.Itoa(f.maxChunks()) + " chunks"}
	}
	if bound > 0 && total >= bound {
		return nil, &IncompleteError{Root: root, Reason: ReasonOverCap, Total: total,
			Detail: "cap allows fewer than " + strconv.Itoa(bound) + " chunks"}
	}

	if remaining := indexRange(len(probe), total); len(remaining) > 0 {
		logger.Debug("fetching remaining chunks", "total", total, "remaining", len(remaining))
		for batch := range slices.Chunk(remaining, f.batchSize()) {
			more, err := f.queryLocators(ctx, author, root, batch, relays)
			if err != nil {
				return nil, err
			}
			events = append(events, more...)
		}
		latest = chunkEvents(author, events)
		pieces, totals = extract(root, latest)
		if len(totals) != 1 {
			return nil, &IncompleteError{Root: root, Reason: ReasonCountMismatch, Total: total,
				Detail: "locators disagree on the chunk count: " + formatIndices(totals)}
		}
	}

	ordered, err := arrange(root, total, pieces)
	if err != nil {
		return nil, err
	}
	data, err := decode(root, total, ordered)
	if err != nil {
		return nil, err
	}
	if sizeCap > 0 && int64(len(data)) > sizeCap {
		return nil, &IncompleteError{Root: root, Reason: ReasonOverCap, Total: total,
			Detail: strconv.Itoa(len(data)) + " bytes"}
	}
	logger.Debug("file reconstructed", "chunks", total, "size", len(data))
	return data, nil
}

// queryLocators asks for the chunk events carrying root:i for every i
// in indices, in one query. It fails only when every relay failed.
func (f *Fetcher) queryLocators(ctx context.Context, author string, root chunk.Hash, indices []int, relays []string) ([]event.Event, error) {
	locators := make([]string, len(indices))
	for i, index := range indices {
		locators[i] = record.LocatorKey(root, index)
	}
	result := f.Client.Query(ctx, event.Filter{
		Kinds:   []int{event.KindChunk},
		Authors: []string{author},
		Tags:    map[string][]string{"c": locators},
		Limit:   len(locators),
	}, relays, f.Timeout)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, endpoint := range result.Errors {
		f.logger().Warn("chunk query failed", "relay", endpoint.Relay, "error", endpoint.Err)
	}
	if len(result.Events) == 0 && len(result.Errors) >= len(relays) {
		causes := make([]error, len(result.Errors))
		for i, endpoint := range result.Errors {
			causes[i] = endpoint
		}
		return nil, &IncompleteError{Root: root, Reason: ReasonNotFound, Err: errors.Join(causes...)}
	}
	return result.Events, nil
}

// chunkEvents keeps author's chunk events, newest per chunk key.
func chunkEvents(author string, events []event.Event) []event.Event {
	var matching []event.Event
	for _, e := range events {
		if e.Kind == event.KindChunk && e.PubKey == author {
			matching = append(matching, e)
		}
	}
	return event.Latest(matching)
}

// extract returns every locator of root among events with its chunk,
// and the distinct chunk counts those locators declare.
func extract(root chunk.Hash, events []event.Event) ([]piece, []int) {
	var pieces []piece
	var totals []int
	for i := range events {
		parsed, err := record.ParseChunkRecord(&events[i])
		if err != nil {
			continue
		}
		for _, locator := range parsed.LocatorsFor(root) {
			pieces = append(pieces, piece{index: locator.Index, key: parsed.Key, locator: locator, content: parsed.Content})
			if !slices.Contains(totals, locator.Total) {
				totals = append(totals, locator.Total)
			}
		}
	}
	slices.Sort(totals)
	return pieces, totals
}

// vouched reports whether some piece declaring total carries a proof
// that verifies against the root.
func vouched(pieces []piece, total int) bool {
	for _, p := range pieces {
		if p.locator.Total == total && p.locator.Verify(p.key) {
			return true
		}
	}
	return false
}

// arrange orders pieces by index and checks they are exactly
// [0, total).
func arrange(root chunk.Hash, total int, pieces []piece) ([]piece, error) {
	slices.SortStableFunc(pieces, func(a, b piece) int { return a.index - b.index })

	present := make([]bool, total)
	var repeated []int
	for _, p := range pieces {
		if p.index >= total {
			return nil, &IncompleteError{Root: root, Reason: ReasonNonContiguous, Total: total,
				Detail: "index " + strconv.Itoa(p.index) + " out of range"}
		}
		if present[p.index] {
			repeated = append(repeated, p.index)
			continue
		}
		present[p.index] = true
	}
	if len(repeated) > 0 {
		return nil, &IncompleteError{Root: root, Reason: ReasonNonContiguous, Total: total,
			Detail: "repeated " + formatIndices(repeated)}
	}
	var missing []int
	for index, found := range present {
		if !found {
			missing = append(missing, index)
		}
	}
	if len(missing) > 0 {
		return nil, &IncompleteError{Root: root, Reason: ReasonMissing, Total: total, Missing: missing}
	}
	return pieces, nil
}

// decode verifies and decodes ordered pieces into the file content.
func decode(root chunk.Hash, total int, ordered []piece) ([]byte, error) {
	var data []byte
	for _, p := range ordered {
		if !p.locator.Verify(p.key) {
			return nil, &IncompleteError{Root: root, Reason: ReasonCorrupt, Total: total,
				Detail: "chunk " + strconv.Itoa(p.index) + " proof does not verify"}
		}
		decoded, err := base93.Decode(p.content)
		if err != nil {
			return nil, &IncompleteError{Root: root, Reason: ReasonCorrupt, Total: total,
				Detail: "chunk " + strconv.Itoa(p.index), Err: err}
		}
		if chunk.HashChunk(decoded) != p.key {
			return nil, &IncompleteError{Root: root, Reason: ReasonCorrupt, Total: total,
				Detail: "chunk " + strconv.Itoa(p.index) + " content does not match its key"}
		}
		data = append(data, decoded...)
	}
	return data, nil
}

func indexRange(from, to int) []int {
	var indices []int
	for i := from; i < to; i++ {
		indices = append(indices, i)
	}
	return indices
}
