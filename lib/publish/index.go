// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/napp/lib/chunk"
	"github.com/bureau-foundation/napp/lib/event"
	"github.com/bureau-foundation/napp/lib/ledger"
	"github.com/bureau-foundation/napp/lib/record"
	"github.com/bureau-foundation/napp/lib/relay"
)

// ErrIndexUnavailable is returned when no relay answered a chunk
// lookup. Publishing without the previous locators would replace a
// shared chunk's record with one that forgets the other files.
var ErrIndexUnavailable = errors.New("no relay answered the chunk lookup")

// Previous is what is already published under a chunk key by the
// uploading author.
type Previous struct {
	Locators  []record.Locator
	CreatedAt int64
}

// Has reports whether root:index is among the locators.
func (p Previous) Has(root chunk.Hash, index int) bool {
	return record.ChunkRecord{Locators: p.Locators}.HasLocator(root, index)
}

// ChunkIndex looks up an author's existing chunk record.
type ChunkIndex interface {
	Lookup(ctx context.Context, author string, key chunk.Hash, relays []string) (Previous, bool, error)
}

// RelayIndex asks relays for the newest chunk record under a key.
type RelayIndex struct {
	Client  relay.Client
	Timeout time.Duration
	Logger  *slog.Logger
}

// Lookup implements ChunkIndex.
func (i *RelayIndex) Lookup(ctx context.Context, author string, key chunk.Hash, relays []string) (Previous, bool, error) {
	filter := event.Filter{
		Kinds:   []int{event.KindChunk},
		Authors: []string{author},
		Tags:    map[string][]string{"d": {key.String()}},
		Limit:   1,
	}
	result := i.Client.Query(ctx, filter, relays, i.Timeout)
	if err := ctx.Err(); err != nil {
		return Previous{}, false, err
	}
	if len(result.Events) == 0 && len(result.Errors) >= len(relays) {
		return Previous{}, false, fmt.Errorf("chunk %s: %w", key, ErrIndexUnavailable)
	}

	var candidates []event.Event
	for _, e := range result.Events {
		if e.Kind == event.KindChunk && e.PubKey == author && e.Identifier() == key.String() {
			candidates = append(candidates, e)
		}
	}
	newest, found := event.LatestOne(candidates)
	if !found {
		return Previous{}, false, nil
	}
	stored, err := record.ParseChunkRecord(&newest)
	if err != nil {
		// Republishing replaces the malformed record.
		if i.Logger != nil {
			i.Logger.Warn("ignoring malformed chunk record", "event_id", newest.ID, "error", err)
		}
		return Previous{CreatedAt: newest.CreatedAt}, true, nil
	}
	return Previous{Locators: stored.Locators, CreatedAt: newest.CreatedAt}, true, nil
}

// LedgerIndex answers from the local ledger when the recorded chunk
// was acknowledged by every target relay, and asks Next otherwise.
type LedgerIndex struct {
	Ledger *ledger.Ledger
	Next   ChunkIndex
}

// Lookup implements ChunkIndex.
func (i *LedgerIndex) Lookup(ctx context.Context, author string, key chunk.Hash, relays []string) (Previous, bool, error) {
	entry, found, err := i.Ledger.Chunk(ctx, author, key)
	if err != nil {
		return Previous{}, false, err
	}
	if found && entry.Covers(relay.Dedupe(relays)) {
		return Previous{Locators: entry.Locators, CreatedAt: entry.PublishedAt.Unix()}, true, nil
	}
	return i.Next.Lookup(ctx, author, key, relays)
}
