// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package listing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/napp/lib/clock"
	"github.com/bureau-foundation/napp/lib/event"
	"github.com/bureau-foundation/napp/lib/record"
	"github.com/bureau-foundation/napp/lib/relay"
	"github.com/bureau-foundation/napp/lib/signer"
)

// ErrUnavailable is returned when every relay failed the lookup of the
// previous listing. Publishing blind could discard a person's edits.
var ErrUnavailable = errors.New("no relay answered the listing query")

// Publisher delivers a signed event. *publish.Publisher implements it.
type Publisher interface {
	Publish(ctx context.Context, signed event.Event, relays []string) (relay.PublishResult, error)
}

// Reconciler fetches, merges, and republishes listings.
type Reconciler struct {
	Client    relay.Client
	Publisher Publisher
	Signer    signer.Signer
	Clock     clock.Clock

	// Timeout bounds the listing query on each relay.
	Timeout time.Duration

	Logger *slog.Logger
}

// Result describes one reconciliation.
type Result struct {
	Listing   record.Listing
	Published bool
	EventID   string
}

func (r *Reconciler) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.Logger
}

// Latest returns author's newest listing for appID across relays.
// found is false when no relay has one. If every relay fails, the
// error wraps ErrUnavailable.
func (r *Reconciler) Latest(ctx context.Context, author, appID string, relays []string) (listing record.Listing, createdAt int64, found bool, err error) {
	filter := event.Filter{
		Kinds:   []int{event.KindListing},
		Authors: []string{author},
		Tags:    map[string][]string{"d": {appID}},
		Limit:   1,
	}
	result := r.Client.Query(ctx, filter, relays, r.Timeout)
	if err := ctx.Err(); err != nil {
		return record.Listing{}, 0, false, err
	}
	for _, endpoint := range result.Errors {
		r.logger().Warn("listing query failed", "relay", endpoint.Relay, "error", endpoint.Err)
	}
	if len(result.Events) == 0 && len(result.Errors) >= len(relays) {
		return record.Listing{}, 0, false, fmt.Errorf("app %s: %w", appID, ErrUnavailable)
	}

	var candidates []event.Event
	for _, e := range result.Events {
		if e.Kind == event.KindListing && e.PubKey == author && e.Identifier() == appID {
			candidates = append(candidates, e)
		}
	}
	newest, found := event.LatestOne(candidates)
	if !found {
		return record.Listing{}, 0, false, nil
	}
	listing, err = record.ParseListing(&newest)
	if err != nil {
		return record.Listing{}, 0, false, fmt.Errorf("stored listing of app %s: %w", appID, err)
	}
	return listing, newest.CreatedAt, true, nil
}

// Reconcile merges proposed into the stored listing and publishes the
// result when it changed.
func (r *Reconciler) Reconcile(ctx context.Context, proposed Proposal, relays []string) (Result, error) {
	author := r.Signer.PublicKey()
	logger := r.logger().With("app_id", proposed.AppID)

	previous, previousCreatedAt, found, err := r.Latest(ctx, author, proposed.AppID, relays)
	if err != nil {
		return Result{}, err
	}
	var base *record.Listing
	if found {
		base = &previous
	}

	merged, changed, err := Merge(base, proposed)
	if err != nil {
		return Result{}, err
	}
	if !changed {
		logger.Debug("listing unchanged")
		return Result{Listing: merged}, nil
	}

	unsigned := merged.Event()
	unsigned.CreatedAt = r.Clock.Now().Unix()
	// A replacement must be strictly newer or relays keep the old one.
	if found && unsigned.CreatedAt <= previousCreatedAt {
		unsigned.CreatedAt = previousCreatedAt + 1
	}
	signed, err := r.Signer.Sign(ctx, unsigned)
	if err != nil {
		return Result{}, fmt.Errorf("signing listing of app %s: %w", proposed.AppID, err)
	}
	if _, err := r.Publisher.Publish(ctx, signed, relays); err != nil {
		return Result{}, fmt.Errorf("publishing listing of app %s: %w", proposed.AppID, err)
	}
	logger.Info("listing published", "event_id", signed.ID, "first", !found)
	return Result{Listing: merged, Published: true, EventID: signed.ID}, nil
}
