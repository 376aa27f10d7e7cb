// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package listing keeps an app's listing record in step with its
// uploads without overwriting what a person has edited.
//
// Every upload proposes values for the listing fields. A value is
// either explicit (the publisher supplied it, for example in
// napp.jsonc) or derived (read from index.html, the favicon, and so
// on). Derived values are published with an "auto" marker. On the next
// upload a field is overwritten only when the new value is explicit or
// the stored field still carries its marker; a field someone edited by
// hand has lost the marker and is left alone.
package listing

import (
	"errors"
	"fmt"
	"slices"

	"github.com/bureau-foundation/napp/lib/event"
	"github.com/bureau-foundation/napp/lib/record"
)

// ErrPreconditionUnmet is returned when an app has no listing yet and
// the proposal cannot supply both a name and an icon.
var ErrPreconditionUnmet = errors.New("listing needs a name and an icon")

// Proposal is the set of listing values computed for one upload.
// Empty values are "no opinion" unless the field is Explicit.
type Proposal struct {
	AppID      string
	Name       string
	Summary    string
	Icon       *record.Icon
	Categories []string
	Hashtags   []string
	Countries  []string

	// Explicit holds the fields the publisher supplied directly. An
	// explicit field overwrites the stored value even when empty.
	Explicit map[record.Field]bool
}

func (p Proposal) explicit(field record.Field) bool {
	return p.Explicit[field]
}

// present reports whether the proposal has a value for field.
func (p Proposal) present(field record.Field) bool {
	switch field {
	case record.FieldName:
		return p.Name != ""
	case record.FieldSummary:
		return p.Summary != ""
	case record.FieldIcon:
		return p.Icon != nil
	case record.FieldCategories:
		return len(p.Categories) > 0
	case record.FieldHashtags:
		return len(p.Hashtags) > 0
	case record.FieldCountries:
		return len(p.Countries) > 0
	}
	return false
}

// Merge combines previous, the newest stored listing or nil, with
// proposed. It returns the listing to publish and whether it differs
// from previous.
//
// With no previous listing, the proposal must carry a name and an icon
// or Merge returns ErrPreconditionUnmet. Otherwise the previous tags
// are kept and each field is replaced when the proposal is explicit
// about it, or when the proposal has a derived value and the stored
// field is auto-marked or absent. Derived values never clear a field.
func Merge(previous *record.Listing, proposed Proposal) (record.Listing, bool, error) {
	if previous == nil {
		if proposed.Name == "" || proposed.Icon == nil {
			return record.Listing{}, false, fmt.Errorf("app %s: %w", proposed.AppID, ErrPreconditionUnmet)
		}
		listing := record.Listing{AppID: proposed.AppID}
		for _, field := range record.Fields {
			if proposed.explicit(field) || proposed.present(field) {
				assign(&listing, proposed, field)
			}
		}
		return listing, true, nil
	}

	if previous.AppID != proposed.AppID {
		return record.Listing{}, false, fmt.Errorf("merging listing of app %s into app %s", proposed.AppID, previous.AppID)
	}
	merged := previous.Clone()
	for _, field := range record.Fields {
		switch {
		case proposed.explicit(field):
			assign(&merged, proposed, field)
		case !proposed.present(field):
			// Nothing derived: keep what is stored.
		case previous.IsAuto(field) || !stored(previous, field):
			assign(&merged, proposed, field)
		}
	}
	return merged, !Equal(*previous, merged), nil
}

// assign copies field from proposed into listing and sets its auto
// marker to match how the value was obtained.
func assign(listing *record.Listing, proposed Proposal, field record.Field) {
	switch field {
	case record.FieldName:
		listing.Name = proposed.Name
	case record.FieldSummary:
		listing.Summary = proposed.Summary
	case record.FieldIcon:
		if proposed.Icon == nil {
			listing.Icon = nil
		} else {
			icon := *proposed.Icon
			listing.Icon = &icon
		}
	case record.FieldCategories:
		listing.Categories = slices.Clone(proposed.Categories)
	case record.FieldHashtags:
		listing.Hashtags = slices.Clone(proposed.Hashtags)
	case record.FieldCountries:
		listing.Countries = slices.Clone(proposed.Countries)
	}
	listing.SetAuto(field, !proposed.explicit(field))
}

// stored reports whether listing has a value for field.
func stored(listing *record.Listing, field record.Field) bool {
	return Proposal{
		Name:       listing.Name,
		Summary:    listing.Summary,
		Icon:       listing.Icon,
		Categories: listing.Categories,
		Hashtags:   listing.Hashtags,
		Countries:  listing.Countries,
	}.present(field)
}

// Equal reports whether two listings publish identical tags.
func Equal(a, b record.Listing) bool {
	return slices.EqualFunc(a.Event().Tags, b.Event().Tags, func(x, y event.Tag) bool {
		return slices.Equal(x, y)
	})
}
