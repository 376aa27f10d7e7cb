// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package record

import (
	"fmt"
	"slices"

	"github.com/bureau-foundation/napp/lib/chunk"
	"github.com/bureau-foundation/napp/lib/event"
)

// Field names a listing field that may carry an "auto" marker.
type Field string

const (
	FieldName       Field = "name"
	FieldSummary    Field = "summary"
	FieldIcon       Field = "icon"
	FieldCategories Field = "categories"
	FieldHashtags   Field = "hashtags"
	FieldCountries  Field = "countries"
)

// Fields lists every listing field in wire order.
var Fields = []Field{FieldCountries, FieldName, FieldSummary, FieldIcon, FieldCategories, FieldHashtags}

// Icon references a published image file.
type Icon struct {
	Root     chunk.Hash `json:"root"`
	MimeType string     `json:"mime_type"`
}

// Listing is the human-facing description of an app. Auto holds the
// fields whose values were derived rather than supplied by a person.
// Extra keeps tags this package does not interpret so that merging
// never drops them.
type Listing struct {
	AppID      string         `json:"app_id"`
	Name       string         `json:"name,omitempty"`
	Summary    string         `json:"summary,omitempty"`
	Icon       *Icon          `json:"icon,omitempty"`
	Categories []string       `json:"categories,omitempty"`
	Hashtags   []string       `json:"hashtags,omitempty"`
	Countries  []string       `json:"countries,omitempty"`
	Auto       map[Field]bool `json:"auto,omitempty"`
	Extra      event.Tags     `json:"extra,omitempty"`
}

// IsAuto reports whether field carries the auto marker.
func (l *Listing) IsAuto(field Field) bool {
	return l.Auto[field]
}

// SetAuto sets or clears the auto marker on field.
func (l *Listing) SetAuto(field Field, auto bool) {
	if auto {
		if l.Auto == nil {
			l.Auto = make(map[Field]bool)
		}
		l.Auto[field] = true
		return
	}
	delete(l.Auto, field)
}

// Clone returns a deep copy.
func (l Listing) Clone() Listing {
	clone := l
	if l.Icon != nil {
		icon := *l.Icon
		clone.Icon = &icon
	}
	clone.Categories = slices.Clone(l.Categories)
	clone.Hashtags = slices.Clone(l.Hashtags)
	clone.Countries = slices.Clone(l.Countries)
	if l.Auto != nil {
		clone.Auto = make(map[Field]bool, len(l.Auto))
		for field, auto := range l.Auto {
			clone.Auto[field] = auto
		}
	}
	clone.Extra = make(event.Tags, len(l.Extra))
	for i, tag := range l.Extra {
		clone.Extra[i] = slices.Clone(tag)
	}
	return clone
}

// Event returns the unsigned listing event. Every field is followed by
// its auto marker when it has one.
func (l Listing) Event() event.Event {
	tags := event.Tags{{"d", l.AppID}}
	marker := func(field Field) {
		if l.IsAuto(field) {
			tags = append(tags, event.Tag{"auto", string(field)})
		}
	}

	for _, country := range l.Countries {
		tags = append(tags, event.Tag{"c", country})
	}
	marker(FieldCountries)
	if l.Name != "" {
		tags = append(tags, event.Tag{"name", l.Name})
		marker(FieldName)
	}
	if l.Summary != "" {
		tags = append(tags, event.Tag{"summary", l.Summary})
		marker(FieldSummary)
	}
	if l.Icon != nil {
		tags = append(tags, event.Tag{"icon", l.Icon.Root.String(), l.Icon.MimeType})
		marker(FieldIcon)
	}
	for _, category := range l.Categories {
		tags = append(tags, event.Tag{"l", category})
	}
	marker(FieldCategories)
	for _, hashtag := range l.Hashtags {
		tags = append(tags, event.Tag{"t", hashtag})
	}
	marker(FieldHashtags)

	for _, tag := range l.Extra {
		tags = append(tags, slices.Clone(tag))
	}
	return event.Event{Kind: event.KindListing, Tags: tags}
}

// ParseListing validates a listing event.
func ParseListing(e *event.Event) (Listing, error) {
	if e.Kind != event.KindListing {
		return Listing{}, fmt.Errorf("event %s is kind %d, not a listing", e.ID, e.Kind)
	}
	listing := Listing{AppID: e.Identifier()}
	if listing.AppID == "" {
		return Listing{}, fmt.Errorf("listing event %s: %w", e.ID, ErrNoAppID)
	}

	seenIdentifier := false
	for _, tag := range e.Tags {
		switch tag.Name() {
		case "d":
			if !seenIdentifier {
				seenIdentifier = true
				continue
			}
		case "c":
			if value := tag.Value(); value != "" {
				listing.Countries = append(listing.Countries, value)
				continue
			}
		case "name":
			if listing.Name == "" {
				listing.Name = tag.Value()
				continue
			}
		case "summary":
			if listing.Summary == "" {
				listing.Summary = tag.Value()
				continue
			}
		case "icon":
			if listing.Icon == nil && len(tag) >= 2 {
				root, err := chunk.ParseHash(tag[1])
				if err != nil {
					return Listing{}, fmt.Errorf("listing %s icon: %w", listing.AppID, err)
				}
				icon := &Icon{Root: root}
				if len(tag) >= 3 {
					icon.MimeType = tag[2]
				}
				listing.Icon = icon
				continue
			}
		case "l":
			if value := tag.Value(); value != "" {
				listing.Categories = append(listing.Categories, value)
				continue
			}
		case "t":
			if value := tag.Value(); value != "" {
				listing.Hashtags = append(listing.Hashtags, value)
				continue
			}
		case "auto":
			if field := Field(tag.Value()); slices.Contains(Fields, field) {
				listing.SetAuto(field, true)
				continue
			}
		}
		listing.Extra = append(listing.Extra, slices.Clone(tag))
	}
	return listing, nil
}
