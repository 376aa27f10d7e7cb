// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"encoding/json"
	"slices"
)

// Filter selects events. Empty fields match everything; a non-empty
// field matches if the event's value is in the list. Tags maps a
// single-letter tag name (without the leading "#") to the accepted
// values.
type Filter struct {
	IDs     []string
	Authors []string
	Kinds   []int
	Tags    map[string][]string
	Since   int64
	Until   int64
	Limit   int
}

// MarshalJSON encodes the filter in NIP-01 form, with tag conditions
// as "#x" keys.
func (f Filter) MarshalJSON() ([]byte, error) {
	object := make(map[string]any)
	if len(f.IDs) > 0 {
		object["ids"] = f.IDs
	}
	if len(f.Authors) > 0 {
		object["authors"] = f.Authors
	}
	if len(f.Kinds) > 0 {
		object["kinds"] = f.Kinds
	}
	for name, values := range f.Tags {
		object["#"+name] = values
	}
	if f.Since > 0 {
		object["since"] = f.Since
	}
	if f.Until > 0 {
		object["until"] = f.Until
	}
	if f.Limit > 0 {
		object["limit"] = f.Limit
	}
	return json.Marshal(object)
}

// Matches reports whether e satisfies every condition of the filter.
// Limit is not a matching condition.
func (f Filter) Matches(e *Event) bool {
	if len(f.IDs) > 0 && !slices.Contains(f.IDs, e.ID) {
		return false
	}
	if len(f.Authors) > 0 && !slices.Contains(f.Authors, e.PubKey) {
		return false
	}
	if len(f.Kinds) > 0 && !slices.Contains(f.Kinds, e.Kind) {
		return false
	}
	if f.Since > 0 && e.CreatedAt < f.Since {
		return false
	}
	if f.Until > 0 && e.CreatedAt > f.Until {
		return false
	}
	for name, values := range f.Tags {
		if !hasTagValue(e.Tags, name, values) {
			return false
		}
	}
	return true
}

func hasTagValue(tags Tags, name string, values []string) bool {
	for _, tag := range tags {
		if len(tag) >= 2 && tag[0] == name && slices.Contains(values, tag[1]) {
			return true
		}
	}
	return false
}
