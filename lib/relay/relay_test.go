// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/bureau-foundation/napp/lib/event"
)

func TestParseRejection(t *testing.T) {
	tests := []struct {
		message string
		prefix  string
		text    string
	}{
		{"rate-limited: slow down", PrefixRateLimited, "slow down"},
		{"duplicate: already have this event", PrefixDuplicate, "already have this event"},
		{"something went wrong", "", "something went wrong"},
		{"error with spaces: not a prefix", "", "error with spaces: not a prefix"},
		{"", "", ""},
	}
	for _, test := range tests {
		rejection := ParseRejection(test.message)
		if rejection.Prefix != test.prefix || rejection.Message != test.text {
			t.Errorf("ParseRejection(%q) = %+v", test.message, rejection)
		}
	}
}

func TestIsRateLimited(t *testing.T) {
	limited := EndpointError{Relay: "wss://a", Err: &RejectedError{Prefix: PrefixRateLimited}}
	if !IsRateLimited(limited) {
		t.Error("IsRateLimited missed a wrapped rate-limit rejection")
	}
	if !IsRateLimited(fmt.Errorf("publishing: %w", limited)) {
		t.Error("IsRateLimited missed a doubly wrapped rejection")
	}
	if IsRateLimited(&RejectedError{Prefix: PrefixBlocked}) {
		t.Error("IsRateLimited matched a blocked rejection")
	}
	if IsRateLimited(errors.New("rate-limited: plain error")) {
		t.Error("IsRateLimited matched an untyped error")
	}
}

func TestParseRelayList(t *testing.T) {
	e := event.Event{
		Kind: event.KindRelayList,
		Tags: event.Tags{
			{"r", "wss://Both.Example/"},
			{"r", "wss://read.example", "read"},
			{"r", "wss://write.example", "write"},
			{"r", "https://not-a-relay.example"},
			{"r", "wss://both.example"},
		},
	}
	list := ParseRelayList(&e)
	if want := []string{"wss://both.example", "wss://read.example"}; !slices.Equal(list.Read, want) {
		t.Errorf("Read = %v, want %v", list.Read, want)
	}
	if want := []string{"wss://both.example", "wss://write.example"}; !slices.Equal(list.Write, want) {
		t.Errorf("Write = %v, want %v", list.Write, want)
	}
}

func TestDedupe(t *testing.T) {
	got := Dedupe([]string{"a", "b"}, []string{"b", "", "c", "a"})
	if want := []string{"a", "b", "c"}; !slices.Equal(got, want) {
		t.Errorf("Dedupe = %v, want %v", got, want)
	}
}

func TestMemoryReplaceable(t *testing.T) {
	memory := NewMemory("wss://a")
	old := event.Event{ID: "1", PubKey: "p", Kind: event.KindManifest, CreatedAt: 10, Tags: event.Tags{{"d", "app"}}}
	newer := event.Event{ID: "2", PubKey: "p", Kind: event.KindManifest, CreatedAt: 20, Tags: event.Tags{{"d", "app"}}}
	stale := event.Event{ID: "3", PubKey: "p", Kind: event.KindManifest, CreatedAt: 5, Tags: event.Tags{{"d", "app"}}}

	ctx := context.Background()
	for _, e := range []event.Event{old, newer, stale} {
		if result := memory.Publish(ctx, e, []string{"wss://a"}, 0); !result.Success() {
			t.Fatalf("Publish %s failed: %v", e.ID, result.Errors)
		}
	}
	stored := memory.Events("wss://a")
	if len(stored) != 1 || stored[0].ID != "2" {
		t.Fatalf("stored = %v, want only the newest manifest", stored)
	}
	if calls := memory.PublishCalls(); len(calls) != 3 {
		t.Errorf("recorded %d publish calls, want 3", len(calls))
	}
}

func TestMemoryQuery(t *testing.T) {
	memory := NewMemory("wss://a", "wss://b")
	for i := range 5 {
		memory.Store("wss://a", event.Event{
			ID:        fmt.Sprint(i),
			PubKey:    "p",
			Kind:      1,
			CreatedAt: int64(i),
		})
	}
	memory.Store("wss://b", event.Event{ID: "b", PubKey: "q", Kind: 1, CreatedAt: 9})

	result := memory.Query(context.Background(),
		event.Filter{Authors: []string{"p"}, Limit: 2},
		[]string{"wss://a", "wss://b", "wss://missing"}, 0)

	var ids []string
	for _, e := range result.Events {
		ids = append(ids, e.ID)
	}
	if want := []string{"4", "3"}; !slices.Equal(ids, want) {
		t.Errorf("ids = %v, want %v", ids, want)
	}
	if len(result.Errors) != 1 || !errors.Is(result.Errors[0], ErrUnknownRelay) {
		t.Errorf("errors = %v, want one unknown relay", result.Errors)
	}
	if len(memory.Queries()) != 1 {
		t.Errorf("recorded %d queries, want 1", len(memory.Queries()))
	}
}

func TestMemoryPublishHook(t *testing.T) {
	memory := NewMemory("wss://a", "wss://b")
	memory.SetPublishHook(func(relay string, signed *event.Event) error {
		if relay == "wss://b" {
			return &RejectedError{Prefix: PrefixRateLimited, Message: "slow down"}
		}
		return nil
	})
	result := memory.Publish(context.Background(), event.Event{ID: "x", Kind: 1}, []string{"wss://a", "wss://b"}, 0)
	if !slices.Equal(result.Acked, []string{"wss://a"}) {
		t.Errorf("Acked = %v", result.Acked)
	}
	if len(result.Errors) != 1 || !IsRateLimited(result.Errors[0]) {
		t.Errorf("Errors = %v, want one rate limit", result.Errors)
	}
	if len(memory.Events("wss://b")) != 0 {
		t.Error("rejected event was stored")
	}
}
