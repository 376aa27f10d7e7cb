// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/bureau-foundation/napp/lib/event"
)

// ErrUnknownRelay is reported for a relay URL a Memory set does not
// contain.
var ErrUnknownRelay = errors.New("unknown relay")

// PublishHook intercepts a publish to one relay. Returning an error
// fails the publish on that relay; returning nil lets it through.
type PublishHook func(relay string, signed *event.Event) error

// Memory is an in-process relay set. Each relay stores events with
// NIP-01 replacement semantics: for replaceable kinds only the newest
// event per address is kept. Safe for concurrent use.
type Memory struct {
	mu      sync.Mutex
	stores  map[string][]event.Event
	hook    PublishHook
	calls   []PublishCall
	queries []event.Filter
}

// PublishCall records one event publish to one relay.
type PublishCall struct {
	Relay string
	Event event.Event
}

// NewMemory returns a relay set containing the named relays.
func NewMemory(relays ...string) *Memory {
	memory := &Memory{stores: make(map[string][]event.Event)}
	for _, relay := range relays {
		memory.stores[relay] = nil
	}
	return memory
}

// SetPublishHook installs hook, replacing any previous one. A nil
// hook removes it.
func (m *Memory) SetPublishHook(hook PublishHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hook = hook
}

// Store places e directly on relay without recording a publish call.
func (m *Memory) Store(relay string, e event.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storeLocked(relay, e)
}

// Events returns a copy of the events stored on relay.
func (m *Memory) Events(relay string) []event.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.stores[relay])
}

// PublishCalls returns every publish attempt that reached a relay,
// including ones the hook rejected.
func (m *Memory) PublishCalls() []PublishCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

// Queries returns every filter queried, once per Query call.
func (m *Memory) Queries() []event.Filter {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.queries)
}

// Query implements Client. Each relay returns its matches newest
// first, truncated to the filter's limit.
func (m *Memory) Query(ctx context.Context, filter event.Filter, relays []string, timeout time.Duration) QueryResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, filter)

	var result QueryResult
	for _, relay := range relays {
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, EndpointError{Relay: relay, Err: err})
			continue
		}
		stored, known := m.stores[relay]
		if !known {
			result.Errors = append(result.Errors, EndpointError{Relay: relay, Err: ErrUnknownRelay})
			continue
		}
		var matches []event.Event
		for i := range stored {
			if filter.Matches(&stored[i]) {
				matches = append(matches, stored[i])
			}
		}
		slices.SortStableFunc(matches, func(a, b event.Event) int {
			return cmp.Compare(b.CreatedAt, a.CreatedAt)
		})
		if filter.Limit > 0 && len(matches) > filter.Limit {
			matches = matches[:filter.Limit]
		}
		result.Events = append(result.Events, matches...)
	}
	return result
}

// Publish implements Client.
func (m *Memory) Publish(ctx context.Context, signed event.Event, relays []string, timeout time.Duration) PublishResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result PublishResult
	for _, relay := range relays {
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, EndpointError{Relay: relay, Err: err})
			continue
		}
		if _, known := m.stores[relay]; !known {
			result.Errors = append(result.Errors, EndpointError{Relay: relay, Err: ErrUnknownRelay})
			continue
		}
		m.calls = append(m.calls, PublishCall{Relay: relay, Event: signed})
		if m.hook != nil {
			if err := m.hook(relay, &signed); err != nil {
				result.Errors = append(result.Errors, EndpointError{Relay: relay, Err: err})
				continue
			}
		}
		m.storeLocked(relay, signed)
		result.Acked = append(result.Acked, relay)
	}
	return result
}

func (m *Memory) storeLocked(relay string, e event.Event) {
	stored := m.stores[relay]
	for _, existing := range stored {
		if existing.ID != "" && existing.ID == e.ID {
			return
		}
	}
	if isReplaceable(e.Kind) {
		address := e.Address()
		for i := range stored {
			if stored[i].Address() != address {
				continue
			}
			if e.CreatedAt < stored[i].CreatedAt {
				return
			}
			stored[i] = e
			m.stores[relay] = stored
			return
		}
	}
	m.stores[relay] = append(stored, e)
}

// isReplaceable reports whether relays keep only the newest event per
// address for kind.
func isReplaceable(kind int) bool {
	return kind == 0 || kind == 3 || (kind >= 10000 && kind < 20000) || (kind >= 30000 && kind < 40000)
}
