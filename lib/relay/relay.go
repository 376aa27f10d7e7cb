// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package relay defines the transport napp uses to store and query
// events on a set of independent relays, and provides two
// implementations: [WebSocketClient], which speaks NIP-01 to real
// relays, and [Memory], an in-process relay set for tests and dry
// runs.
//
// Operations fan out to every requested relay and report per-relay
// failures alongside whatever succeeded; deciding whether a partial
// result is good enough is the caller's job.
package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bureau-foundation/napp/lib/event"
)

// Client queries and publishes events across relays.
type Client interface {
	// Query returns every event matching filter from each relay,
	// with an error entry for each relay that failed. Events from
	// different relays are concatenated without deduplication.
	Query(ctx context.Context, filter event.Filter, relays []string, timeout time.Duration) QueryResult

	// Publish sends a signed event to each relay and reports which
	// relays acknowledged it.
	Publish(ctx context.Context, signed event.Event, relays []string, timeout time.Duration) PublishResult
}

// QueryResult is the outcome of a Query.
type QueryResult struct {
	Events []event.Event
	Errors []EndpointError
}

// PublishResult is the outcome of a Publish.
type PublishResult struct {
	Acked  []string
	Errors []EndpointError
}

// Success reports whether at least one relay acknowledged the event.
func (r PublishResult) Success() bool {
	return len(r.Acked) > 0
}

// EndpointError attributes an error to one relay.
type EndpointError struct {
	Relay string
	Err   error
}

func (e EndpointError) Error() string {
	return e.Relay + ": " + e.Err.Error()
}

func (e EndpointError) Unwrap() error {
	return e.Err
}

// Machine-readable prefixes relays put on rejection messages.
const (
	PrefixDuplicate   = "duplicate"
	PrefixRateLimited = "rate-limited"
	PrefixBlocked     = "blocked"
	PrefixInvalid     = "invalid"
	PrefixPoW         = "pow"
	PrefixRestricted  = "restricted"
	PrefixError       = "error"
)

// RejectedError is a relay's refusal of an event (OK false) or a
// subscription (CLOSED).
type RejectedError struct {
	Prefix  string
	Message string
}

func (e *RejectedError) Error() string {
	if e.Prefix == "" {
		return "rejected: " + e.Message
	}
	return fmt.Sprintf("rejected (%s): %s", e.Prefix, e.Message)
}

// ParseRejection splits a relay message of the form "prefix: text".
// Messages without a recognized prefix keep an empty Prefix.
func ParseRejection(message string) *RejectedError {
	prefix, rest, found := strings.Cut(message, ":")
	if found && !strings.ContainsAny(prefix, " \t") && prefix != "" {
		return &RejectedError{Prefix: prefix, Message: strings.TrimSpace(rest)}
	}
	return &RejectedError{Message: message}
}

// IsRateLimited reports whether err is a relay rate-limit rejection.
func IsRateLimited(err error) bool {
	var rejected *RejectedError
	return errors.As(err, &rejected) && rejected.Prefix == PrefixRateLimited
}

// Dedupe returns relays without duplicates, keeping first occurrences.
func Dedupe(relays ...[]string) []string {
	seen := make(map[string]bool)
	var result []string
	for _, list := range relays {
		for _, relay := range list {
			if relay == "" || seen[relay] {
				continue
			}
			seen[relay] = true
			result = append(result, relay)
		}
	}
	return result
}
