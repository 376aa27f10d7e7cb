// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package publish

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bureau-foundation/napp/lib/relay"
)

var (
	// ErrPublishFatal matches every *FatalError.
	ErrPublishFatal = errors.New("publish failed")

	// ErrEncodingInvariant means base93 decoding of freshly encoded
	// chunk bytes did not reproduce them. Nothing is published.
	ErrEncodingInvariant = errors.New("base93 round trip mismatch")

	// ErrEventTooLarge is returned for a signed event whose wire size
	// exceeds the configured maximum.
	ErrEventTooLarge = errors.New("event exceeds maximum size")

	// ErrNoRelays is returned when there is nowhere to publish.
	ErrNoRelays = errors.New("no relays to publish to")

	errNoResponse = errors.New("no response")
)

// Reasons a publish gives up.
const (
	ReasonUnreachable = "success threshold unreachable"
	ReasonExhausted   = "retries exhausted"
)

// FatalError is a publish that could not reach its success threshold.
// Errors holds the last error reported by every relay that did not
// acknowledge the event.
type FatalError struct {
	EventID   string
	Kind      int
	Reason    string
	Attempts  int
	Threshold int
	Acked     []string
	Errors    []relay.EndpointError
}

func (e *FatalError) Error() string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "publishing kind %d event %s: %s after %d attempt(s), %d of %d required ack(s)",
		e.Kind, e.EventID, e.Reason, e.Attempts, len(e.Acked), e.Threshold)
	for _, endpoint := range e.Errors {
		builder.WriteString("; ")
		builder.WriteString(endpoint.Error())
	}
	return builder.String()
}

// Is makes errors.Is(err, ErrPublishFatal) true for every FatalError.
func (e *FatalError) Is(target error) bool {
	return target == ErrPublishFatal
}

// Unwrap exposes the per-relay errors to errors.Is and errors.As.
func (e *FatalError) Unwrap() []error {
	errs := make([]error, len(e.Errors))
	for i, endpoint := range e.Errors {
		errs[i] = endpoint
	}
	return errs
}

// IsFatal reports whether err is, or wraps, a *FatalError.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}
