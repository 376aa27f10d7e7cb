// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts the two time operations napp depends on:
// reading the current time (event timestamps) and waiting (publish
// backoff). Production code uses [Real]; tests use [Fake] and advance
// time explicitly, so backoff schedules are asserted without sleeping.
package clock

import (
	"context"
	"time"
)

// Clock is the time source injected into publishers and uploaders.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once d
	// has elapsed. If d <= 0 the channel is ready immediately.
	After(d time.Duration) <-chan time.Time
}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Sleep waits for d on clk or until ctx is done, returning ctx.Err()
// in the latter case. A non-positive d returns immediately without
// touching the clock.
func Sleep(ctx context.Context, clk Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-clk.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
