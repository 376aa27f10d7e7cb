// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package publish

import (
	"sync"
	"time"
)

// Backoff is the delay applied before every send of an upload. It
// starts at zero and grows by Step each time a send round sees at
// least one rate-limited relay. It never shrinks. Safe for concurrent
// use.
type Backoff struct {
	step time.Duration

	mu    sync.Mutex
	delay time.Duration
}

// NewBackoff returns a Backoff with zero delay that grows by step.
func NewBackoff(step time.Duration) *Backoff {
	return &Backoff{step: step}
}

// Step returns the increment applied by Escalate.
func (b *Backoff) Step() time.Duration {
	return b.step
}

// Delay returns the current delay.
func (b *Backoff) Delay() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.delay
}

// Escalate grows the delay by one step and returns the new delay.
func (b *Backoff) Escalate() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.delay += b.step
	return b.delay
}
