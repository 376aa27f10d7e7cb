// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package publish

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/bureau-foundation/napp/lib/clock"
	"github.com/bureau-foundation/napp/lib/event"
	"github.com/bureau-foundation/napp/lib/relay"
)

// Publisher delivers one signed event at a time to a set of relays.
//
// Each round sleeps the shared backoff delay and sends to every relay
// still pending. Acks are kept. Rate-limited relays stay pending and
// escalate the backoff; any other error drops the relay for the rest
// of this event. The publish succeeds once no relay is pending and at
// least SuccessThreshold relays acknowledged. It fails as soon as the
// acked plus pending relays cannot reach the threshold, and when
// MaxRetries retry rounds have run with relays still pending, even if
// the threshold was met by then.
type Publisher struct {
	Client  relay.Client
	Backoff *Backoff
	Clock   clock.Clock

	// MaxRetries bounds the rounds after the first send.
	MaxRetries int

	// SuccessThreshold is the number of acks required. Values below 1
	// are treated as 1.
	SuccessThreshold int

	// Timeout bounds each relay's send in one round.
	Timeout time.Duration

	Logger *slog.Logger
}

func (p *Publisher) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return p.Logger
}

func (p *Publisher) threshold() int {
	return max(p.SuccessThreshold, 1)
}

// Publish sends signed to relays. On success the result lists every
// acknowledging relay and the last error of every relay that did not.
// On failure the error is a *FatalError, or ctx.Err() if ctx ended.
func (p *Publisher) Publish(ctx context.Context, signed event.Event, relays []string) (relay.PublishResult, error) {
	pending := relay.Dedupe(relays)
	if len(pending) == 0 {
		return relay.PublishResult{}, ErrNoRelays
	}
	logger := p.logger().With("event_id", signed.ID, "kind", signed.Kind)
	threshold := p.threshold()

	var acked []string
	lastError := make(map[string]error)
	fail := func(reason string, attempts int) (relay.PublishResult, error) {
		return relay.PublishResult{}, &FatalError{
			EventID:   signed.ID,
			Kind:      signed.Kind,
			Reason:    reason,
			Attempts:  attempts,
			Threshold: threshold,
			Acked:     acked,
			Errors:    endpointErrors(relays, acked, lastError),
		}
	}

	for attempt := 0; ; attempt++ {
		if attempt > p.MaxRetries {
			logger.Warn("retries exhausted", "relays", pending, "acked", len(acked))
			return fail(ReasonExhausted, attempt)
		}

		if err := clock.Sleep(ctx, p.Clock, p.Backoff.Delay()); err != nil {
			return relay.PublishResult{}, err
		}
		result := p.Client.Publish(ctx, signed, pending, p.Timeout)
		if err := ctx.Err(); err != nil {
			return relay.PublishResult{}, err
		}

		acked = append(acked, result.Acked...)
		for _, relayURL := range result.Acked {
			delete(lastError, relayURL)
		}
		var retry []string
		for _, endpoint := range result.Errors {
			lastError[endpoint.Relay] = endpoint.Err
			if relay.IsRateLimited(endpoint.Err) {
				retry = append(retry, endpoint.Relay)
				continue
			}
			logger.Warn("relay rejected event", "relay", endpoint.Relay, "error", endpoint.Err)
		}
		pending = retry

		if len(acked)+len(pending) < threshold {
			return fail(ReasonUnreachable, attempt+1)
		}
		if len(pending) == 0 {
			break
		}
		delay := p.Backoff.Escalate()
		logger.Info("relays rate-limited, backing off",
			"relays", pending, "delay", delay, "attempt", attempt+1)
	}

	return relay.PublishResult{Acked: acked, Errors: endpointErrors(relays, acked, lastError)}, nil
}

// endpointErrors lists the last error of every relay that did not ack,
// in the caller's relay order.
func endpointErrors(relays, acked []string, lastError map[string]error) []relay.EndpointError {
	var errs []relay.EndpointError
	for _, relayURL := range relay.Dedupe(relays) {
		if slices.Contains(acked, relayURL) {
			continue
		}
		err, found := lastError[relayURL]
		if !found {
			err = errNoResponse
		}
		errs = append(errs, relay.EndpointError{Relay: relayURL, Err: err})
	}
	return errs
}
