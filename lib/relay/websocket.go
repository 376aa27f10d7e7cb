// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/bureau-foundation/napp/lib/event"
)

// DefaultReadLimit bounds a single relay message. Chunk events are
// under 64 KiB; the headroom covers relays that batch or pad.
const DefaultReadLimit = 1 << 22

// WebSocketOptions configures a WebSocketClient.
type WebSocketOptions struct {
	// Logger receives per-relay diagnostics. Nil discards.
	Logger *slog.Logger

	// PublishRate limits EVENT messages per second to each relay.
	// Zero means unlimited.
	PublishRate float64

	// Verify, if set, is applied to every event a relay returns.
	// Events that fail are dropped and logged.
	Verify func(*event.Event) error

	// ReadLimit overrides DefaultReadLimit.
	ReadLimit int64

	// UserAgent is sent in the handshake when set.
	UserAgent string
}

// WebSocketClient talks NIP-01 to relays, dialing a fresh connection
// per relay per call. Safe for concurrent use.
type WebSocketClient struct {
	logger    *slog.Logger
	rate      rate.Limit
	verify    func(*event.Event) error
	readLimit int64
	header    http.Header

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewWebSocketClient returns a client configured by options.
func NewWebSocketClient(options WebSocketOptions) *WebSocketClient {
	client := &WebSocketClient{
		logger:    options.Logger,
		rate:      rate.Inf,
		verify:    options.Verify,
		readLimit: options.ReadLimit,
		limiters:  make(map[string]*rate.Limiter),
	}
	if client.logger == nil {
		client.logger = slog.New(slog.DiscardHandler)
	}
	if options.PublishRate > 0 {
		client.rate = rate.Limit(options.PublishRate)
	}
	if client.readLimit <= 0 {
		client.readLimit = DefaultReadLimit
	}
	if options.UserAgent != "" {
		client.header = http.Header{"User-Agent": {options.UserAgent}}
	}
	return client
}

// Query implements Client.
func (c *WebSocketClient) Query(ctx context.Context, filter event.Filter, relays []string, timeout time.Duration) QueryResult {
	var (
		mu     sync.Mutex
		result QueryResult
		wait   sync.WaitGroup
	)
	for _, relay := range relays {
		wait.Go(func() {
			events, err := c.queryRelay(ctx, relay, filter, timeout)
			mu.Lock()
			defer mu.Unlock()
			result.Events = append(result.Events, events...)
			if err != nil {
				result.Errors = append(result.Errors, EndpointError{Relay: relay, Err: err})
			}
		})
	}
	wait.Wait()
	return result
}

// Publish implements Client.
func (c *WebSocketClient) Publish(ctx context.Context, signed event.Event, relays []string, timeout time.Duration) PublishResult {
	var (
		mu     sync.Mutex
		result PublishResult
		wait   sync.WaitGroup
	)
	for _, relay := range relays {
		wait.Go(func() {
			err := c.publishRelay(ctx, relay, &signed, timeout)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors = append(result.Errors, EndpointError{Relay: relay, Err: err})
				return
			}
			result.Acked = append(result.Acked, relay)
		})
	}
	wait.Wait()
	return result
}

func (c *WebSocketClient) dial(ctx context.Context, relay string) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, relay, &websocket.DialOptions{HTTPHeader: c.header})
	if err != nil {
		return nil, fmt.Errorf("dialing: %w", err)
	}
	conn.SetReadLimit(c.readLimit)
	return conn, nil
}

// queryRelay subscribes with filter and collects events until EOSE.
// Events received before a failure are returned with the error.
func (c *WebSocketClient) queryRelay(ctx context.Context, relay string, filter event.Filter, timeout time.Duration) ([]event.Event, error) {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	conn, err := c.dial(ctx, relay)
	if err != nil {
		return nil, err
	}
	defer conn.CloseNow()

	subscription := uuid.NewString()
	if err := writeFrame(ctx, conn, []any{"REQ", subscription, filter}); err != nil {
		return nil, fmt.Errorf("sending REQ: %w", err)
	}

	var events []event.Event
	for {
		label, frame, err := readFrame(ctx, conn)
		if err != nil {
			return events, err
		}
		switch label {
		case "EVENT":
			if len(frame) < 3 || !frameString(frame[1], subscription) {
				continue
			}
			var received event.Event
			if err := json.Unmarshal(frame[2], &received); err != nil {
				c.logger.Warn("undecodable event from relay", "relay", relay, "error", err)
				continue
			}
			if c.verify != nil {
				if err := c.verify(&received); err != nil {
					c.logger.Warn("dropping invalid event from relay", "relay", relay, "id", received.ID, "error", err)
					continue
				}
			}
			if filter.Matches(&received) {
				events = append(events, received)
			}
		case "EOSE":
			if len(frame) >= 2 && frameString(frame[1], subscription) {
				_ = writeFrame(ctx, conn, []any{"CLOSE", subscription})
				conn.Close(websocket.StatusNormalClosure, "")
				return events, nil
			}
		case "CLOSED":
			if len(frame) >= 2 && frameString(frame[1], subscription) {
				var message string
				if len(frame) >= 3 {
					_ = json.Unmarshal(frame[2], &message)
				}
				return events, ParseRejection(message)
			}
		case "NOTICE":
			c.logNotice(relay, frame)
		}
	}
}

// publishRelay sends signed and waits for the relay's OK.
func (c *WebSocketClient) publishRelay(ctx context.Context, relay string, signed *event.Event, timeout time.Duration) error {
	if err := c.limiter(relay).Wait(ctx); err != nil {
		return err
	}

	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	conn, err := c.dial(ctx, relay)
	if err != nil {
		return err
	}
	defer conn.CloseNow()

	if err := writeFrame(ctx, conn, []any{"EVENT", signed}); err != nil {
		return fmt.Errorf("sending EVENT: %w", err)
	}
	for {
		label, frame, err := readFrame(ctx, conn)
		if err != nil {
			return err
		}
		switch label {
		case "OK":
			if len(frame) < 3 || !frameString(frame[1], signed.ID) {
				continue
			}
			var accepted bool
			var message string
			if err := json.Unmarshal(frame[2], &accepted); err != nil {
				return fmt.Errorf("malformed OK: %w", err)
			}
			if len(frame) >= 4 {
				_ = json.Unmarshal(frame[3], &message)
			}
			conn.Close(websocket.StatusNormalClosure, "")
			if accepted {
				return nil
			}
			rejection := ParseRejection(message)
			if rejection.Prefix == PrefixDuplicate {
				return nil
			}
			return rejection
		case "NOTICE":
			c.logNotice(relay, frame)
		}
	}
}

func (c *WebSocketClient) limiter(relay string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	limiter, ok := c.limiters[relay]
	if !ok {
		limiter = rate.NewLimiter(c.rate, 1)
		c.limiters[relay] = limiter
	}
	return limiter
}

func (c *WebSocketClient) logNotice(relay string, frame []json.RawMessage) {
	var message string
	if len(frame) >= 2 {
		_ = json.Unmarshal(frame[1], &message)
	}
	c.logger.Info("relay notice", "relay", relay, "message", message)
}

// writeFrame sends one relay message as a text frame.
func writeFrame(ctx context.Context, conn *websocket.Conn, message []any) error {
	data, err := event.MarshalWire(message)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// readFrame reads one relay message and returns its label.
func readFrame(ctx context.Context, conn *websocket.Conn) (string, []json.RawMessage, error) {
	var frame []json.RawMessage
	if err := wsjson.Read(ctx, conn, &frame); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", nil, fmt.Errorf("timed out waiting for relay: %w", context.DeadlineExceeded)
		}
		return "", nil, fmt.Errorf("reading: %w", err)
	}
	if len(frame) == 0 {
		return "", nil, nil
	}
	var label string
	if err := json.Unmarshal(frame[0], &label); err != nil {
		return "", nil, nil
	}
	return label, frame, nil
}

func frameString(raw json.RawMessage, want string) bool {
	var value string
	return json.Unmarshal(raw, &value) == nil && value == want
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
