// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/bureau-foundation/napp/lib/event"
)

// fakeRelay answers REQ with its stored events and EVENT with the
// configured OK response.
func fakeRelay(t *testing.T, stored []event.Event, accept bool, message string) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()
		for {
			var frame []json.RawMessage
			if err := wsjson.Read(ctx, conn, &frame); err != nil {
				return
			}
			var label string
			_ = json.Unmarshal(frame[0], &label)
			switch label {
			case "REQ":
				var subscription string
				_ = json.Unmarshal(frame[1], &subscription)
				_ = wsjson.Write(ctx, conn, []any{"NOTICE", "hello"})
				for _, e := range stored {
					_ = wsjson.Write(ctx, conn, []any{"EVENT", subscription, e})
				}
				_ = wsjson.Write(ctx, conn, []any{"EVENT", "other-subscription", event.Event{ID: "stray"}})
				_ = wsjson.Write(ctx, conn, []any{"EOSE", subscription})
			case "EVENT":
				var received event.Event
				_ = json.Unmarshal(frame[1], &received)
				_ = wsjson.Write(ctx, conn, []any{"OK", received.ID, accept, message})
			case "CLOSE":
			}
		}
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestWebSocketQuery(t *testing.T) {
	stored := []event.Event{
		{ID: "a", PubKey: "p", Kind: event.KindChunk, Tags: event.Tags{{"d", "k1"}}},
		{ID: "b", PubKey: "p", Kind: event.KindManifest, Tags: event.Tags{{"d", "k2"}}},
	}
	url := fakeRelay(t, stored, true, "")
	client := NewWebSocketClient(WebSocketOptions{})

	result := client.Query(context.Background(), event.Filter{Kinds: []int{event.KindChunk}}, []string{url}, 5*time.Second)
	if len(result.Errors) != 0 {
		t.Fatalf("Query errors: %v", result.Errors)
	}
	if len(result.Events) != 1 || result.Events[0].ID != "a" {
		t.Fatalf("Query events = %v, want only the matching chunk", result.Events)
	}
}

func TestWebSocketPublish(t *testing.T) {
	tests := []struct {
		name        string
		accept      bool
		message     string
		wantAck     bool
		rateLimited bool
	}{
		{"accepted", true, "", true, false},
		{"duplicate", false, "duplicate: have it", true, false},
		{"rate limited", false, "rate-limited: slow down", false, true},
		{"blocked", false, "blocked: no", false, false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			url := fakeRelay(t, nil, test.accept, test.message)
			client := NewWebSocketClient(WebSocketOptions{PublishRate: 100})
			result := client.Publish(context.Background(), event.Event{ID: "e1", Kind: 1}, []string{url}, 5*time.Second)
			if result.Success() != test.wantAck {
				t.Fatalf("Success = %v, errors %v", result.Success(), result.Errors)
			}
			if !test.wantAck {
				if len(result.Errors) != 1 {
					t.Fatalf("errors = %v", result.Errors)
				}
				if IsRateLimited(result.Errors[0]) != test.rateLimited {
					t.Errorf("IsRateLimited = %v, want %v", !test.rateLimited, test.rateLimited)
				}
			}
		})
	}
}

func TestWebSocketUnreachable(t *testing.T) {
	client := NewWebSocketClient(WebSocketOptions{})
	result := client.Publish(context.Background(), event.Event{ID: "e1"}, []string{"ws://127.0.0.1:1"}, time.Second)
	if result.Success() || len(result.Errors) != 1 {
		t.Fatalf("Publish to a closed port = %+v", result)
	}
}

func TestWebSocketUserAgent(t *testing.T) {
	agents := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agents <- r.Header.Get("User-Agent")
		http.Error(w, "closed for maintenance", http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	client := NewWebSocketClient(WebSocketOptions{UserAgent: "napp/test"})
	result := client.Query(t.Context(), event.Filter{}, []string{"ws" + strings.TrimPrefix(server.URL, "http")}, time.Second)
	if len(result.Errors) != 1 {
		t.Fatalf("Query errors = %v, want the refused handshake", result.Errors)
	}
	if agent := <-agents; agent != "napp/test" {
		t.Errorf("User-Agent = %q, want napp/test", agent)
	}
}

func TestWebSocketPublishFrameSize(t *testing.T) {
	frames := make(chan []byte, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		_, data, err := conn.Read(r.Context())
		if err != nil {
			return
		}
		frames <- data
		_ = wsjson.Write(r.Context(), conn, []any{"OK", "e1", true, ""})
	}))
	t.Cleanup(server.Close)

	signed := event.Event{ID: "e1", Kind: event.KindChunk, Tags: event.Tags{}, Content: "<<&>>"}
	client := NewWebSocketClient(WebSocketOptions{})
	result := client.Publish(t.Context(), signed, []string{"ws" + strings.TrimPrefix(server.URL, "http")}, 5*time.Second)
	if !result.Success() {
		t.Fatalf("Publish errors = %v", result.Errors)
	}
	frame := <-frames
	if !strings.Contains(string(frame), `"content":"<<&>>"`) {
		t.Errorf("EVENT frame escapes content: %s", frame)
	}
	if want := len(`["EVENT",]`) + signed.WireSize(); len(frame) != want {
		t.Errorf("EVENT frame is %d bytes, want %d", len(frame), want)
	}
}
