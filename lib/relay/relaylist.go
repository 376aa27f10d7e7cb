// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"net/url"
	"strings"

	"github.com/bureau-foundation/napp/lib/event"
)

// RelayList is an author's advertised relays (kind 10002).
type RelayList struct {
	Read  []string
	Write []string
}

// ParseRelayList reads the "r" tags of a kind 10002 event. A tag with
// no marker applies to both directions. Malformed URLs are skipped.
func ParseRelayList(e *event.Event) RelayList {
	var list RelayList
	for _, tag := range e.Tags.All("r") {
		address, ok := NormalizeURL(tag[1])
		if !ok {
			continue
		}
		marker := ""
		if len(tag) > 2 {
			marker = tag[2]
		}
		switch marker {
		case "read":
			list.Read = append(list.Read, address)
		case "write":
			list.Write = append(list.Write, address)
		case "":
			list.Read = append(list.Read, address)
			list.Write = append(list.Write, address)
		}
	}
	list.Read = Dedupe(list.Read)
	list.Write = Dedupe(list.Write)
	return list
}

// NormalizeURL lowercases the scheme and host of a websocket URL and
// drops a bare trailing slash. Returns false for anything that is not
// ws:// or wss://.
func NormalizeURL(raw string) (string, bool) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Host == "" {
		return "", false
	}
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return "", false
	}
	parsed.Host = strings.ToLower(parsed.Host)
	if parsed.Path == "/" {
		parsed.Path = ""
	}
	return parsed.String(), true
}
