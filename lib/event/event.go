// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"unicode/utf8"
)

// Kind numbers used by napp records.
const (
	KindRelayList = 10002
	KindChunk     = 34600
	KindListing   = 37348
	KindManifest  = 37448
)

// Event is a relay record.
type Event struct {
	ID        string `json:"id"`
	PubKey    string `json:"pubkey"`
	CreatedAt int64  `json:"created_at"`
	Kind      int    `json:"kind"`
	Tags      Tags   `json:"tags"`
	Content   string `json:"content"`
	Sig       string `json:"sig"`
}

// Tag is one tag: a name followed by its values.
type Tag []string

// Name returns the tag name, or "" for an empty tag.
func (t Tag) Name() string {
	if len(t) == 0 {
		return ""
	}
	return t[0]
}

// Value returns the first value, or "" if the tag has none.
func (t Tag) Value() string {
	if len(t) < 2 {
		return ""
	}
	return t[1]
}

// Tags is an ordered tag list.
type Tags []Tag

// Find returns the first tag named name that carries a value.
func (t Tags) Find(name string) (Tag, bool) {
	for _, tag := range t {
		if len(tag) >= 2 && tag[0] == name {
			return tag, true
		}
	}
	return nil, false
}

// All returns every tag named name that carries a value.
func (t Tags) All(name string) []Tag {
	var found []Tag
	for _, tag := range t {
		if len(tag) >= 2 && tag[0] == name {
			found = append(found, tag)
		}
	}
	return found
}

// Value returns the first value of the first tag named name.
func (t Tags) Value(name string) string {
	tag, _ := t.Find(name)
	return tag.Value()
}

// Identifier returns the event's "d" tag value.
func (e *Event) Identifier() string {
	return e.Tags.Value("d")
}

// Address identifies a parameterized replaceable record.
type Address struct {
	Kind       int
	PubKey     string
	Identifier string
}

// String renders the address as "kind:pubkey:identifier".
func (a Address) String() string {
	return strconv.Itoa(a.Kind) + ":" + a.PubKey + ":" + a.Identifier
}

// Address returns the event's address.
func (e *Event) Address() Address {
	return Address{Kind: e.Kind, PubKey: e.PubKey, Identifier: e.Identifier()}
}

// Serialize returns the canonical form hashed into the event id:
// [0,pubkey,created_at,kind,tags,content] with NIP-01 string escaping
// and no insignificant whitespace.
func (e *Event) Serialize() []byte {
	buffer := make([]byte, 0, 128+len(e.Content))
	buffer = append(buffer, "[0,"...)
	buffer = appendString(buffer, e.PubKey)
	buffer = append(buffer, ',')
	buffer = strconv.AppendInt(buffer, e.CreatedAt, 10)
	buffer = append(buffer, ',')
	buffer = strconv.AppendInt(buffer, int64(e.Kind), 10)
	buffer = append(buffer, ",["...)
	for i, tag := range e.Tags {
		if i > 0 {
			buffer = append(buffer, ',')
		}
		buffer = append(buffer, '[')
		for j, value := range tag {
			if j > 0 {
				buffer = append(buffer, ',')
			}
			buffer = appendString(buffer, value)
		}
		buffer = append(buffer, ']')
	}
	buffer = append(buffer, "],"...)
	buffer = appendString(buffer, e.Content)
	buffer = append(buffer, ']')
	return buffer
}

// ComputeID returns the hex SHA-256 of the canonical serialization.
func (e *Event) ComputeID() string {
	sum := sha256.Sum256(e.Serialize())
	return hex.EncodeToString(sum[:])
}

// CheckID verifies that the event's id matches its contents.
func (e *Event) CheckID() error {
	if computed := e.ComputeID(); computed != e.ID {
		return fmt.Errorf("event id %s does not match contents (computed %s)", e.ID, computed)
	}
	return nil
}

// WireSize returns the length of the event's encoding as sent to
// relays by [MarshalWire].
func (e *Event) WireSize() int {
	data, err := MarshalWire(e)
	if err != nil {
		return 0
	}
	return len(data)
}

// MarshalWire encodes v as JSON without HTML escaping. Base93 content
// uses '<', '>' and '&', which json.Marshal would expand to six bytes
// each.
func MarshalWire(v any) ([]byte, error) {
	var buffer bytes.Buffer
	encoder := json.NewEncoder(&buffer)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buffer.Bytes(), []byte("\n")), nil
}

// appendString appends s as a JSON string using only the escapes
// NIP-01 specifies. Everything else, including non-ASCII UTF-8, is
// written verbatim so independent implementations hash identical
// bytes.
func appendString(buffer []byte, s string) []byte {
	const hexDigits = "0123456789abcdef"
	buffer = append(buffer, '"')
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '"':
			buffer = append(buffer, '\\', '"')
		case c == '\\':
			buffer = append(buffer, '\\', '\\')
		case c == '\n':
			buffer = append(buffer, '\\', 'n')
		case c == '\r':
			buffer = append(buffer, '\\', 'r')
		case c == '\t':
			buffer = append(buffer, '\\', 't')
		case c == '\b':
			buffer = append(buffer, '\\', 'b')
		case c == '\f':
			buffer = append(buffer, '\\', 'f')
		case c < 0x20:
			buffer = append(buffer, '\\', 'u', '0', '0', hexDigits[c>>4], hexDigits[c&0xf])
		case c < utf8.RuneSelf:
			buffer = append(buffer, c)
		default:
			_, size := utf8.DecodeRuneInString(s[i:])
			buffer = append(buffer, s[i:i+size]...)
			i += size
			continue
		}
		i++
	}
	return append(buffer, '"')
}
