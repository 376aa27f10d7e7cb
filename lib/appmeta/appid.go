// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package appmeta derives an app's identity and listing metadata from
// the files being uploaded: the app id from the directory name, the
// name, summary, and hashtags from index.html, the icon from the
// favicon, mime types from file extensions, and explicit overrides
// from an optional napp.jsonc at the app root.
package appmeta

import (
	"crypto/sha1"
	"encoding/binary"
	"strconv"
	"strings"
)

// MaxAppIDLength is the longest app id. Ids are base36 so they are
// usable as a DNS label.
const MaxAppIDLength = 7

// IsAppID reports whether s can be used as an app id verbatim:
// 1 to 7 characters of [0-9a-z].
func IsAppID(s string) bool {
	if s == "" || len(s) > MaxAppIDLength {
		return false
	}
	for i := range len(s) {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'z') {
			return false
		}
	}
	return true
}

// AppID returns the app id for an app directory named name. A name
// that already is an app id is returned as is. Any other name is
// hashed: the first four bytes of its SHA-1, read as a big-endian
// integer, written in base36 and left-padded with zeros to seven
// characters. Four bytes is the most that always fits in seven base36
// digits.
func AppID(name string) string {
	name = strings.TrimSpace(name)
	if IsAppID(name) {
		return name
	}
	digest := sha1.Sum([]byte(name))
	id := strconv.FormatUint(uint64(binary.BigEndian.Uint32(digest[:4])), 36)
	return strings.Repeat("0", MaxAppIDLength-len(id)) + id
}
