// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package base93 encodes arbitrary bytes as printable ASCII that can
// be embedded in a JSON string without escaping.
//
// The alphabet is the 95 printable ASCII characters (0x20 through
// 0x7E) minus the double quote and the backslash, the two characters a
// JSON string cannot carry literally. Bytes are packed into 13- or
// 14-bit groups, each written as two characters, in the manner of
// basE91: a group takes 14 bits whenever its low 13 bits are small
// enough that the 14-bit value still fits in two base-93 digits. The
// encoding therefore expands input by at most 16/13.
package base93

import (
	"fmt"
	"strings"
)

const (
	base = 93

	// wideThreshold is the largest 13-bit group value that may be
	// widened to 14 bits: 8192 + wideThreshold must stay below 93*93.
	wideThreshold = base*base - 8192 - 1
)

var alphabet = func() [base]byte {
	var table [base]byte
	i := 0
	for c := byte(0x20); c <= 0x7e; c++ {
		if c == '"' || c == '\\' {
			continue
		}
		table[i] = c
		i++
	}
	return table
}()

var decodeTable = func() [256]int16 {
	var table [256]int16
	for i := range table {
		table[i] = -1
	}
	for i, c := range alphabet {
		table[c] = int16(i)
	}
	return table
}()

// CorruptInputError reports a character outside the alphabet at the
// given byte offset of the encoded string.
type CorruptInputError struct {
	Offset    int
	Character byte
}

func (e *CorruptInputError) Error() string {
	return fmt.Sprintf("base93: illegal character %q at offset %d", e.Character, e.Offset)
}

// MaxEncodedLen returns the maximum length of the encoding of n bytes.
func MaxEncodedLen(n int) int {
	return 2 * ((8*n + 12) / 13)
}

// Encode returns the Base93 encoding of data.
func Encode(data []byte) string {
	var out strings.Builder
	out.Grow(MaxEncodedLen(len(data)))

	var queue uint32
	var bits uint
	for _, b := range data {
		queue |= uint32(b) << bits
		bits += 8
		if bits > 13 {
			value := queue & 8191
			if value > wideThreshold {
				queue >>= 13
				bits -= 13
			} else {
				value = queue & 16383
				queue >>= 14
				bits -= 14
			}
			out.WriteByte(alphabet[value%base])
			out.WriteByte(alphabet[value/base])
		}
	}

	if bits > 0 {
		out.WriteByte(alphabet[queue%base])
		if bits > 7 || queue > base-1 {
			out.WriteByte(alphabet[queue/base])
		}
	}
	return out.String()
}

// Decode returns the bytes represented by the Base93 string s.
func Decode(s string) ([]byte, error) {
	out := make([]byte, 0, len(s)*13/16+1)

	var queue uint32
	var bits uint
	pending := -1
	for i := range len(s) {
		digit := decodeTable[s[i]]
		if digit < 0 {
			return nil, &CorruptInputError{Offset: i, Character: s[i]}
		}
		if pending < 0 {
			pending = int(digit)
			continue
		}

		value := uint32(pending) + uint32(digit)*base
		pending = -1
		queue |= value << bits
		if value&8191 > wideThreshold {
			bits += 13
		} else {
			bits += 14
		}
		for bits > 7 {
			out = append(out, byte(queue))
			queue >>= 8
			bits -= 8
		}
	}

	if pending >= 0 {
		out = append(out, byte(queue|uint32(pending)<<bits))
	}
	return out, nil
}
