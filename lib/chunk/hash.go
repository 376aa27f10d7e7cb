// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chunk

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Hash is a 32-byte BLAKE3 digest. Chunk keys, interior nodes, and
// file roots are all this size.
type Hash [32]byte

// domainKey is a 32-byte key for BLAKE3 keyed hashing.
type domainKey [32]byte

// Domain separation keys: the ASCII domain name zero-padded to 32
// bytes. Changing any of them invalidates every published file.
var (
	leafDomainKey = domainKey{
		'n', 'a', 'p', 'p', '.', 'm', 'e', 'r', 'k', 'l', 'e', '.',
		'c', 'h', 'u', 'n', 'k', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	nodeDomainKey = domainKey{
		'n', 'a', 'p', 'p', '.', 'm', 'e', 'r', 'k', 'l', 'e', '.',
		'n', 'o', 'd', 'e', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	rootDomainKey = domainKey{
		'n', 'a', 'p', 'p', '.', 'm', 'e', 'r', 'k', 'l', 'e', '.',
		'r', 'o', 'o', 't', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
)

// HashChunk computes the leaf-domain hash of a chunk's raw bytes. This
// is the chunk's unique key on relays.
func HashChunk(data []byte) Hash {
	return keyedHash(leafDomainKey, data)
}

// hashNode combines two child hashes into their parent.
func hashNode(left, right Hash) Hash {
	var combined [64]byte
	copy(combined[:32], left[:])
	copy(combined[32:], right[:])
	return keyedHash(nodeDomainKey, combined[:])
}

// bagPeaks folds peak hashes right to left and wraps the result in the
// root domain. Panics on an empty slice.
func bagPeaks(peaks []Hash) Hash {
	if len(peaks) == 0 {
		panic("chunk: bagging zero peaks")
	}
	accumulator := peaks[len(peaks)-1]
	for i := len(peaks) - 2; i >= 0; i-- {
		accumulator = hashNode(peaks[i], accumulator)
	}
	return keyedHash(rootDomainKey, accumulator[:])
}

// String returns the lowercase hex form of the hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the all-zero hash.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHash parses a 64-character lowercase hex string into a Hash.
// Uppercase hex is rejected so that every hash has exactly one textual
// form on the wire.
func ParseHash(hexString string) (Hash, error) {
	var hash Hash
	if len(hexString) != 64 {
		return hash, fmt.Errorf("chunk hash is %d characters, want 64", len(hexString))
	}
	for i := range len(hexString) {
		c := hexString[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return hash, fmt.Errorf("chunk hash has invalid character %q at offset %d", c, i)
		}
	}
	if _, err := hex.Decode(hash[:], []byte(hexString)); err != nil {
		return hash, fmt.Errorf("parsing chunk hash: %w", err)
	}
	return hash, nil
}

// keyedHash computes BLAKE3 keyed hash with the given domain key.
func keyedHash(key domainKey, data []byte) Hash {
	// NewKeyed only fails for a key that is not 32 bytes.
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("chunk: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var hash Hash
	copy(hash[:], hasher.Sum(nil))
	return hash
}
