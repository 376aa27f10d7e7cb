// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"

	"github.com/bureau-foundation/napp/lib/chunk"
)

type sample struct {
	Root  chunk.Hash   `cbor:"root"`
	Proof []chunk.Hash `cbor:"proof"`
	Index int          `cbor:"index"`
	Names map[string]int
}

func TestRoundTrip(t *testing.T) {
	original := sample{
		Root:  chunk.HashChunk([]byte("r")),
		Proof: []chunk.Hash{chunk.HashChunk([]byte("a")), chunk.HashChunk([]byte("b"))},
		Index: 3,
		Names: map[string]int{"z": 1, "a": 2},
	}
	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded sample
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Root != original.Root || decoded.Index != 3 || len(decoded.Proof) != 2 || decoded.Proof[1] != original.Proof[1] {
		t.Errorf("decoded = %+v", decoded)
	}
	if decoded.Names["a"] != 2 || decoded.Names["z"] != 1 {
		t.Errorf("decoded map = %v", decoded.Names)
	}
}

func TestHashEncodesAsText(t *testing.T) {
	hash := chunk.HashChunk([]byte("x"))
	data, err := Marshal(hash)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	// Major type 3 (text string) with a one-byte length of 64.
	if data[0] != 0x78 || data[1] != 64 {
		t.Fatalf("hash encoded with header % x, want text string of 64", data[:2])
	}
	if !bytes.Equal(data[2:], []byte(hash.String())) {
		t.Error("hash text differs from Hash.String")
	}
}

func TestDeterministic(t *testing.T) {
	first, _ := Marshal(map[string]int{"b": 1, "a": 2, "c": 3})
	for range 10 {
		again, _ := Marshal(map[string]int{"c": 3, "a": 2, "b": 1})
		if !bytes.Equal(first, again) {
			t.Fatal("equal maps encoded differently")
		}
	}
}

func TestStream(t *testing.T) {
	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	for i := range 3 {
		if err := encoder.Encode(i); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}
	decoder := NewDecoder(&buffer)
	for want := range 3 {
		var got int
		if err := decoder.Decode(&got); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if got != want {
			t.Errorf("decoded %d, want %d", got, want)
		}
	}
}
