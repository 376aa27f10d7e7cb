// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chunk

import (
	"errors"
	"iter"
	"math/bits"
)

var (
	// ErrEmptyInput is returned by [Builder.Root] when no chunk was
	// appended. A file always has at least one chunk.
	ErrEmptyInput = errors.New("chunk: no chunks appended")

	// ErrSealed is returned by [Builder.Append] once the root has
	// been computed. The root covers exactly the chunks appended
	// before the first Root call.
	ErrSealed = errors.New("chunk: builder sealed by Root")

	// ErrConsumed is returned by [Builder.Chunks] on a second call.
	// Chunk bytes are released while iterating; rebuild to restart.
	ErrConsumed = errors.New("chunk: chunks already consumed")
)

// Chunk is one fixed-size slice of a file together with everything a
// relay record needs to prove its place in the file.
type Chunk struct {
	// Index is the zero-based position of the chunk in the file.
	Index int

	// Data is the chunk's raw bytes.
	Data []byte

	// Total is the number of chunks in the file.
	Total int

	// Proof is the inclusion proof: siblings from the leaf to its
	// peak, then the remaining peaks left to right.
	Proof []Hash

	// Root is the file's Merkle root.
	Root Hash

	// Hash is HashChunk(Data), the chunk's unique key.
	Hash Hash
}

type peak struct {
	hash   Hash
	height int
}

// Builder accumulates chunks in order and yields each one with its
// inclusion proof once the file is complete. Not safe for concurrent
// use.
type Builder struct {
	data     [][]byte
	leaves   []Hash
	peaks    []peak
	sealed   bool
	consumed bool
	root     Hash
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Append adds the next chunk. The Builder retains data until the chunk
// is yielded by [Builder.Chunks]; the caller must not modify it.
func (b *Builder) Append(data []byte) error {
	if b.sealed {
		return ErrSealed
	}
	leaf := HashChunk(data)
	b.data = append(b.data, data)
	b.leaves = append(b.leaves, leaf)

	b.peaks = append(b.peaks, peak{hash: leaf})
	for len(b.peaks) >= 2 {
		right := b.peaks[len(b.peaks)-1]
		left := b.peaks[len(b.peaks)-2]
		if left.height != right.height {
			break
		}
		b.peaks = b.peaks[:len(b.peaks)-2]
		b.peaks = append(b.peaks, peak{
			hash:   hashNode(left.hash, right.hash),
			height: left.height + 1,
		})
	}
	return nil
}

// Len returns the number of chunks appended so far.
func (b *Builder) Len() int {
	return len(b.leaves)
}

// Root seals the Builder and returns the file's Merkle root. Repeated
// calls return the same root.
func (b *Builder) Root() (Hash, error) {
	if len(b.leaves) == 0 {
		return Hash{}, ErrEmptyInput
	}
	if !b.sealed {
		peaks := make([]Hash, len(b.peaks))
		for i, p := range b.peaks {
			peaks[i] = p.hash
		}
		b.root = bagPeaks(peaks)
		b.sealed = true
	}
	return b.root, nil
}

// Chunks seals the Builder and returns a single-pass sequence of every
// chunk in index order. Each chunk's bytes are released by the Builder
// as it is yielded.
func (b *Builder) Chunks() (iter.Seq[Chunk], error) {
	if b.consumed {
		return nil, ErrConsumed
	}
	root, err := b.Root()
	if err != nil {
		return nil, err
	}
	b.consumed = true

	total := len(b.leaves)
	mountains := layout(total)
	trees := make([][][]Hash, len(mountains))
	peakHashes := make([]Hash, len(mountains))
	for m, mountain := range mountains {
		trees[m] = buildLevels(b.leaves[mountain.start : mountain.start+mountain.size()])
		peakHashes[m] = trees[m][mountain.height][0]
	}

	return func(yield func(Chunk) bool) {
		m := 0
		for index := range total {
			for index >= mountains[m].start+mountains[m].size() {
				m++
			}
			proof := make([]Hash, 0, mountains[m].height+len(mountains)-1)
			position := index - mountains[m].start
			for level := range mountains[m].height {
				proof = append(proof, trees[m][level][position^1])
				position >>= 1
			}
			for other, peakHash := range peakHashes {
				if other != m {
					proof = append(proof, peakHash)
				}
			}

			chunk := Chunk{
				Index: index,
				Data:  b.data[index],
				Total: total,
				Proof: proof,
				Root:  root,
				Hash:  b.leaves[index],
			}
			b.data[index] = nil
			if !yield(chunk) {
				return
			}
		}
	}, nil
}

// Verify reports whether leaf is the chunk at index in a file of total
// chunks whose root is root, according to proof.
func Verify(root Hash, index, total int, leaf Hash, proof []Hash) bool {
	if total <= 0 || index < 0 || index >= total {
		return false
	}
	mountains := layout(total)
	m := 0
	for index >= mountains[m].start+mountains[m].size() {
		m++
	}
	height := mountains[m].height
	if len(proof) != height+len(mountains)-1 {
		return false
	}

	accumulator := leaf
	position := index - mountains[m].start
	for level := range height {
		if position&1 == 0 {
			accumulator = hashNode(accumulator, proof[level])
		} else {
			accumulator = hashNode(proof[level], accumulator)
		}
		position >>= 1
	}

	peaks := make([]Hash, 0, len(mountains))
	peaks = append(peaks, proof[height:height+m]...)
	peaks = append(peaks, accumulator)
	peaks = append(peaks, proof[height+m:]...)
	return bagPeaks(peaks) == root
}

// mountain is one perfect binary tree in the range: 2^height leaves
// beginning at leaf start.
type mountain struct {
	start  int
	height int
}

func (m mountain) size() int {
	return 1 << m.height
}

// layout returns the mountains of a range with total leaves, tallest
// first. Their heights are the set bits of total.
func layout(total int) []mountain {
	mountains := make([]mountain, 0, bits.OnesCount(uint(total)))
	start := 0
	for height := bits.Len(uint(total)) - 1; height >= 0; height-- {
		if total&(1<<height) != 0 {
			mountains = append(mountains, mountain{start: start, height: height})
			start += 1 << height
		}
	}
	return mountains
}

// buildLevels returns every level of the perfect tree over leaves,
// from the leaves (level 0) up to the single peak.
func buildLevels(leaves []Hash) [][]Hash {
	levels := [][]Hash{leaves}
	for current := leaves; len(current) > 1; {
		next := make([]Hash, len(current)/2)
		for i := range next {
			next[i] = hashNode(current[2*i], current[2*i+1])
		}
		levels = append(levels, next)
		current = next
	}
	return levels
}
