// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package chunk splits files into fixed-size chunks and accumulates
// them into a Merkle mountain range so that every chunk carries a
// proof of membership and position in its file.
//
// A file is published as a sequence of chunks. Each chunk is
// addressed by its own content hash (the key under which relays store
// it) and located within a file by the pair (root, index), where root
// is the file's Merkle root. The accumulator is append-only: each
// [Builder.Append] pushes a leaf onto a stack of perfect binary trees
// ("peaks") and merges equal-height peaks, so a file of n chunks costs
// O(n) hash operations in total and never holds more than log2(n)+1
// peaks.
//
// The root is the file-domain hash of the peaks folded right to left.
// An inclusion proof for leaf i is the list of sibling hashes from the
// leaf to the top of its peak, followed by every other peak in left to
// right order. [Verify] recomputes the root from a leaf hash, its
// index, the file's chunk count, and the proof.
//
// All hashes are BLAKE3 in keyed mode with a distinct domain key for
// leaves, interior nodes, and file roots, so a chunk hash can never be
// confused with an interior node or a root.
package chunk
