// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chunk

import (
	"errors"
	"fmt"
	"io"
)

// DefaultSize is the chunk size used when configuration does not
// override it. A Base93-encoded chunk of this size plus its tags fits
// comfortably under the 64 KiB message limit most relays enforce.
const DefaultSize = 51000

// Splitter reads a stream in fixed-size chunks. Every chunk is exactly
// the configured size except the last, which may be shorter. An empty
// stream produces exactly one empty chunk, so every file has at least
// one chunk and therefore a root.
type Splitter struct {
	reader  io.Reader
	size    int
	emitted bool
	done    bool
}

// NewSplitter returns a Splitter reading from r in chunks of size
// bytes. Panics if size is not positive.
func NewSplitter(r io.Reader, size int) *Splitter {
	if size <= 0 {
		panic(fmt.Sprintf("chunk.NewSplitter: size must be positive, got %d", size))
	}
	return &Splitter{reader: r, size: size}
}

// Next returns the next chunk. Each returned slice is freshly
// allocated and owned by the caller. Returns io.EOF after the last
// chunk.
func (s *Splitter) Next() ([]byte, error) {
	if s.done {
		return nil, io.EOF
	}

	buffer := make([]byte, s.size)
	n, err := io.ReadFull(s.reader, buffer)
	switch {
	case err == nil:
		s.emitted = true
		return buffer, nil
	case errors.Is(err, io.ErrUnexpectedEOF):
		s.done = true
		s.emitted = true
		return buffer[:n], nil
	case errors.Is(err, io.EOF):
		s.done = true
		if !s.emitted {
			s.emitted = true
			return buffer[:0], nil
		}
		return nil, io.EOF
	default:
		return nil, fmt.Errorf("reading chunk: %w", err)
	}
}

// Split reads r to the end and appends every chunk to a new Builder.
func Split(r io.Reader, size int) (*Builder, error) {
	splitter := NewSplitter(r, size)
	builder := NewBuilder()
	for {
		data, err := splitter.Next()
		if errors.Is(err, io.EOF) {
			return builder, nil
		}
		if err != nil {
			return nil, err
		}
		if err := builder.Append(data); err != nil {
			return nil, err
		}
	}
}
