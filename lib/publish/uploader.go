// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package publish

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/bureau-foundation/napp/lib/base93"
	"github.com/bureau-foundation/napp/lib/chunk"
	"github.com/bureau-foundation/napp/lib/clock"
	"github.com/bureau-foundation/napp/lib/event"
	"github.com/bureau-foundation/napp/lib/ledger"
	"github.com/bureau-foundation/napp/lib/listing"
	"github.com/bureau-foundation/napp/lib/record"
	"github.com/bureau-foundation/napp/lib/signer"
)

// Uploader publishes files and apps as one author.
type Uploader struct {
	Signer    signer.Signer
	Publisher *Publisher
	Index     ChunkIndex
	Clock     clock.Clock

	// Ledger, when set, records every chunk and file published.
	Ledger *ledger.Ledger

	// Listings, when set, reconciles the app listing after the
	// manifest is published.
	Listings *listing.Reconciler

	// ChunkSize defaults to chunk.DefaultSize.
	ChunkSize int

	// MaxEventSize rejects larger signed events before sending. Zero
	// disables the check.
	MaxEventSize int

	// FileConcurrency is how many files of an app upload at once.
	// Values below 1 are treated as 1.
	FileConcurrency int

	// AuthorRelays adds the author's advertised write relays to every
	// app upload.
	AuthorRelays bool

	// Progress, when set, is called after each chunk. Calls are
	// serialized.
	Progress func(Progress)

	Logger *slog.Logger
}

// Progress reports upload position. Chunk counts refer to File.
type Progress struct {
	File       string
	FilesDone  int
	FilesTotal int
	Chunk      int
	ChunkTotal int
}

// FileResult describes one uploaded file.
type FileResult struct {
	File record.File

	// Published counts chunk events sent; Skipped counts chunks
	// already stored under this file's locator.
	Published int
	Skipped   int
}

func (u *Uploader) logger() *slog.Logger {
	if u.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return u.Logger
}

func (u *Uploader) chunkSize() int {
	if u.ChunkSize <= 0 {
		return chunk.DefaultSize
	}
	return u.ChunkSize
}

// UploadFile publishes the content of r as the file name. Chunks the
// author already published under the same locator are skipped. A
// chunk published before under other locators is republished with
// its own locator added to theirs.
func (u *Uploader) UploadFile(ctx context.Context, r io.Reader, name, mimeType string, relays []string) (FileResult, error) {
	return u.uploadFile(ctx, r, name, mimeType, relays, func(int, int) {})
}

func (u *Uploader) uploadFile(ctx context.Context, r io.Reader, name, mimeType string, relays []string, progress func(done, total int)) (FileResult, error) {
	splitter := chunk.NewSplitter(r, u.chunkSize())
	builder := chunk.NewBuilder()
	var size int64
	for {
		data, err := splitter.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return FileResult{}, fmt.Errorf("reading %s: %w", name, err)
		}
		size += int64(len(data))
		if err := builder.Append(data); err != nil {
			return FileResult{}, fmt.Errorf("building %s: %w", name, err)
		}
	}

	root, err := builder.Root()
	if err != nil {
		return FileResult{}, fmt.Errorf("file %s: %w", name, err)
	}
	chunks, err := builder.Chunks()
	if err != nil {
		return FileResult{}, fmt.Errorf("file %s: %w", name, err)
	}

	result := FileResult{File: record.File{
		Root:     root,
		Name:     name,
		MimeType: mimeType,
		Chunks:   builder.Len(),
		Size:     size,
	}}
	logger := u.logger().With("file", name, "root", root, "chunks", result.File.Chunks)
	author := u.Signer.PublicKey()

	for c := range chunks {
		if err := ctx.Err(); err != nil {
			return FileResult{}, err
		}
		published, err := u.publishChunk(ctx, author, c, mimeType, relays)
		if err != nil {
			return FileResult{}, fmt.Errorf("file %s chunk %d/%d: %w", name, c.Index+1, c.Total, err)
		}
		if published {
			result.Published++
		} else {
			result.Skipped++
		}
		progress(c.Index+1, c.Total)
	}

	if u.Ledger != nil {
		if err := u.Ledger.RecordFile(ctx, author, result.File, u.Clock.Now()); err != nil {
			logger.Warn("ledger update failed", "error", err)
		}
	}
	logger.Info("file uploaded", "size", size, "published", result.Published, "skipped", result.Skipped)
	return result, nil
}

// publishChunk publishes one chunk unless its locator is already
// stored. It reports whether an event was sent.
func (u *Uploader) publishChunk(ctx context.Context, author string, c chunk.Chunk, mimeType string, relays []string) (bool, error) {
	previous, found, err := u.Index.Lookup(ctx, author, c.Hash, relays)
	if err != nil {
		return false, err
	}
	if found && previous.Has(c.Root, c.Index) {
		return false, nil
	}

	content := base93.Encode(c.Data)
	decoded, err := base93.Decode(content)
	if err != nil || !bytes.Equal(decoded, c.Data) {
		return false, ErrEncodingInvariant
	}

	chunkRecord := record.NewChunkRecord(c, mimeType, content, previous.Locators)
	unsigned := chunkRecord.Event()
	unsigned.CreatedAt = u.Clock.Now().Unix()
	if found && unsigned.CreatedAt <= previous.CreatedAt {
		unsigned.CreatedAt = previous.CreatedAt + 1
	}
	signed, err := u.Signer.Sign(ctx, unsigned)
	if err != nil {
		return false, fmt.Errorf("signing: %w", err)
	}
	if err := u.checkSize(&signed); err != nil {
		return false, err
	}
	result, err := u.Publisher.Publish(ctx, signed, relays)
	if err != nil {
		return false, err
	}

	if u.Ledger != nil {
		if err := u.Ledger.RecordChunk(ctx, author, c.Hash, chunkRecord.Locators, result.Acked, signed.ID, time.Unix(signed.CreatedAt, 0)); err != nil {
			u.logger().Warn("ledger update failed", "chunk", c.Hash, "error", err)
		}
	}
	return true, nil
}

func (u *Uploader) checkSize(signed *event.Event) error {
	if u.MaxEventSize <= 0 {
		return nil
	}
	if size := signed.WireSize(); size > u.MaxEventSize {
		return fmt.Errorf("kind %d event %s is %d bytes, limit %d: %w",
			signed.Kind, signed.ID, size, u.MaxEventSize, ErrEventTooLarge)
	}
	return nil
}
