// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ledger records what this machine has published, in a local
// SQLite database. The upload pipeline consults it before asking
// relays whether a chunk already exists, so re-uploading an unchanged
// app to the same relays costs no relay round trips for chunks
// published from here.
//
// Each chunk entry names the relays that acknowledged it. An entry
// answers a lookup only when those relays cover every relay being
// published to; anything else is looked up on the relays themselves.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/napp/lib/chunk"
	"github.com/bureau-foundation/napp/lib/codec"
	"github.com/bureau-foundation/napp/lib/record"
)

// Options configures Open.
type Options struct {
	// Path is the database file. Its directory must exist.
	Path string

	// PoolSize defaults to 4.
	PoolSize int

	// Logger receives open/close messages. Nil discards.
	Logger *slog.Logger
}

// Ledger is a local record of published chunks and files. Safe for
// concurrent use.
type Ledger struct {
	pool   *sqlitex.Pool
	path   string
	logger *slog.Logger
}

// Open opens or creates the ledger at options.Path.
func Open(options Options) (*Ledger, error) {
	if options.Path == "" {
		return nil, fmt.Errorf("ledger: Path is required")
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	size := options.PoolSize
	if size <= 0 {
		size = 4
	}
	pool, err := openPool(options.Path, size)
	if err != nil {
		return nil, err
	}
	l := &Ledger{pool: pool, path: options.Path, logger: logger}
	// Connections are prepared on first use; take one now so schema
	// errors surface here.
	if err := l.withConn(context.Background(), func(*sqlite.Conn) error { return nil }); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Debug("ledger opened", "path", options.Path, "pool_size", size)
	return l, nil
}

// Close closes the database, waiting for borrowed connections.
func (l *Ledger) Close() error {
	if err := l.pool.Close(); err != nil {
		return fmt.Errorf("ledger: closing %s: %w", l.path, err)
	}
	return nil
}

// ChunkEntry is what the ledger knows about one published chunk.
type ChunkEntry struct {
	Locators []record.Locator

	// Relays acknowledged the event, sorted.
	Relays []string

	EventID     string
	PublishedAt time.Time
}

// Covers reports whether every one of relays acknowledged the entry's
// event.
func (e ChunkEntry) Covers(relays []string) bool {
	if len(relays) == 0 {
		return false
	}
	for _, relay := range relays {
		if _, found := slices.BinarySearch(e.Relays, relay); !found {
			return false
		}
	}
	return true
}

// Chunk returns the entry last recorded for key by author. found is
// false if the chunk was never recorded.
func (l *Ledger) Chunk(ctx context.Context, author string, key chunk.Hash) (entry ChunkEntry, found bool, err error) {
	var locatorBlob, relayBlob []byte
	err = l.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT locators, relays, event_id, published_at FROM chunk_records WHERE author = ? AND chunk_key = ?`,
			&sqlitex.ExecOptions{
				Args: []any{author, key.String()},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					found = true
					locatorBlob = make([]byte, stmt.ColumnLen(0))
					stmt.ColumnBytes(0, locatorBlob)
					relayBlob = make([]byte, stmt.ColumnLen(1))
					stmt.ColumnBytes(1, relayBlob)
					entry.EventID = stmt.ColumnText(2)
					entry.PublishedAt = time.Unix(stmt.ColumnInt64(3), 0)
					return nil
				},
			})
	})
	if err != nil {
		return ChunkEntry{}, false, fmt.Errorf("ledger: reading chunk %s: %w", key, err)
	}
	if !found {
		return ChunkEntry{}, false, nil
	}
	if err := codec.Unmarshal(locatorBlob, &entry.Locators); err != nil {
		return ChunkEntry{}, false, fmt.Errorf("ledger: decoding locators of chunk %s: %w", key, err)
	}
	if err := codec.Unmarshal(relayBlob, &entry.Relays); err != nil {
		return ChunkEntry{}, false, fmt.Errorf("ledger: decoding relays of chunk %s: %w", key, err)
	}
	return entry, true, nil
}

// RecordChunk stores the full locator set of a chunk event author
// published and the relays that acknowledged it, replacing any
// earlier entry.
func (l *Ledger) RecordChunk(ctx context.Context, author string, key chunk.Hash, locators []record.Locator, relays []string, eventID string, at time.Time) error {
	locatorBlob, err := codec.Marshal(locators)
	if err != nil {
		return fmt.Errorf("ledger: encoding locators of chunk %s: %w", key, err)
	}
	sorted := slices.Compact(slices.Sorted(slices.Values(relays)))
	relayBlob, err := codec.Marshal(sorted)
	if err != nil {
		return fmt.Errorf("ledger: encoding relays of chunk %s: %w", key, err)
	}
	err = l.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `
			INSERT INTO chunk_records (author, chunk_key, locators, relays, event_id, published_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (author, chunk_key) DO UPDATE SET
				locators = excluded.locators,
				relays = excluded.relays,
				event_id = excluded.event_id,
				published_at = excluded.published_at`,
			&sqlitex.ExecOptions{Args: []any{author, key.String(), locatorBlob, relayBlob, eventID, at.Unix()}})
	})
	if err != nil {
		return fmt.Errorf("ledger: recording chunk %s: %w", key, err)
	}
	return nil
}

// RecordFile notes that author finished publishing file.
func (l *Ledger) RecordFile(ctx context.Context, author string, file record.File, at time.Time) error {
	err := l.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `
			INSERT INTO published_files (author, root, name, mime_type, chunks, size, published_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (author, root, name) DO UPDATE SET
				mime_type = excluded.mime_type,
				published_at = excluded.published_at`,
			&sqlitex.ExecOptions{Args: []any{
				author, file.Root.String(), file.Name, file.MimeType, file.Chunks, file.Size, at.Unix(),
			}})
	})
	if err != nil {
		return fmt.Errorf("ledger: recording file %s: %w", file.Name, err)
	}
	return nil
}

// Files lists the files author has published from this machine,
// newest first.
func (l *Ledger) Files(ctx context.Context, author string) ([]record.File, error) {
	var files []record.File
	var parseErr error
	err := l.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `
			SELECT root, name, mime_type, chunks, size FROM published_files
			WHERE author = ? ORDER BY published_at DESC, name`,
			&sqlitex.ExecOptions{
				Args: []any{author},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					root, err := chunk.ParseHash(stmt.ColumnText(0))
					if err != nil {
						parseErr = err
						return nil
					}
					files = append(files, record.File{
						Root:     root,
						Name:     stmt.ColumnText(1),
						MimeType: stmt.ColumnText(2),
						Chunks:   stmt.ColumnInt(3),
						Size:     stmt.ColumnInt64(4),
					})
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: listing files: %w", err)
	}
	if parseErr != nil {
		return nil, fmt.Errorf("ledger: corrupt file root: %w", parseErr)
	}
	return files, nil
}
