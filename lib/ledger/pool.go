// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// pragmas are applied to every pooled connection. WAL lets a fetch
// read while an upload writes.
var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA temp_store=MEMORY",
}

// published_chunks predates relay tracking; its rows say nothing
// about where a chunk lives, so it is dropped rather than migrated.
const schema = `
DROP TABLE IF EXISTS published_chunks;

CREATE TABLE IF NOT EXISTS chunk_records (
	author       TEXT    NOT NULL,
	chunk_key    TEXT    NOT NULL,
	locators     BLOB    NOT NULL,
	relays       BLOB    NOT NULL,
	event_id     TEXT    NOT NULL,
	published_at INTEGER NOT NULL,
	PRIMARY KEY (author, chunk_key)
);

CREATE TABLE IF NOT EXISTS published_files (
	author       TEXT    NOT NULL,
	root         TEXT    NOT NULL,
	name         TEXT    NOT NULL,
	mime_type    TEXT    NOT NULL,
	chunks       INTEGER NOT NULL,
	size         INTEGER NOT NULL,
	published_at INTEGER NOT NULL,
	PRIMARY KEY (author, root, name)
);
`

func openPool(path string, size int) (*sqlitex.Pool, error) {
	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize:    size,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: opening %s: %w", path, err)
	}
	return pool, nil
}

func prepareConnection(conn *sqlite.Conn) error {
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("ledger: %s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("ledger: creating schema: %w", err)
	}
	return nil
}

// withConn borrows a connection for the duration of fn.
func (l *Ledger) withConn(ctx context.Context, fn func(*sqlite.Conn) error) error {
	conn, err := l.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("ledger: take: %w", err)
	}
	defer l.pool.Put(conn)
	return fn(conn)
}
