// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger_test

import (
	"path/filepath"
	"slices"
	"testing"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/napp/lib/chunk"
	"github.com/bureau-foundation/napp/lib/ledger"
	"github.com/bureau-foundation/napp/lib/record"
)

const author = "79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"

func openTestLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l, err := ledger.Open(ledger.Options{Path: filepath.Join(t.TempDir(), "ledger.db")})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := l.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return l
}

func TestChunkRoundTrip(t *testing.T) {
	l := openTestLedger(t)
	ctx := t.Context()

	key := chunk.HashChunk([]byte("chunk"))
	root := chunk.HashChunk([]byte("root"))
	locators := []record.Locator{
		{Root: root, Index: 0, Total: 2, Proof: []chunk.Hash{chunk.HashChunk([]byte("sibling"))}},
		{Root: root, Index: 1, Total: 2, Proof: []chunk.Hash{key}},
	}
	if err := l.RecordChunk(ctx, author, key, locators, []string{"wss://b", "wss://a", "wss://b"}, "event-1", time.Unix(100, 0)); err != nil {
		t.Fatalf("RecordChunk: %v", err)
	}

	entry, found, err := l.Chunk(ctx, author, key)
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if !found {
		t.Fatal("recorded chunk not found")
	}
	if entry.EventID != "event-1" || !entry.PublishedAt.Equal(time.Unix(100, 0)) {
		t.Errorf("entry = %+v", entry)
	}
	if !slices.Equal(entry.Relays, []string{"wss://a", "wss://b"}) {
		t.Errorf("Relays = %v, want sorted and deduplicated", entry.Relays)
	}
	got := entry.Locators
	if len(got) != len(locators) {
		t.Fatalf("got %d locators, want %d", len(got), len(locators))
	}
	for i := range got {
		if got[i].Key() != locators[i].Key() || got[i].Total != locators[i].Total ||
			!slices.Equal(got[i].Proof, locators[i].Proof) {
			t.Errorf("locator %d = %+v, want %+v", i, got[i], locators[i])
		}
	}
}

func TestChunkUnknown(t *testing.T) {
	l := openTestLedger(t)
	_, found, err := l.Chunk(t.Context(), author, chunk.HashChunk([]byte("never")))
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if found {
		t.Error("unrecorded chunk found")
	}
}

func TestChunkScopedByAuthor(t *testing.T) {
	l := openTestLedger(t)
	ctx := t.Context()
	key := chunk.HashChunk([]byte("shared"))
	locators := []record.Locator{{Root: key, Index: 0, Total: 1}}
	if err := l.RecordChunk(ctx, author, key, locators, []string{"wss://a"}, "event", time.Unix(1, 0)); err != nil {
		t.Fatalf("RecordChunk: %v", err)
	}
	entry, found, err := l.Chunk(ctx, "someone-else", key)
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if found {
		t.Errorf("another author sees %+v", entry)
	}
}

func TestRecordChunkReplaces(t *testing.T) {
	l := openTestLedger(t)
	ctx := t.Context()
	key := chunk.HashChunk([]byte("chunk"))
	first := []record.Locator{{Root: chunk.HashChunk([]byte("a")), Index: 0, Total: 1}}
	second := append([]record.Locator{{Root: chunk.HashChunk([]byte("b")), Index: 0, Total: 1}}, first...)

	if err := l.RecordChunk(ctx, author, key, first, []string{"wss://a"}, "event-1", time.Unix(1, 0)); err != nil {
		t.Fatalf("RecordChunk: %v", err)
	}
	if err := l.RecordChunk(ctx, author, key, second, []string{"wss://b"}, "event-2", time.Unix(2, 0)); err != nil {
		t.Fatalf("RecordChunk: %v", err)
	}
	entry, _, err := l.Chunk(ctx, author, key)
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if got := entry.Locators; len(got) != 2 || got[0].Root != second[0].Root || entry.EventID != "event-2" {
		t.Errorf("entry = %+v, want locators %+v from event-2", entry, second)
	}
	if !slices.Equal(entry.Relays, []string{"wss://b"}) {
		t.Errorf("Relays = %v, want only the latest acks", entry.Relays)
	}
}

func TestChunkEntryCovers(t *testing.T) {
	entry := ledger.ChunkEntry{Relays: []string{"wss://a", "wss://b"}}
	tests := []struct {
		relays []string
		want   bool
	}{
		{[]string{"wss://a"}, true},
		{[]string{"wss://b", "wss://a"}, true},
		{[]string{"wss://a", "wss://c"}, false},
		{[]string{"wss://c"}, false},
		{nil, false},
	}
	for _, test := range tests {
		if got := entry.Covers(test.relays); got != test.want {
			t.Errorf("Covers(%v) = %v, want %v", test.relays, got, test.want)
		}
	}
}

func TestFiles(t *testing.T) {
	l := openTestLedger(t)
	ctx := t.Context()
	older := record.File{Root: chunk.HashChunk([]byte("1")), Name: "index.html", MimeType: "text/html", Chunks: 1, Size: 10}
	newer := record.File{Root: chunk.HashChunk([]byte("2")), Name: "app.js", MimeType: "text/javascript", Chunks: 3, Size: 120000}
	if err := l.RecordFile(ctx, author, older, time.Unix(10, 0)); err != nil {
		t.Fatalf("RecordFile: %v", err)
	}
	if err := l.RecordFile(ctx, author, newer, time.Unix(20, 0)); err != nil {
		t.Fatalf("RecordFile: %v", err)
	}

	files, err := l.Files(ctx, author)
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	want := []record.File{newer, older}
	if !slices.Equal(files, want) {
		t.Errorf("Files = %+v, want %+v", files, want)
	}
}

func TestWALEnabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	l, err := ledger.Open(ledger.Options{Path: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	conn, err := sqlite.OpenConn(path)
	if err != nil {
		t.Fatalf("OpenConn: %v", err)
	}
	defer conn.Close()
	var mode string
	err = sqlitex.Execute(conn, "PRAGMA journal_mode", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			mode = stmt.ColumnText(0)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("PRAGMA journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}

func TestOpenDropsUntrackedChunkTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	conn, err := sqlite.OpenConn(path)
	if err != nil {
		t.Fatalf("OpenConn: %v", err)
	}
	err = sqlitex.ExecuteScript(conn, `
		CREATE TABLE published_chunks (author TEXT, chunk_key TEXT, locators BLOB, event_id TEXT, published_at INTEGER);
		INSERT INTO published_chunks VALUES ('a', 'k', x'80', 'e', 1);`, nil)
	if err != nil {
		t.Fatalf("creating old table: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	l, err := ledger.Open(ledger.Options{Path: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	conn, err = sqlite.OpenConn(path)
	if err != nil {
		t.Fatalf("OpenConn: %v", err)
	}
	defer conn.Close()
	var tables []string
	err = sqlitex.Execute(conn, "SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			tables = append(tables, stmt.ColumnText(0))
			return nil
		},
	})
	if err != nil {
		t.Fatalf("listing tables: %v", err)
	}
	if want := []string{"chunk_records", "published_files"}; !slices.Equal(tables, want) {
		t.Errorf("tables = %v, want %v", tables, want)
	}
}
