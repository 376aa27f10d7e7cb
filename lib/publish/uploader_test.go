// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package publish_test

import (
	"bytes"
	"errors"
	"math/rand/v2"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/bureau-foundation/napp/lib/base93"
	"github.com/bureau-foundation/napp/lib/chunk"
	"github.com/bureau-foundation/napp/lib/clock"
	"github.com/bureau-foundation/napp/lib/config"
	"github.com/bureau-foundation/napp/lib/event"
	"github.com/bureau-foundation/napp/lib/ledger"
	"github.com/bureau-foundation/napp/lib/listing"
	"github.com/bureau-foundation/napp/lib/publish"
	"github.com/bureau-foundation/napp/lib/record"
	"github.com/bureau-foundation/napp/lib/relay"
)

type uploadFixture struct {
	memory   *relay.Memory
	clock    *clock.FakeClock
	uploader *publish.Uploader
}

func newUploadFixture(t *testing.T, chunkSize int) *uploadFixture {
	t.Helper()
	memory := relay.NewMemory(relayA, relayB)
	clk := clock.Fake(epoch)
	key := testSigner(t)
	publisher := &publish.Publisher{
		Client:     memory,
		Backoff:    publish.NewBackoff(step),
		Clock:      clk,
		MaxRetries: 3,
		Timeout:    time.Second,
	}
	return &uploadFixture{
		memory: memory,
		clock:  clk,
		uploader: &publish.Uploader{
			Signer:    key,
			Publisher: publisher,
			Index:     &publish.RelayIndex{Client: memory, Timeout: time.Second},
			Clock:     clk,
			ChunkSize: chunkSize,
			Listings: &listing.Reconciler{
				Client:    memory,
				Publisher: publisher,
				Signer:    key,
				Clock:     clk,
				Timeout:   time.Second,
			},
		},
	}
}

// chunkRecords returns the chunk records stored on relay, keyed by
// chunk hash.
func (f *uploadFixture) chunkRecords(t *testing.T, relayURL string) map[chunk.Hash]record.ChunkRecord {
	t.Helper()
	records := make(map[chunk.Hash]record.ChunkRecord)
	for _, e := range f.memory.Events(relayURL) {
		if e.Kind != event.KindChunk {
			continue
		}
		parsed, err := record.ParseChunkRecord(&e)
		if err != nil {
			t.Fatalf("ParseChunkRecord: %v", err)
		}
		records[parsed.Key] = parsed
	}
	return records
}

// reassemble rebuilds a file from the chunk records on relay.
func (f *uploadFixture) reassemble(t *testing.T, relayURL string, file record.File) []byte {
	t.Helper()
	parts := make([][]byte, file.Chunks)
	for key, stored := range f.chunkRecords(t, relayURL) {
		for _, locator := range stored.LocatorsFor(file.Root) {
			if !locator.Verify(key) {
				t.Fatalf("chunk %s locator %s does not verify", key, locator.Key())
			}
			data, err := base93.Decode(stored.Content)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			parts[locator.Index] = data
		}
	}
	return bytes.Join(parts, nil)
}

func chunkPublishes(memory *relay.Memory) int {
	var count int
	for _, call := range memory.PublishCalls() {
		if call.Event.Kind == event.KindChunk {
			count++
		}
	}
	return count
}

func TestUploadFile(t *testing.T) {
	f := newUploadFixture(t, 50)
	data := bytes.Repeat([]byte("0123456789abc"), 10)

	result, err := f.uploader.UploadFile(t.Context(), bytes.NewReader(data), "notes.txt", "text/plain", []string{relayA, relayB})
	if err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if result.File.Chunks != 3 || result.File.Size != int64(len(data)) {
		t.Errorf("File = %+v, want 3 chunks of %d bytes", result.File, len(data))
	}
	if result.Published != 3 || result.Skipped != 0 {
		t.Errorf("Published = %d Skipped = %d, want 3 and 0", result.Published, result.Skipped)
	}
	for _, relayURL := range []string{relayA, relayB} {
		if got := f.reassemble(t, relayURL, result.File); !bytes.Equal(got, data) {
			t.Errorf("%s: reassembled %q, want %q", relayURL, got, data)
		}
	}
	for _, stored := range f.chunkRecords(t, relayA) {
		if stored.MimeType != "text/plain" {
			t.Errorf("chunk %s mime type = %q", stored.Key, stored.MimeType)
		}
	}
}

func TestUploadFileTwicePublishesNothing(t *testing.T) {
	f := newUploadFixture(t, 50)
	data := bytes.Repeat([]byte("x"), 120)
	relays := []string{relayA, relayB}

	first, err := f.uploader.UploadFile(t.Context(), bytes.NewReader(data), "a.bin", "", relays)
	if err != nil {
		t.Fatalf("first UploadFile: %v", err)
	}
	publishes := chunkPublishes(f.memory)

	second, err := f.uploader.UploadFile(t.Context(), bytes.NewReader(data), "a.bin", "", relays)
	if err != nil {
		t.Fatalf("second UploadFile: %v", err)
	}
	if second.File != first.File {
		t.Errorf("second upload File = %+v, want %+v", second.File, first.File)
	}
	if second.Published != 0 || second.Skipped != 3 {
		t.Errorf("second upload Published = %d Skipped = %d, want 0 and 3", second.Published, second.Skipped)
	}
	if got := chunkPublishes(f.memory); got != publishes {
		t.Errorf("chunk publishes grew from %d to %d", publishes, got)
	}
}

func TestUploadFileSharedChunkKeepsBothLocators(t *testing.T) {
	f := newUploadFixture(t, 8)
	relays := []string{relayA}
	shared := "shared!!"

	first, err := f.uploader.UploadFile(t.Context(), strings.NewReader(shared+"one"), "one", "", relays)
	if err != nil {
		t.Fatalf("UploadFile one: %v", err)
	}
	second, err := f.uploader.UploadFile(t.Context(), strings.NewReader(shared+"two"), "two", "", relays)
	if err != nil {
		t.Fatalf("UploadFile two: %v", err)
	}
	if second.Published != 2 {
		t.Errorf("second file Published = %d, want 2", second.Published)
	}

	key := chunk.HashChunk([]byte(shared))
	stored, found := f.chunkRecords(t, relayA)[key]
	if !found {
		t.Fatal("shared chunk missing")
	}
	if !stored.HasLocator(first.File.Root, 0) || !stored.HasLocator(second.File.Root, 0) {
		t.Errorf("shared chunk locators = %+v, want both files", stored.Locators)
	}
	if stored.Locators[0].Root != second.File.Root {
		t.Error("newest locator is not first")
	}

	var sharedEvents []event.Event
	for _, e := range f.memory.Events(relayA) {
		if e.Identifier() == key.String() {
			sharedEvents = append(sharedEvents, e)
		}
	}
	if len(sharedEvents) != 1 || sharedEvents[0].CreatedAt != epoch.Unix()+1 {
		t.Errorf("shared chunk events = %+v, want one replacement one second newer", sharedEvents)
	}

	for _, file := range []record.File{first.File, second.File} {
		want := shared + file.Name
		if got := f.reassemble(t, relayA, file); string(got) != want {
			t.Errorf("%s reassembled %q, want %q", file.Name, got, want)
		}
	}
}

func TestUploadFileEmpty(t *testing.T) {
	f := newUploadFixture(t, 50)
	result, err := f.uploader.UploadFile(t.Context(), bytes.NewReader(nil), "empty", "", []string{relayA})
	if err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if result.File.Chunks != 1 || result.File.Size != 0 || result.Published != 1 {
		t.Errorf("result = %+v, want one empty chunk published", result)
	}
	records := f.chunkRecords(t, relayA)
	stored, found := records[chunk.HashChunk(nil)]
	if !found || stored.Content != "" {
		t.Errorf("empty chunk record = %+v, found %v", stored, found)
	}
}

func TestUploadFileEventTooLarge(t *testing.T) {
	f := newUploadFixture(t, 50)
	f.uploader.MaxEventSize = 200

	_, err := f.uploader.UploadFile(t.Context(), strings.NewReader("data"), "small", "", []string{relayA})
	if !errors.Is(err, publish.ErrEventTooLarge) {
		t.Fatalf("error = %v, want ErrEventTooLarge", err)
	}
	if got := chunkPublishes(f.memory); got != 0 {
		t.Errorf("oversized event was sent %d times", got)
	}
}

func TestUploadFileDefaultChunkFitsDefaultEventSize(t *testing.T) {
	f := newUploadFixture(t, chunk.DefaultSize)
	f.uploader.MaxEventSize = config.Default().Publish.MaxEventSize

	data := make([]byte, chunk.DefaultSize)
	random := rand.New(rand.NewPCG(3, 5))
	for i := range data {
		data[i] = byte(random.Uint32())
	}
	result, err := f.uploader.UploadFile(t.Context(), bytes.NewReader(data), "blob.bin", "application/octet-stream", []string{relayA})
	if err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if result.File.Chunks != 1 || result.Published != 1 {
		t.Fatalf("result = %+v, want one published chunk", result)
	}
	if got := f.reassemble(t, relayA, result.File); !bytes.Equal(got, data) {
		t.Error("reassembled bytes differ from the upload")
	}
}

func TestUploadFileFatal(t *testing.T) {
	f := newUploadFixture(t, 50)
	f.memory.SetPublishHook(rejectFirst(-1, &relay.RejectedError{Prefix: relay.PrefixBlocked, Message: "no"}, relayA, relayB))

	_, err := f.uploader.UploadFile(t.Context(), strings.NewReader("data"), "f", "", []string{relayA, relayB})
	if !errors.Is(err, publish.ErrPublishFatal) {
		t.Errorf("error = %v, want ErrPublishFatal", err)
	}
}

func TestUploadFileIndexUnavailable(t *testing.T) {
	f := newUploadFixture(t, 50)
	_, err := f.uploader.UploadFile(t.Context(), strings.NewReader("data"), "f", "", []string{"wss://gone.example"})
	if !errors.Is(err, publish.ErrIndexUnavailable) {
		t.Errorf("error = %v, want ErrIndexUnavailable", err)
	}
}

func TestUploadFileLedgerShortCircuits(t *testing.T) {
	f := newUploadFixture(t, 50)
	l, err := ledger.Open(ledger.Options{Path: filepath.Join(t.TempDir(), "ledger.db")})
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	f.uploader.Ledger = l
	f.uploader.Index = &publish.LedgerIndex{Ledger: l, Next: f.uploader.Index}

	data := bytes.Repeat([]byte("ledger"), 30)
	if _, err := f.uploader.UploadFile(t.Context(), bytes.NewReader(data), "l", "", []string{relayA}); err != nil {
		t.Fatalf("first UploadFile: %v", err)
	}
	queries := len(f.memory.Queries())

	result, err := f.uploader.UploadFile(t.Context(), bytes.NewReader(data), "l", "", []string{relayA})
	if err != nil {
		t.Fatalf("second UploadFile: %v", err)
	}
	if result.Published != 0 {
		t.Errorf("Published = %d, want 0", result.Published)
	}
	if got := len(f.memory.Queries()); got != queries {
		t.Errorf("relay queries grew from %d to %d with every chunk in the ledger", queries, got)
	}

	files, err := l.Files(t.Context(), testSigner(t).PublicKey())
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(files) != 1 || files[0].Root != result.File.Root {
		t.Errorf("ledger files = %+v", files)
	}
}

func TestUploadFileLedgerNewRelay(t *testing.T) {
	f := newUploadFixture(t, 50)
	l, err := ledger.Open(ledger.Options{Path: filepath.Join(t.TempDir(), "ledger.db")})
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	f.uploader.Ledger = l
	f.uploader.Index = &publish.LedgerIndex{Ledger: l, Next: f.uploader.Index}

	data := bytes.Repeat([]byte("moving"), 40)
	first, err := f.uploader.UploadFile(t.Context(), bytes.NewReader(data), "m", "", []string{relayA})
	if err != nil {
		t.Fatalf("UploadFile to %s: %v", relayA, err)
	}

	second, err := f.uploader.UploadFile(t.Context(), bytes.NewReader(data), "m", "", []string{relayB})
	if err != nil {
		t.Fatalf("UploadFile to %s: %v", relayB, err)
	}
	if second.Published != first.File.Chunks || second.Skipped != 0 {
		t.Errorf("second upload published %d and skipped %d, want all %d chunks sent", second.Published, second.Skipped, first.File.Chunks)
	}
	if got := f.reassemble(t, relayB, second.File); !bytes.Equal(got, data) {
		t.Errorf("%s cannot rebuild the file", relayB)
	}

	third, err := f.uploader.UploadFile(t.Context(), bytes.NewReader(data), "m", "", []string{relayB})
	if err != nil {
		t.Fatalf("UploadFile to %s again: %v", relayB, err)
	}
	if third.Published != 0 {
		t.Errorf("third upload published %d chunks the ledger saw %s acknowledge", third.Published, relayB)
	}
}

const indexHTML = `<html><head><title>Pocket Calc</title>
<meta name="description" content="Adds numbers"><meta name="keywords" content="math, tools"></head></html>`

func testApp() fstest.MapFS {
	return fstest.MapFS{
		"index.html":       {Data: []byte(indexHTML)},
		"favicon.ico":      {Data: []byte("icon bytes")},
		"app.js":           {Data: bytes.Repeat([]byte("console.log(1);\n"), 20)},
		"assets/style.css": {Data: []byte("body { margin: 0 }")},
		".git/config":      {Data: []byte("[core]")},
		".DS_Store":        {Data: []byte("junk")},
		"napp.jsonc":       {Data: []byte(`{"id": "calc", "categories": ["tools"]}`)},
	}
}

func TestUploadApp(t *testing.T) {
	f := newUploadFixture(t, 64)
	f.uploader.FileConcurrency = 3
	var progressCalls int
	f.uploader.Progress = func(publish.Progress) { progressCalls++ }

	result, err := f.uploader.UploadApp(t.Context(), testApp(), publish.AppOptions{Name: "pocket-calc", Relays: []string{relayA}})
	if err != nil {
		t.Fatalf("UploadApp: %v", err)
	}
	if result.AppID != "calc" {
		t.Errorf("AppID = %q, want the napp.jsonc id", result.AppID)
	}

	var names []string
	var chunks int
	for _, file := range result.Files {
		names = append(names, file.File.Name)
		chunks += file.File.Chunks
	}
	if want := []string{"app.js", "assets/style.css", "favicon.ico", "index.html"}; !slices.Equal(names, want) {
		t.Errorf("uploaded %q, want %q", names, want)
	}
	if progressCalls != chunks {
		t.Errorf("progress called %d times for %d chunks", progressCalls, chunks)
	}
	if css, _ := result.Manifest.File("assets/style.css"); css.MimeType != "text/css" {
		t.Errorf("style.css mime type = %q", css.MimeType)
	}

	var manifests, listings []event.Event
	for _, e := range f.memory.Events(relayA) {
		switch e.Kind {
		case event.KindManifest:
			manifests = append(manifests, e)
		case event.KindListing:
			listings = append(listings, e)
		}
	}
	if len(manifests) != 1 || manifests[0].ID != result.ManifestEventID {
		t.Fatalf("manifests = %d, want the published one", len(manifests))
	}
	manifest, err := record.ParseManifest(&manifests[0])
	if err != nil {
		t.Fatalf("ParseManifest: %v", err)
	}
	if len(manifest.Files) != 4 {
		t.Errorf("manifest lists %d files", len(manifest.Files))
	}

	if len(listings) != 1 {
		t.Fatalf("listings = %d, want 1", len(listings))
	}
	stored, err := record.ParseListing(&listings[0])
	if err != nil {
		t.Fatalf("ParseListing: %v", err)
	}
	icon, _ := result.Manifest.File("favicon.ico")
	if stored.Name != "Pocket Calc" || stored.Summary != "Adds numbers" || stored.Icon == nil || stored.Icon.Root != icon.Root {
		t.Errorf("listing = %+v", stored)
	}
	if !stored.IsAuto(record.FieldName) || !stored.IsAuto(record.FieldHashtags) {
		t.Error("derived fields lack auto markers")
	}
	if stored.IsAuto(record.FieldCategories) || !slices.Equal(stored.Categories, []string{"tools"}) {
		t.Errorf("configured categories = %v auto=%v", stored.Categories, stored.IsAuto(record.FieldCategories))
	}

	again, err := f.uploader.UploadApp(t.Context(), testApp(), publish.AppOptions{Name: "pocket-calc", Relays: []string{relayA}})
	if err != nil {
		t.Fatalf("second UploadApp: %v", err)
	}
	if again.Published() != 0 || again.Listing.Published {
		t.Errorf("second upload published %d chunks, listing %v", again.Published(), again.Listing.Published)
	}
}

func TestUploadAppRequirements(t *testing.T) {
	tests := []struct {
		name   string
		remove string
		want   error
	}{
		{"no index", "index.html", publish.ErrNoIndex},
		{"no favicon", "favicon.ico", publish.ErrNoIcon},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			f := newUploadFixture(t, 64)
			app := testApp()
			delete(app, test.remove)
			_, err := f.uploader.UploadApp(t.Context(), app, publish.AppOptions{Name: "x", Relays: []string{relayA}})
			if !errors.Is(err, test.want) {
				t.Errorf("error = %v, want %v", err, test.want)
			}
			if calls := len(f.memory.PublishCalls()); calls != 0 {
				t.Errorf("%d publishes before validation failed", calls)
			}
		})
	}
}

func TestUploadAppAuthorRelays(t *testing.T) {
	f := newUploadFixture(t, 64)
	f.uploader.AuthorRelays = true
	relayList, err := testSigner(t).Sign(t.Context(), event.Event{
		Kind:      event.KindRelayList,
		CreatedAt: epoch.Unix(),
		Tags:      event.Tags{{"r", relayB, "write"}, {"r", "wss://read.example", "read"}},
	})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	f.memory.Store(relayA, relayList)

	result, err := f.uploader.UploadApp(t.Context(), testApp(), publish.AppOptions{Name: "x", Relays: []string{relayA}})
	if err != nil {
		t.Fatalf("UploadApp: %v", err)
	}
	if !slices.Equal(result.Relays, []string{relayA, relayB}) {
		t.Errorf("Relays = %v, want configured plus advertised write relay", result.Relays)
	}
	var manifestOnB bool
	for _, e := range f.memory.Events(relayB) {
		manifestOnB = manifestOnB || e.ID == result.ManifestEventID
	}
	if !manifestOnB {
		t.Error("manifest not published to the author's write relay")
	}
}
