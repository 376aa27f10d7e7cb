// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package bundle writes a fetched app to a single compressed tar
// archive for offline use or mirroring. The archive holds every file
// of the manifest under its manifest name, followed by a CBOR receipt
// ([ReceiptName]) recording where the content came from: app id,
// author, manifest timestamp, and each file's Merkle root, so a mirror
// can be checked against relays later.
package bundle

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/bureau-foundation/napp/lib/chunk"
	"github.com/bureau-foundation/napp/lib/codec"
	"github.com/bureau-foundation/napp/lib/record"
)

// ReceiptName is the archive entry holding the receipt. It is written
// last; readers find it by name.
const ReceiptName = ".napp-receipt.cbor"

// Compression selects the archive's outer compression.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
	CompressionLZ4  Compression = "lz4"
)

// ParseCompression parses a compression name.
func ParseCompression(name string) (Compression, error) {
	switch compression := Compression(strings.ToLower(name)); compression {
	case CompressionNone, CompressionZstd, CompressionLZ4:
		return compression, nil
	default:
		return "", fmt.Errorf("unknown compression %q (want none, zstd, or lz4)", name)
	}
}

// Extension returns the conventional file name suffix.
func (c Compression) Extension() string {
	switch c {
	case CompressionZstd:
		return ".tar.zst"
	case CompressionLZ4:
		return ".tar.lz4"
	default:
		return ".tar"
	}
}

// Receipt describes an archive's origin.
type Receipt struct {
	AppID             string        `cbor:"app_id"`
	Author            string        `cbor:"author"`
	ManifestCreatedAt int64         `cbor:"manifest_created_at"`
	ExportedAt        int64         `cbor:"exported_at"`
	Files             []ReceiptFile `cbor:"files"`
}

// ReceiptFile is one archived file.
type ReceiptFile struct {
	Name     string     `cbor:"name"`
	Root     chunk.Hash `cbor:"root"`
	MimeType string     `cbor:"mime_type,omitempty"`
	Size     int64      `cbor:"size"`
}

// Writer streams an archive. Add every file, then Close.
type Writer struct {
	compressor io.WriteCloser
	archive    *tar.Writer
	modTime    time.Time
	receipt    Receipt
	closed     bool
}

// nopCloser adapts an io.Writer for CompressionNone.
type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// NewWriter starts an archive of manifest's app on w. exportedAt is
// recorded in the receipt. Entry modification times are the manifest's
// creation time, so exporting the same manifest twice produces the
// same entries.
func NewWriter(w io.Writer, compression Compression, manifest record.Manifest, exportedAt time.Time) (*Writer, error) {
	var compressor io.WriteCloser
	switch compression {
	case CompressionNone, "":
		compressor = nopCloser{w}
	case CompressionZstd:
		encoder, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault), zstd.WithEncoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("creating zstd encoder: %w", err)
		}
		compressor = encoder
	case CompressionLZ4:
		compressor = lz4.NewWriter(w)
	default:
		return nil, fmt.Errorf("unsupported compression %q", compression)
	}
	return &Writer{
		compressor: compressor,
		archive:    tar.NewWriter(compressor),
		modTime:    time.Unix(manifest.CreatedAt, 0).UTC(),
		receipt: Receipt{
			AppID:             manifest.AppID,
			Author:            manifest.Author,
			ManifestCreatedAt: manifest.CreatedAt,
			ExportedAt:        exportedAt.Unix(),
		},
	}, nil
}

// Add writes one file. Names must be relative slash paths without ".."
// elements.
func (w *Writer) Add(file record.File, data []byte) error {
	if w.closed {
		return errors.New("bundle: Add after Close")
	}
	name := path.Clean(file.Name)
	if path.IsAbs(name) || name == "." || name == ".." || strings.HasPrefix(name, "../") || name == ReceiptName {
		return fmt.Errorf("bundle: refusing entry name %q", file.Name)
	}
	if err := w.writeEntry(name, data); err != nil {
		return err
	}
	w.receipt.Files = append(w.receipt.Files, ReceiptFile{
		Name:     name,
		Root:     file.Root,
		MimeType: file.MimeType,
		Size:     int64(len(data)),
	})
	return nil
}

func (w *Writer) writeEntry(name string, data []byte) error {
	header := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(data)),
		ModTime:  w.modTime,
		Format:   tar.FormatPAX,
	}
	if err := w.archive.WriteHeader(header); err != nil {
		return fmt.Errorf("bundle: writing header for %s: %w", name, err)
	}
	if _, err := w.archive.Write(data); err != nil {
		return fmt.Errorf("bundle: writing %s: %w", name, err)
	}
	return nil
}

// Close writes the receipt and flushes the archive and compressor. It
// does not close the underlying writer.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	receipt, err := codec.Marshal(w.receipt)
	if err != nil {
		return fmt.Errorf("bundle: encoding receipt: %w", err)
	}
	if err := w.writeEntry(ReceiptName, receipt); err != nil {
		return err
	}
	if err := w.archive.Close(); err != nil {
		return fmt.Errorf("bundle: closing archive: %w", err)
	}
	if err := w.compressor.Close(); err != nil {
		return fmt.Errorf("bundle: flushing compressor: %w", err)
	}
	return nil
}

// Receipt returns the receipt as built so far.
func (w *Writer) Receipt() Receipt {
	return w.receipt
}
