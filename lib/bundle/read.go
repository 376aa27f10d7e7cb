// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bundle

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/bureau-foundation/napp/lib/chunk"
	"github.com/bureau-foundation/napp/lib/codec"
)

// ErrNoReceipt is returned by Read for an archive without a receipt.
var ErrNoReceipt = errors.New("bundle: archive has no receipt")

// Read walks an archive written by Writer, calling visit for every app
// file, and returns the receipt. Each file's content is checked
// against the size recorded in the receipt and the receipt's files
// against the entries; roots are not recomputed here because that
// needs the publisher's chunk size.
func Read(r io.Reader, compression Compression, visit func(name string, data []byte) error) (Receipt, error) {
	var source io.Reader
	switch compression {
	case CompressionNone, "":
		source = r
	case CompressionZstd:
		decoder, err := zstd.NewReader(r)
		if err != nil {
			return Receipt{}, fmt.Errorf("creating zstd decoder: %w", err)
		}
		defer decoder.Close()
		source = decoder
	case CompressionLZ4:
		source = lz4.NewReader(r)
	default:
		return Receipt{}, fmt.Errorf("unsupported compression %q", compression)
	}

	archive := tar.NewReader(source)
	sizes := make(map[string]int64)
	var receipt *Receipt
	for {
		header, err := archive.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Receipt{}, fmt.Errorf("bundle: reading archive: %w", err)
		}
		if header.Name == ReceiptName {
			var decoded Receipt
			if err := codec.NewDecoder(archive).Decode(&decoded); err != nil {
				return Receipt{}, fmt.Errorf("bundle: decoding receipt: %w", err)
			}
			receipt = &decoded
			continue
		}
		data, err := io.ReadAll(archive)
		if err != nil {
			return Receipt{}, fmt.Errorf("bundle: reading %s: %w", header.Name, err)
		}
		sizes[header.Name] = int64(len(data))
		if visit != nil {
			if err := visit(header.Name, data); err != nil {
				return Receipt{}, err
			}
		}
	}

	if receipt == nil {
		return Receipt{}, ErrNoReceipt
	}
	for _, file := range receipt.Files {
		size, found := sizes[file.Name]
		if !found {
			return Receipt{}, fmt.Errorf("bundle: receipt lists %s but the archive lacks it", file.Name)
		}
		if size != file.Size {
			return Receipt{}, fmt.Errorf("bundle: %s is %d bytes, receipt says %d", file.Name, size, file.Size)
		}
	}
	return *receipt, nil
}

// Roots returns the receipt's file roots by name.
func (r Receipt) Roots() map[string]chunk.Hash {
	roots := make(map[string]chunk.Hash, len(r.Files))
	for _, file := range r.Files {
		roots[file.Name] = file.Root
	}
	return roots
}
