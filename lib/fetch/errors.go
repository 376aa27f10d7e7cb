// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fetch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bureau-foundation/napp/lib/chunk"
)

var (
	// ErrIncomplete matches every *IncompleteError.
	ErrIncomplete = errors.New("incomplete reconstruction")

	// ErrNotFound is returned when no manifest exists for an app.
	ErrNotFound = errors.New("not found")
)

// Reason classifies an incomplete reconstruction.
type Reason string

const (
	ReasonNotFound      Reason = "no chunks found"
	ReasonMissing       Reason = "missing chunks"
	ReasonCountMismatch Reason = "chunk count mismatch"
	ReasonNonContiguous Reason = "non-contiguous chunks"
	ReasonOverCap       Reason = "exceeds size cap"
	ReasonCorrupt       Reason = "corrupt chunk"
)

// IncompleteError reports why a file could not be rebuilt. No bytes
// are returned alongside it.
type IncompleteError struct {
	Root   chunk.Hash
	Reason Reason

	// Total is the declared chunk count, when known.
	Total int

	// Missing lists absent chunk indices for ReasonMissing.
	Missing []int

	// Detail adds context for the other reasons.
	Detail string

	// Err is an underlying cause, such as relay failures.
	Err error
}

func (e *IncompleteError) Error() string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "file %s: %s", e.Root, e.Reason)
	if e.Total > 0 {
		fmt.Fprintf(&builder, " (%d chunks)", e.Total)
	}
	if len(e.Missing) > 0 {
		fmt.Fprintf(&builder, ": missing %s", formatIndices(e.Missing))
	}
	if e.Detail != "" {
		builder.WriteString(": ")
		builder.WriteString(e.Detail)
	}
	if e.Err != nil {
		builder.WriteString(": ")
		builder.WriteString(e.Err.Error())
	}
	return builder.String()
}

// Is makes errors.Is(err, ErrIncomplete) true for every
// IncompleteError.
func (e *IncompleteError) Is(target error) bool {
	return target == ErrIncomplete
}

func (e *IncompleteError) Unwrap() error {
	return e.Err
}

// IsIncomplete reports whether err is an *IncompleteError with the
// given reason.
func IsIncomplete(err error, reason Reason) bool {
	var incomplete *IncompleteError
	return errors.As(err, &incomplete) && incomplete.Reason == reason
}

// formatIndices prints at most ten indices.
func formatIndices(indices []int) string {
	const shown = 10
	parts := make([]string, 0, min(len(indices), shown)+1)
	for i, index := range indices {
		if i == shown {
			parts = append(parts, fmt.Sprintf("and %d more", len(indices)-shown))
			break
		}
		parts = append(parts, fmt.Sprint(index))
	}
	return strings.Join(parts, ", ")
}
