// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"fmt"
)

// ExitError exits with Code without printing anything further. The
// command has already written its own output.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode returns the exit code.
func (e *ExitError) ExitCode() int {
	return e.Code
}

// ErrorCategory classifies a command failure for its exit code.
type ErrorCategory string

const (
	// CategoryValidation is bad input: unknown flags, wrong argument
	// counts, unparseable values.
	CategoryValidation ErrorCategory = "validation"

	// CategoryNotFound is a missing app, file, or key.
	CategoryNotFound ErrorCategory = "not_found"

	// CategoryTransient is a relay or network failure worth retrying.
	CategoryTransient ErrorCategory = "transient"
)

// Exit codes by category. Uncategorized errors exit 1.
const (
	ExitFailure    = 1
	ExitValidation = 2
	ExitNotFound   = 3
	ExitTransient  = 4
)

// CategoryError wraps an error with its category.
type CategoryError struct {
	Category ErrorCategory
	Err      error
}

func (e *CategoryError) Error() string { return e.Err.Error() }

func (e *CategoryError) Unwrap() error { return e.Err }

// Validation reports bad input.
func Validation(format string, args ...any) *CategoryError {
	return &CategoryError{Category: CategoryValidation, Err: fmt.Errorf(format, args...)}
}

// NotFound reports a missing resource.
func NotFound(format string, args ...any) *CategoryError {
	return &CategoryError{Category: CategoryNotFound, Err: fmt.Errorf(format, args...)}
}

// Transient reports a failure that may succeed on retry.
func Transient(format string, args ...any) *CategoryError {
	return &CategoryError{Category: CategoryTransient, Err: fmt.Errorf(format, args...)}
}

// ExitCodeFor maps an error returned from [Command.Execute] to a
// process exit code. The boolean reports whether the error message
// should be printed; an [ExitError] is silent.
func ExitCodeFor(err error) (int, bool) {
	if err == nil {
		return 0, false
	}
	var exit *ExitError
	if errors.As(err, &exit) {
		return exit.Code, false
	}
	var categorized *CategoryError
	if errors.As(err, &categorized) {
		switch categorized.Category {
		case CategoryValidation:
			return ExitValidation, true
		case CategoryNotFound:
			return ExitNotFound, true
		case CategoryTransient:
			return ExitTransient, true
		}
	}
	return ExitFailure, true
}
