/*
errors.go - Centralized error types for the ingest/query domain

PURPOSE:
  All domain error types in one place. The API boundary maps each of these
  to exactly one HTTP status; nothing in this package knows about HTTP.

ERROR CATEGORIES:
  1. Validation errors - bad header set, empty file, bad date range
  2. Load errors - a row failed a column cast during decoding

USAGE:
  Callers should match with errors.Is / errors.As:

    var hdrErr *txn.HeaderMismatchError
    if errors.As(err, &hdrErr) { ... }

SEE ALSO:
  - csv.go: Produces header and row errors
  - api/handlers.go: Maps these errors to HTTP statuses
*/
package txn

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrEmptyFile is returned when a CSV has no rows at all, not even a
	// header.
	ErrEmptyFile = errors.New("csv file is empty")

	// ErrBadHeader is the category for any header-set mismatch.
	ErrBadHeader = errors.New("invalid csv header")

	// ErrBadRow is the category for a row-level cast failure during load.
	ErrBadRow = errors.New("invalid csv row")

	// ErrInvalidRange is returned when a summary range has start after end.
	ErrInvalidRange = errors.New("start must be on or before end")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// HeaderMismatchError reports the set-difference between the CSV's
// normalized header set and the expected column set. Both slices are
// sorted so the message is deterministic.
type HeaderMismatchError struct {
	Missing []string
	Extra   []string
}

func (e *HeaderMismatchError) Error() string {
	return fmt.Sprintf("invalid header. Missing: [%s] Extra: [%s]",
		strings.Join(e.Missing, ", "), strings.Join(e.Extra, ", "))
}

func (e *HeaderMismatchError) Unwrap() error {
	return ErrBadHeader
}

// RowError reports the first row that failed a column cast. Line is
// 1-based and counts the header row, matching what a user sees in an
// editor. Column is the offending column name.
type RowError struct {
	Line   int
	Column string
	Value  string
	Err    error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d, column %q: cannot cast %q: %v",
		e.Line, e.Column, e.Value, e.Err)
}

func (e *RowError) Unwrap() error {
	return ErrBadRow
}
