/*
Package txn provides the core transaction ingest-and-query domain.

PURPOSE:
  This package contains the domain types and algorithms for the transactions
  service: the persisted record shape, exact decimal amounts, timestamp
  parsing and range filtering, CSV validation/decoding, and the bulk loader.

KEY CONCEPTS IN THIS FILE (types.go):
  - Record: One transaction row as persisted in the transactions table
  - Amount parsing: DECIMAL(12,2) semantics on top of decimal.Decimal
  - Range: An inclusive [start, end] timestamp filter
  - Summary: Per-user aggregate statistics over a Range

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal (and integer cents at the storage
     boundary) so 2-decimal amounts round-trip with no float drift
  2. UTC everywhere: Timestamps are normalized to UTC at parse time
  3. Front-loaded validation: A Record only exists if every column cast
     succeeded; storage never sees a half-typed row

SEE ALSO:
  - csv.go: Header validation and full-file decoding
  - loader.go: Bulk load orchestration (replace semantics, timing)
  - store.go: Persistence interface implemented by store/sqlite
*/
package txn

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RECORD - One row of the transactions table
// =============================================================================

// Record is a single transaction as persisted by the storage engine.
// TransactionID is opaque and not required to be unique.
type Record struct {
	TransactionID string
	UserID        int64
	ProductID     int64
	Timestamp     time.Time
	Amount        decimal.Decimal
}

// =============================================================================
// AMOUNT - DECIMAL(12,2) semantics
// =============================================================================

// maxAmountAbs is the first value with more than 10 integer digits.
var maxAmountAbs = decimal.New(1, 10)

// ParseAmount parses a transaction amount with DECIMAL(12,2) semantics:
// at most 2 fractional digits and at most 10 integer digits.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	if !d.Equal(d.Round(2)) {
		return decimal.Zero, fmt.Errorf("amount %q has more than 2 decimal places", s)
	}
	if d.Abs().Cmp(maxAmountAbs) >= 0 {
		return decimal.Zero, fmt.Errorf("amount %q exceeds DECIMAL(12,2) range", s)
	}
	return d, nil
}

// Cents converts a validated 2-decimal amount to integer cents.
// Exact by construction: ParseAmount guarantees at most 2 fractional digits.
func Cents(d decimal.Decimal) int64 {
	return d.Shift(2).IntPart()
}

// FromCents converts integer cents back to a 2-decimal amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// ParseUserID parses an integer identifier column (user_id, product_id).
func ParseUserID(s string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", s)
	}
	return v, nil
}

// =============================================================================
// TIMESTAMPS - parse-time UTC normalization
// =============================================================================

// timestampLayouts are tried in order. Layouts without a zone are treated
// as UTC; layouts with a zone are converted to UTC after parsing.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp parses a CSV timestamp value and normalizes it to UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// =============================================================================
// RANGE - Inclusive timestamp filter
// =============================================================================

// Range is an inclusive [Start, End] timestamp filter.
type Range struct {
	Start time.Time
	End   time.Time
}

// DefaultRange covers all representable time: omitted bounds mean
// "no filter". The end carries the last microsecond of year 9999 so a
// boundary row on the final day still matches.
func DefaultRange() Range {
	return Range{
		Start: time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(9999, time.December, 31, 23, 59, 59, 999999000, time.UTC),
	}
}

// Valid reports whether the range is well-formed (start on or before end).
func (r Range) Valid() bool {
	return !r.Start.After(r.End)
}

// Contains reports whether t falls inside the inclusive range.
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// =============================================================================
// SUMMARY - Per-user aggregate statistics
// =============================================================================

// Summary holds aggregate statistics for one user within a Range.
// Min, Max, Mean and MostPurchasedProductID are nil when Count is zero.
type Summary struct {
	Count                  int64
	Min                    *decimal.Decimal
	Max                    *decimal.Decimal
	Mean                   *decimal.Decimal
	MostPurchasedProductID *int64
}

// MeanOf computes the mean amount from a cents total and a row count,
// rounded half away from zero to 2 decimal places.
func MeanOf(sumCents, count int64) decimal.Decimal {
	return FromCents(sumCents).DivRound(decimal.NewFromInt(count), 2)
}
