/*
csv.go - CSV header validation and full-file typed decoding

PURPOSE:
  Validates an uploaded CSV's header row against the fixed transactions
  schema and decodes data rows into typed Records.

HEADER VALIDATION:
  Each header token is normalized (trim whitespace, strip surrounding
  double quotes, lowercase) and the resulting SET is compared against the
  expected columns. Order is irrelevant and duplicates collapse.

FULL-FILE DECODING:
  Decode parses every row of the file before anything is written to
  storage. This mirrors a full-scan (not sampled) type inference pass: a
  bad value on the last line fails the load just as one on the first line
  does, and fails it before any mutation.

SEE ALSO:
  - errors.go: HeaderMismatchError, RowError
  - loader.go: Drives Decode and hands Records to the Store
*/
package txn

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// Columns expected in the header row, in canonical (schema) order.
var expectedColumns = []string{
	"transaction_id",
	"user_id",
	"product_id",
	"timestamp",
	"transaction_amount",
}

// NormalizeHeader canonicalizes one header token: trim whitespace, strip
// surrounding double quotes, lowercase.
func NormalizeHeader(token string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(token), `"`))
}

// ValidateHeaders reads only the first row of r and checks the normalized
// header set against the expected transactions columns. It returns
// ErrEmptyFile for a file with no rows at all and a HeaderMismatchError
// listing the sorted set-difference in both directions otherwise.
// Data rows are not inspected here; bad values surface later as load
// failures.
func ValidateHeaders(r io.Reader) error {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return ErrEmptyFile
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadHeader, err)
	}

	return validateHeaderRecord(header)
}

// ValidateHeadersFile opens path and validates its header row.
func ValidateHeadersFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return ValidateHeaders(f)
}

func validateHeaderRecord(header []string) error {
	got := make(map[string]bool, len(header))
	for _, h := range header {
		got[NormalizeHeader(h)] = true
	}

	var missing, extra []string
	for _, want := range expectedColumns {
		if !got[want] {
			missing = append(missing, want)
		}
	}
	want := make(map[string]bool, len(expectedColumns))
	for _, c := range expectedColumns {
		want[c] = true
	}
	for col := range got {
		if !want[col] {
			extra = append(extra, col)
		}
	}

	if len(missing) == 0 && len(extra) == 0 {
		return nil
	}
	sort.Strings(missing)
	sort.Strings(extra)
	return &HeaderMismatchError{Missing: missing, Extra: extra}
}

// Decode reads the entire CSV from r and returns one typed Record per data
// row. The first row must be a valid header; columns may appear in any
// order. The first cast failure aborts decoding with a RowError naming the
// line, column and offending value.
func Decode(r io.Reader) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadHeader, err)
	}
	if err := validateHeaderRecord(header); err != nil {
		return nil, err
	}

	// Map each expected column to its first occurrence in the header.
	index := make(map[string]int, len(header))
	for i, h := range header {
		name := NormalizeHeader(h)
		if _, seen := index[name]; !seen {
			index[name] = i
		}
	}

	var records []Record
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrBadRow, line, err)
		}
		if len(row) < len(header) {
			return nil, fmt.Errorf("%w: line %d: expected %d fields, got %d",
				ErrBadRow, line, len(header), len(row))
		}

		rec, err := decodeRow(row, index, line)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, nil
}

// DecodeFile opens path and decodes the whole file.
func DecodeFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

func decodeRow(row []string, index map[string]int, line int) (Record, error) {
	var rec Record
	var err error

	rec.TransactionID = row[index["transaction_id"]]

	if rec.UserID, err = ParseUserID(row[index["user_id"]]); err != nil {
		return rec, rowError(line, "user_id", row[index["user_id"]], err)
	}
	if rec.ProductID, err = ParseUserID(row[index["product_id"]]); err != nil {
		return rec, rowError(line, "product_id", row[index["product_id"]], err)
	}
	if rec.Timestamp, err = ParseTimestamp(row[index["timestamp"]]); err != nil {
		return rec, rowError(line, "timestamp", row[index["timestamp"]], err)
	}
	if rec.Amount, err = ParseAmount(row[index["transaction_amount"]]); err != nil {
		return rec, rowError(line, "transaction_amount", row[index["transaction_amount"]], err)
	}

	return rec, nil
}

func rowError(line int, column, value string, err error) error {
	var inner *RowError
	if errors.As(err, &inner) {
		return err
	}
	return &RowError{Line: line, Column: column, Value: value, Err: err}
}
