/*
store.go - Persistence interface for the transactions table

PURPOSE:
  Defines what the loader and the API need from storage, without binding
  them to a concrete engine. store/sqlite is the production implementation;
  txn/store provides an in-memory one for tests.

CONTRACT NOTES:
  - Append and Replace return the number of rows the insert itself
    reported as written. Callers must not infer this from before/after
    row counts; that pattern mis-attributes rows under concurrent loads.
  - Replace clears all prior rows and inserts the new batch as one atomic
    operation: a failure leaves the previous contents intact.
  - Summarise bounds are inclusive on both ends.
*/
package txn

import "context"

// Store persists transaction records and answers aggregate queries.
type Store interface {
	// Append bulk-inserts records, returning the inserted row count.
	Append(ctx context.Context, records []Record) (int64, error)

	// Replace clears the table and inserts records atomically, returning
	// the inserted row count.
	Replace(ctx context.Context, records []Record) (int64, error)

	// Summarise computes per-user statistics over the inclusive range.
	Summarise(ctx context.Context, userID int64, r Range) (Summary, error)

	// Count returns the total number of persisted rows.
	Count(ctx context.Context) (int64, error)
}
