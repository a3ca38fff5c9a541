/*
loader.go - Bulk CSV load orchestration

PURPOSE:
  Drives one upload end to end: decode the whole file into typed records,
  then hand them to the store in a single atomic write, optionally clearing
  prior rows first (replace semantics). Reports the inserted row count and
  elapsed wall-clock seconds.

ORDERING:
  Decoding happens entirely before any storage mutation. A cast failure on
  any row therefore aborts the load with nothing written - including the
  replace-mode delete, which only runs once the whole file parsed.

SEE ALSO:
  - csv.go: Decode
  - store.go: Store contract (Append/Replace row-count semantics)
*/
package txn

import (
	"context"
	"time"
)

// Outcome reports the result of one bulk load.
type Outcome struct {
	RowsAdded int64
	Seconds   float64
	Replaced  bool
}

// Loader performs bulk CSV loads against a Store.
type Loader struct {
	store Store
}

// NewLoader creates a loader backed by the given store.
func NewLoader(store Store) *Loader {
	return &Loader{store: store}
}

// Load decodes the CSV at csvPath and bulk-inserts it. With replace set,
// all prior rows are discarded before the insert; a header-only file then
// leaves the table empty. The returned Seconds is wall-clock time with
// sub-second precision covering decode and insert.
func (l *Loader) Load(ctx context.Context, csvPath string, replace bool) (Outcome, error) {
	start := time.Now()

	records, err := DecodeFile(csvPath)
	if err != nil {
		return Outcome{}, err
	}

	var added int64
	if replace {
		added, err = l.store.Replace(ctx, records)
	} else {
		added, err = l.store.Append(ctx, records)
	}
	if err != nil {
		return Outcome{}, err
	}

	return Outcome{
		RowsAdded: added,
		Seconds:   time.Since(start).Seconds(),
		Replaced:  replace,
	}, nil
}
