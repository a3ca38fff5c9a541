/*
Package sqlite provides the SQLite-backed implementation of txn.Store.

PURPOSE:
  Owns the embedded database file and the transactions table schema.
  One Store is opened at startup and injected into the API handler; there
  is no per-request connection churn.

SCHEMA:
  transactions(transaction_id TEXT, user_id INTEGER, product_id INTEGER,
  ts TEXT, amount_cents INTEGER). Created on open if absent; the parent
  directory of the database file is created too. No primary key: duplicate
  uploads without replace accumulate rows.

REPRESENTATION:
  Amounts are stored as integer cents, so DECIMAL(12,2) values round-trip
  exactly and MIN/MAX/SUM stay exact in SQL. Timestamps are stored as
  fixed-width UTC text with microseconds; fixed width keeps lexicographic
  comparison identical to chronological order, so inclusive BETWEEN-style
  filters work on the text column.

ROW COUNTS:
  Append and Replace report the sum of the insert statements' own
  affected-row counts. No before/after table-count snapshots: those
  mis-attribute rows when loads race.

CONCURRENCY:
  sync.RWMutex serializes writers; Replace's delete+insert pair runs inside
  one SQL transaction, so readers never observe the half-replaced state and
  a failed replace leaves prior rows intact.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/transactions.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - txn/store.go: Interface definition and contract notes
  - txn/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/transactions-service/txn"
)

// timeLayout is fixed-width so stored timestamps sort lexicographically
// in chronological order. Always applied to UTC values.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// insertBatchSize keeps bindings per statement (5 per row) under SQLite's
// default 999-variable limit.
const insertBatchSize = 150

// Store implements txn.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at the given database path, creating the
// parent directory and the schema if absent. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ensureSchema creates the transactions table if it does not exist.
// Idempotent; safe to run on every open.
func (s *Store) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS transactions (
		transaction_id TEXT NOT NULL,
		user_id INTEGER NOT NULL,
		product_id INTEGER NOT NULL,
		ts TEXT NOT NULL,
		amount_cents INTEGER NOT NULL
	);

	-- Hot path: per-user range aggregation
	CREATE INDEX IF NOT EXISTS idx_transactions_user_ts
		ON transactions(user_id, ts);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// WRITES (txn.Store interface)
// =============================================================================

// Append bulk-inserts records in one SQL transaction and returns the
// inserted row count as reported by the insert statements.
func (s *Store) Append(ctx context.Context, records []txn.Record) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.bulkInsert(ctx, records, false)
}

// Replace clears the table and inserts records in the same SQL
// transaction. A failure rolls back both the delete and the insert.
func (s *Store) Replace(ctx context.Context, records []txn.Record) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.bulkInsert(ctx, records, true)
}

func (s *Store) bulkInsert(ctx context.Context, records []txn.Record, replace bool) (int64, error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if replace {
		if _, err := sqlTx.ExecContext(ctx, "DELETE FROM transactions"); err != nil {
			return 0, fmt.Errorf("failed to clear transactions: %w", err)
		}
	}

	var added int64
	for start := 0; start < len(records); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(records) {
			end = len(records)
		}

		n, err := s.insertBatch(ctx, sqlTx, records[start:end])
		if err != nil {
			return 0, err
		}
		added += n
	}

	if err := sqlTx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit bulk insert: %w", err)
	}
	return added, nil
}

func (s *Store) insertBatch(ctx context.Context, sqlTx *sql.Tx, records []txn.Record) (int64, error) {
	var query strings.Builder
	query.WriteString("INSERT INTO transactions (transaction_id, user_id, product_id, ts, amount_cents) VALUES ")

	args := make([]any, 0, len(records)*5)
	for i, rec := range records {
		if i > 0 {
			query.WriteString(", ")
		}
		query.WriteString("(?, ?, ?, ?, ?)")
		args = append(args,
			rec.TransactionID,
			rec.UserID,
			rec.ProductID,
			formatTime(rec.Timestamp),
			txn.Cents(rec.Amount),
		)
	}

	res, err := sqlTx.ExecContext(ctx, query.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert transactions: %w", err)
	}
	return res.RowsAffected()
}

// =============================================================================
// QUERIES (txn.Store interface)
// =============================================================================

// Count returns the total number of persisted rows.
func (s *Store) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM transactions").Scan(&count)
	return count, err
}

// Summarise computes count, min, max and mean of transaction_amount plus
// the most purchased product for one user within the inclusive range.
// Ties on the most purchased product break toward the lowest product_id.
func (s *Store) Summarise(ctx context.Context, userID int64, r txn.Range) (txn.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	from := formatTime(r.Start)
	to := formatTime(r.End)

	var (
		count    int64
		minCents int64
		maxCents int64
		sumCents int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(MIN(amount_cents), 0),
		       COALESCE(MAX(amount_cents), 0),
		       COALESCE(SUM(amount_cents), 0)
		FROM transactions
		WHERE user_id = ? AND ts >= ? AND ts <= ?
	`, userID, from, to).Scan(&count, &minCents, &maxCents, &sumCents)
	if err != nil {
		return txn.Summary{}, fmt.Errorf("failed to summarise transactions: %w", err)
	}

	if count == 0 {
		return txn.Summary{}, nil
	}

	var top int64
	err = s.db.QueryRowContext(ctx, `
		SELECT product_id
		FROM transactions
		WHERE user_id = ? AND ts >= ? AND ts <= ?
		GROUP BY product_id
		ORDER BY COUNT(*) DESC, product_id ASC
		LIMIT 1
	`, userID, from, to).Scan(&top)
	if err != nil {
		return txn.Summary{}, fmt.Errorf("failed to rank products: %w", err)
	}

	minD := txn.FromCents(minCents)
	maxD := txn.FromCents(maxCents)
	mean := txn.MeanOf(sumCents, count)
	return txn.Summary{
		Count:                  count,
		Min:                    &minD,
		Max:                    &maxD,
		Mean:                   &mean,
		MostPurchasedProductID: &top,
	}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
