// Package store provides txn.Store implementations.
package store

import (
	"context"
	"sync"

	"github.com/warp/transactions-service/txn"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory is a pure-Go txn.Store. It applies the same tie-break and
// rounding rules as the SQLite store, which makes it a reference to
// cross-check aggregation results in tests.
type Memory struct {
	mu      sync.RWMutex
	records []txn.Record
}

func NewMemory() *Memory {
	return &Memory{}
}

// Append adds records, returning the number added.
func (m *Memory) Append(_ context.Context, records []txn.Record) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records = append(m.records, records...)
	return int64(len(records)), nil
}

// Replace discards all prior records and installs the new batch.
func (m *Memory) Replace(_ context.Context, records []txn.Record) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records = append([]txn.Record(nil), records...)
	return int64(len(records)), nil
}

// Count returns the total number of stored records.
func (m *Memory) Count(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.records)), nil
}

// Summarise computes per-user statistics over the inclusive range.
// Ties on the most-purchased product break toward the lowest product ID.
func (m *Memory) Summarise(_ context.Context, userID int64, r txn.Range) (txn.Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var (
		count    int64
		sumCents int64
		minCents int64
		maxCents int64
		products = make(map[int64]int64)
	)

	for _, rec := range m.records {
		if rec.UserID != userID || !r.Contains(rec.Timestamp) {
			continue
		}
		cents := txn.Cents(rec.Amount)
		if count == 0 {
			minCents, maxCents = cents, cents
		} else {
			if cents < minCents {
				minCents = cents
			}
			if cents > maxCents {
				maxCents = cents
			}
		}
		sumCents += cents
		products[rec.ProductID]++
		count++
	}

	if count == 0 {
		return txn.Summary{}, nil
	}

	var top int64
	var topCount int64
	for id, n := range products {
		if n > topCount || (n == topCount && id < top) {
			top, topCount = id, n
		}
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
