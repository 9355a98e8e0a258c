// Package memstore keeps transactions in process memory. It backs the
// "memory" store driver and the test suites.
package memstore

import (
	"context"
	"strings"
	"sync"

	"dashboard/internal/models"

	"github.com/shopspring/decimal"
)

type Store struct {
	mu   sync.RWMutex
	rows []models.Transaction
	ids  map[int64]struct{}
}

func New() *Store {
	return &Store{ids: make(map[int64]struct{})}
}

func (s *Store) InsertMany(ctx context.Context, txs []models.Transaction) (models.InsertResult, error) {
	if err := ctx.Err(); err != nil {
		return models.InsertResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var res models.InsertResult
	for _, tx := range txs {
		if _, ok := s.ids[tx.ID]; ok {
			res.Duplicates++
			continue
		}
		s.ids[tx.ID] = struct{}{}
		s.rows = append(s.rows, tx)
		res.Inserted++
	}
	return res, nil
}

func matches(tx *models.Transaction, f models.TransactionFilter) bool {
	if !f.HasSearch() {
		return true
	}
	needle := strings.ToLower(f.Search)
	return strings.Contains(strings.ToLower(tx.Title), needle) ||
		strings.Contains(strings.ToLower(tx.Description), needle) ||
		tx.Price == f.Price
}

func inMonth(tx *models.Transaction, month int) bool {
	return tx.DateOfSale != nil && int(tx.DateOfSale.UTC().Month()) == month
}

func (s *Store) Find(ctx context.Context, f models.TransactionFilter, skip, limit int64) ([]models.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.Transaction{}
	var seen int64
	for i := range s.rows {
		if !matches(&s.rows[i], f) {
			continue
		}
		seen++
		if seen <= skip {
			continue
		}
		if limit > 0 && int64(len(out)) >= limit {
			break
		}
		out = append(out, s.rows[i])
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context, f models.TransactionFilter) (int64, error) {
	return s.count(ctx, func(tx *models.Transaction) bool { return matches(tx, f) })
}

func (s *Store) SumSoldPrice(ctx context.Context, month int) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for i := range s.rows {
		if s.rows[i].Sold && inMonth(&s.rows[i], month) {
			total = total.Add(decimal.NewFromFloat(s.rows[i].Price))
		}
	}
	return total.InexactFloat64(), nil
}

func (s *Store) CountBySold(ctx context.Context, month int, sold bool) (int64, error) {
	return s.count(ctx, func(tx *models.Transaction) bool {
		return tx.Sold == sold && inMonth(tx, month)
	})
}

func (s *Store) CountInPriceRange(ctx context.Context, month int, r models.PriceRange) (int64, error) {
	return s.count(ctx, func(tx *models.Transaction) bool {
		return r.Contains(tx.Price) && inMonth(tx, month)
	})
}

func (s *Store) CountByCategory(ctx context.Context, month int) ([]models.CategoryCount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := make(map[string]int)
	out := []models.CategoryCount{}
	for i := range s.rows {
		if !inMonth(&s.rows[i], month) {
			continue
		}
		c := s.rows[i].Category
		if j, ok := idx[c]; ok {
			out[j].Count++
			continue
		}
		idx[c] = len(out)
		out = append(out, models.CategoryCount{Category: c, Count: 1})
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) count(ctx context.Context, keep func(*models.Transaction) bool) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for i := range s.rows {
		if keep(&s.rows[i]) {
			n++
		}
	}
	return n, nil
}
