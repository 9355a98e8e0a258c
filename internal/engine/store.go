package engine

import (
	"context"

	"dashboard/internal/models"
)

// Store is the persistence port the query service and loader run against.
// Month-scoped methods take the calendar month (1-12) of dateOfSale in UTC;
// any other value simply matches nothing.
type Store interface {
	// InsertMany inserts unordered: one failing record never stops the rest.
	InsertMany(ctx context.Context, txs []models.Transaction) (models.InsertResult, error)

	Find(ctx context.Context, filter models.TransactionFilter, skip, limit int64) ([]models.Transaction, error)
	Count(ctx context.Context, filter models.TransactionFilter) (int64, error)

	SumSoldPrice(ctx context.Context, month int) (float64, error)
	CountBySold(ctx context.Context, month int, sold bool) (int64, error)
	CountInPriceRange(ctx context.Context, month int, r models.PriceRange) (int64, error)
	CountByCategory(ctx context.Context, month int) ([]models.CategoryCount, error)

	Ping(ctx context.Context) error
}
