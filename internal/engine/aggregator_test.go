package engine

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"dashboard/internal/models"
	"dashboard/internal/store/memstore"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
	return &t
}

func newTestService(t *testing.T, txs ...models.Transaction) (*Service, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	_, err := store.InsertMany(context.Background(), txs)
	require.NoError(t, err)
	return NewService(store, zerolog.Nop()), store
}

func bucket(t *testing.T, data []models.PriceRangeCount, label string) int64 {
	t.Helper()
	for _, b := range data {
		if b.Range == label {
			return b.Count
		}
	}
	t.Fatalf("bucket %s missing", label)
	return 0
}

func TestStatisticsMarchExample(t *testing.T) {
	// Scenario:
	// Row 1: 50,  sold,   March
	// Row 2: 150, unsold, March
	// Row 3: 999, sold,   April
	svc, _ := newTestService(t,
		models.Transaction{ID: 1, Price: 50, Sold: true, Category: "a", DateOfSale: date(2024, time.March, 5)},
		models.Transaction{ID: 2, Price: 150, Sold: false, Category: "b", DateOfSale: date(2024, time.March, 10)},
		models.Transaction{ID: 3, Price: 999, Sold: true, Category: "a", DateOfSale: date(2024, time.April, 1)},
	)
	ctx := context.Background()

	stats, err := svc.Statistics(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, models.Statistics{TotalSaleAmount: 50, TotalSoldItems: 1, TotalNotSoldItems: 1}, *stats)

	bars, err := svc.BarChart(ctx, 3)
	require.NoError(t, err)
	require.Len(t, bars, 10)
	for i, r := range models.PriceRanges {
		assert.Equal(t, r.Label, bars[i].Range)
	}
	assert.EqualValues(t, 1, bucket(t, bars, "0-100"))
	assert.EqualValues(t, 1, bucket(t, bars, "101-200"))
	for _, b := range bars[2:] {
		assert.Zero(t, b.Count, b.Range)
	}
}

func TestBarChartBoundaryGaps(t *testing.T) {
	march := date(2024, time.March, 1)
	svc, _ := newTestService(t,
		models.Transaction{ID: 1, Price: 100, DateOfSale: march},
		models.Transaction{ID: 2, Price: 101, DateOfSale: march},
		models.Transaction{ID: 3, Price: 900, DateOfSale: march},
		models.Transaction{ID: 4, Price: 901, DateOfSale: march},
		models.Transaction{ID: 5, Price: 0, DateOfSale: march},
		models.Transaction{ID: 6, Price: 100.5, DateOfSale: march},
	)

	bars, err := svc.BarChart(context.Background(), 3)
	require.NoError(t, err)

	// 100, 100.5 and 900 sit between buckets and are counted nowhere.
	var sum int64
	for _, b := range bars {
		sum += b.Count
	}
	assert.EqualValues(t, 3, sum)
	assert.EqualValues(t, 1, bucket(t, bars, "0-100"))
	assert.EqualValues(t, 1, bucket(t, bars, "101-200"))
	assert.EqualValues(t, 0, bucket(t, bars, "801-900"))
	assert.EqualValues(t, 1, bucket(t, bars, "901-above"))
}

func TestMonthScoping(t *testing.T) {
	svc, _ := newTestService(t,
		models.Transaction{ID: 1, Price: 10, Sold: true, Category: "x", DateOfSale: date(2021, time.November, 2)},
		models.Transaction{ID: 2, Price: 20, Sold: true, Category: "x", DateOfSale: date(2022, time.November, 9)},
		models.Transaction{ID: 3, Price: 30, Sold: false, Category: "y", DateOfSale: date(2022, time.November, 9)},
		models.Transaction{ID: 4, Price: 40, Sold: true, Category: "x"},
	)
	ctx := context.Background()

	t.Run("months across years qualify", func(t *testing.T) {
		stats, err := svc.Statistics(ctx, 11)
		require.NoError(t, err)
		assert.Equal(t, 30.0, stats.TotalSaleAmount)
		assert.EqualValues(t, 2, stats.TotalSoldItems)
		assert.EqualValues(t, 1, stats.TotalNotSoldItems)
	})

	t.Run("no sold records sums to zero", func(t *testing.T) {
		stats, err := svc.Statistics(ctx, 1)
		require.NoError(t, err)
		assert.Zero(t, stats.TotalSaleAmount)
		assert.Zero(t, stats.TotalSoldItems)
	})

	for _, month := range []int{0, 13, -1} {
		stats, err := svc.Statistics(ctx, month)
		require.NoError(t, err)
		assert.Equal(t, models.Statistics{}, *stats)

		pie, err := svc.PieChart(ctx, month)
		require.NoError(t, err)
		assert.NotNil(t, pie)
		assert.Empty(t, pie)
	}

	t.Run("categories", func(t *testing.T) {
		pie, err := svc.PieChart(ctx, 11)
		require.NoError(t, err)
		assert.ElementsMatch(t, []models.CategoryCount{
			{Category: "x", Count: 2},
			{Category: "y", Count: 1},
		}, pie)
	})
}

func TestCombinedMatchesIndividualCalls(t *testing.T) {
	svc, _ := newTestService(t,
		models.Transaction{ID: 1, Price: 329.85, Sold: true, Category: "men's clothing", DateOfSale: date(2021, time.July, 27)},
		models.Transaction{ID: 2, Price: 44.6, Sold: false, Category: "jewelery", DateOfSale: date(2021, time.July, 27)},
		models.Transaction{ID: 3, Price: 615.89, Sold: true, Category: "electronics", DateOfSale: date(2022, time.July, 27)},
		models.Transaction{ID: 4, Price: 31.98, Sold: true, Category: "jewelery", DateOfSale: date(2021, time.August, 27)},
	)
	ctx := context.Background()

	combined, err := svc.Combined(ctx, 7)
	require.NoError(t, err)

	stats, err := svc.Statistics(ctx, 7)
	require.NoError(t, err)
	bars, err := svc.BarChart(ctx, 7)
	require.NoError(t, err)
	pie, err := svc.PieChart(ctx, 7)
	require.NoError(t, err)

	assert.Equal(t, stats.TotalSaleAmount, combined.TotalSaleAmount)
	assert.Equal(t, stats.TotalSoldItems, combined.TotalSoldItems)
	assert.Equal(t, stats.TotalNotSoldItems, combined.TotalNotSoldItems)
	assert.Equal(t, bars, combined.BarChartData)
	assert.ElementsMatch(t, pie, combined.PieChartData)
	assert.InDelta(t, 945.74, combined.TotalSaleAmount, 1e-9)
}

type failingStore struct {
	*memstore.Store
	err error
}

func (f failingStore) CountByCategory(ctx context.Context, month int) ([]models.CategoryCount, error) {
	return nil, f.err
}

func TestCombinedFailsFast(t *testing.T) {
	boom := errors.New("connection reset")
	svc := NewService(failingStore{Store: memstore.New(), err: boom}, zerolog.Nop())

	combined, err := svc.Combined(context.Background(), 3)
	require.ErrorIs(t, err, boom)
	assert.Nil(t, combined)
}

func TestListTransactions(t *testing.T) {
	var txs []models.Transaction
	for i := 1; i <= 23; i++ {
		txs = append(txs, models.Transaction{ID: int64(i), Title: "Item", Description: "plain", Price: float64(i)})
	}
	txs = append(txs,
		models.Transaction{ID: 100, Title: "Pack of 100 Pens", Price: 5},
		models.Transaction{ID: 101, Title: "Lamp", Description: "Bulb rated 100W", Price: 12},
		models.Transaction{ID: 102, Title: "Chair", Price: 100},
		models.Transaction{ID: 103, Title: "Desk", Price: 1000},
	)
	svc, _ := newTestService(t, txs...)
	ctx := context.Background()

	t.Run("pagination", func(t *testing.T) {
		for _, perPage := range []int{1, 5, 10, 27, 50} {
			page, err := svc.ListTransactions(ctx, models.ListQuery{Page: 1, PerPage: perPage})
			require.NoError(t, err)
			assert.EqualValues(t, 27, page.TotalRecords)
			assert.EqualValues(t, (27+perPage-1)/perPage, page.TotalPages)
			assert.LessOrEqual(t, len(page.Transactions), perPage)
		}

		last, err := svc.ListTransactions(ctx, models.ListQuery{Page: 3, PerPage: 10})
		require.NoError(t, err)
		assert.Len(t, last.Transactions, 7)
		assert.Equal(t, 3, last.Page)

		past, err := svc.ListTransactions(ctx, models.ListQuery{Page: 9, PerPage: 10})
		require.NoError(t, err)
		assert.NotNil(t, past.Transactions)
		assert.Empty(t, past.Transactions)

		huge, err := svc.ListTransactions(ctx, models.ListQuery{Page: 1_000_000_000_000_000_001, PerPage: 10})
		require.NoError(t, err)
		assert.Empty(t, huge.Transactions)
		assert.EqualValues(t, 27, huge.TotalRecords)
	})

	t.Run("search matches text or price", func(t *testing.T) {
		page, err := svc.ListTransactions(ctx, models.ListQuery{Filter: NewFilter("100"), Page: 1, PerPage: 10})
		require.NoError(t, err)

		var ids []int64
		for _, tx := range page.Transactions {
			ids = append(ids, tx.ID)
		}
		assert.ElementsMatch(t, []int64{100, 101, 102}, ids)
		assert.EqualValues(t, 3, page.TotalRecords)
		assert.EqualValues(t, 1, page.TotalPages)
	})

	t.Run("search is case insensitive", func(t *testing.T) {
		page, err := svc.ListTransactions(ctx, models.ListQuery{Filter: NewFilter("bULB"), Page: 1, PerPage: 10})
		require.NoError(t, err)
		require.Len(t, page.Transactions, 1)
		assert.EqualValues(t, 101, page.Transactions[0].ID)
	})
}

func TestPageOffset(t *testing.T) {
	assert.Zero(t, pageOffset(1, 10))
	assert.Zero(t, pageOffset(0, 10))
	assert.EqualValues(t, 20, pageOffset(3, 10))
	assert.EqualValues(t, int64(math.MaxInt64), pageOffset(math.MaxInt, 2))
	assert.EqualValues(t, int64(math.MaxInt64), pageOffset(1_000_000_000_000_000_001, 10))
}

func TestParseSearchPrice(t *testing.T) {
	assert.Equal(t, 100.0, ParseSearchPrice("100"))
	assert.Equal(t, 12.5, ParseSearchPrice(" 12.5 "))
	assert.Zero(t, ParseSearchPrice("shirt"))
	assert.Zero(t, ParseSearchPrice("NaN"))
	assert.Zero(t, ParseSearchPrice("Inf"))

	assert.False(t, NewFilter("").HasSearch())
	assert.Equal(t, models.TransactionFilter{Search: "jacket", Price: 0}, NewFilter("jacket"))
}
