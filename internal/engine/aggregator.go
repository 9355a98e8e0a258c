package engine

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"dashboard/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Service answers listing and month-scoped statistics queries.
type Service struct {
	store Store
	log   zerolog.Logger
}

func NewService(store Store, log zerolog.Logger) *Service {
	return &Service{
		store: store,
		log:   log.With().Str("component", "query").Logger(),
	}
}

// ParseSearchPrice turns a search term into the price it is compared against.
// Anything that is not a finite number compares as 0.
func ParseSearchPrice(search string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(search), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func NewFilter(search string) models.TransactionFilter {
	if search == "" {
		return models.TransactionFilter{}
	}
	return models.TransactionFilter{Search: search, Price: ParseSearchPrice(search)}
}

func (s *Service) ListTransactions(ctx context.Context, q models.ListQuery) (*models.TransactionPage, error) {
	txs, err := s.store.Find(ctx, q.Filter, pageOffset(q.Page, q.PerPage), int64(q.PerPage))
	if err != nil {
		return nil, fmt.Errorf("find transactions: %w", err)
	}

	total, err := s.store.Count(ctx, q.Filter)
	if err != nil {
		return nil, fmt.Errorf("count transactions: %w", err)
	}

	if txs == nil {
		txs = []models.Transaction{}
	}

	return &models.TransactionPage{
		Page:         q.Page,
		PerPage:      q.PerPage,
		TotalRecords: total,
		TotalPages:   totalPages(total, q.PerPage),
		Transactions: txs,
	}, nil
}

// pageOffset saturates at math.MaxInt64 so a page far past the end
// selects nothing instead of wrapping around.
func pageOffset(page, perPage int) int64 {
	if page <= 1 || perPage <= 0 {
		return 0
	}
	p, n := int64(page-1), int64(perPage)
	if p > math.MaxInt64/n {
		return math.MaxInt64
	}
	return p * n
}

func totalPages(total int64, perPage int) int64 {
	if perPage <= 0 {
		return 0
	}
	return (total + int64(perPage) - 1) / int64(perPage)
}

func (s *Service) TotalSaleAmount(ctx context.Context, month int) (float64, error) {
	total, err := s.store.SumSoldPrice(ctx, month)
	if err != nil {
		return 0, fmt.Errorf("sum sale amount for month %d: %w", month, err)
	}
	return total, nil
}

func (s *Service) SoldCount(ctx context.Context, month int) (int64, error) {
	n, err := s.store.CountBySold(ctx, month, true)
	if err != nil {
		return 0, fmt.Errorf("count sold for month %d: %w", month, err)
	}
	return n, nil
}

func (s *Service) NotSoldCount(ctx context.Context, month int) (int64, error) {
	n, err := s.store.CountBySold(ctx, month, false)
	if err != nil {
		return 0, fmt.Errorf("count not sold for month %d: %w", month, err)
	}
	return n, nil
}

func (s *Service) Statistics(ctx context.Context, month int) (*models.Statistics, error) {
	var stats models.Statistics

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		stats.TotalSaleAmount, err = s.TotalSaleAmount(ctx, month)
		return err
	})
	g.Go(func() (err error) {
		stats.TotalSoldItems, err = s.SoldCount(ctx, month)
		return err
	})
	g.Go(func() (err error) {
		stats.TotalNotSoldItems, err = s.NotSoldCount(ctx, month)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &stats, nil
}

// BarChart counts qualifying records per price bucket. Every bucket is
// reported, in declaration order, including empty ones.
func (s *Service) BarChart(ctx context.Context, month int) ([]models.PriceRangeCount, error) {
	out := make([]models.PriceRangeCount, len(models.PriceRanges))

	g, ctx := errgroup.WithContext(ctx)
	for i, r := range models.PriceRanges {
		out[i].Range = r.Label
		g.Go(func() error {
			n, err := s.store.CountInPriceRange(ctx, month, r)
			if err != nil {
				return fmt.Errorf("count range %s for month %d: %w", r.Label, month, err)
			}
			out[i].Count = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) PieChart(ctx context.Context, month int) ([]models.CategoryCount, error) {
	counts, err := s.store.CountByCategory(ctx, month)
	if err != nil {
		return nil, fmt.Errorf("count categories for month %d: %w", month, err)
	}
	if counts == nil {
		counts = []models.CategoryCount{}
	}
	return counts, nil
}

// Combined runs every statistic concurrently. The first failure cancels
// the others and no partial result is returned.
func (s *Service) Combined(ctx context.Context, month int) (*models.CombinedStatistics, error) {
	var out models.CombinedStatistics

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		out.TotalSaleAmount, err = s.TotalSaleAmount(ctx, month)
		return err
	})
	g.Go(func() (err error) {
		out.TotalSoldItems, err = s.SoldCount(ctx, month)
		return err
	})
	g.Go(func() (err error) {
		out.TotalNotSoldItems, err = s.NotSoldCount(ctx, month)
		return err
	})
	g.Go(func() (err error) {
		out.BarChartData, err = s.BarChart(ctx, month)
		return err
	})
	g.Go(func() (err error) {
		out.PieChartData, err = s.PieChart(ctx, month)
		return err
	})
	if err := g.Wait(); err != nil {
		s.log.Debug().Err(err).Int("month", month).Msg("combined statistics aborted")
		return nil, err
	}
	return &out, nil
}
