// Package pgstore implements the transaction store on PostgreSQL through GORM.
package pgstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dashboard/internal/models"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const insertBatchSize = 500

type Config struct {
	DSN        string
	Attempts   int
	RetryDelay time.Duration
}

type Store struct {
	db  *gorm.DB
	log zerolog.Logger
}

func Connect(ctx context.Context, cfg Config, log zerolog.Logger) (*Store, error) {
	log = log.With().Str("component", "pgstore").Logger()

	var (
		db  *gorm.DB
		err error
	)
	attempts := max(cfg.Attempts, 1)
	for i := range attempts {
		db, err = gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
			Logger: newGormLogger(log, slowQueryThreshold),
		})
		if err == nil {
			break
		}
		log.Warn().Err(err).Int("attempt", i+1).Int("of", attempts).Msg("postgres connection failed")
		if i+1 == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(cfg.RetryDelay):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := db.WithContext(ctx).AutoMigrate(&models.Transaction{}); err != nil {
		return nil, fmt.Errorf("migrate transactions: %w", err)
	}

	log.Info().Msg("connected to postgres")
	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// InsertMany skips rows whose id already exists instead of aborting. Each
// batch is its own statement, and a batch that fails is retried row by row
// so one bad record does not block the rest.
func (s *Store) InsertMany(ctx context.Context, txs []models.Transaction) (models.InsertResult, error) {
	insert := func(rows []models.Transaction) (int64, error) {
		res := s.db.WithContext(ctx).
			Session(&gorm.Session{SkipDefaultTransaction: true}).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&rows)
		return res.RowsAffected, res.Error
	}

	res, err := insertBatches(ctx, txs, insertBatchSize, insert, s.log)
	if err != nil {
		return res, fmt.Errorf("insert transactions: %w", err)
	}
	return res, nil
}

// insertFunc writes rows and reports how many were new.
type insertFunc func(rows []models.Transaction) (int64, error)

func insertBatches(ctx context.Context, txs []models.Transaction, size int, insert insertFunc, log zerolog.Logger) (models.InsertResult, error) {
	var res models.InsertResult
	for start := 0; start < len(txs); start += size {
		batch := txs[start:min(start+size, len(txs))]

		n, err := insert(batch)
		if err == nil {
			res.Inserted += int(n)
			res.Duplicates += len(batch) - int(n)
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}
		log.Warn().Err(err).Int("rows", len(batch)).Msg("batch insert failed, retrying row by row")

		for i := range batch {
			n, err := insert(batch[i : i+1])
			switch {
			case err != nil:
				if ctxErr := ctx.Err(); ctxErr != nil {
					return res, ctxErr
				}
				log.Warn().Err(err).Int64("id", batch[i].ID).Msg("record rejected")
				res.Failed++
			case n == 0:
				res.Duplicates++
			default:
				res.Inserted++
			}
		}
	}
	return res, nil
}

// escapeLike makes a search term literal inside an ILIKE pattern.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

func searchScope(f models.TransactionFilter) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if !f.HasSearch() {
			return db
		}
		pattern := escapeLike(f.Search)
		return db.Where("title ILIKE ? OR description ILIKE ? OR price = ?", pattern, pattern, f.Price)
	}
}

func monthScope(month int) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("EXTRACT(MONTH FROM date_of_sale AT TIME ZONE 'UTC') = ?", month)
	}
}

func (s *Store) model(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Model(&models.Transaction{})
}

func findQuery(db *gorm.DB, f models.TransactionFilter, skip, limit int64) *gorm.DB {
	return db.Scopes(searchScope(f)).Order("id").Offset(int(skip)).Limit(int(limit))
}

func saleAmountQuery(db *gorm.DB, month int) *gorm.DB {
	return db.Scopes(monthScope(month)).Where("sold = ?", true).Select("COALESCE(SUM(price), 0)")
}

func soldQuery(db *gorm.DB, month int, sold bool) *gorm.DB {
	return db.Scopes(monthScope(month)).Where("sold = ?", sold)
}

// priceRangeQuery leaves the upper bound off for the open-ended bucket.
func priceRangeQuery(db *gorm.DB, month int, r models.PriceRange) *gorm.DB {
	q := db.Scopes(monthScope(month)).Where("price >= ?", r.Min)
	if !r.Unbounded() {
		q = q.Where("price < ?", r.Max)
	}
	return q
}

func categoryQuery(db *gorm.DB, month int) *gorm.DB {
	return db.Scopes(monthScope(month)).Select("category, COUNT(*) AS count").Group("category")
}

func (s *Store) Find(ctx context.Context, f models.TransactionFilter, skip, limit int64) ([]models.Transaction, error) {
	out := []models.Transaction{}
	if err := findQuery(s.model(ctx), f, skip, limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context, f models.TransactionFilter) (int64, error) {
	var n int64
	if err := s.model(ctx).Scopes(searchScope(f)).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

func (s *Store) SumSoldPrice(ctx context.Context, month int) (float64, error) {
	var total float64
	if err := saleAmountQuery(s.model(ctx), month).Scan(&total).Error; err != nil {
		return 0, fmt.Errorf("sum sale amount: %w", err)
	}
	return total, nil
}

func (s *Store) CountBySold(ctx context.Context, month int, sold bool) (int64, error) {
	var n int64
	if err := soldQuery(s.model(ctx), month, sold).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count sold=%t: %w", sold, err)
	}
	return n, nil
}

func (s *Store) CountInPriceRange(ctx context.Context, month int, r models.PriceRange) (int64, error) {
	var n int64
	if err := priceRangeQuery(s.model(ctx), month, r).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count price range %s: %w", r.Label, err)
	}
	return n, nil
}

func (s *Store) CountByCategory(ctx context.Context, month int) ([]models.CategoryCount, error) {
	out := []models.CategoryCount{}
	if err := categoryQuery(s.model(ctx), month).Scan(&out).Error; err != nil {
		return nil, fmt.Errorf("count categories: %w", err)
	}
	return out, nil
}
