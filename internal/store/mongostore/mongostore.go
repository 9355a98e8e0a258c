// Package mongostore implements the transaction store on MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"dashboard/internal/models"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Config struct {
	URI        string
	Database   string
	Collection string
	Attempts   int
	RetryDelay time.Duration
}

type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
	log    zerolog.Logger
}

// Connect dials the server and retries the initial ping, since the
// database container usually starts alongside the service.
func Connect(ctx context.Context, cfg Config, log zerolog.Logger) (*Store, error) {
	log = log.With().Str("component", "mongostore").Logger()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	attempts := max(cfg.Attempts, 1)
	for i := range attempts {
		if err = client.Ping(ctx, nil); err == nil {
			break
		}
		log.Warn().Err(err).Int("attempt", i+1).Int("of", attempts).Msg("mongo ping failed")
		if i+1 == attempts {
			break
		}
		if werr := wait(ctx, cfg.RetryDelay); werr != nil {
			err = werr
			break
		}
	}
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	s := &Store{
		client: client,
		coll:   client.Database(cfg.Database).Collection(cfg.Collection),
		log:    log,
	}

	_, err = s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "dateOfSale", Value: 1}}})
	if err != nil {
		log.Warn().Err(err).Msg("create dateOfSale index")
	}

	log.Info().Str("database", cfg.Database).Str("collection", cfg.Collection).Msg("connected to mongo")
	return s, nil
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) InsertMany(ctx context.Context, txs []models.Transaction) (models.InsertResult, error) {
	docs := make([]interface{}, len(txs))
	for i := range txs {
		docs[i] = txs[i]
	}

	_, err := s.coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	res, err := classifyInsertError(len(txs), err)
	if err != nil {
		return res, err
	}
	if res.Failed > 0 {
		s.log.Warn().Int("failed", res.Failed).Msg("some records were not inserted")
	}
	return res, nil
}

// classifyInsertError splits the write errors of an unordered bulk insert
// into duplicate keys and other failures. Anything that is not a bulk
// write exception means the batch as a whole failed.
func classifyInsertError(total int, err error) (models.InsertResult, error) {
	if err == nil {
		return models.InsertResult{Inserted: total}, nil
	}

	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) || bwe.WriteConcernError != nil {
		return models.InsertResult{}, fmt.Errorf("insert many: %w", err)
	}

	var res models.InsertResult
	for _, we := range bwe.WriteErrors {
		if isDuplicateKey(we.Code) {
			res.Duplicates++
		} else {
			res.Failed++
		}
	}
	res.Inserted = total - res.Duplicates - res.Failed
	return res, nil
}

func isDuplicateKey(code int) bool {
	return code == 11000 || code == 11001 || code == 12582
}

func monthExpr(month int) bson.M {
	return bson.M{"$eq": bson.A{bson.M{"$month": "$dateOfSale"}, month}}
}

func searchFilter(f models.TransactionFilter) bson.M {
	if !f.HasSearch() {
		return bson.M{}
	}
	re := primitive.Regex{Pattern: regexp.QuoteMeta(f.Search), Options: "i"}
	return bson.M{"$or": bson.A{
		bson.M{"title": re},
		bson.M{"description": re},
		bson.M{"price": f.Price},
	}}
}

func soldFilter(month int, sold bool) bson.M {
	return bson.M{"sold": sold, "$expr": monthExpr(month)}
}

func priceRangeFilter(month int, r models.PriceRange) bson.M {
	price := bson.M{"$gte": r.Min}
	if !r.Unbounded() {
		price["$lt"] = r.Max
	}
	return bson.M{"price": price, "$expr": monthExpr(month)}
}

func saleAmountPipeline(month int) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"sold": true, "$expr": monthExpr(month)}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "total", Value: bson.M{"$sum": "$price"}},
		}}},
	}
}

func categoryPipeline(month int) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"$expr": monthExpr(month)}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$category"},
			{Key: "count", Value: bson.M{"$sum": 1}},
		}}},
	}
}

func (s *Store) Find(ctx context.Context, f models.TransactionFilter, skip, limit int64) ([]models.Transaction, error) {
	opts := options.Find().SetSkip(skip).SetLimit(limit)
	cur, err := s.coll.Find(ctx, searchFilter(f), opts)
	if err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}

	out := []models.Transaction{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode transactions: %w", err)
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context, f models.TransactionFilter) (int64, error) {
	n, err := s.coll.CountDocuments(ctx, searchFilter(f))
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

func (s *Store) SumSoldPrice(ctx context.Context, month int) (float64, error) {
	cur, err := s.coll.Aggregate(ctx, saleAmountPipeline(month))
	if err != nil {
		return 0, fmt.Errorf("aggregate sale amount: %w", err)
	}

	var rows []struct {
		Total float64 `bson:"total"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return 0, fmt.Errorf("decode sale amount: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Total, nil
}

func (s *Store) CountBySold(ctx context.Context, month int, sold bool) (int64, error) {
	n, err := s.coll.CountDocuments(ctx, soldFilter(month, sold))
	if err != nil {
		return 0, fmt.Errorf("count sold=%t: %w", sold, err)
	}
	return n, nil
}

func (s *Store) CountInPriceRange(ctx context.Context, month int, r models.PriceRange) (int64, error) {
	n, err := s.coll.CountDocuments(ctx, priceRangeFilter(month, r))
	if err != nil {
		return 0, fmt.Errorf("count price range %s: %w", r.Label, err)
	}
	return n, nil
}

func (s *Store) CountByCategory(ctx context.Context, month int) ([]models.CategoryCount, error) {
	cur, err := s.coll.Aggregate(ctx, categoryPipeline(month))
	if err != nil {
		return nil, fmt.Errorf("aggregate categories: %w", err)
	}

	out := []models.CategoryCount{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode categories: %w", err)
	}
	return out, nil
}
