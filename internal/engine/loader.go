package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"dashboard/internal/models"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

var (
	ErrFetch  = errors.New("fetch seed data")
	ErrDecode = errors.New("decode seed data")
	ErrInsert = errors.New("insert seed data")
)

// Fetcher retrieves the raw transaction batch from the seed source.
type Fetcher interface {
	Fetch(ctx context.Context) ([]models.Transaction, error)
}

type HTTPFetcher struct {
	Client *http.Client
	URL    string
	// MaxBytes caps the response body. Zero means no cap.
	MaxBytes int64
}

func NewHTTPFetcher(url string, timeout time.Duration, maxBytes int64) *HTTPFetcher {
	return &HTTPFetcher{
		Client:   &http.Client{Timeout: timeout},
		URL:      url,
		MaxBytes: maxBytes,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context) ([]models.Transaction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrFetch, err)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status code %d", ErrFetch, resp.StatusCode)
	}

	if f.MaxBytes <= 0 {
		return DecodeTransactions(resp.Body)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrFetch, err)
	}
	if int64(len(body)) > f.MaxBytes {
		return nil, fmt.Errorf("%w: payload exceeds %d bytes", ErrFetch, f.MaxBytes)
	}
	return DecodeTransactions(bytes.NewReader(body))
}

// DecodeTransactions reads a JSON array of transaction records.
func DecodeTransactions(r io.Reader) ([]models.Transaction, error) {
	var txs []models.Transaction
	if err := json.NewDecoder(r).Decode(&txs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return txs, nil
}

// Loader performs the one-shot ingestion of the seed batch.
type Loader struct {
	fetcher Fetcher
	store   Store
	log     zerolog.Logger
}

func NewLoader(fetcher Fetcher, store Store, log zerolog.Logger) *Loader {
	return &Loader{
		fetcher: fetcher,
		store:   store,
		log:     log.With().Str("component", "loader").Logger(),
	}
}

// Load fetches the batch and inserts it unordered. Records that already
// exist are counted as duplicates, not failures. Load only fails when the
// fetch fails or the store could not insert anything it was given.
func (l *Loader) Load(ctx context.Context) (*models.IngestResult, error) {
	start := time.Now()

	txs, err := l.fetcher.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	valid := make([]models.Transaction, 0, len(txs))
	rejected := 0
	for _, tx := range txs {
		if tx.Price < 0 {
			rejected++
			continue
		}
		valid = append(valid, tx)
	}

	res := &models.IngestResult{
		Message:  "Products fetched and saved successfully",
		Received: len(txs),
		Rejected: rejected,
	}
	if len(valid) == 0 {
		l.log.Warn().Int("received", len(txs)).Msg("seed batch had no insertable records")
		return res, nil
	}

	ins, err := l.store.InsertMany(ctx, valid)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInsert, err)
	}
	if ins.Failed > 0 && ins.Inserted == 0 && ins.Duplicates == 0 {
		return nil, fmt.Errorf("%w: all %d records failed", ErrInsert, ins.Failed)
	}

	res.Inserted = ins.Inserted
	res.Duplicates = ins.Duplicates
	res.Rejected += ins.Failed

	l.log.Info().
		Int("received", res.Received).
		Int("inserted", res.Inserted).
		Int("duplicates", res.Duplicates).
		Int("rejected", res.Rejected).
		Dur("took", time.Since(start)).
		Msg("seed batch ingested")
	return res, nil
}
