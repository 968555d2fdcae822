package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/user/catalog-crawler/internal/domain"
	"github.com/user/catalog-crawler/pkg/utils"
)

const DefaultPostgresBatch = 50

const productsSchema = `
CREATE TABLE IF NOT EXISTS crawl_runs (
	run_id      TEXT PRIMARY KEY,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	sites       JSONB
);
CREATE TABLE IF NOT EXISTS product_records (
	run_id         TEXT NOT NULL,
	site_name      TEXT NOT NULL,
	url_hash       TEXT NOT NULL,
	scraped_at     TIMESTAMPTZ NOT NULL,
	product_name   TEXT NOT NULL,
	sku            TEXT NOT NULL,
	product_url    TEXT NOT NULL,
	status         TEXT NOT NULL,
	price_value    DOUBLE PRECISION,
	currency       TEXT NOT NULL,
	raw_price_text TEXT NOT NULL,
	source_url     TEXT NOT NULL,
	notes          TEXT NOT NULL,
	PRIMARY KEY (run_id, site_name, url_hash)
);`

const upsertProduct = `INSERT INTO product_records
	(run_id, site_name, url_hash, scraped_at, product_name, sku, product_url, status, price_value, currency, raw_price_text, source_url, notes)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT (run_id, site_name, url_hash) DO UPDATE SET
	  scraped_at = EXCLUDED.scraped_at, product_name = EXCLUDED.product_name, sku = EXCLUDED.sku,
	  status = EXCLUDED.status, price_value = EXCLUDED.price_value, currency = EXCLUDED.currency,
	  raw_price_text = EXCLUDED.raw_price_text, source_url = EXCLUDED.source_url, notes = EXCLUDED.notes`

// PostgresSink buffers records and upserts them in batches keyed by run,
// site and canonical product URL.
type PostgresSink struct {
	db        *pgxpool.Pool
	runID     string
	batchSize int

	mu      sync.Mutex
	pending []domain.ProductRecord
}

func NewPostgresSink(ctx context.Context, connStr, runID string, batchSize int) (*PostgresSink, error) {
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if batchSize <= 0 {
		batchSize = DefaultPostgresBatch
	}
	return &PostgresSink{db: db, runID: runID, batchSize: batchSize}, nil
}

func (s *PostgresSink) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// EnsureSchema creates the run and record tables when missing.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, productsSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *PostgresSink) Write(ctx context.Context, rec domain.ProductRecord) error {
	s.mu.Lock()
	s.pending = append(s.pending, rec)
	if len(s.pending) < s.batchSize {
		s.mu.Unlock()
		return nil
	}
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	return s.send(ctx, batch)
}

// Flush writes any buffered records.
func (s *PostgresSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()
	return s.send(ctx, batch)
}

// send upserts a batch. On failure the batch goes back to the front of the
// buffer for the next flush; the buffer holds at most maxPendingBatches
// batches and the oldest records beyond that are dropped.
func (s *PostgresSink) send(ctx context.Context, batch []domain.ProductRecord) error {
	err := s.flush(ctx, batch)
	if err == nil {
		return nil
	}
	if dropped := s.requeue(batch); dropped > 0 {
		return fmt.Errorf("%w (%d records dropped)", err, dropped)
	}
	return err
}

const maxPendingBatches = 20

func (s *PostgresSink) requeue(batch []domain.ProductRecord) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	merged := make([]domain.ProductRecord, 0, len(batch)+len(s.pending))
	merged = append(merged, batch...)
	s.pending = append(merged, s.pending...)

	limit := maxPendingBatches * s.batchSize
	if len(s.pending) <= limit {
		return 0
	}
	dropped := len(s.pending) - limit
	s.pending = s.pending[dropped:]
	return dropped
}

func (s *PostgresSink) flush(ctx context.Context, records []domain.ProductRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(upsertProduct,
			s.runID, r.SiteName, utils.HashURL(r.ProductURL), r.Timestamp, r.ProductName, r.SKU,
			r.ProductURL, string(r.Status), r.PriceValue, r.Currency, r.RawPriceText, r.SourceURL, r.Notes)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert %d records: %w", len(records), err)
	}
	return tx.Commit(ctx)
}

// SaveRun stores the run summary, replacing an earlier snapshot of the same run.
func (s *PostgresSink) SaveRun(ctx context.Context, sum domain.RunSummary) error {
	var finished any
	if !sum.Finished.IsZero() {
		finished = sum.Finished
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO crawl_runs (run_id, started_at, finished_at, sites) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (run_id) DO UPDATE SET finished_at = EXCLUDED.finished_at, sites = EXCLUDED.sites`,
		sum.RunID, sum.Started, finished, sum.Sites)
	return err
}

// Close flushes buffered records and releases the pool.
func (s *PostgresSink) Close() error {
	err := s.Flush(context.Background())
	s.db.Close()
	return err
}
