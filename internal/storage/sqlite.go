package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/user/catalog-crawler/internal/domain"
	"github.com/user/catalog-crawler/pkg/utils"
	_ "modernc.org/sqlite"
)

// SQLiteSink keeps the latest snapshot of every product seen across runs.
type SQLiteSink struct {
	db *sql.DB
}

func NewSQLiteSink(dbPath string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer keeps sqlite from returning SQLITE_BUSY under concurrent sites
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS products (
		url_hash       TEXT PRIMARY KEY,
		site_name      TEXT NOT NULL,
		product_name   TEXT NOT NULL,
		sku            TEXT NOT NULL,
		product_url    TEXT NOT NULL,
		status         TEXT NOT NULL,
		price_value    REAL,
		currency       TEXT NOT NULL,
		raw_price_text TEXT NOT NULL,
		source_url     TEXT NOT NULL,
		notes          TEXT NOT NULL,
		updated_at     TEXT NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create products table: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

func (s *SQLiteSink) Write(ctx context.Context, rec domain.ProductRecord) error {
	row := rec.Row()
	_, err := s.db.ExecContext(ctx, `INSERT INTO products
		(url_hash, site_name, product_name, sku, product_url, status, price_value, currency, raw_price_text, source_url, notes, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url_hash) DO UPDATE SET
			site_name = excluded.site_name,
			product_name = excluded.product_name,
			sku = excluded.sku,
			status = excluded.status,
			price_value = excluded.price_value,
			currency = excluded.currency,
			raw_price_text = excluded.raw_price_text,
			source_url = excluded.source_url,
			notes = excluded.notes,
			updated_at = excluded.updated_at`,
		utils.HashURL(rec.ProductURL), rec.SiteName, rec.ProductName, rec.SKU, rec.ProductURL,
		string(rec.Status), rec.PriceValue, rec.Currency, rec.RawPriceText, rec.SourceURL, rec.Notes, row[0])
	return err
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
