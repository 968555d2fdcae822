package storage

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/catalog-crawler/internal/domain"
)

func sampleRecord(name string, price *float64) domain.ProductRecord {
	return domain.ProductRecord{
		Timestamp:    time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
		SiteName:     "Shop",
		ProductName:  name,
		ProductURL:   "https://shop.example/p/" + strings.ToLower(name),
		Status:       domain.StatusAvailable,
		PriceValue:   price,
		Currency:     "EGP",
		RawPriceText: "EGP 1,250.50",
		SourceURL:    "https://shop.example/c/all",
		Notes:        "heuristic; via static",
	}
}

func TestFileSink_WritesJSONLAndCSV(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileSink(dir, "products")
	require.NoError(t, err)

	v := 1250.5
	require.NoError(t, s.Write(context.Background(), sampleRecord("Kettle", &v)))
	require.NoError(t, s.Write(context.Background(), sampleRecord("Toaster, \"XL\"", nil)))
	require.NoError(t, s.Close())

	jsonl, err := os.ReadFile(filepath.Join(dir, "products.jsonl"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(jsonl)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], `{"timestamp_iso":"2026-03-01T08:00:00Z","site_name":"Shop","product_name":"Kettle"`))
	assert.Contains(t, lines[0], `"price_value":1250.5,`)
	assert.Contains(t, lines[1], `"price_value":"",`)

	f, err := os.Open(filepath.Join(dir, "products.csv"))
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, domain.RecordFields, rows[0])
	assert.Equal(t, `Toaster, "XL"`, rows[2][2])
	assert.Equal(t, "", rows[2][6])
}

func TestFileSink_TruncatesPreviousRun(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "out.jsonl"), []byte("stale\n"), 0o644))

	s, err := NewFileSink(dir, "out")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	jsonl, err := os.ReadFile(filepath.Join(dir, "out.jsonl"))
	require.NoError(t, err)
	assert.Empty(t, jsonl)

	csvBody, err := os.ReadFile(filepath.Join(dir, "out.csv"))
	require.NoError(t, err)
	assert.Equal(t, strings.Join(domain.RecordFields, ",")+"\n", string(csvBody))
}
