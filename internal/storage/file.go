package storage

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/user/catalog-crawler/internal/domain"
)

// FileSink writes JSON Lines and a CSV mirror with a fixed column order.
// Both files are truncated when the sink is opened.
type FileSink struct {
	mu        sync.Mutex
	jsonlFile *os.File
	csvFile   *os.File
	csv       *csv.Writer
}

// NewFileSink creates <dir>/<base>.jsonl and <dir>/<base>.csv.
func NewFileSink(dir, base string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	jf, err := os.Create(filepath.Join(dir, base+".jsonl"))
	if err != nil {
		return nil, fmt.Errorf("create jsonl: %w", err)
	}
	cf, err := os.Create(filepath.Join(dir, base+".csv"))
	if err != nil {
		jf.Close()
		return nil, fmt.Errorf("create csv: %w", err)
	}

	s := &FileSink{jsonlFile: jf, csvFile: cf, csv: csv.NewWriter(cf)}
	if err := s.csv.Write(domain.RecordFields); err != nil {
		s.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	s.csv.Flush()
	return s, s.csv.Error()
}

func (s *FileSink) Write(_ context.Context, rec domain.ProductRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.jsonlFile.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write jsonl: %w", err)
	}
	if err := s.csv.Write(rec.Row()); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	s.csv.Flush()
	return s.csv.Error()
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.csv.Flush()
	return errors.Join(s.csv.Error(), s.jsonlFile.Close(), s.csvFile.Close())
}
