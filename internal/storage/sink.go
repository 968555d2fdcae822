// Package storage persists admitted product records.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/user/catalog-crawler/internal/domain"
	"go.uber.org/zap"
)

// Sink receives records in admission order.
type Sink interface {
	Write(ctx context.Context, rec domain.ProductRecord) error
	Close() error
}

type namedSink struct {
	name string
	sink Sink
}

// MultiSink fans records out to every sink. A failing sink is logged and
// never stops the others.
type MultiSink struct {
	sinks  []namedSink
	logger *zap.Logger
}

func NewMultiSink(logger *zap.Logger) *MultiSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MultiSink{logger: logger}
}

// Add registers a sink under a name used in logs.
func (m *MultiSink) Add(name string, s Sink) {
	m.sinks = append(m.sinks, namedSink{name: name, sink: s})
}

// Len returns the number of registered sinks.
func (m *MultiSink) Len() int {
	return len(m.sinks)
}

func (m *MultiSink) Write(ctx context.Context, rec domain.ProductRecord) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.sink.Write(ctx, rec); err != nil {
			m.logger.Warn("sink write failed", zap.String("sink", s.name), zap.String("url", rec.ProductURL), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink in registration order.
func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}
