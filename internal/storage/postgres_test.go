package storage

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/user/catalog-crawler/internal/domain"
)

func names(recs []domain.ProductRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ProductName
	}
	return out
}

func TestPostgresSink_RequeueKeepsFailedBatchFirst(t *testing.T) {
	s := &PostgresSink{batchSize: 2, pending: []domain.ProductRecord{sampleRecord("C", nil)}}

	dropped := s.requeue([]domain.ProductRecord{sampleRecord("A", nil), sampleRecord("B", nil)})

	assert.Equal(t, 0, dropped)
	assert.Equal(t, []string{"A", "B", "C"}, names(s.pending))
}

func TestPostgresSink_RequeueDropsOldestPastBound(t *testing.T) {
	s := &PostgresSink{batchSize: 1}
	for i := 0; i < maxPendingBatches; i++ {
		s.pending = append(s.pending, sampleRecord(fmt.Sprintf("old-%d", i), nil))
	}

	dropped := s.requeue([]domain.ProductRecord{sampleRecord("retry", nil)})

	assert.Equal(t, 1, dropped)
	assert.Len(t, s.pending, maxPendingBatches)
	assert.Equal(t, "old-0", s.pending[0].ProductName)
	assert.Equal(t, fmt.Sprintf("old-%d", maxPendingBatches-1), s.pending[len(s.pending)-1].ProductName)
}
