package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/user/catalog-crawler/internal/domain"
)

const DefaultStream = "catalog:products"

// RedisSink publishes each record to a capped stream so downstream consumers
// can follow a run live.
type RedisSink struct {
	client *redis.Client
	stream string
	maxLen int64
	runID  string
}

func NewRedisSink(addr, stream, runID string, maxLen int64) *RedisSink {
	if stream == "" {
		stream = DefaultStream
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	return &RedisSink{client: rdb, stream: stream, maxLen: maxLen, runID: runID}
}

func (s *RedisSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisSink) Write(ctx context.Context, rec domain.ProductRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"run_id": s.runID,
			"site":   rec.SiteName,
			"record": string(payload),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	return s.client.XAdd(ctx, args).Err()
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}
