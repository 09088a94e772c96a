package database

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const RESULT_KEY_PREFIX = "bagel:result:"

// HashWriter writes the fields of one hash.
type HashWriter interface {
	HSet(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error
}

type GoRedisWriter struct {
	client *redis.Client
}

func NewGoRedisWriter(addr string) *GoRedisWriter {
	return &GoRedisWriter{client: redis.NewClient(&redis.Options{Addr: addr})}
}

func (w *GoRedisWriter) HSet(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	values := make([]interface{}, 0, 2*len(fields))
	for f, v := range fields {
		values = append(values, f, v)
	}
	pipe := w.client.TxPipeline()
	pipe.HSet(ctx, key, values...)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (w *GoRedisWriter) Close() error {
	return w.client.Close()
}

// LoggingHashWriter only logs, for runs without a redis server.
type LoggingHashWriter struct{}

func (LoggingHashWriter) HSet(_ context.Context, key string, fields map[string]string, _ time.Duration) error {
	names := make([]string, 0, len(fields))
	for f := range fields {
		names = append(names, f)
	}
	sort.Strings(names)
	log.Info().Str("key", key).Strs("fields", names).Msg("result")
	return nil
}

// ResultSink publishes the reported values of a finished query as the
// hash bagel:result:<query>, one JSON encoded field per vertex.
type ResultSink struct {
	w   HashWriter
	ttl time.Duration
}

func NewResultSink(w HashWriter, ttl time.Duration) *ResultSink {
	return &ResultSink{w: w, ttl: ttl}
}

func (s *ResultSink) Publish(ctx context.Context, queryID string, values map[uint64]interface{}) error {
	if len(values) == 0 {
		return nil
	}
	fields := make(map[string]string, len(values))
	for id, v := range values {
		enc, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("result %d: %w", id, err)
		}
		fields[fmt.Sprint(id)] = string(enc)
	}
	return s.w.HSet(ctx, ResultKey(queryID), fields, s.ttl)
}

func ResultKey(queryID string) string {
	return RESULT_KEY_PREFIX + queryID
}
