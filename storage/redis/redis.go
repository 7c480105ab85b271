// Package redis provides a Redis-backed snapshot storage backend. Inputs,
// outputs and metrics live in three parallel lists under a shared key prefix;
// appends go through a transactional pipeline so both lists grow together.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/snapper/snapshot"
)

// Config holds Redis connection configuration.
type Config struct {
	URL       string `yaml:"url"`
	Password  string `yaml:"password"`
	KeyPrefix string `yaml:"key_prefix"`
}

// Storage is a Redis-backed snapshot store. The identifier combines the
// server address, database number and key prefix, so two jobs sharing one
// server but different prefixes do not collide in the registry.
type Storage[T, R any] struct {
	rdb    *redis.Client
	prefix string
	id     string
}

// New creates a Storage and verifies connectivity.
func New[T, R any](cfg Config) (*Storage[T, R], error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "snapper"
	}

	return &Storage[T, R]{
		rdb:    rdb,
		prefix: prefix,
		id:     fmt.Sprintf("redis://%s/%d/%s", opts.Addr, opts.DB, prefix),
	}, nil
}

// Close closes the Redis connection.
func (s *Storage[T, R]) Close() error {
	return s.rdb.Close()
}

func (s *Storage[T, R]) StoreSnapshot(ctx context.Context, outputs []R, inputs []T) error {
	if len(outputs) != len(inputs) {
		return fmt.Errorf("outputs and inputs must be parallel: %d != %d", len(outputs), len(inputs))
	}
	if len(outputs) == 0 {
		return nil
	}

	inVals, err := encodeAll(inputs)
	if err != nil {
		return fmt.Errorf("failed to encode inputs: %w", err)
	}
	outVals, err := encodeAll(outputs)
	if err != nil {
		return fmt.Errorf("failed to encode outputs: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.RPush(ctx, s.key("inputs"), inVals...)
	pipe.RPush(ctx, s.key("outputs"), outVals...)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append snapshot: %w", err)
	}
	return nil
}

func (s *Storage[T, R]) LoadSnapshot(ctx context.Context) ([]R, error) {
	raw, err := s.rdb.LRange(ctx, s.key("outputs"), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load outputs: %w", err)
	}
	outputs := make([]R, 0, len(raw))
	for _, data := range raw {
		var v R
		if err := json.Unmarshal([]byte(data), &v); err != nil {
			return nil, fmt.Errorf("failed to decode output: %w", err)
		}
		outputs = append(outputs, v)
	}
	return outputs, nil
}

func (s *Storage[T, R]) LoadInputs(ctx context.Context) ([]T, error) {
	raw, err := s.rdb.LRange(ctx, s.key("inputs"), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load inputs: %w", err)
	}
	inputs := make([]T, 0, len(raw))
	for _, data := range raw {
		var v T
		if err := json.Unmarshal([]byte(data), &v); err != nil {
			return nil, fmt.Errorf("failed to decode input: %w", err)
		}
		inputs = append(inputs, v)
	}
	return inputs, nil
}

func (s *Storage[T, R]) LoadAllOutputs(ctx context.Context) ([]R, error) {
	return s.LoadSnapshot(ctx)
}

func (s *Storage[T, R]) StoreMetrics(ctx context.Context, metrics []snapshot.Metric) error {
	if len(metrics) == 0 {
		return nil
	}
	vals, err := encodeAll(metrics)
	if err != nil {
		return fmt.Errorf("failed to encode metrics: %w", err)
	}
	if err := s.rdb.RPush(ctx, s.key("metrics"), vals...).Err(); err != nil {
		return fmt.Errorf("failed to append metrics: %w", err)
	}
	return nil
}

func (s *Storage[T, R]) LoadMetrics(ctx context.Context) ([]snapshot.Metric, error) {
	raw, err := s.rdb.LRange(ctx, s.key("metrics"), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load metrics: %w", err)
	}
	metrics := make([]snapshot.Metric, 0, len(raw))
	for _, data := range raw {
		var m snapshot.Metric
		if err := json.Unmarshal([]byte(data), &m); err != nil {
			return nil, fmt.Errorf("failed to decode metric: %w", err)
		}
		metrics = append(metrics, m)
	}
	return metrics, nil
}

func (s *Storage[T, R]) Identifier() string {
	return s.id
}

func (s *Storage[T, R]) key(suffix string) string {
	return fmt.Sprintf("%s:%s", s.prefix, suffix)
}

func encodeAll[V any](values []V) ([]any, error) {
	out := make([]any, 0, len(values))
	for _, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		out = append(out, string(data))
	}
	return out, nil
}
