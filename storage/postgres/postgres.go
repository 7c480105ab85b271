// Package postgres provides a PostgreSQL-backed snapshot storage backend.
// Payloads are stored as JSONB in append-only tables; schema management goes
// through embedded goose migrations.
package postgres

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/vietddude/snapper/snapshot"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Config holds PostgreSQL connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// Storage is a PostgreSQL-backed snapshot store. One database is one job's
// checkpoint; the connection URL doubles as the storage identifier.
type Storage[T, R any] struct {
	db *sqlx.DB
	id string
}

// New opens a connection pool, verifies connectivity, and applies pending
// migrations.
func New[T, R any](ctx context.Context, cfg Config) (*Storage[T, R], error) {
	db, err := sqlx.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	} else {
		db.SetMaxOpenConns(10)
	}
	if cfg.MinConns > 0 {
		db.SetMaxIdleConns(cfg.MinConns)
	} else {
		db.SetMaxIdleConns(2)
	}
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(db.DB, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Storage[T, R]{db: db, id: cfg.URL}, nil
}

// Close closes the connection pool.
func (s *Storage[T, R]) Close() error {
	return s.db.Close()
}

// StoreSnapshot appends outputs and inputs in one transaction, so either both
// lists become visible or neither does.
func (s *Storage[T, R]) StoreSnapshot(ctx context.Context, outputs []R, inputs []T) error {
	if len(outputs) != len(inputs) {
		return fmt.Errorf("outputs and inputs must be parallel: %d != %d", len(outputs), len(inputs))
	}
	if len(outputs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i := range inputs {
		inData, err := json.Marshal(inputs[i])
		if err != nil {
			return fmt.Errorf("failed to encode input: %w", err)
		}
		outData, err := json.Marshal(outputs[i])
		if err != nil {
			return fmt.Errorf("failed to encode output: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO snapper_inputs (payload) VALUES ($1)`, inData); err != nil {
			return fmt.Errorf("failed to insert input: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO snapper_outputs (payload) VALUES ($1)`, outData); err != nil {
			return fmt.Errorf("failed to insert output: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

func (s *Storage[T, R]) LoadSnapshot(ctx context.Context) ([]R, error) {
	rows, err := s.loadPayloads(ctx, "snapper_outputs")
	if err != nil {
		return nil, err
	}
	outputs := make([]R, 0, len(rows))
	for _, data := range rows {
		var v R
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("failed to decode output: %w", err)
		}
		outputs = append(outputs, v)
	}
	return outputs, nil
}

func (s *Storage[T, R]) LoadInputs(ctx context.Context) ([]T, error) {
	rows, err := s.loadPayloads(ctx, "snapper_inputs")
	if err != nil {
		return nil, err
	}
	inputs := make([]T, 0, len(rows))
	for _, data := range rows {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
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

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, m := range metrics {
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("failed to encode metric: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO snapper_metrics (payload) VALUES ($1)`, data); err != nil {
			return fmt.Errorf("failed to insert metric: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit metrics: %w", err)
	}
	return nil
}

func (s *Storage[T, R]) LoadMetrics(ctx context.Context) ([]snapshot.Metric, error) {
	rows, err := s.loadPayloads(ctx, "snapper_metrics")
	if err != nil {
		return nil, err
	}
	metrics := make([]snapshot.Metric, 0, len(rows))
	for _, data := range rows {
		var m snapshot.Metric
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to decode metric: %w", err)
		}
		metrics = append(metrics, m)
	}
	return metrics, nil
}

func (s *Storage[T, R]) Identifier() string {
	return s.id
}

func (s *Storage[T, R]) loadPayloads(ctx context.Context, table string) ([][]byte, error) {
	var rows [][]byte
	query := fmt.Sprintf(`SELECT payload FROM %s ORDER BY id`, table)
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to load from %s: %w", table, err)
	}
	return rows, nil
}
