// Package file provides a snapshot storage backend over a single append-only
// JSON-lines file. Each line is one record: an input, an output, or a metric.
package file

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/vietddude/snapper/snapshot"
)

const (
	kindInput  = "input"
	kindOutput = "output"
	kindMetric = "metric"
)

type record struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// Storage appends JSON-lines records to a single file. A batch is encoded in
// full before anything is written, and written with one O_APPEND write, so a
// failed encode leaves the file untouched.
type Storage[T, R any] struct {
	mu   sync.Mutex
	path string
	log  *slog.Logger
}

// New creates a file storage at path. The file is created lazily on first
// write; a missing file reads back as empty history.
func New[T, R any](path string) (*Storage[T, R], error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	return &Storage[T, R]{path: abs, log: slog.Default()}, nil
}

func (s *Storage[T, R]) StoreSnapshot(ctx context.Context, outputs []R, inputs []T) error {
	if len(outputs) != len(inputs) {
		return fmt.Errorf("outputs and inputs must be parallel: %d != %d", len(outputs), len(inputs))
	}

	var buf bytes.Buffer
	for i := range inputs {
		if err := writeRecord(&buf, kindInput, inputs[i]); err != nil {
			return err
		}
		if err := writeRecord(&buf, kindOutput, outputs[i]); err != nil {
			return err
		}
	}
	return s.append(buf.Bytes())
}

func (s *Storage[T, R]) StoreMetrics(ctx context.Context, metrics []snapshot.Metric) error {
	var buf bytes.Buffer
	for _, m := range metrics {
		if err := writeRecord(&buf, kindMetric, m); err != nil {
			return err
		}
	}
	return s.append(buf.Bytes())
}

func (s *Storage[T, R]) LoadSnapshot(ctx context.Context) ([]R, error) {
	var outputs []R
	err := s.scan(kindOutput, func(data json.RawMessage) error {
		var v R
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		outputs = append(outputs, v)
		return nil
	})
	return outputs, err
}

func (s *Storage[T, R]) LoadInputs(ctx context.Context) ([]T, error) {
	var inputs []T
	err := s.scan(kindInput, func(data json.RawMessage) error {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		inputs = append(inputs, v)
		return nil
	})
	return inputs, err
}

func (s *Storage[T, R]) LoadAllOutputs(ctx context.Context) ([]R, error) {
	return s.LoadSnapshot(ctx)
}

func (s *Storage[T, R]) LoadMetrics(ctx context.Context) ([]snapshot.Metric, error) {
	var metrics []snapshot.Metric
	err := s.scan(kindMetric, func(data json.RawMessage) error {
		var m snapshot.Metric
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		metrics = append(metrics, m)
		return nil
	})
	return metrics, err
}

func (s *Storage[T, R]) Identifier() string {
	return s.path
}

func (s *Storage[T, R]) append(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open storage file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to append to storage file: %w", err)
	}
	return f.Sync()
}

// scan replays the file, invoking fn for each record of the wanted kind.
// Corrupted lines are logged and skipped rather than failing the replay, so a
// torn trailing write does not make the history unreadable.
func (s *Storage[T, R]) scan(kind string, fn func(json.RawMessage) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open storage file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			s.log.Warn("skipping corrupted record", "path", s.path, "error", err)
			continue
		}
		if rec.Kind != kind {
			continue
		}
		if err := fn(rec.Data); err != nil {
			s.log.Warn("skipping undecodable record", "path", s.path, "kind", kind, "error", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read storage file: %w", err)
	}
	return nil
}

func writeRecord(buf *bytes.Buffer, kind string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s record: %w", kind, err)
	}
	line, err := json.Marshal(record{Kind: kind, Data: data})
	if err != nil {
		return fmt.Errorf("failed to encode record envelope: %w", err)
	}
	buf.Write(line)
	buf.WriteByte('\n')
	return nil
}
