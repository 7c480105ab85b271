// Package memory provides an in-memory snapshot storage backend, mainly for
// tests and short-lived jobs where durability across processes is not needed.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/vietddude/snapper/snapshot"
)

// Storage is a mutex-guarded, append-only in-memory backend. Each instance
// gets a unique identifier, so two Storage values never collide in the
// registry even within one process.
type Storage[T, R any] struct {
	mu      sync.RWMutex
	inputs  []T
	outputs []R
	metrics []snapshot.Metric
	id      string
}

// New creates an empty in-memory storage.
func New[T, R any]() *Storage[T, R] {
	return &Storage[T, R]{
		id: "memory://" + uuid.New().String(),
	}
}

func (s *Storage[T, R]) StoreSnapshot(ctx context.Context, outputs []R, inputs []T) error {
	if len(outputs) != len(inputs) {
		return fmt.Errorf("outputs and inputs must be parallel: %d != %d", len(outputs), len(inputs))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs = append(s.outputs, outputs...)
	s.inputs = append(s.inputs, inputs...)
	return nil
}

func (s *Storage[T, R]) LoadSnapshot(ctx context.Context) ([]R, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]R, len(s.outputs))
	copy(out, s.outputs)
	return out, nil
}

func (s *Storage[T, R]) LoadInputs(ctx context.Context) ([]T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	in := make([]T, len(s.inputs))
	copy(in, s.inputs)
	return in, nil
}

func (s *Storage[T, R]) LoadAllOutputs(ctx context.Context) ([]R, error) {
	return s.LoadSnapshot(ctx)
}

func (s *Storage[T, R]) StoreMetrics(ctx context.Context, metrics []snapshot.Metric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = append(s.metrics, metrics...)
	return nil
}

func (s *Storage[T, R]) LoadMetrics(ctx context.Context) ([]snapshot.Metric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := make([]snapshot.Metric, len(s.metrics))
	copy(m, s.metrics)
	return m, nil
}

func (s *Storage[T, R]) Identifier() string {
	return s.id
}
