// Package snapshot defines the durable storage contract consumed by the
// processing engine, along with the per-item metric record and summary
// reporting over those metrics.
package snapshot

import (
	"context"
)

// Storage is an append-only record of (input, output) pairs plus per-item
// metrics for one batch job. Implementations must make StoreSnapshot atomic:
// either both lists become visible or neither does.
//
// A Storage instance must only ever be bound to one live processor at a time;
// the engine enforces this through the storage Identifier.
type Storage[T, R any] interface {
	// StoreSnapshot appends outputs and their corresponding inputs atomically.
	// The two slices are parallel and must have equal length.
	StoreSnapshot(ctx context.Context, outputs []R, inputs []T) error

	// LoadSnapshot returns every stored output in append order.
	LoadSnapshot(ctx context.Context) ([]R, error)

	// LoadInputs returns every stored input in the same relative order as
	// their corresponding outputs.
	LoadInputs(ctx context.Context) ([]T, error)

	// LoadAllOutputs returns every stored output in append order, irrespective
	// of any input matching. Kept distinct from LoadSnapshot for symmetry with
	// input-matching callers.
	LoadAllOutputs(ctx context.Context) ([]R, error)

	// StoreMetrics appends per-item processing metrics.
	StoreMetrics(ctx context.Context, metrics []Metric) error

	// LoadMetrics returns every stored metric in append order.
	LoadMetrics(ctx context.Context) ([]Metric, error)

	// Identifier uniquely identifies the underlying durable resource, e.g. a
	// canonicalized file path or connection URL. Two Storage values backed by
	// the same resource must return the same identifier.
	Identifier() string
}
