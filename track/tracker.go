// Package track decides which elements of an input sequence still need
// processing, by comparing canonical keys of the current sequence against the
// inputs already recorded in durable storage.
package track

import (
	"context"
	"fmt"
	"iter"
)

// InputLoader is the slice of storage the tracker depends on: a full ordered
// replay of previously recorded inputs.
type InputLoader[T any] interface {
	LoadInputs(ctx context.Context) ([]T, error)
}

// Tracker yields the elements of an input sequence that have not been
// recorded yet. Matching is by canonical key, so reordering the sequence is a
// no-op and duplicate occurrences of a recorded value collapse to a single
// processing event. A Tracker is single-use: build a fresh one per run.
//
// Tracker is not safe for concurrent use; the engine only ever touches it
// from the processing goroutine.
type Tracker[T any] struct {
	loader InputLoader[T]
	seen   map[string]struct{}
	loaded bool
}

// New creates a Tracker over the given storage loader.
func New[T any](loader InputLoader[T]) *Tracker[T] {
	return &Tracker[T]{
		loader: loader,
		seen:   make(map[string]struct{}),
	}
}

// Remaining returns a lazy sequence of the elements in seq whose canonical
// keys are not yet recorded. Stored inputs are loaded once, on the first call.
//
// Elements without a canonical key bypass the membership set and are always
// yielded, so they are reprocessed on every run. That is a deliberate
// fallback for values the key derivation cannot handle, not an error.
func (t *Tracker[T]) Remaining(ctx context.Context, seq iter.Seq[T]) (iter.Seq[T], error) {
	if err := t.load(ctx); err != nil {
		return nil, err
	}

	return func(yield func(T) bool) {
		for item := range seq {
			key, ok := Key(item)
			if ok {
				if _, done := t.seen[key]; done {
					continue
				}
			}
			if !yield(item) {
				return
			}
		}
	}, nil
}

// MarkProcessed records an element as done, so a later occurrence of the same
// value within the current pass is not yielded again.
func (t *Tracker[T]) MarkProcessed(item T) {
	if key, ok := Key(item); ok {
		t.seen[key] = struct{}{}
	}
}

func (t *Tracker[T]) load(ctx context.Context) error {
	if t.loaded {
		return nil
	}

	inputs, err := t.loader.LoadInputs(ctx)
	if err != nil {
		return fmt.Errorf("failed to load stored inputs: %w", err)
	}
	for _, in := range inputs {
		// Stored inputs without a canonical key cannot be matched and are
		// simply not tracked.
		if key, ok := Key(in); ok {
			t.seen[key] = struct{}{}
		}
	}

	t.loaded = true
	return nil
}
