// Package batch buffers processed (input, output) pairs in memory and hands
// completed batches to a single background worker for durable storage.
package batch

import (
	"sync"
	"time"

	"github.com/vietddude/snapper/internal/metrics"
	"github.com/vietddude/snapper/snapshot"
)

// Accumulator buffers entries until either the size threshold is reached or
// the optional max-wait window since the last flush has elapsed. The time
// check runs opportunistically on each Add; there is no timer goroutine.
//
// Per-item metrics are buffered alongside entries and ride in the same write
// unit, so a metric is never more durable than the output it describes.
type Accumulator[T, R any] struct {
	worker  *Worker[T, R]
	size    int
	maxWait time.Duration
	now     func() time.Time

	mu       sync.Mutex
	inputs   []T
	outputs  []R
	metrics  []snapshot.Metric
	firstAdd time.Time
}

// NewAccumulator creates an Accumulator flushing to the given worker. A size
// below 1 is treated as 1. A zero maxWait disables the time threshold.
func NewAccumulator[T, R any](worker *Worker[T, R], size int, maxWait time.Duration) *Accumulator[T, R] {
	if size < 1 {
		size = 1
	}
	return &Accumulator[T, R]{
		worker:  worker,
		size:    size,
		maxWait: maxWait,
		now:     time.Now,
	}
}

// Add buffers one processed entry and flushes when a threshold is met.
func (a *Accumulator[T, R]) Add(input T, output R) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.inputs) == 0 {
		a.firstAdd = a.now()
	}
	a.inputs = append(a.inputs, input)
	a.outputs = append(a.outputs, output)

	full := len(a.inputs) >= a.size
	waited := a.maxWait > 0 && a.now().Sub(a.firstAdd) >= a.maxWait
	if full || waited {
		return a.flushLocked()
	}
	return nil
}

// RecordMetric buffers a per-item metric without contributing to the batch
// size. Metrics for failed items arrive here with no matching entry.
func (a *Accumulator[T, R]) RecordMetric(m snapshot.Metric) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.metrics = append(a.metrics, m)
}

// Flush atomically swaps out the current buffer and enqueues it as one unit.
// A no-op when nothing is buffered.
func (a *Accumulator[T, R]) Flush() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.flushLocked()
}

// Shutdown delegates to the worker. It does not flush: callers wanting
// trailing partial batches persisted must call Flush first.
func (a *Accumulator[T, R]) Shutdown() error {
	return a.worker.Shutdown()
}

func (a *Accumulator[T, R]) flushLocked() error {
	if len(a.inputs) == 0 && len(a.metrics) == 0 {
		return nil
	}

	u := Unit[T, R]{
		Outputs: a.outputs,
		Inputs:  a.inputs,
		Metrics: a.metrics,
	}
	a.inputs = nil
	a.outputs = nil
	a.metrics = nil
	a.firstAdd = time.Time{}

	metrics.BatchesFlushed.Inc()
	return a.worker.Enqueue(u)
}
