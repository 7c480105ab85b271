// Package snapper applies a function to every element of a sequence while
// durably recording each output as it is produced, so an interrupted run can
// resume without reprocessing already-completed elements.
//
// Outputs are matched to inputs by value, not position: reordering the input
// sequence between runs is a no-op, growing it processes only the new
// elements, and duplicate values collapse to a single processing event.
package snapper

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/snapper/batch"
	"github.com/vietddude/snapper/internal/metrics"
	"github.com/vietddude/snapper/policy"
	"github.com/vietddude/snapper/snapshot"
	"github.com/vietddude/snapper/track"
)

// Func is the user function applied to each input element. It runs
// synchronously on the caller's goroutine; the background worker never runs
// user code.
type Func[T, R any] func(ctx context.Context, item T) (R, error)

// Config holds the processing configuration.
type Config struct {
	// BatchSize is the number of entries buffered before a durable write is
	// queued. Values below 1 are treated as 1.
	BatchSize int

	// MaxWait bounds how long a non-empty partial batch may sit unflushed.
	// Zero disables the time threshold.
	MaxWait time.Duration

	// SkipErrors, FatalErrors and MaxConsecutiveFailures configure the
	// per-item failure policy; see the policy package.
	SkipErrors             bool
	FatalErrors            []error
	MaxConsecutiveFailures int

	// Worker configures durable-write retries. Zero values take defaults.
	Worker batch.WorkerConfig

	// Registry guards against two live Snappers sharing one storage
	// resource. Defaults to DefaultRegistry.
	Registry *Registry

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Snapper orchestrates resumable processing of an input sequence against one
// durable storage backend.
//
// The zero value is not usable; construct with New and release with Close.
type Snapper[T, R any] struct {
	storage  snapshot.Storage[T, R]
	fn       Func[T, R]
	cfg      Config
	log      *slog.Logger
	registry *Registry
	id       string
	handler  *policy.Handler[T]

	mu       sync.Mutex
	released bool
}

// New creates a Snapper bound to the given storage. The storage identifier is
// registered for exclusive use; construction fails with ErrStorageInUse if
// another live Snapper is already bound to the same resource. Close releases
// the binding.
func New[T, R any](storage snapshot.Storage[T, R], fn Func[T, R], cfg Config) (*Snapper[T, R], error) {
	if storage == nil {
		return nil, errors.New("snapper: storage must not be nil")
	}
	if fn == nil {
		return nil, errors.New("snapper: fn must not be nil")
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.Registry == nil {
		cfg.Registry = DefaultRegistry
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	id := storage.Identifier()
	if err := cfg.Registry.Acquire(id); err != nil {
		return nil, err
	}

	return &Snapper[T, R]{
		storage:  storage,
		fn:       fn,
		cfg:      cfg,
		log:      cfg.Logger,
		registry: cfg.Registry,
		id:       id,
		handler: policy.NewHandler[T](policy.Config{
			SkipErrors:             cfg.SkipErrors,
			FatalErrors:            cfg.FatalErrors,
			MaxConsecutiveFailures: cfg.MaxConsecutiveFailures,
		}),
	}, nil
}

// Start processes every element of seq that is not yet recorded in storage.
//
// Each run drives a fresh progress tracker and durable-write pipeline. On a
// halting failure the already-buffered-but-unflushed batch is dropped: the
// checkpoint stays exactly as durable as the last completed flush. Callers
// needing no-loss-on-halt semantics should use BatchSize 1.
//
// The durable-write worker is shut down on every exit path; a persistent
// storage failure deferred by the worker surfaces here.
func (s *Snapper[T, R]) Start(ctx context.Context, seq iter.Seq[T]) error {
	s.handler.Reset()

	tracker := track.New[T](s.storage)
	remaining, err := tracker.Remaining(ctx, seq)
	if err != nil {
		return err
	}

	worker := batch.NewWorker(s.storage, s.cfg.Worker, s.log)
	acc := batch.NewAccumulator(worker, s.cfg.BatchSize, s.cfg.MaxWait)

	// A panicking user function must not leave the worker goroutine behind.
	shutdownDone := false
	defer func() {
		if !shutdownDone {
			_ = worker.Shutdown()
		}
	}()

	var haltErr error
loop:
	for item := range remaining {
		if err := ctx.Err(); err != nil {
			haltErr = err
			break
		}

		start := time.Now()
		out, fnErr := s.fn(ctx, item)
		end := time.Now()
		metrics.ItemDuration.Observe(end.Sub(start).Seconds())

		if fnErr != nil {
			metrics.ItemsFailed.Inc()
			acc.RecordMetric(snapshot.Metric{
				Input:        item,
				StartTime:    start,
				EndTime:      end,
				Success:      false,
				ErrorMessage: fnErr.Error(),
			})

			outcome := s.handler.OnError(item, fnErr)
			if outcome.Action == policy.Halt {
				haltErr = outcome.Cause
				break loop
			}
			// Skipped items stay unmarked in the tracker: they will be
			// retried on the next run over the same input value.
			s.log.Warn("item failed, skipping", "error", fnErr)
			continue
		}

		// The metric is recorded before the output is handed to the batch.
		acc.RecordMetric(snapshot.Metric{
			Input:     item,
			StartTime: start,
			EndTime:   end,
			Success:   true,
		})
		s.handler.OnSuccess()

		if err := acc.Add(item, out); err != nil {
			haltErr = fmt.Errorf("failed to queue batch: %w", err)
			break loop
		}
		tracker.MarkProcessed(item)
		metrics.ItemsProcessed.Inc()
	}

	if haltErr != nil {
		// No flush here: the unflushed partial batch is intentionally lost.
		// Already-queued units still drain.
		shutdownDone = true
		if err := worker.Shutdown(); err != nil {
			return errors.Join(haltErr, err)
		}
		return haltErr
	}

	flushErr := acc.Flush()
	shutdownDone = true
	if err := worker.Shutdown(); err != nil {
		return errors.Join(flushErr, err)
	}
	return flushErr
}

// Load returns the stored outputs whose recorded inputs match the current
// sequence by value, in current-sequence order. Elements absent from storage
// are omitted; repeated values map to the single stored output for that
// canonical key.
func (s *Snapper[T, R]) Load(ctx context.Context, seq iter.Seq[T]) ([]R, error) {
	inputs, err := s.storage.LoadInputs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load stored inputs: %w", err)
	}
	outputs, err := s.storage.LoadSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load stored outputs: %w", err)
	}
	if len(inputs) != len(outputs) {
		s.log.Warn("stored inputs and outputs differ in length",
			"inputs", len(inputs), "outputs", len(outputs))
	}

	byKey := make(map[string]R, len(inputs))
	for i, in := range inputs {
		if i >= len(outputs) {
			break
		}
		key, ok := track.Key(in)
		if !ok {
			continue
		}
		if _, dup := byKey[key]; dup {
			// Pathological storage state; keep the most recent write.
			s.log.Warn("storage contains duplicate inputs, keeping last write", "key", key)
		}
		byKey[key] = outputs[i]
	}

	var results []R
	for item := range seq {
		key, ok := track.Key(item)
		if !ok {
			continue
		}
		if out, ok := byKey[key]; ok {
			results = append(results, out)
		}
	}
	return results, nil
}

// LoadAll returns every stored output in storage order, irrespective of the
// current input sequence.
func (s *Snapper[T, R]) LoadAll(ctx context.Context) ([]R, error) {
	return s.storage.LoadAllOutputs(ctx)
}

// LoadMetrics returns every stored per-item metric in storage order.
func (s *Snapper[T, R]) LoadMetrics(ctx context.Context) ([]snapshot.Metric, error) {
	return s.storage.LoadMetrics(ctx)
}

// FailedItems returns the items skipped during the most recent run.
func (s *Snapper[T, R]) FailedItems() []policy.FailedItem[T] {
	return s.handler.FailedItems()
}

// Close releases the storage binding so another Snapper may bind the same
// resource. Idempotent.
func (s *Snapper[T, R]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.released {
		s.registry.Release(s.id)
		s.released = true
	}
	return nil
}
