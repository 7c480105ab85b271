package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/vietddude/snapper/internal/metrics"
	"github.com/vietddude/snapper/snapshot"
)

// ErrWorkerClosed is returned by Enqueue once shutdown has begun. Work is
// rejected rather than silently dropped.
var ErrWorkerClosed = errors.New("durable-write worker is shut down")

// Unit is one batch handed to the worker for durable storage: parallel
// output/input slices plus the metrics collected while producing them.
type Unit[T, R any] struct {
	Outputs []R
	Inputs  []T
	Metrics []snapshot.Metric
}

// WorkerConfig controls the worker's retry behavior for failed writes.
type WorkerConfig struct {
	// MaxRetries is the number of additional attempts after the first failed
	// write of a unit.
	MaxRetries int
	// InitialDelay is the first retry delay; subsequent delays back off
	// exponentially up to MaxDelay.
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultWorkerConfig provides sensible defaults.
var DefaultWorkerConfig = WorkerConfig{
	MaxRetries:   5,
	InitialDelay: 1 * time.Second,
	MaxDelay:     60 * time.Second,
}

type workerState int

const (
	stateRunning workerState = iota
	stateDraining
	stateStopped
)

// Worker owns the single background goroutine that drains the write queue and
// performs durable appends, in strict enqueue order.
//
// A unit that still fails after exhausting its retries does not stop the
// consumer; the failure is remembered and surfaced from Shutdown, so Enqueue
// callers never deadlock behind a broken storage backend.
type Worker[T, R any] struct {
	storage snapshot.Storage[T, R]
	cfg     WorkerConfig
	log     *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []*Unit[T, R]
	state   workerState
	lastErr error

	done chan struct{}
}

// NewWorker creates a Worker and starts its consumer goroutine.
func NewWorker[T, R any](storage snapshot.Storage[T, R], cfg WorkerConfig, log *slog.Logger) *Worker[T, R] {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultWorkerConfig.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultWorkerConfig.MaxDelay
	}
	if log == nil {
		log = slog.Default()
	}

	w := &Worker[T, R]{
		storage: storage,
		cfg:     cfg,
		log:     log,
		done:    make(chan struct{}),
	}
	w.cond = sync.NewCond(&w.mu)

	go w.run()
	return w
}

// Enqueue pushes a unit onto the write queue. The push never blocks on
// storage I/O. Returns ErrWorkerClosed once shutdown has begun.
func (w *Worker[T, R]) Enqueue(u Unit[T, R]) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != stateRunning {
		return ErrWorkerClosed
	}

	w.queue = append(w.queue, &u)
	metrics.QueueDepth.Set(float64(len(w.queue)))
	w.cond.Signal()
	return nil
}

// Shutdown drains the queue, stops the consumer goroutine, and returns the
// last unrecoverable write failure, if any. This is the only point where a
// persistent storage failure becomes visible.
//
// Shutdown is idempotent and safe to call concurrently; every caller blocks
// until the drain completes.
func (w *Worker[T, R]) Shutdown() error {
	w.mu.Lock()
	if w.state == stateRunning {
		w.state = stateDraining
		// nil is the stop sentinel; queued units ahead of it still get written.
		w.queue = append(w.queue, nil)
		w.cond.Signal()
	}
	w.mu.Unlock()

	<-w.done

	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = stateStopped
	if w.lastErr != nil {
		return fmt.Errorf("durable write failed after %d retries: %w", w.cfg.MaxRetries, w.lastErr)
	}
	return nil
}

func (w *Worker[T, R]) run() {
	defer close(w.done)

	for {
		w.mu.Lock()
		for len(w.queue) == 0 {
			w.cond.Wait()
		}
		u := w.queue[0]
		w.queue = w.queue[1:]
		metrics.QueueDepth.Set(float64(len(w.queue)))
		w.mu.Unlock()

		if u == nil {
			return
		}
		w.store(u)
	}
}

// store attempts the durable append with bounded exponential backoff. On
// final failure it records the error for Shutdown and keeps consuming.
func (w *Worker[T, R]) store(u *Unit[T, R]) {
	backoff := retry.WithMaxRetries(
		uint64(w.cfg.MaxRetries),
		retry.WithCappedDuration(w.cfg.MaxDelay, retry.NewExponential(w.cfg.InitialDelay)),
	)

	attempt := 0
	snapshotStored := len(u.Outputs) == 0
	err := retry.Do(context.Background(), backoff, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			metrics.WriteRetries.Inc()
		}

		if !snapshotStored {
			if err := w.storage.StoreSnapshot(ctx, u.Outputs, u.Inputs); err != nil {
				w.log.Warn("snapshot write failed",
					"attempt", attempt,
					"batch_size", len(u.Outputs),
					"error", err)
				return retry.RetryableError(err)
			}
			// Do not re-append the snapshot if only the metric write fails.
			snapshotStored = true
		}

		if len(u.Metrics) > 0 {
			if err := w.storage.StoreMetrics(ctx, u.Metrics); err != nil {
				w.log.Warn("metrics write failed",
					"attempt", attempt,
					"count", len(u.Metrics),
					"error", err)
				return retry.RetryableError(err)
			}
		}
		return nil
	})
	if err != nil {
		metrics.WriteFailures.Inc()
		w.log.Error("dropping batch after exhausting retries",
			"batch_size", len(u.Outputs),
			"attempts", attempt,
			"error", err)
		w.mu.Lock()
		w.lastErr = err
		w.mu.Unlock()
	}
}
