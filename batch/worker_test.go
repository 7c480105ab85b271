package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/snapper/snapshot"
)

// =============================================================================
// Fake storage
// =============================================================================

type fakeStorage struct {
	mu             sync.Mutex
	batches        [][]string // outputs per StoreSnapshot call
	inputs         []int
	outputs        []string
	metrics        []snapshot.Metric
	snapshotCalls  int
	storeDelay     time.Duration
	failSnapshots  int // fail this many StoreSnapshot calls before succeeding
	failMetrics    int // fail this many StoreMetrics calls before succeeding
	alwaysFail     bool
	metricCalls    int
	snapshotFailed int
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{}
}

func (s *fakeStorage) StoreSnapshot(ctx context.Context, outputs []string, inputs []int) error {
	if s.storeDelay > 0 {
		time.Sleep(s.storeDelay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshotCalls++
	if s.alwaysFail || s.snapshotFailed < s.failSnapshots {
		s.snapshotFailed++
		return errors.New("storage unavailable")
	}
	batch := make([]string, len(outputs))
	copy(batch, outputs)
	s.batches = append(s.batches, batch)
	s.outputs = append(s.outputs, outputs...)
	s.inputs = append(s.inputs, inputs...)
	return nil
}

func (s *fakeStorage) LoadSnapshot(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.outputs...), nil
}

func (s *fakeStorage) LoadInputs(ctx context.Context) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.inputs...), nil
}

func (s *fakeStorage) LoadAllOutputs(ctx context.Context) ([]string, error) {
	return s.LoadSnapshot(ctx)
}

func (s *fakeStorage) StoreMetrics(ctx context.Context, metrics []snapshot.Metric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metricCalls++
	if s.metricCalls <= s.failMetrics {
		return errors.New("metrics write failed")
	}
	s.metrics = append(s.metrics, metrics...)
	return nil
}

func (s *fakeStorage) LoadMetrics(ctx context.Context) ([]snapshot.Metric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]snapshot.Metric(nil), s.metrics...), nil
}

func (s *fakeStorage) Identifier() string {
	return "fake://storage"
}

func (s *fakeStorage) storedBatches() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.batches))
	copy(out, s.batches)
	return out
}

var testWorkerConfig = WorkerConfig{
	MaxRetries:   3,
	InitialDelay: time.Millisecond,
	MaxDelay:     5 * time.Millisecond,
}

// =============================================================================
// Worker tests
// =============================================================================

func TestWorkerWritesInEnqueueOrder(t *testing.T) {
	store := newFakeStorage()
	w := NewWorker[int, string](store, testWorkerConfig, nil)

	for i := range 10 {
		err := w.Enqueue(Unit[int, string]{
			Outputs: []string{fmt.Sprintf("out-%d", i)},
			Inputs:  []int{i},
		})
		if err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}
	if err := w.Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	batches := store.storedBatches()
	if len(batches) != 10 {
		t.Fatalf("stored %d batches, want 10", len(batches))
	}
	for i, b := range batches {
		if want := fmt.Sprintf("out-%d", i); b[0] != want {
			t.Errorf("batch %d = %v, want [%s]", i, b, want)
		}
	}
}

func TestWorkerRetriesTransientFailures(t *testing.T) {
	store := newFakeStorage()
	store.failSnapshots = 2
	w := NewWorker[int, string](store, testWorkerConfig, nil)

	if err := w.Enqueue(Unit[int, string]{Outputs: []string{"a"}, Inputs: []int{1}}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := w.Shutdown(); err != nil {
		t.Fatalf("Shutdown returned error after recovered retries: %v", err)
	}

	if len(store.storedBatches()) != 1 {
		t.Errorf("batch not stored after transient failures")
	}
	if store.snapshotCalls != 3 {
		t.Errorf("snapshot attempts = %d, want 3", store.snapshotCalls)
	}
}

func TestWorkerSurfacesExhaustedRetriesAtShutdown(t *testing.T) {
	store := newFakeStorage()
	store.alwaysFail = true
	w := NewWorker[int, string](store, testWorkerConfig, nil)

	if err := w.Enqueue(Unit[int, string]{Outputs: []string{"a"}, Inputs: []int{1}}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	// The broken unit must not wedge the consumer: later units still drain.
	if err := w.Enqueue(Unit[int, string]{Outputs: []string{"b"}, Inputs: []int{2}}); err != nil {
		t.Fatalf("second Enqueue failed: %v", err)
	}

	if err := w.Shutdown(); err == nil {
		t.Fatal("Shutdown returned nil, want deferred storage failure")
	}
}

func TestWorkerDoesNotRewriteSnapshotWhenMetricsRetry(t *testing.T) {
	store := newFakeStorage()
	store.failMetrics = 1
	w := NewWorker[int, string](store, testWorkerConfig, nil)

	err := w.Enqueue(Unit[int, string]{
		Outputs: []string{"a"},
		Inputs:  []int{1},
		Metrics: []snapshot.Metric{{Input: 1, Success: true}},
	})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := w.Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	if store.snapshotCalls != 1 {
		t.Errorf("snapshot stored %d times, want 1 (no duplicate append on metric retry)", store.snapshotCalls)
	}
	if len(store.metrics) != 1 {
		t.Errorf("metrics stored %d, want 1", len(store.metrics))
	}
}

func TestWorkerRejectsEnqueueAfterShutdown(t *testing.T) {
	w := NewWorker[int, string](newFakeStorage(), testWorkerConfig, nil)
	if err := w.Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	err := w.Enqueue(Unit[int, string]{Outputs: []string{"a"}, Inputs: []int{1}})
	if !errors.Is(err, ErrWorkerClosed) {
		t.Errorf("Enqueue after shutdown = %v, want ErrWorkerClosed", err)
	}
}

func TestWorkerShutdownIdempotentAndConcurrent(t *testing.T) {
	store := newFakeStorage()
	w := NewWorker[int, string](store, testWorkerConfig, nil)
	if err := w.Enqueue(Unit[int, string]{Outputs: []string{"a"}, Inputs: []int{1}}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Shutdown(); err != nil {
				t.Errorf("concurrent Shutdown failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if len(store.storedBatches()) != 1 {
		t.Errorf("queued unit not drained before shutdown completed")
	}
}

func TestWorkerEnqueueDoesNotBlockOnStorageLatency(t *testing.T) {
	store := newFakeStorage()
	store.storeDelay = 30 * time.Millisecond
	w := NewWorker[int, string](store, testWorkerConfig, nil)

	const units = 5
	started := time.Now()
	for i := range units {
		if err := w.Enqueue(Unit[int, string]{Outputs: []string{"x"}, Inputs: []int{i}}); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}
	enqueueElapsed := time.Since(started)

	shutdownStart := time.Now()
	if err := w.Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	drainElapsed := time.Since(shutdownStart)

	// Pushes return immediately; the write latency is paid at the drain point.
	if enqueueElapsed > 20*time.Millisecond {
		t.Errorf("enqueue loop took %v, expected it not to block on writes", enqueueElapsed)
	}
	if drainElapsed < 100*time.Millisecond {
		t.Errorf("drain took %v, expected at least ~%v of deferred write latency",
			drainElapsed, 100*time.Millisecond)
	}
}
