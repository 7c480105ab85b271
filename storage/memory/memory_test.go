package memory

import (
	"context"
	"slices"
	"testing"

	"github.com/vietddude/snapper/snapshot"
)

func TestStoreAndLoadRoundtrip(t *testing.T) {
	s := New[int, string]()
	ctx := context.Background()

	if err := s.StoreSnapshot(ctx, []string{"a", "b"}, []int{1, 2}); err != nil {
		t.Fatalf("StoreSnapshot failed: %v", err)
	}
	if err := s.StoreSnapshot(ctx, []string{"c"}, []int{3}); err != nil {
		t.Fatalf("StoreSnapshot failed: %v", err)
	}

	outputs, err := s.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	if want := []string{"a", "b", "c"}; !slices.Equal(outputs, want) {
		t.Errorf("outputs = %v, want %v", outputs, want)
	}

	inputs, err := s.LoadInputs(ctx)
	if err != nil {
		t.Fatalf("LoadInputs failed: %v", err)
	}
	if want := []int{1, 2, 3}; !slices.Equal(inputs, want) {
		t.Errorf("inputs = %v, want %v", inputs, want)
	}
}

func TestStoreSnapshotRejectsMismatchedLengths(t *testing.T) {
	s := New[int, string]()
	if err := s.StoreSnapshot(context.Background(), []string{"a"}, []int{1, 2}); err == nil {
		t.Fatal("expected error for mismatched slices")
	}
}

func TestMetricsRoundtrip(t *testing.T) {
	s := New[int, string]()
	ctx := context.Background()

	in := []snapshot.Metric{{Input: 1, Success: true}, {Input: 2, Success: false, ErrorMessage: "x"}}
	if err := s.StoreMetrics(ctx, in); err != nil {
		t.Fatalf("StoreMetrics failed: %v", err)
	}
	out, err := s.LoadMetrics(ctx)
	if err != nil {
		t.Fatalf("LoadMetrics failed: %v", err)
	}
	if len(out) != 2 || out[1].ErrorMessage != "x" {
		t.Errorf("metrics = %v, want the two stored entries", out)
	}
}

func TestIdentifiersAreUniquePerInstance(t *testing.T) {
	a, b := New[int, string](), New[int, string]()
	if a.Identifier() == b.Identifier() {
		t.Errorf("two instances share identifier %q", a.Identifier())
	}
}

func TestLoadReturnsCopies(t *testing.T) {
	s := New[int, string]()
	ctx := context.Background()
	if err := s.StoreSnapshot(ctx, []string{"a"}, []int{1}); err != nil {
		t.Fatalf("StoreSnapshot failed: %v", err)
	}

	outputs, _ := s.LoadSnapshot(ctx)
	outputs[0] = "mutated"

	again, _ := s.LoadSnapshot(ctx)
	if again[0] != "a" {
		t.Errorf("mutating a loaded slice leaked into storage")
	}
}
