package track

import (
	"testing"
)

func TestKeyStructuralEquality(t *testing.T) {
	tests := []struct {
		name  string
		a, b  any
		equal bool
	}{
		{"identical ints", 42, 42, true},
		{"different ints", 42, 43, false},
		{"identical strings", "abc", "abc", true},
		{"equal maps ignore insertion order", map[string]int{"a": 1, "b": 2}, map[string]int{"b": 2, "a": 1}, true},
		{"different map values", map[string]int{"a": 1}, map[string]int{"a": 2}, false},
		{"equal slices", []int{1, 2, 3}, []int{1, 2, 3}, true},
		{"slice order matters", []int{1, 2, 3}, []int{3, 2, 1}, false},
		{"nested structures", map[string][]int{"x": {1, 2}}, map[string][]int{"x": {1, 2}}, true},
		{"int vs float with same encoding", 1, 1.0, false},
		{"string vs int with same text", "1", 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ka, aOK := Key(tt.a)
			kb, bOK := Key(tt.b)
			if !aOK || !bOK {
				t.Fatalf("expected both values to have canonical keys")
			}
			if (ka == kb) != tt.equal {
				t.Errorf("Key(%v) == Key(%v): got %v, want %v", tt.a, tt.b, ka == kb, tt.equal)
			}
		})
	}
}

func TestKeyUnencodableValues(t *testing.T) {
	if _, ok := Key(func() {}); ok {
		t.Error("expected no canonical key for a function value")
	}
	if _, ok := Key(make(chan int)); ok {
		t.Error("expected no canonical key for a channel value")
	}
}

func TestKeyNil(t *testing.T) {
	k1, ok := Key(nil)
	if !ok {
		t.Fatal("expected nil to have a canonical key")
	}
	k2, _ := Key(nil)
	if k1 != k2 {
		t.Error("expected nil keys to be stable")
	}
}
