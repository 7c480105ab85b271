package track

import (
	"encoding/json"
	"fmt"
)

// Key derives a canonical membership key for an arbitrary input value.
//
// The key is the value's dynamic type name joined with its structural JSON
// encoding. encoding/json emits map entries sorted by key, so two maps with
// equal contents produce the same key regardless of iteration order; slices
// and structs encode in their natural order. The type prefix keeps values of
// different types with identical encodings apart.
//
// The second return is false for values that cannot be encoded (functions,
// channels, cyclic structures, NaN floats). Such values have no canonical key
// and are treated as always-unprocessed by the Tracker.
func Key(v any) (string, bool) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", false
	}
	return fmt.Sprintf("%T:%s", v, data), true
}
