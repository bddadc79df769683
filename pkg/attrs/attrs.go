// Package attrs reads values back out of slog-style key/value attribute slices.
package attrs

import "fmt"

// Extract returns the value stored under key when it has type T.
// The slice should be formatted as [key1, value1, key2, value2, ...].
func Extract[T any](attrs []any, key string) (T, bool) {
	var zero T
	for i := 0; i < len(attrs)-1; i += 2 {
		k, ok := attrs[i].(string)
		if !ok || k != key {
			continue
		}
		if v, ok := attrs[i+1].(T); ok {
			return v, true
		}
		return zero, false
	}
	return zero, false
}

// ExtractString extracts a string value from a key-value attribute slice.
// fmt.Stringer values are rendered through String.
// Returns empty string if the key is not found or the value is not a string.
func ExtractString(attrs []any, key string) string {
	if v, ok := Extract[string](attrs, key); ok {
		return v
	}
	if v, ok := Extract[fmt.Stringer](attrs, key); ok {
		return v.String()
	}
	return ""
}
