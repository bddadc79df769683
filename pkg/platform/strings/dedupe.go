// Package strings provides string manipulation utilities.
package strings

import (
	"strings"
)

// DedupeAndTrim removes duplicates and empty strings from a slice,
// trimming whitespace from each element. Order is preserved. It works for
// any string-backed type, such as enum values decoded from requests.
//
// Example:
//
//	DedupeAndTrim([]string{"  Elderly ", "General", "Elderly", "", "  "})
//	// Returns: []string{"Elderly", "General"}
func DedupeAndTrim[T ~string](values []T) []T {
	if len(values) == 0 {
		return values
	}

	seen := make(map[T]struct{}, len(values))
	result := make([]T, 0, len(values))

	for _, v := range values {
		trimmed := T(strings.TrimSpace(string(v)))
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; !ok {
			seen[trimmed] = struct{}{}
			result = append(result, trimmed)
		}
	}

	return result
}

// NormalizeKey trims, lowercases and collapses inner whitespace so that
// free-text keys such as place names compare equal regardless of spelling noise.
//
// Example:
//
//	NormalizeKey("  Jawa   Barat ")
//	// Returns: "jawa barat"
func NormalizeKey(value string) string {
	return strings.ToLower(strings.Join(strings.Fields(value), " "))
}
