package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type category string

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{
			name:     "nil slice",
			input:    nil,
			expected: nil,
		},
		{
			name:     "empty slice",
			input:    []string{},
			expected: []string{},
		},
		{
			name:     "trims whitespace",
			input:    []string{"  foo  ", "bar  ", "  baz"},
			expected: []string{"foo", "bar", "baz"},
		},
		{
			name:     "removes duplicates preserving order",
			input:    []string{"foo", "bar", "foo", "baz", "bar"},
			expected: []string{"foo", "bar", "baz"},
		},
		{
			name:     "removes empty strings",
			input:    []string{"foo", "", "  ", "bar"},
			expected: []string{"foo", "bar"},
		},
		{
			name:     "preserves case",
			input:    []string{"Foo", "foo", "FOO"},
			expected: []string{"Foo", "foo", "FOO"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := DedupeAndTrim(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}

	t.Run("typed values", func(t *testing.T) {
		result := DedupeAndTrim([]category{"Elderly", " Elderly", "General"})
		assert.Equal(t, []category{"Elderly", "General"}, result)
	})
}

func TestNormalizeKey(t *testing.T) {
	assert.Equal(t, "jawa barat", NormalizeKey("  Jawa   Barat "))
	assert.Equal(t, "", NormalizeKey("   "))
	assert.Equal(t, "bandung", NormalizeKey("BANDUNG"))
}
