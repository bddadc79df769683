package attrs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type programName string

func (p programName) String() string { return string(p) }

func TestExtract(t *testing.T) {
	list := []any{"record_id", uint64(7), "program_id", programName("BANSOS_2025"), "reason", "fraud", "dangling"}

	v, ok := Extract[uint64](list, "record_id")
	assert.True(t, ok)
	assert.Equal(t, uint64(7), v)

	_, ok = Extract[string](list, "record_id")
	assert.False(t, ok, "wrong type is not a match")

	_, ok = Extract[string](list, "dangling")
	assert.False(t, ok)

	assert.Equal(t, "fraud", ExtractString(list, "reason"))
	assert.Equal(t, "BANSOS_2025", ExtractString(list, "program_id"))
	assert.Equal(t, "", ExtractString(list, "missing"))
}
