package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "aidledger/pkg/domain-errors"
)

// TestParse_Invariants validates the parsing invariants enforced at trust
// boundaries: values are trimmed, non-empty and bounded.
func TestParse_Invariants(t *testing.T) {
	t.Run("rejects empty identity", func(t *testing.T) {
		_, err := ParseIdentity("   ")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects oversized program name", func(t *testing.T) {
		_, err := ParseProgramID(strings.Repeat("p", 129))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("trims identity", func(t *testing.T) {
		id, err := ParseIdentity("  officer-1 ")
		require.NoError(t, err)
		assert.Equal(t, Identity("officer-1"), id)
	})

	t.Run("record id zero is invalid", func(t *testing.T) {
		_, err := ParseRecordID("0")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("record id parses decimal", func(t *testing.T) {
		id, err := ParseRecordID("42")
		require.NoError(t, err)
		assert.Equal(t, RecordID(42), id)
		assert.Equal(t, "42", id.String())
	})

	t.Run("record id rejects negatives and text", func(t *testing.T) {
		for _, in := range []string{"-1", "abc", ""} {
			_, err := ParseRecordID(in)
			assert.Error(t, err, in)
		}
	})
}

func TestClaimKey(t *testing.T) {
	t.Run("deterministic for the same pair", func(t *testing.T) {
		a := NewClaimKey("H1", "BANSOS_2025")
		b := NewClaimKey("H1", "BANSOS_2025")
		assert.Equal(t, a, b)
	})

	t.Run("differs across programs", func(t *testing.T) {
		assert.NotEqual(t, NewClaimKey("H1", "BANSOS_2025"), NewClaimKey("H1", "PKH_2025"))
	})

	t.Run("concatenation boundaries do not collide", func(t *testing.T) {
		assert.NotEqual(t, NewClaimKey("ab", "c"), NewClaimKey("a", "bc"))
	})

	t.Run("text form round trips", func(t *testing.T) {
		key := NewClaimKey("H1", "BANSOS_2025")
		text, err := key.MarshalText()
		require.NoError(t, err)

		var parsed ClaimKey
		require.NoError(t, parsed.UnmarshalText(text))
		assert.Equal(t, key, parsed)
	})

	t.Run("rejects malformed text", func(t *testing.T) {
		var parsed ClaimKey
		assert.Error(t, parsed.UnmarshalText([]byte("0xabc")))
	})
}

func TestHashBeneficiary(t *testing.T) {
	h := HashBeneficiary(" 3171234567890001 ")
	assert.Equal(t, HashBeneficiary("3171234567890001"), h)
	assert.True(t, strings.HasPrefix(h.String(), "0x"))
	assert.Len(t, h.String(), 66)
}
