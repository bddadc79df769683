package domain

import (
	"encoding/hex"
	"strconv"
	"strings"

	"golang.org/x/crypto/sha3"

	dErrors "aidledger/pkg/domain-errors"
)

const maxReferenceLength = 128

// Identity references an actor (officer, supervisor, admin) or program
// manager. The ledger never resolves it; it is compared byte for byte.
type Identity string

// ParseIdentity trims and validates an identity at trust boundaries.
func ParseIdentity(s string) (Identity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "identity cannot be empty")
	}
	if len(s) > maxReferenceLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "identity must be 128 characters or less")
	}
	return Identity(s), nil
}

func (i Identity) String() string { return string(i) }

// IsNil reports whether the identity is unset.
func (i Identity) IsNil() bool { return i == "" }

// RecordID is the ledger-assigned aid record number. Ids start at 1, grow
// monotonically and are never reused.
type RecordID uint64

// ParseRecordID parses a decimal record id. Zero is never a valid id.
func ParseRecordID(s string) (RecordID, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil || n == 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "record id must be a positive integer")
	}
	return RecordID(n), nil
}

func (id RecordID) String() string { return strconv.FormatUint(uint64(id), 10) }

// ProgramID is the unique, immutable program name.
type ProgramID string

// ParseProgramID trims and validates a program name.
func ParseProgramID(s string) (ProgramID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "program name cannot be empty")
	}
	if len(s) > maxReferenceLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "program name must be 128 characters or less")
	}
	return ProgramID(s), nil
}

func (p ProgramID) String() string { return string(p) }

// BeneficiaryHash is an opaque, already-hashed beneficiary identifier. Raw
// national ids never enter the ledger.
type BeneficiaryHash string

// ParseBeneficiaryHash validates a caller supplied beneficiary hash.
func ParseBeneficiaryHash(s string) (BeneficiaryHash, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "beneficiary hash cannot be empty")
	}
	if len(s) > maxReferenceLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "beneficiary hash must be 128 characters or less")
	}
	return BeneficiaryHash(s), nil
}

// HashBeneficiary derives a BeneficiaryHash from a raw identifier
// (Keccak-256, hex encoded, 0x-prefixed).
func HashBeneficiary(identifier string) BeneficiaryHash {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(strings.TrimSpace(identifier)))
	return BeneficiaryHash("0x" + hex.EncodeToString(h.Sum(nil)))
}

func (b BeneficiaryHash) String() string { return string(b) }

// ClaimKey is the deduplication key for one beneficiary under one program.
type ClaimKey [32]byte

// NewClaimKey derives the claim key as Keccak-256(beneficiary || program).
// A length prefix on the beneficiary keeps ("ab","c") and ("a","bc") apart.
func NewClaimKey(beneficiary BeneficiaryHash, program ProgramID) ClaimKey {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(strconv.Itoa(len(beneficiary))))
	h.Write([]byte{':'})
	h.Write([]byte(beneficiary))
	h.Write([]byte(program))
	var key ClaimKey
	copy(key[:], h.Sum(nil))
	return key
}

func (k ClaimKey) String() string { return "0x" + hex.EncodeToString(k[:]) }

// MarshalText lets claim keys serve as JSON object keys in snapshots.
func (k ClaimKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses the 0x-prefixed hex form produced by MarshalText.
func (k *ClaimKey) UnmarshalText(text []byte) error {
	raw, err := hex.DecodeString(strings.TrimPrefix(string(text), "0x"))
	if err != nil || len(raw) != len(k) {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid claim key")
	}
	copy(k[:], raw)
	return nil
}
